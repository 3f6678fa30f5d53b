package client

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/fansqz/trace-debugger/constants"
	e "github.com/fansqz/trace-debugger/error"
	"github.com/fansqz/trace-debugger/protocol"
	"github.com/fansqz/trace-debugger/transport"
	"github.com/fansqz/trace-debugger/utils"
	"github.com/fansqz/trace-debugger/utils/gosync"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// notificationBuffer 未读取的通知数量上限，超过后读取协程会等待
const notificationBuffer = 64

// CommandError 命令执行失败
type CommandError struct {
	Command  string
	Messages []string
}

func (c *CommandError) Error() string {
	return c.Command + ": " + strings.Join(c.Messages, "; ")
}

// Client 调试协议客户端
// 回复通过_id和请求对应，start、programBreak、programEnd通知通过Notifications读取
type Client struct {
	conn          *protocol.Conn
	nextID        *atomic.Int64
	mu            sync.Mutex
	pending       map[int64]chan *protocol.Message
	closed        bool
	notifications chan *protocol.Message
	done          chan struct{}
	log           *logrus.Entry
}

// Dial 通过tcp连接调试服务
func Dial(ctx context.Context, address string) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// DialWebsocket 通过websocket连接调试服务
func DialWebsocket(ctx context.Context, url string) (*Client, error) {
	conn, err := transport.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// New 在已有的连接上创建客户端
func New(rw io.ReadWriteCloser) *Client {
	c := &Client{
		conn:          protocol.NewConn(rw, protocol.DefaultChunkSize),
		nextID:        atomic.NewInt64(0),
		pending:       map[int64]chan *protocol.Message{},
		notifications: make(chan *protocol.Message, notificationBuffer),
		done:          make(chan struct{}),
		log:           utils.Logger(constants.DomainNetwork).WithField("side", "client"),
	}
	gosync.Go(context.Background(), c.readLoop)
	return c
}

// Notifications 调试器主动发送的消息，连接断开后关闭
func (c *Client) Notifications() <-chan *protocol.Message {
	return c.notifications
}

// Done 连接断开后关闭
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.shutdown()
	for {
		msg, err := c.conn.Receive()
		if err != nil {
			c.log.Warnf("[Client] receive fail, err = %v", err)
			return
		}
		if constants.CommandType(msg.Command) == constants.InternalQuit {
			return
		}
		if msg.ID == nil {
			c.notifications <- msg
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[*msg.ID]
		delete(c.pending, *msg.ID)
		c.mu.Unlock()
		if !ok {
			c.log.Warnf("[Client] unexpected reply %d to %s", *msg.ID, msg.Command)
			continue
		}
		ch <- msg
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	close(c.notifications)
	close(c.done)
}

// Call 发送命令并等待回复，回复失败时返回CommandError
func (c *Client) Call(ctx context.Context, command constants.CommandType, args map[string]interface{}) (*protocol.Message, error) {
	id := c.nextID.Inc()
	ch := make(chan *protocol.Message, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, e.ErrConnectionLost
	}
	c.pending[id] = ch
	c.mu.Unlock()

	req := &protocol.Message{ID: &id, Command: string(command)}
	if len(args) > 0 {
		req.Args = protocol.NewArgs(args)
	}
	if err := c.conn.Send(req); err != nil {
		c.forget(id)
		return nil, err
	}
	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, e.ErrConnectionLost
		}
		if reply.Failed() {
			return reply, &CommandError{Command: reply.Command, Messages: reply.ErrorMessages}
		}
		return reply, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

// Next 等待下一条通知
func (c *Client) Next(ctx context.Context) (*protocol.Message, error) {
	select {
	case msg, ok := <-c.notifications:
		if !ok {
			return nil, e.ErrConnectionLost
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close 关闭连接，读取协程随后退出
func (c *Client) Close() error {
	return c.conn.Close()
}

// decodeResult 把回复中的result转换成具体类型
func decodeResult(msg *protocol.Message, v interface{}) error {
	data, err := json.Marshal(msg.Result)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
