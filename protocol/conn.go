package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"syscall"

	"github.com/fansqz/trace-debugger/constants"
	e "github.com/fansqz/trace-debugger/error"
	"github.com/fansqz/trace-debugger/utils"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultChunkSize 每次读取的最大字节数
	DefaultChunkSize = 4096
	// DefaultMaxMessageSize 消息体的最大长度
	DefaultMaxMessageSize = 16 << 20
)

// Conn 一条调试连接
// Send可以被多个goroutine同时调用，Receive只能由命令处理协程调用
type Conn struct {
	rw        io.ReadWriteCloser
	sendLock  sync.Mutex
	buf       []byte
	chunkSize int
	maxSize   int
	log       *logrus.Entry
}

func NewConn(rw io.ReadWriteCloser, chunkSize int) *Conn {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Conn{
		rw:        rw,
		chunkSize: chunkSize,
		maxSize:   DefaultMaxMessageSize,
		log:       utils.Logger(constants.DomainNetwork),
	}
}

// SetMaxMessageSize 修改消息体的最大长度，超过的消息视为格式错误
func (c *Conn) SetMaxMessageSize(size int) {
	if size > 0 {
		c.maxSize = size
	}
}

// Send 发送一条消息，整条消息在发送锁内写出
func (c *Conn) Send(msg *Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	c.sendLock.Lock()
	defer c.sendLock.Unlock()
	if c.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		c.log.Debugf("[Conn] Send %s", data)
	}
	if _, err = c.rw.Write(data); err != nil {
		return errors.Join(e.ErrConnectionLost, err)
	}
	return nil
}

// Receive 读取下一条消息
// 读取失败时返回_InternalQuit命令，只有消息格式错误才会返回error
func (c *Conn) Receive() (*Message, error) {
	for {
		start, n, ok, err := parseHeader(c.buf)
		if err != nil {
			return nil, err
		}
		if ok && n > c.maxSize {
			return nil, fmt.Errorf("%w: message length %d exceeds %d", e.ErrFrameCorrupted, n, c.maxSize)
		}
		if ok && len(c.buf)-start >= n {
			end := start + n
			msg := &Message{}
			if err = decodePayload(c.buf[start:end], msg); err != nil {
				return nil, err
			}
			// 多余的数据留给下一次
			rest := len(c.buf) - end
			copy(c.buf, c.buf[end:])
			c.buf = c.buf[:rest]
			if c.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
				c.log.Debugf("[Conn] Receive command=%s args=%s", msg.Command, msg.Args)
			}
			return msg, nil
		}
		size := c.chunkSize
		if ok && start+n-len(c.buf) < size {
			size = start + n - len(c.buf)
		}
		if readErr := c.fill(size); readErr != nil {
			if len(c.buf) > 0 {
				c.log.Warnf("[Conn] drop %d bytes of unfinished message", len(c.buf))
				c.buf = c.buf[:0]
			}
			c.log.Infof("[Conn] read failed: %v", readErr)
			return quitMessage(readErr), nil
		}
	}
}

func (c *Conn) fill(size int) error {
	if cap(c.buf)-len(c.buf) < size {
		grown := make([]byte, len(c.buf), 2*cap(c.buf)+size)
		copy(grown, c.buf)
		c.buf = grown
	}
	n, err := c.rw.Read(c.buf[len(c.buf) : len(c.buf)+size])
	c.buf = c.buf[:len(c.buf)+n]
	if n > 0 {
		return nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return err
}

func (c *Conn) Close() error {
	return c.rw.Close()
}

// quitMessage 连接断开转换为_InternalQuit命令，走正常的命令处理流程
func quitMessage(err error) *Message {
	errno := 0
	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		errno = int(sysErr)
	}
	return &Message{
		Command: string(constants.InternalQuit),
		Args: NewArgs(map[string]interface{}{
			"socket_error_number": errno,
			"socket_error_str":    err.Error(),
		}),
	}
}
