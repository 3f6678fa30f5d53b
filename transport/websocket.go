package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// closeTimeout 发送关闭帧的超时时间
const closeTimeout = time.Second

// WSConn 把websocket连接包装成字节流
// 每次Write发送一个二进制消息，Read依次读取消息内容，消息边界对上层不可见
type WSConn struct {
	ws        *websocket.Conn
	reader    io.Reader
	writeLock sync.Mutex
	closeOnce sync.Once
}

func NewWSConn(ws *websocket.Conn) *WSConn {
	return &WSConn{ws: ws}
}

// Dial 连接websocket调试服务
func Dial(ctx context.Context, url string) (*WSConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 30 * time.Second,
	}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connection failed: %w", err)
	}
	return NewWSConn(ws), nil
}

// Read 只能由一个协程调用
func (c *WSConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			typ, r, err := c.ws.NextReader()
			if err != nil {
				return 0, err
			}
			if typ != websocket.BinaryMessage && typ != websocket.TextMessage {
				continue
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *WSConn) Write(p []byte) (int, error) {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close 发送关闭帧并关闭底层连接
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeLock.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeTimeout))
		c.writeLock.Unlock()
		err = c.ws.Close()
	})
	return err
}
