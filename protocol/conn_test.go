package protocol

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/fansqz/trace-debugger/constants"
	e "github.com/fansqz/trace-debugger/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedConn 每次Read返回预先准备的一段数据
type scriptedConn struct {
	chunks [][]byte
	reads  []int
	out    bytes.Buffer
}

func (s *scriptedConn) Read(p []byte) (int, error) {
	s.reads = append(s.reads, len(p))
	if len(s.chunks) == 0 {
		return 0, io.EOF
	}
	chunk := s.chunks[0]
	n := copy(p, chunk)
	if n < len(chunk) {
		s.chunks[0] = chunk[n:]
	} else {
		s.chunks = s.chunks[1:]
	}
	return n, nil
}

func (s *scriptedConn) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

func (s *scriptedConn) Close() error {
	return nil
}

func encodeCommand(t *testing.T, command string) []byte {
	data, err := Encode(&Message{Command: command})
	require.NoError(t, err)
	return data
}

func TestConn_ReceiveSplitAcrossReads(t *testing.T) {
	data := encodeCommand(t, "stepOver")
	sc := &scriptedConn{chunks: [][]byte{data[:3], data[3:15], data[15:20], data[20:]}}
	c := NewConn(sc, 0)
	msg, err := c.Receive()
	require.NoError(t, err)
	assert.Equal(t, "stepOver", msg.Command)

	msg, err = c.Receive()
	require.NoError(t, err)
	assert.Equal(t, string(constants.InternalQuit), msg.Command)
	assert.Equal(t, "EOF", msg.Args.String("socket_error_str"))
}

func TestConn_ReceiveTwoMessagesInOneRead(t *testing.T) {
	data := append(encodeCommand(t, "resume"), encodeCommand(t, "suspend")...)
	sc := &scriptedConn{chunks: [][]byte{data}}
	c := NewConn(sc, 0)
	first, err := c.Receive()
	require.NoError(t, err)
	second, err := c.Receive()
	require.NoError(t, err)
	assert.Equal(t, "resume", first.Command)
	assert.Equal(t, "suspend", second.Command)
	assert.Len(t, sc.reads, 1)
}

func TestConn_ReadsExactRemainderOnceLengthKnown(t *testing.T) {
	data := encodeCommand(t, "getBreakpoints")
	header := bytes.Index(data, []byte(MagicCode)) + len(MagicCode)
	sc := &scriptedConn{chunks: [][]byte{data[:header+2], data[header+2:]}}
	c := NewConn(sc, 0)
	msg, err := c.Receive()
	require.NoError(t, err)
	assert.Equal(t, "getBreakpoints", msg.Command)
	require.Len(t, sc.reads, 2)
	assert.Equal(t, DefaultChunkSize, sc.reads[0])
	assert.Equal(t, len(data)-header-2, sc.reads[1])
}

func TestConn_ReceiveCorrupted(t *testing.T) {
	sc := &scriptedConn{chunks: [][]byte{[]byte("garbage that is not a frame")}}
	c := NewConn(sc, 0)
	_, err := c.Receive()
	assert.True(t, errors.Is(err, e.ErrFrameCorrupted))
}

func TestConn_ReceiveOversizedLength(t *testing.T) {
	sc := &scriptedConn{chunks: [][]byte{[]byte("length=999999999999" + MagicCode + "{")}}
	c := NewConn(sc, 0)
	_, err := c.Receive()
	require.True(t, errors.Is(err, e.ErrFrameCorrupted))
	assert.Contains(t, err.Error(), "exceeds")
	assert.Len(t, sc.reads, 1)

	data := encodeCommand(t, "getBreakpoints")
	c = NewConn(&scriptedConn{chunks: [][]byte{data}}, 0)
	c.SetMaxMessageSize(10)
	_, err = c.Receive()
	assert.True(t, errors.Is(err, e.ErrFrameCorrupted))
}

func TestConn_LargeMessageReadInChunks(t *testing.T) {
	data, err := Encode(&Message{Command: "evaluate", Args: NewArgs(map[string]interface{}{
		"expression": strings.Repeat("x", 10000),
	})})
	require.NoError(t, err)
	sc := &scriptedConn{chunks: [][]byte{data}}
	c := NewConn(sc, 64)
	msg, err := c.Receive()
	require.NoError(t, err)
	assert.Equal(t, "evaluate", msg.Command)
	assert.Len(t, msg.Args.String("expression"), 10000)
	for _, n := range sc.reads {
		assert.LessOrEqual(t, n, 64)
	}
}

func TestConn_ConcurrentSendsDoNotInterleave(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	sender := NewConn(server, 0)
	receiver := NewConn(client, 0)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := NewProgramBreakEvent(nil, []string{string(bytes.Repeat([]byte("w"), 3000))}, nil)
			assert.NoError(t, sender.Send(msg))
		}()
	}
	for i := 0; i < n; i++ {
		msg, err := receiver.Receive()
		require.NoError(t, err)
		assert.Equal(t, string(constants.ProgramBreakNotification), msg.Command)
		assert.Len(t, msg.WarningMessages[0], 3000)
	}
	wg.Wait()
}

func TestMessage_Reply(t *testing.T) {
	id := int64(3)
	req := &Message{ID: &id, Command: "clearBreakpoint", Args: Args(`{"breakpoint_number":1}`)}
	reply := req.Reply().Fail("Found no breakpoint numbered %d", 1)
	assert.Equal(t, &id, reply.ID)
	assert.Nil(t, reply.Args)
	assert.True(t, reply.Failed())
	assert.Equal(t, []string{"Found no breakpoint numbered 1"}, reply.ErrorMessages)
}
