package server

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/fansqz/trace-debugger/client"
	"github.com/fansqz/trace-debugger/config"
	"github.com/fansqz/trace-debugger/constants"
	"github.com/fansqz/trace-debugger/debugger"
	e "github.com/fansqz/trace-debugger/error"
	"github.com/fansqz/trace-debugger/programs"
	"github.com/fansqz/trace-debugger/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Welcome(t *testing.T) {
	h := newNativeHarness(t, nil, demoProgram())
	msg := h.next(constants.StartNotification)
	assert.Equal(t, []string{"Welcome to", Name, Version}, msg.InfoMessages)
	assert.Nil(t, msg.ID)
}

func TestHandler_BreakpointFlow(t *testing.T) {
	h := newNativeHarness(t, nil, demoProgram())
	h.welcome()
	ctx := h.ctx
	c := h.client

	number, err := c.SetBreakpoint(ctx, "demo.go", 4, "", true)
	require.NoError(t, err)
	assert.Equal(t, 0, number)

	_, err = c.SetBreakpoint(ctx, "demo.go", 99, "", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to set a breakpoint at demo.go:99")
	assert.Contains(t, err.Error(), "does not exist")

	breakpoints, err := c.GetBreakpoints(ctx)
	require.NoError(t, err)
	require.Len(t, breakpoints, 1)
	assert.Equal(t, demoFile, breakpoints[0].FileName)
	assert.Equal(t, 4, breakpoints[0].LineNumber)
	assert.True(t, breakpoints[0].Enabled)

	require.NoError(t, c.RunScript(ctx))
	msg := h.next(constants.ProgramBreakNotification)
	require.GreaterOrEqual(t, len(msg.Frames), 2)
	top := msg.Frames[0]
	assert.Equal(t, "add() [MainThread]", top.Name)
	assert.Equal(t, 4, top.LineNumber)
	assert.Equal(t, demoFile, top.FilePath)
	locals := map[string]string{}
	for _, v := range top.Locals {
		locals[v.Name] = v.Value
	}
	assert.Equal(t, map[string]string{"a": "3", "b": "4"}, locals)
	assert.Equal(t, "main() [MainThread]", msg.Frames[1].Name)
	assert.Equal(t, 10, msg.Frames[1].LineNumber)

	value, typ, err := c.Evaluate(ctx, top.ID, "a + b", false, false)
	require.NoError(t, err)
	assert.Equal(t, "7", value)
	assert.Equal(t, "int", typ)

	value, _, err = c.Evaluate(ctx, msg.Frames[1].ID, "x * 2", false, false)
	require.NoError(t, err)
	assert.Equal(t, "6", value)

	require.NoError(t, c.SetVariable(ctx, top.ID, "b", "10"))
	value, _, err = c.Evaluate(ctx, top.ID, "b", false, false)
	require.NoError(t, err)
	assert.Equal(t, "10", value)

	err = c.SetVariable(ctx, top.ID, "b", "1 +")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setVariable(b=1 +) failed with error:")

	properties, err := c.GetProperties(ctx, top.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(properties))
	for _, p := range properties {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"a", "b"}, names)

	properties, err = c.GetProperties(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, properties)

	require.NoError(t, c.Resume(ctx))
	end := h.next(constants.ProgramEndNotification)
	assert.Equal(t, 0, exitCode(t, end))

	err = c.Resume(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resume() failed with error:")
}

func TestHandler_BreakpointErrors(t *testing.T) {
	h := newNativeHarness(t, nil, demoProgram())
	h.welcome()
	ctx := h.ctx
	c := h.client

	err := c.ClearBreakpoint(ctx, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to delete breakpoint (Found no breakpoint numbered 5).")

	err = c.ChangeBreakpointState(ctx, 7, true, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `changeBreakpointState() error: "Found no breakpoint numbered 7"`)

	_, err = c.Call(ctx, constants.ClearBreakpoint, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required breakpoint_number parameter")

	_, err = c.Call(ctx, constants.SetBreakpoint, map[string]interface{}{"line_number": 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), e.ErrMissingArgument.Error())

	// 同一行重复设置断点会替换原来的断点
	first, err := c.SetBreakpoint(ctx, "demo.go", 4, "", true)
	require.NoError(t, err)
	second, err := c.SetBreakpoint(ctx, "/src/demo.go", 4, "a > 1", true)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	breakpoints, err := c.GetBreakpoints(ctx)
	require.NoError(t, err)
	require.Len(t, breakpoints, 1)
	assert.Equal(t, second, breakpoints[0].BreakpointNumber)
	assert.Equal(t, "a > 1", breakpoints[0].Condition)

	require.NoError(t, c.ClearBreakpoint(ctx, second))
	breakpoints, err = c.GetBreakpoints(ctx)
	require.NoError(t, err)
	assert.Empty(t, breakpoints)
}

func TestHandler_ConditionNotMet(t *testing.T) {
	h := newNativeHarness(t, nil, demoProgram())
	h.welcome()
	ctx := h.ctx

	_, err := h.client.SetBreakpoint(ctx, "demo.go", 4, "a > 5", true)
	require.NoError(t, err)
	require.NoError(t, h.client.RunScript(ctx))
	end := h.next(constants.ProgramEndNotification)
	assert.Equal(t, 0, exitCode(t, end))
}

func TestHandler_DisabledBreakpoint(t *testing.T) {
	h := newNativeHarness(t, nil, demoProgram())
	h.welcome()
	ctx := h.ctx

	number, err := h.client.SetBreakpoint(ctx, "demo.go", 5, "", true)
	require.NoError(t, err)
	require.NoError(t, h.client.ChangeBreakpointState(ctx, number, false, ""))
	require.NoError(t, h.client.RunScript(ctx))
	h.next(constants.ProgramEndNotification)
}

func TestHandler_Stepping(t *testing.T) {
	h := newNativeHarness(t, nil, demoProgram())
	h.welcome()
	ctx := h.ctx
	c := h.client

	_, err := c.SetBreakpoint(ctx, "demo.go", 10, "", true)
	require.NoError(t, err)
	require.NoError(t, c.RunScript(ctx))
	msg := h.next(constants.ProgramBreakNotification)
	assert.Equal(t, 10, msg.Frames[0].LineNumber)

	require.NoError(t, c.StepInto(ctx))
	msg = h.next(constants.ProgramBreakNotification)
	assert.Equal(t, "add() [MainThread]", msg.Frames[0].Name)
	assert.Equal(t, 4, msg.Frames[0].LineNumber)

	require.NoError(t, c.StepOver(ctx))
	msg = h.next(constants.ProgramBreakNotification)
	assert.Equal(t, 5, msg.Frames[0].LineNumber)

	require.NoError(t, c.StepOut(ctx))
	msg = h.next(constants.ProgramBreakNotification)
	assert.Equal(t, "main() [MainThread]", msg.Frames[0].Name)
	assert.Equal(t, 11, msg.Frames[0].LineNumber)

	// 最后一行之后没有可以停下的地方
	require.NoError(t, c.StepOver(ctx))
	h.next(constants.ProgramEndNotification)
}

func TestHandler_StopAtEntry(t *testing.T) {
	cfg := config.Default()
	cfg.StopAtEntry = true
	h := newNativeHarness(t, cfg, demoProgram())
	h.welcome()

	require.NoError(t, h.client.RunScript(h.ctx))
	msg := h.next(constants.ProgramBreakNotification)
	assert.Equal(t, "main() [MainThread]", msg.Frames[0].Name)
	assert.Equal(t, 9, msg.Frames[0].LineNumber)
	assert.Contains(t, msg.WarningMessages, "stopped so that you can setup some breakpoints before 'Resuming' execution.")

	require.NoError(t, h.client.Resume(h.ctx))
	h.next(constants.ProgramEndNotification)
}

func TestHandler_PostMortem(t *testing.T) {
	h := newNativeHarness(t, nil, programs.Crash())
	h.welcome()

	require.NoError(t, h.client.RunScript(h.ctx))
	msg := h.next(constants.ProgramBreakNotification)
	require.NotNil(t, msg.Exception)
	assert.Equal(t, "string", msg.Exception.Type)
	assert.Equal(t, "insufficient funds", msg.Exception.Info)
	assert.Equal(t, "withdraw() [MainThread]", msg.Frames[0].Name)
	assert.Equal(t, 10, msg.Frames[0].LineNumber)

	value, _, err := h.client.Evaluate(h.ctx, msg.Frames[0].ID, "a.Balance", false, false)
	require.NoError(t, err)
	assert.Equal(t, "70", value)

	require.NoError(t, h.client.Resume(h.ctx))
	end := h.next(constants.ProgramEndNotification)
	assert.Equal(t, 1, exitCode(t, end))
}

func TestHandler_UnknownCommandIgnored(t *testing.T) {
	h := newNativeHarness(t, nil, demoProgram())
	h.welcome()

	ctx, cancel := context.WithTimeout(h.ctx, 100*time.Millisecond)
	defer cancel()
	_, err := h.client.Call(ctx, constants.CommandType("frobnicate"), nil)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// 连接仍然可用
	_, err = h.client.GetBreakpoints(h.ctx)
	assert.NoError(t, err)
}

func TestHandler_DisconnectDetaches(t *testing.T) {
	h := newNativeHarness(t, nil, demoProgram())
	h.welcome()

	_, err := h.client.SetBreakpoint(h.ctx, "demo.go", 4, "", true)
	require.NoError(t, err)
	require.NoError(t, h.client.RunScript(h.ctx))
	h.next(constants.ProgramBreakNotification)
	assert.Equal(t, int64(1), h.server.ActiveSessions())

	require.NoError(t, h.client.Close())
	assert.NoError(t, h.waitServed())
	assert.Equal(t, int64(0), h.server.ActiveSessions())
}

func TestHandler_CorruptedFrame(t *testing.T) {
	cfg := config.Default()
	cfg.Welcome = false
	srvConn, cliConn := net.Pipe()
	defer cliConn.Close()
	served := make(chan error, 1)
	go func() {
		served <- NewServer(cfg, demoProgram()).ServeConn(context.Background(), srvConn)
	}()

	_, err := cliConn.Write([]byte("hello world!!"))
	require.NoError(t, err)
	select {
	case err = <-served:
		assert.True(t, errors.Is(err, e.ErrFrameCorrupted))
	case <-time.After(5 * time.Second):
		t.Fatal("corrupted frame was accepted")
	}
}

func TestHandler_ReplyPrecedesBreak(t *testing.T) {
	cfg := config.Default()
	cfg.Welcome = false
	cfg.StopAtEntry = true
	srvConn, cliConn := net.Pipe()
	defer cliConn.Close()
	go func() {
		_ = NewServer(cfg, demoProgram()).ServeConn(context.Background(), srvConn)
	}()

	conn := protocol.NewConn(cliConn, protocol.DefaultChunkSize)
	id := int64(1)
	require.NoError(t, conn.Send(&protocol.Message{ID: &id, Command: string(constants.RunScript)}))

	reply, err := conn.Receive()
	require.NoError(t, err)
	require.NotNil(t, reply.ID)
	assert.Equal(t, id, *reply.ID)
	assert.Equal(t, constants.StatusOK, reply.CommandExecStatus)
	assert.Empty(t, reply.Args)

	notification, err := conn.Receive()
	require.NoError(t, err)
	assert.Nil(t, notification.ID)
	assert.Equal(t, string(constants.ProgramBreakNotification), notification.Command)
}

// abortingDebugger 收到resume时会话异常终止
type abortingDebugger struct {
	debugger.Debugger
	callback debugger.NotificationCallback
}

func (a *abortingDebugger) Resume(ctx context.Context) error {
	a.callback(debugger.NewTerminatedEvent(`unknown resume directive "jump"`))
	return nil
}

func (a *abortingDebugger) Terminate(ctx context.Context) error {
	return nil
}

func TestHandler_TerminatedSessionClosesConnection(t *testing.T) {
	srvConn, cliConn := net.Pipe()
	handler := NewDebuggerHandler(protocol.NewConn(srvConn, 0),
		func(callback debugger.NotificationCallback) debugger.Debugger {
			return &abortingDebugger{callback: callback}
		})
	served := make(chan error, 1)
	go func() {
		served <- handler.Serve(context.Background())
	}()

	c := client.New(cliConn)
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, c.Resume(ctx))

	select {
	case err := <-served:
		assert.True(t, errors.Is(err, e.ErrSessionClosed))
		assert.Contains(t, err.Error(), "jump")
	case <-time.After(5 * time.Second):
		t.Fatal("handler kept serving a terminated session")
	}
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("connection was not closed")
	}
}
