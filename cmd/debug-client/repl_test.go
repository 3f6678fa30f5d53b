package main

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/fansqz/trace-debugger/client"
	"github.com/fansqz/trace-debugger/config"
	"github.com/fansqz/trace-debugger/constants"
	"github.com/fansqz/trace-debugger/programs"
	"github.com/fansqz/trace-debugger/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepl(t *testing.T) (*repl, *bytes.Buffer) {
	cfg := config.Default()
	cfg.Welcome = false
	srvConn, cliConn := net.Pipe()
	go func() {
		_ = server.NewServer(cfg, programs.Fibonacci()).ServeConn(context.Background(), srvConn)
	}()
	c := client.New(cliConn)
	t.Cleanup(func() { _ = c.Close() })
	out := &bytes.Buffer{}
	return newRepl(c, out), out
}

// execLine 执行命令并返回输出
func execLine(t *testing.T, r *repl, out *bytes.Buffer, line string) string {
	out.Reset()
	quit, err := r.execute(context.Background(), line)
	require.NoError(t, err, line)
	assert.False(t, quit)
	return out.String()
}

func waitNotification(t *testing.T, r *repl, out *bytes.Buffer, expected constants.NotificationType) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := r.client.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, string(expected), msg.Command)
	out.Reset()
	r.printNotification(msg)
	return out.String()
}

func TestRepl_Session(t *testing.T) {
	r, out := newTestRepl(t)

	assert.Equal(t, "breakpoint 0 at fib.go:6\n", execLine(t, r, out, "b fib.go:6 if n == 3"))
	execLine(t, r, out, "disable 0")
	assert.Contains(t, execLine(t, r, out, "bps"), "0\t/programs/fib.go:6\tdisabled\tif n == 3")
	execLine(t, r, out, "enable 0")

	execLine(t, r, out, "run")
	assert.Equal(t, "stopped in fib() [MainThread] at /programs/fib.go:6\n",
		waitNotification(t, r, out, constants.ProgramBreakNotification))

	assert.Equal(t, "3 (int)\n", execLine(t, r, out, "p n"))
	assert.Contains(t, execLine(t, r, out, "bt"), "*#0 fib() [MainThread] at /programs/fib.go:6")

	frame := execLine(t, r, out, "f 1")
	assert.Contains(t, frame, "#1 main() [MainThread] at /programs/fib.go:16")
	assert.Contains(t, frame, "i int = 3")
	assert.Equal(t, "3 (int)\n", execLine(t, r, out, "p i"))

	execLine(t, r, out, "clear 0")
	assert.Equal(t, "no breakpoints\n", execLine(t, r, out, "breakpoints"))
	execLine(t, r, out, "c")
	assert.Equal(t, "program exited with code 0\n",
		waitNotification(t, r, out, constants.ProgramEndNotification))
	assert.Equal(t, "not stopped\n", execLine(t, r, out, "bt"))
}

func TestRepl_Errors(t *testing.T) {
	r, _ := newTestRepl(t)
	ctx := context.Background()

	_, err := r.execute(ctx, "frobnicate")
	assert.EqualError(t, err, "invalid command: frobnicate")

	_, err = r.execute(ctx, "clear x")
	assert.EqualError(t, err, "usage: clear <number>")

	_, err = r.execute(ctx, "b fib.go")
	assert.EqualError(t, err, "usage: break <file>:<line> [if <condition>]")

	_, err = r.execute(ctx, "b fib.go:6 when n")
	assert.EqualError(t, err, "usage: break <file>:<line> [if <condition>]")

	_, err = r.execute(ctx, "clear 4")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Found no breakpoint numbered 4")

	quit, err := r.execute(ctx, "quit")
	assert.NoError(t, err)
	assert.True(t, quit)
}

func TestLookup(t *testing.T) {
	for name, expected := range map[string]string{
		"c":    "continue",
		"cl":   "clear",
		"b":    "break",
		"bps":  "breakpoints",
		"bt":   "backtrace",
		"disa": "disable",
		"s":    "step",
		"se":   "set",
	} {
		cmd, ok := lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, expected, cmd.name, name)
	}
	_, ok := lookup("zz")
	assert.False(t, ok)
}
