package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/fansqz/trace-debugger/client"
	"github.com/fansqz/trace-debugger/config"
	"github.com/fansqz/trace-debugger/constants"
	"github.com/fansqz/trace-debugger/protocol"
	"github.com/fansqz/trace-debugger/vm"
	"github.com/stretchr/testify/require"
)

const demoFile = "/src/demo.go"

const demoSource = `package main

func add(a int, b int) int {
	r := a + b
	return r
}

func main() {
	x := 3
	y := add(x, 4)
	println(y)
}
`

func demoProgram() *vm.Program {
	return &vm.Program{
		Name:    "main",
		File:    demoFile,
		Line:    8,
		Sources: map[string]string{demoFile: demoSource},
		Main: func(f *vm.Frame) {
			f.Line(9)
			f.Set("x", 3)
			f.Line(10)
			y := 0
			f.Call("add", demoFile, 3, func(g *vm.Frame) {
				g.Set("a", f.Int("x"))
				g.Set("b", 4)
				g.Line(4)
				g.Set("r", g.Int("a")+g.Int("b"))
				g.Line(5)
				y = g.Int("r")
			})
			f.Set("y", y)
			f.Line(11)
		},
	}
}

type nativeHarness struct {
	t      *testing.T
	ctx    context.Context
	server *Server
	client *client.Client
	served chan error
}

func newNativeHarness(t *testing.T, cfg *config.Config, program *vm.Program) *nativeHarness {
	if cfg == nil {
		cfg = config.Default()
	}
	srvConn, cliConn := net.Pipe()
	h := &nativeHarness{
		t:      t,
		ctx:    context.Background(),
		server: NewServer(cfg, program),
		served: make(chan error, 1),
	}
	go func() {
		h.served <- h.server.ServeConn(context.Background(), srvConn)
	}()
	h.client = client.New(cliConn)
	t.Cleanup(func() { _ = h.client.Close() })
	return h
}

// next 等待下一条通知
func (h *nativeHarness) next(expected constants.NotificationType) *protocol.Message {
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()
	msg, err := h.client.Next(ctx)
	require.NoError(h.t, err)
	require.Equal(h.t, string(expected), msg.Command)
	return msg
}

func (h *nativeHarness) welcome() {
	h.next(constants.StartNotification)
}

func (h *nativeHarness) waitServed() error {
	select {
	case err := <-h.served:
		return err
	case <-time.After(5 * time.Second):
		h.t.Fatal("connection is still served")
		return nil
	}
}

func exitCode(t *testing.T, msg *protocol.Message) int {
	result, ok := msg.Result.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "terminated", result["executionStatus"])
	return int(result["exit_code"].(float64))
}
