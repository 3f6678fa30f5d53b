package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/fansqz/trace-debugger/config"
	"github.com/fansqz/trace-debugger/constants"
	"github.com/fansqz/trace-debugger/debugger"
	"github.com/fansqz/trace-debugger/debugger/lua_evaluator"
	"github.com/fansqz/trace-debugger/protocol"
	"github.com/fansqz/trace-debugger/transport"
	"github.com/fansqz/trace-debugger/utils"
	"github.com/fansqz/trace-debugger/utils/gosync"
	"github.com/fansqz/trace-debugger/vm"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Name 欢迎消息中的调试器名称
const Name = "trace-debugger"

// Version 调试器版本
const Version = "1.0.1"

// Server 调试服务，每个连接都会在新的执行环境中运行一次被调试程序
type Server struct {
	cfg      *config.Config
	program  *vm.Program
	sessions *atomic.Int64
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

func NewServer(cfg *config.Config, program *vm.Program) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Server{
		cfg:      cfg,
		program:  program,
		sessions: atomic.NewInt64(0),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  protocol.DefaultChunkSize,
			WriteBufferSize: protocol.DefaultChunkSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: utils.Logger(constants.DomainNetwork),
	}
}

// ActiveSessions 当前连接的会话数量
func (s *Server) ActiveSessions() int64 {
	return s.sessions.Load()
}

// NewSession 创建调试会话
func (s *Server) NewSession(callback debugger.NotificationCallback) *debugger.Session {
	return debugger.NewSession(&debugger.StartOption{
		Program:          s.program,
		Machine:          vm.NewMachine(),
		Evaluator:        lua_evaluator.NewLuaEvaluator(),
		StopAtEntry:      s.cfg.StopAtEntry,
		WorkingDirectory: s.cfg.WorkingDirectory,
		MaxReprLength:    s.cfg.MaxReprLength,
		EvalTimeout:      s.cfg.EvalTimeout,
		Callback:         callback,
	})
}

// ServeConn 在一个连接上处理调试会话，连接断开后返回
func (s *Server) ServeConn(ctx context.Context, conn io.ReadWriteCloser) error {
	s.sessions.Inc()
	defer s.sessions.Dec()
	defer conn.Close()
	if s.cfg.Protocol == constants.ProtocolDAP {
		d := NewDebugSession(conn, s.NewSession)
		s.log.Infof("[Server] dap session %s", d.debugger.ID())
		return d.Serve(ctx)
	}
	pc := protocol.NewConn(conn, s.cfg.ReceiveChunkSize)
	pc.SetMaxMessageSize(s.cfg.MaxMessageSize)
	handler := NewDebuggerHandler(pc,
		func(callback debugger.NotificationCallback) debugger.Debugger {
			return s.NewSession(callback)
		})
	if s.cfg.Welcome {
		if err := handler.Welcome(Name, Version); err != nil {
			return err
		}
	}
	return handler.Serve(ctx)
}

// Serve 接受连接直到ctx结束或者listener关闭
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	gosync.Go(ctx, func(ctx context.Context) {
		<-ctx.Done()
		_ = listener.Close()
	})
	s.log.Infof("[Server] listening at %s (%s)", listener.Addr(), s.cfg.Protocol)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warnf("[Server] accept fail, err = %v", err)
			return err
		}
		s.log.Infof("[Server] connection from %s", conn.RemoteAddr())
		gosync.Go(ctx, func(ctx context.Context) {
			if err := s.ServeConn(ctx, conn); err != nil {
				s.log.Warnf("[Server] connection %s closed with error: %v", conn.RemoteAddr(), err)
			}
		})
	}
}

// ServeHTTP 在websocket上处理原生协议
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("[Server] websocket upgrade fail, err = %v", err)
		return
	}
	if err = s.ServeConn(r.Context(), transport.NewWSConn(ws)); err != nil {
		s.log.Warnf("[Server] websocket session closed with error: %v", err)
	}
}

// ListenAndServe 按照配置监听端口
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Listen())
	if err != nil {
		return err
	}
	if !s.cfg.Websocket {
		return s.Serve(ctx, listener)
	}
	mux := http.NewServeMux()
	mux.Handle(s.cfg.WebsocketPath, s)
	httpServer := &http.Server{Handler: mux}
	gosync.Go(ctx, func(ctx context.Context) {
		<-ctx.Done()
		_ = httpServer.Close()
	})
	s.log.Infof("[Server] websocket listening at ws://%s%s", listener.Addr(), s.cfg.WebsocketPath)
	if err = httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
