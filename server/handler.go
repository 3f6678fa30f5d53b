package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fansqz/trace-debugger/constants"
	. "github.com/fansqz/trace-debugger/debugger"
	e "github.com/fansqz/trace-debugger/error"
	"github.com/fansqz/trace-debugger/protocol"
	"github.com/fansqz/trace-debugger/utils"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// DebuggerHandler 原生协议的命令处理器
// 只有Serve所在的协程接收消息，回复和通知通过同一个连接发送
type DebuggerHandler struct {
	conn     *protocol.Conn
	debugger Debugger
	// order 保证命令的回复先于该命令引起的通知发送
	order sync.Mutex
	// aborted 会话异常终止的原因
	aborted *atomic.Error
	log     *logrus.Entry
}

// NewDebuggerHandler 创建命令处理器，newDebugger使用处理器的回调创建调试会话
func NewDebuggerHandler(conn *protocol.Conn, newDebugger func(callback NotificationCallback) Debugger) *DebuggerHandler {
	d := &DebuggerHandler{
		conn:    conn,
		aborted: atomic.NewError(nil),
		log:     utils.Logger(constants.DomainNetwork),
	}
	d.debugger = newDebugger(d.notify)
	return d
}

// Debugger 处理器驱动的调试会话
func (d *DebuggerHandler) Debugger() Debugger {
	return d.debugger
}

// Welcome 发送欢迎消息
func (d *DebuggerHandler) Welcome(name string, version string) error {
	return d.conn.Send(protocol.NewStartEvent(name, version))
}

// Serve 循环处理命令，直到连接断开
// 消息格式错误或者会话异常终止时返回error，此时调试会话已经断开
func (d *DebuggerHandler) Serve(ctx context.Context) error {
	for {
		msg, err := d.conn.Receive()
		if err != nil {
			d.log.Errorf("[Handler] receive fail, err = %v", err)
			_ = d.debugger.Terminate(ctx)
			return err
		}
		if constants.CommandType(msg.Command) == constants.InternalQuit {
			d.log.Infof("[Handler] quit: %s", msg.Args.String("socket_error_str"))
			if err = d.debugger.Terminate(ctx); err != nil {
				return err
			}
			return d.aborted.Load()
		}
		d.handle(ctx, msg)
	}
}

// notify 调试会话的事件回调，在被调试线程上调用
func (d *DebuggerHandler) notify(event interface{}) {
	var msg *protocol.Message
	switch ev := event.(type) {
	case *StoppedEvent:
		msg = protocol.NewProgramBreakEvent(frameDescriptors(ev.Frames), ev.Warnings, exception(ev.Exception))
	case *ExitedEvent:
		msg = protocol.NewProgramEndEvent(ev.ExitCode)
	case *StartEvent:
		msg = protocol.NewStartEvent(ev.Name, ev.Version)
	case *TerminatedEvent:
		// 关闭连接，Serve读取失败后返回
		d.log.Errorf("[Handler] session terminated: %s", ev.Reason)
		d.aborted.Store(fmt.Errorf("%w: %s", e.ErrSessionClosed, ev.Reason))
		_ = d.conn.Close()
		return
	default:
		d.log.Warnf("[Handler] unknown event %T", event)
		return
	}
	d.order.Lock()
	defer d.order.Unlock()
	if err := d.conn.Send(msg); err != nil {
		d.log.Warnf("[Handler] send %s fail, err = %v", msg.Command, err)
	}
}

func (d *DebuggerHandler) handle(ctx context.Context, req *protocol.Message) {
	d.order.Lock()
	defer d.order.Unlock()
	var reply *protocol.Message
	switch constants.CommandType(req.Command) {
	case constants.GetBreakpoints:
		reply = d.handleGetBreakpoints(ctx, req)
	case constants.SetBreakpoint:
		reply = d.handleSetBreakpoint(ctx, req)
	case constants.ChangeBreakpointState:
		reply = d.handleChangeBreakpointState(ctx, req)
	case constants.ClearBreakpoint:
		reply = d.handleClearBreakpoint(ctx, req)
	case constants.GetProperties:
		reply = d.handleGetProperties(ctx, req)
	case constants.SetVariable:
		reply = d.handleSetVariable(ctx, req)
	case constants.Evaluate:
		reply = d.handleEvaluate(ctx, req)
	case constants.RunScript:
		reply = d.handleExecution(req, func() error { return d.debugger.Start(ctx) })
	case constants.Suspend:
		reply = d.handleExecution(req, func() error { return d.debugger.Suspend(ctx) })
	case constants.Resume:
		reply = d.handleExecution(req, func() error { return d.debugger.Resume(ctx) })
	case constants.StepOver:
		reply = d.handleExecution(req, func() error { return d.debugger.StepOver(ctx) })
	case constants.StepInto:
		reply = d.handleExecution(req, func() error { return d.debugger.StepIn(ctx) })
	case constants.StepOut:
		reply = d.handleExecution(req, func() error { return d.debugger.StepOut(ctx) })
	default:
		// 不认识的命令直接忽略
		d.log.Warnf("[Handler] unsupported command '%s' ignored", req.Command)
		return
	}
	if err := d.conn.Send(reply); err != nil {
		d.log.Warnf("[Handler] reply %s fail, err = %v", req.Command, err)
	}
}

func (d *DebuggerHandler) handleGetBreakpoints(ctx context.Context, req *protocol.Message) *protocol.Message {
	breakpoints := d.debugger.GetBreakpoints(ctx)
	answer := make([]*protocol.BreakpointDescriptor, 0, len(breakpoints))
	for _, bp := range breakpoints {
		answer = append(answer, &protocol.BreakpointDescriptor{
			BreakpointNumber: bp.Number,
			FileName:         bp.File,
			LineNumber:       bp.Line,
			Condition:        bp.Condition,
			Enabled:          bp.Enabled,
		})
	}
	reply := req.Reply()
	reply.Result = answer
	return reply
}

func (d *DebuggerHandler) handleSetBreakpoint(ctx context.Context, req *protocol.Message) *protocol.Message {
	reply := req.Reply()
	file := req.Args.String("file_name")
	line, ok := req.Args.Int("line_number")
	if file == "" || !ok {
		return reply.Fail("Failed to set a breakpoint at %s:%d (%s).", file, line, e.ErrMissingArgument)
	}
	number, err := d.debugger.SetBreakpoint(ctx, file, line, req.Args.String("condition"), req.Args.Bool("enabled", true))
	if err != nil {
		utils.Logger(constants.DomainBreakpoint).Warnf("[Handler] setBreakpoint %s:%d fail, err = %v", file, line, err)
		return reply.Fail("Failed to set a breakpoint at %s:%d (%s).", file, line, err)
	}
	reply.Result = &protocol.BreakpointResult{BreakpointNumber: number}
	return reply
}

func (d *DebuggerHandler) handleChangeBreakpointState(ctx context.Context, req *protocol.Message) *protocol.Message {
	reply := req.Reply()
	number, ok := req.Args.Int("breakpoint_number")
	if !ok {
		return reply.Fail("changeBreakpointState() error: missing required breakpoint_number parameter.")
	}
	err := d.debugger.ChangeBreakpointState(ctx, number, req.Args.Bool("enabled", false), req.Args.String("condition"))
	if err != nil {
		return reply.Fail("changeBreakpointState() error: \"%s\"", breakpointError(number, err))
	}
	return reply
}

func (d *DebuggerHandler) handleClearBreakpoint(ctx context.Context, req *protocol.Message) *protocol.Message {
	reply := req.Reply()
	number, ok := req.Args.Int("breakpoint_number")
	if !ok {
		return reply.Fail("Failed to delete breakpoint (missing required breakpoint_number parameter).")
	}
	if err := d.debugger.ClearBreakpoint(ctx, number); err != nil {
		return reply.Fail("Failed to delete breakpoint (%s).", breakpointError(number, err))
	}
	return reply
}

func (d *DebuggerHandler) handleGetProperties(ctx context.Context, req *protocol.Message) *protocol.Message {
	reply := req.Reply()
	id, _ := req.Args.Int("id")
	variables, err := d.debugger.GetProperties(ctx, id)
	if err != nil {
		return reply.Fail("getProperties(%d) failed with error: %s", id, err)
	}
	reply.Result = &protocol.PropertiesResult{Properties: variableDescriptors(variables)}
	return reply
}

func (d *DebuggerHandler) handleSetVariable(ctx context.Context, req *protocol.Message) *protocol.Message {
	reply := req.Reply()
	frameID, _ := req.Args.Int("frame")
	name := req.Args.String("name")
	value := req.Args.String("value")
	if err := d.debugger.SetVariable(ctx, frameID, name, value); err != nil {
		return reply.Fail("setVariable(%s=%s) failed with error: %s", name, value, err)
	}
	return reply
}

func (d *DebuggerHandler) handleEvaluate(ctx context.Context, req *protocol.Message) *protocol.Message {
	reply := req.Reply()
	frameID, _ := req.Args.Int("frame")
	value, typ := d.debugger.Evaluate(ctx, frameID,
		req.Args.String("expression"),
		req.Args.Bool("global", false),
		req.Args.Bool("disableBreak", false))
	reply.Result = &protocol.EvaluateResult{Value: value, Type: typ}
	return reply
}

// handleExecution 运行类命令，成功后回复running
func (d *DebuggerHandler) handleExecution(req *protocol.Message, run func() error) *protocol.Message {
	reply := req.Reply()
	utils.Logger(constants.DomainExecution).Debugf("[Handler] %s(%s)", req.Command, req.Args)
	if err := run(); err != nil {
		return reply.Fail("%s() failed with error: %s", req.Command, err)
	}
	reply.Result = &protocol.ExecutionResult{ExecutionStatus: constants.ExecutionRunning}
	return reply
}

func breakpointError(number int, err error) string {
	if errors.Is(err, e.ErrBreakpointNotFound) {
		return fmt.Sprintf("Found no breakpoint numbered %d", number)
	}
	return err.Error()
}

func frameDescriptors(frames []*StackFrame) []*protocol.FrameDescriptor {
	answer := make([]*protocol.FrameDescriptor, 0, len(frames))
	for _, f := range frames {
		answer = append(answer, &protocol.FrameDescriptor{
			ID:         f.ID,
			Name:       f.Name,
			LineNumber: f.Line,
			FilePath:   f.Path,
			Thread:     f.ThreadID,
			Locals:     variableDescriptors(f.Variables),
		})
	}
	return answer
}

func variableDescriptors(variables []*Variable) []*protocol.VariableDescriptor {
	answer := make([]*protocol.VariableDescriptor, 0, len(variables))
	for _, v := range variables {
		answer = append(answer, &protocol.VariableDescriptor{
			ID:            v.Reference,
			Name:          v.Name,
			Type:          v.Type,
			Value:         v.Value,
			ChildrenCount: v.ChildrenNumber,
		})
	}
	return answer
}

func exception(info *ExceptionInfo) *protocol.Exception {
	if info == nil {
		return nil
	}
	return &protocol.Exception{Type: info.Type, Info: info.Info}
}
