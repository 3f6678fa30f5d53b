package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/fansqz/trace-debugger/constants"
	"github.com/fansqz/trace-debugger/debugger"
	e "github.com/fansqz/trace-debugger/error"
	"github.com/fansqz/trace-debugger/utils"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"
)

// DebugSession DAP协议的调试会话
type DebugSession struct {
	conn io.ReadWriteCloser
	// rw is used to read requests and write events/responses
	rw *bufio.ReadWriter

	debugger *debugger.Session
	// order 保证请求的响应先于该请求引起的事件发送
	order    sync.Mutex
	sendLock sync.Mutex
	// aborted 会话异常终止的原因
	aborted *atomic.Error
	log     *logrus.Entry
}

// NewDebugSession 创建DAP会话，newDebugger使用会话的回调创建调试会话
func NewDebugSession(conn io.ReadWriteCloser, newDebugger func(callback debugger.NotificationCallback) *debugger.Session) *DebugSession {
	d := &DebugSession{
		conn:    conn,
		rw:      bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		aborted: atomic.NewError(nil),
		log:     utils.Logger(constants.DomainNetwork).WithField("protocol", "dap"),
	}
	d.debugger = newDebugger(d.onEvent)
	return d
}

// Serve 处理请求直到连接断开
func (d *DebugSession) Serve(ctx context.Context) error {
	for {
		request, err := dap.ReadProtocolMessage(d.rw.Reader)
		var fieldErr *dap.DecodeProtocolMessageFieldError
		if errors.As(err, &fieldErr) {
			// 不支持的请求回复错误，连接继续可用
			d.send(newErrorResponse(fieldErr.Seq, fieldErr.FieldValue, fieldErr.Error()))
			continue
		}
		if err != nil {
			_ = d.debugger.Terminate(ctx)
			if aborted := d.aborted.Load(); aborted != nil {
				return aborted
			}
			if errors.Is(err, io.EOF) {
				d.log.Infof("[DAP] no more data to read")
				return nil
			}
			d.log.Errorf("[DAP] read fail, err = %v", err)
			return err
		}
		if quit := d.dispatchRequest(ctx, request); quit {
			return nil
		}
	}
}

// dispatchRequest 处理一个请求，返回是否断开连接
func (d *DebugSession) dispatchRequest(ctx context.Context, request dap.Message) bool {
	d.order.Lock()
	defer d.order.Unlock()
	switch request := request.(type) {
	case *dap.InitializeRequest:
		d.onInitializeRequest(request)
	case *dap.LaunchRequest:
		d.onLaunchRequest(request)
	case *dap.AttachRequest:
		d.onAttachRequest(request)
	case *dap.SetBreakpointsRequest:
		d.onSetBreakpointsRequest(ctx, request)
	case *dap.ConfigurationDoneRequest:
		d.onConfigurationDoneRequest(ctx, request)
	case *dap.ThreadsRequest:
		d.onThreadsRequest(ctx, request)
	case *dap.StackTraceRequest:
		d.onStackTraceRequest(ctx, request)
	case *dap.ScopesRequest:
		d.onScopesRequest(request)
	case *dap.VariablesRequest:
		d.onVariablesRequest(ctx, request)
	case *dap.EvaluateRequest:
		d.onEvaluateRequest(ctx, request)
	case *dap.SetVariableRequest:
		d.onSetVariableRequest(ctx, request)
	case *dap.ContinueRequest:
		d.onContinueRequest(ctx, request)
	case *dap.NextRequest:
		d.onNextRequest(ctx, request)
	case *dap.StepInRequest:
		d.onStepInRequest(ctx, request)
	case *dap.StepOutRequest:
		d.onStepOutRequest(ctx, request)
	case *dap.PauseRequest:
		d.onPauseRequest(ctx, request)
	case *dap.DisconnectRequest:
		d.onDisconnectRequest(ctx, request)
		return true
	case *dap.TerminateRequest:
		d.onTerminateRequest(ctx, request)
		return true
	default:
		if baseReq, ok := request.(dap.RequestMessage); ok {
			req := baseReq.GetRequest()
			d.send(newErrorResponse(req.Seq, req.Command, fmt.Sprintf("%s is not yet supported", req.Command)))
		}
		d.log.Warnf("[DAP] unable to process %#v", request)
	}
	return false
}

// send Message响应给客户端
func (d *DebugSession) send(message dap.Message) {
	d.sendLock.Lock()
	defer d.sendLock.Unlock()
	if err := dap.WriteProtocolMessage(d.rw.Writer, message); err != nil {
		d.log.Warnf("[DAP] write fail, err = %v", err)
		return
	}
	_ = d.rw.Flush()
}

// onEvent 调试会话的事件回调
func (d *DebugSession) onEvent(event interface{}) {
	d.order.Lock()
	defer d.order.Unlock()
	switch ev := event.(type) {
	case *debugger.StoppedEvent:
		for _, warning := range ev.Warnings {
			d.sendOutput("console", warning+"\n")
		}
		body := dap.StoppedEventBody{
			Reason:            string(ev.Reason),
			ThreadId:          int(ev.ThreadID),
			AllThreadsStopped: false,
		}
		if ev.Exception != nil {
			body.Description = ev.Exception.Type
			body.Text = ev.Exception.Info
		}
		d.send(&dap.StoppedEvent{Event: *newEvent("stopped"), Body: body})
	case *debugger.ExitedEvent:
		if ev.Message != "" {
			d.sendOutput("stderr", ev.Message+"\n")
		}
		d.send(&dap.ExitedEvent{Event: *newEvent("exited"), Body: dap.ExitedEventBody{ExitCode: ev.ExitCode}})
		d.send(&dap.TerminatedEvent{Event: *newEvent("terminated")})
	case *debugger.TerminatedEvent:
		d.log.Errorf("[DAP] session terminated: %s", ev.Reason)
		d.aborted.Store(fmt.Errorf("%w: %s", e.ErrSessionClosed, ev.Reason))
		d.sendOutput("stderr", ev.Reason+"\n")
		d.send(&dap.TerminatedEvent{Event: *newEvent("terminated")})
		_ = d.conn.Close()
	}
}

func (d *DebugSession) sendOutput(category string, output string) {
	d.send(&dap.OutputEvent{
		Event: *newEvent("output"),
		Body:  dap.OutputEventBody{Category: category, Output: output},
	})
}

// -----------------------------------------------------------------------
// Request Handlers

func (d *DebugSession) onInitializeRequest(request *dap.InitializeRequest) {
	response := &dap.InitializeResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.SupportsConfigurationDoneRequest = true
	response.Body.SupportsConditionalBreakpoints = true
	response.Body.SupportsEvaluateForHovers = true
	response.Body.SupportsSetVariable = true
	response.Body.SupportsTerminateRequest = true
	response.Body.ExceptionBreakpointFilters = []dap.ExceptionBreakpointsFilter{}
	// 客户端可以开始发送setBreakpoints等配置请求，最后以configurationDone结束
	d.send(response)
	d.send(&dap.InitializedEvent{Event: *newEvent("initialized")})
}

func (d *DebugSession) onLaunchRequest(request *dap.LaunchRequest) {
	d.debugger.SetStopAtEntry(gjson.GetBytes(request.Arguments, "stopOnEntry").Bool())
	response := &dap.LaunchResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onAttachRequest(request *dap.AttachRequest) {
	d.debugger.SetStopAtEntry(gjson.GetBytes(request.Arguments, "stopOnEntry").Bool())
	response := &dap.AttachResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

// onSetBreakpointsRequest 用请求中的断点替换该文件的所有断点
func (d *DebugSession) onSetBreakpointsRequest(ctx context.Context, request *dap.SetBreakpointsRequest) {
	path := request.Arguments.Source.Path
	wanted := request.Arguments.Breakpoints
	lines := make([]int, 0, len(wanted))
	for _, b := range wanted {
		lines = append(lines, b.Line)
	}
	lineSet := utils.List2set(lines)

	existing := map[int]*debugger.Breakpoint{}
	if file, ok := d.debugger.ResolveFile(path); ok {
		for _, bp := range d.debugger.GetBreakpoints(ctx) {
			if bp.File != file {
				continue
			}
			if lineSet.Contains(bp.Line) {
				existing[bp.Line] = bp
			} else {
				_ = d.debugger.ClearBreakpoint(ctx, bp.Number)
			}
		}
	}

	response := &dap.SetBreakpointsResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.Breakpoints = make([]dap.Breakpoint, len(wanted))
	for i, b := range wanted {
		response.Body.Breakpoints[i].Line = b.Line
		var err error
		number := 0
		if bp, ok := existing[b.Line]; ok {
			number = bp.Number
			err = d.debugger.ChangeBreakpointState(ctx, number, true, b.Condition)
		} else {
			number, err = d.debugger.SetBreakpoint(ctx, path, b.Line, b.Condition, true)
		}
		if err != nil {
			response.Body.Breakpoints[i].Message = err.Error()
			continue
		}
		response.Body.Breakpoints[i].Id = number
		response.Body.Breakpoints[i].Verified = true
		response.Body.Breakpoints[i].Source = &request.Arguments.Source
	}
	d.send(response)
}

func (d *DebugSession) onConfigurationDoneRequest(ctx context.Context, request *dap.ConfigurationDoneRequest) {
	if err := d.debugger.Start(ctx); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.ConfigurationDoneResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onThreadsRequest(ctx context.Context, request *dap.ThreadsRequest) {
	threads := d.debugger.GetThreads(ctx)
	response := &dap.ThreadsResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.Threads = make([]dap.Thread, 0, len(threads))
	for _, t := range threads {
		response.Body.Threads = append(response.Body.Threads, dap.Thread{Id: int(t.ID), Name: t.Name})
	}
	d.send(response)
}

func (d *DebugSession) onStackTraceRequest(ctx context.Context, request *dap.StackTraceRequest) {
	frames, err := d.debugger.GetStackTrace(ctx)
	if err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	stackFrames := make([]dap.StackFrame, 0, len(frames))
	for _, f := range frames {
		if request.Arguments.ThreadId != 0 && int(f.ThreadID) != request.Arguments.ThreadId {
			continue
		}
		stackFrames = append(stackFrames, dap.StackFrame{
			Id:   f.ID,
			Name: f.Name,
			Line: f.Line,
			Source: &dap.Source{
				Name: filepath.Base(f.Path),
				Path: f.Path,
			},
		})
	}
	response := &dap.StackTraceResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body = dap.StackTraceResponseBody{
		StackFrames: stackFrames,
		TotalFrames: len(stackFrames),
	}
	d.send(response)
}

func (d *DebugSession) onScopesRequest(request *dap.ScopesRequest) {
	response := &dap.ScopesResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body = dap.ScopesResponseBody{
		Scopes: []dap.Scope{
			{Name: "Locals", VariablesReference: request.Arguments.FrameId},
			{Name: "Globals", VariablesReference: d.debugger.GlobalsReference()},
		},
	}
	d.send(response)
}

func (d *DebugSession) onVariablesRequest(ctx context.Context, request *dap.VariablesRequest) {
	variables, err := d.debugger.GetProperties(ctx, request.Arguments.VariablesReference)
	if err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.VariablesResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.Variables = make([]dap.Variable, 0, len(variables))
	for _, v := range variables {
		variable := dap.Variable{
			Name:  v.Name,
			Value: v.Value,
			Type:  v.Type,
		}
		if v.ChildrenNumber > 0 {
			variable.VariablesReference = v.Reference
			variable.NamedVariables = v.ChildrenNumber
		}
		response.Body.Variables = append(response.Body.Variables, variable)
	}
	d.send(response)
}

func (d *DebugSession) onEvaluateRequest(ctx context.Context, request *dap.EvaluateRequest) {
	args := request.Arguments
	global := args.Context == "repl" && args.FrameId == 0
	value, typ := d.debugger.Evaluate(ctx, args.FrameId, args.Expression, global, true)
	response := &dap.EvaluateResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.Result = value
	response.Body.Type = typ
	d.send(response)
}

func (d *DebugSession) onSetVariableRequest(ctx context.Context, request *dap.SetVariableRequest) {
	args := request.Arguments
	if err := d.debugger.SetVariable(ctx, args.VariablesReference, args.Name, args.Value); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command,
			fmt.Sprintf("setVariable(%s=%s) failed with error: %s", args.Name, args.Value, err)))
		return
	}
	response := &dap.SetVariableResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.Value, response.Body.Type = d.debugger.Evaluate(ctx, args.VariablesReference, args.Name, false, true)
	d.send(response)
}

func (d *DebugSession) onContinueRequest(ctx context.Context, request *dap.ContinueRequest) {
	if err := d.debugger.Resume(ctx); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.ContinueResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onNextRequest(ctx context.Context, request *dap.NextRequest) {
	if err := d.debugger.StepOver(ctx); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.NextResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onStepInRequest(ctx context.Context, request *dap.StepInRequest) {
	if err := d.debugger.StepIn(ctx); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.StepInResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onStepOutRequest(ctx context.Context, request *dap.StepOutRequest) {
	if err := d.debugger.StepOut(ctx); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.StepOutResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onPauseRequest(ctx context.Context, request *dap.PauseRequest) {
	if err := d.debugger.Suspend(ctx); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.PauseResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onDisconnectRequest(ctx context.Context, request *dap.DisconnectRequest) {
	_ = d.debugger.Terminate(ctx)
	response := &dap.DisconnectResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onTerminateRequest(ctx context.Context, request *dap.TerminateRequest) {
	_ = d.debugger.Terminate(ctx)
	response := &dap.TerminateResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func newEvent(event string) *dap.Event {
	return &dap.Event{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "event",
		},
		Event: event,
	}
}

func newResponse(requestSeq int, command string) *dap.Response {
	return &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "response",
		},
		Command:    command,
		RequestSeq: requestSeq,
		Success:    true,
	}
}

func newErrorResponse(requestSeq int, command string, message string) *dap.ErrorResponse {
	er := &dap.ErrorResponse{}
	er.Response = *newResponse(requestSeq, command)
	er.Success = false
	er.Message = message
	er.Body.Error = &dap.ErrorMessage{}
	er.Body.Error.Format = message
	er.Body.Error.Id = 12345
	return er
}
