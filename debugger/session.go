package debugger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fansqz/trace-debugger/constants"
	e "github.com/fansqz/trace-debugger/error"
	"github.com/fansqz/trace-debugger/utils"
	"github.com/fansqz/trace-debugger/utils/gosync"
	"github.com/fansqz/trace-debugger/vm"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

var _ Debugger = (*Session)(nil)

// DefaultEvalTimeout 表达式求值默认的超时时间
const DefaultEvalTimeout = 5 * time.Second

// entryWarning 在第一行暂停时附带的提示
const entryWarning = "stopped so that you can setup some breakpoints before 'Resuming' execution."

// Session 一个连接对应的调试会话
// 断点、单步标记、追踪状态都属于会话，不同连接之间互不影响
type Session struct {
	id          string
	option      *StartOption
	machine     *vm.Machine
	registry    *Registry
	evaluator   Evaluator
	sources     *SourceCache
	handles     *handleTable
	inspect     *introspector
	callback    NotificationCallback
	evalTimeout time.Duration

	statusManager *utils.StatusManager

	// mu 保护以下字段
	mu                   sync.Mutex
	frameStop            *vm.Frame // stepOver的目标栈帧
	frameCalling         *vm.Frame // stepInto的调用者栈帧
	frameReturn          *vm.Frame // stepOut返回的栈帧
	frameSuspend         bool
	frameBeginning       *vm.Frame
	stopAtFirstStatement bool
	tracingEnabled       bool
	executionStarted     bool
	parked               bool
	currentFrames        []*StackFrame
	globalsReference     int
	// controlThread 命令处理线程，不能被追踪，0表示命令处理不在被调试环境中运行
	controlThread int64

	// 热路径上读取的标记
	pendingStop   *atomic.Bool
	beginningSeen *atomic.Bool
	closed        *atomic.Bool

	breakLock sync.Mutex
	resumeQ   chan constants.ResumeDirective
	done      chan struct{}

	log  *logrus.Entry
	xlog *logrus.Entry
}

func NewSession(option *StartOption) *Session {
	machine := option.Machine
	if machine == nil {
		machine = vm.NewMachine()
	}
	var mainFile string
	var sources map[string]string
	if option.Program != nil {
		mainFile = option.Program.File
		sources = option.Program.Sources
	}
	cache := NewSourceCache(mainFile, option.WorkingDirectory, sources)
	maxRepr := option.MaxReprLength
	if maxRepr <= 0 {
		maxRepr = DefaultMaxReprLength
	}
	evalTimeout := option.EvalTimeout
	if evalTimeout <= 0 {
		evalTimeout = DefaultEvalTimeout
	}
	callback := option.Callback
	if callback == nil {
		callback = func(interface{}) {}
	}
	handles := newHandleTable()
	s := &Session{
		id:                   utils.GetUUID(),
		option:               option,
		machine:              machine,
		registry:             NewRegistry(cache),
		evaluator:            option.Evaluator,
		sources:              cache,
		handles:              handles,
		inspect:              &introspector{handles: handles, maxReprLength: maxRepr},
		callback:             callback,
		evalTimeout:          evalTimeout,
		statusManager:        utils.NewStatusManager(),
		stopAtFirstStatement: option.StopAtEntry,
		pendingStop:          atomic.NewBool(false),
		beginningSeen:        atomic.NewBool(false),
		closed:               atomic.NewBool(false),
		resumeQ:              make(chan constants.ResumeDirective, 1),
		done:                 make(chan struct{}),
	}
	s.log = utils.Logger(constants.DomainGlobal).WithField("session", s.id)
	s.xlog = utils.Logger(constants.DomainExecution).WithField("session", s.id)
	machine.SetFaultHandler(s.onThreadFault)
	return s
}

func (s *Session) ID() string {
	return s.id
}

// Registry 会话的断点
func (s *Session) Registry() *Registry {
	return s.registry
}

func (s *Session) Machine() *vm.Machine {
	return s.machine
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

// SetControlThread 设置命令处理线程，开启追踪时跳过该线程
func (s *Session) SetControlThread(threadID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controlThread = threadID
}

// SetStopAtEntry 是否在第一行暂停，只在Start之前有效
func (s *Session) SetStopAtEntry(stop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.executionStarted {
		s.stopAtFirstStatement = stop
	}
}

// ResolveFile 查找文件并返回规范化的路径，断点使用该路径
func (s *Session) ResolveFile(file string) (string, bool) {
	path := s.sources.LookupModule(file)
	if path == "" {
		return "", false
	}
	return s.sources.Canonic(path), true
}

// Start 运行被调试程序
func (s *Session) Start(ctx context.Context) error {
	if s.closed.Load() {
		return e.ErrSessionClosed
	}
	if s.option.Program == nil {
		return errors.New("no program to run")
	}
	if !s.statusManager.CompareAndSet(utils.Running, utils.Init) {
		return e.ErrScriptAlreadyRunning
	}
	s.log.Infof("[Session] Start %s", s.option.Program.File)
	s.mu.Lock()
	s.resetLocked()
	s.executionStarted = true
	s.mu.Unlock()
	gosync.Go(ctx, s.run)
	return nil
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	// 只追踪主线程，第一次call事件时决定是否开启完整的追踪
	out := s.machine.Run(s.option.Program, s.dispatch)
	s.mu.Lock()
	s.disableTracingLocked()
	s.mu.Unlock()

	exitCode := 0
	message := ""
	switch {
	case out.Fault != nil:
		exitCode = 1
		message = out.Fault.Error()
		s.xlog.Warnf("[Session] program panic: %v", out.Fault)
	case out.Terminated:
		exitCode = 1
		message = "terminated"
	}
	s.statusManager.Set(utils.Finish)
	s.log.Infof("[Session] program end, exit code = %d", exitCode)
	s.callback(NewExitedEvent(exitCode, message))
}

// onThreadFault 线程未捕获的panic，在panic的线程上暂停，不等待其他线程结束
func (s *Session) onThreadFault(t *vm.Thread, fault *vm.Fault) {
	s.postMortem(fault)
}

// postMortem 在panic的位置暂停，客户端可以查看现场
func (s *Session) postMortem(fault *vm.Fault) {
	if fault.Frame == nil {
		return
	}
	exc := &ExceptionInfo{
		Type: typeLabel(fault.Value),
		Info: fault.Error(),
	}
	s.breakAt(fault.Frame, constants.ExceptionStopped, exc)
}

// GetBreakpoints 获取所有断点
func (s *Session) GetBreakpoints(ctx context.Context) []*Breakpoint {
	return s.registry.List()
}

// SetBreakpoint 设置断点
func (s *Session) SetBreakpoint(ctx context.Context, file string, line int, condition string, enabled bool) (int, error) {
	if s.closed.Load() {
		return 0, e.ErrSessionClosed
	}
	path := s.sources.LookupModule(file)
	if path == "" {
		return 0, &LineError{File: s.sources.Canonic(file), Line: line}
	}
	number, err := s.registry.Create(s.sources.Canonic(path), line, condition, enabled)
	if err != nil {
		return 0, err
	}
	s.refreshTracing()
	return number, nil
}

// ChangeBreakpointState 修改断点的启用状态和条件
func (s *Session) ChangeBreakpointState(ctx context.Context, number int, enabled bool, condition string) error {
	if s.closed.Load() {
		return e.ErrSessionClosed
	}
	if err := s.registry.UpdateState(number, enabled, condition); err != nil {
		return err
	}
	s.refreshTracing()
	return nil
}

// ClearBreakpoint 删除断点
func (s *Session) ClearBreakpoint(ctx context.Context, number int) error {
	if s.closed.Load() {
		return e.ErrSessionClosed
	}
	if err := s.registry.Clear(number); err != nil {
		return err
	}
	s.refreshTracing()
	return nil
}

// GetProperties 查看引用的值的属性，reference为0返回空列表
func (s *Session) GetProperties(ctx context.Context, reference int) ([]*Variable, error) {
	if reference == 0 {
		return []*Variable{}, nil
	}
	value, err := s.handles.resolve(reference)
	if err != nil {
		return nil, err
	}
	if f, ok := value.(*vm.Frame); ok {
		value = f.Locals()
	}
	return s.inspect.extract(value), nil
}

// GetStackTrace 当前断点的栈帧
func (s *Session) GetStackTrace(ctx context.Context) ([]*StackFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.parked {
		return nil, e.ErrNotStopped
	}
	return s.currentFrames, nil
}

// GlobalsReference 当前断点全局变量的引用
func (s *Session) GlobalsReference() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globalsReference
}

// GetThreads 存活的线程
func (s *Session) GetThreads(ctx context.Context) []*Thread {
	threads := s.machine.Threads()
	answer := make([]*Thread, 0, len(threads))
	for _, t := range threads {
		answer = append(answer, &Thread{ID: t.ID(), Name: t.Name()})
	}
	return answer
}

func (s *Session) resolveFrame(frameID int) (*vm.Frame, error) {
	value, err := s.handles.resolve(frameID)
	if err != nil {
		return nil, err
	}
	f, ok := value.(*vm.Frame)
	if !ok {
		return nil, fmt.Errorf("%w: %d is not a frame", e.ErrStaleHandle, frameID)
	}
	return f, nil
}

// Suspend 在任意线程的下一行暂停
func (s *Session) Suspend(ctx context.Context) error {
	if s.closed.Load() {
		return e.ErrSessionClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setupSuspendLocked()
	return nil
}

func (s *Session) Resume(ctx context.Context) error {
	return s.sendDirective(constants.ResumeDirectiveResume)
}

func (s *Session) StepOver(ctx context.Context) error {
	return s.sendDirective(constants.ResumeDirectiveStepOver)
}

func (s *Session) StepIn(ctx context.Context) error {
	return s.sendDirective(constants.ResumeDirectiveStepInto)
}

func (s *Session) StepOut(ctx context.Context) error {
	return s.sendDirective(constants.ResumeDirectiveStepOut)
}

// sendDirective 把继续执行的指令交给断点处等待的线程
func (s *Session) sendDirective(directive constants.ResumeDirective) error {
	if s.closed.Load() {
		return e.ErrSessionClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.parked {
		return e.ErrNotStopped
	}
	select {
	case s.resumeQ <- directive:
		s.parked = false
		return nil
	default:
		return e.ErrProtocolViolation
	}
}

// Terminate 断开调试，关闭追踪，释放等待的线程，程序继续运行直到结束
func (s *Session) Terminate(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	s.log.Infof("[Session] Terminate")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearMarkersLocked()
	s.disableTracingLocked()
	if s.parked {
		s.parked = false
		s.resumeQ <- constants.ResumeDirectiveResume
	}
	return nil
}

// Closed 会话是否已经断开
func (s *Session) Closed() bool {
	return s.closed.Load()
}
