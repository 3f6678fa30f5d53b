package debugger

import (
	"context"
	"fmt"

	"github.com/fansqz/trace-debugger/constants"
	"github.com/fansqz/trace-debugger/utils"
	"github.com/fansqz/trace-debugger/vm"
	"github.com/sirupsen/logrus"
)

// dispatch 被调试线程的事件钩子，每一行都会调用，必须尽量快
func (s *Session) dispatch(f *vm.Frame, ev vm.Event) vm.Action {
	switch ev {
	case vm.EventLine:
		if s.closed.Load() {
			return vm.ActionContinue
		}
		reason, stop := s.shouldStopHere(f)
		if !stop {
			// 单步已经确定要停止时不再计算断点条件
			if !s.shouldBreakHere(f) {
				return vm.ActionContinue
			}
			reason = constants.BreakpointStopped
		}
		return s.breakAt(f, reason, nil)
	case vm.EventCall:
		if !s.beginningSeen.Load() {
			s.firstCall(f)
		}
	}
	return vm.ActionContinue
}

// firstCall 重置后的第一次call事件，记录被调试程序栈的边界
// 没有断点也没有单步时移除钩子，之后每一行都没有额外开销
func (s *Session) firstCall(f *vm.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beginningSeen.Load() {
		return
	}
	s.frameBeginning = f.Caller()
	s.beginningSeen.Store(true)
	if s.stopAtFirstStatement {
		s.setupStepIntoLocked(f)
	}
	if s.pendingStop.Load() || s.registry.AnyActive() {
		s.enableTracingLocked()
	} else {
		f.Thread().SetHook(nil)
		s.xlog.Debugf("[Dispatcher] no breakpoint, hook removed from %s", f.Thread().Name())
	}
}

func (s *Session) shouldStopHere(f *vm.Frame) (constants.StoppedReasonType, bool) {
	if !s.pendingStop.Load() {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	reason := constants.StepStopped
	if s.stopAtFirstStatement {
		reason = constants.EntryStopped
	}
	// 先判断stepInto，在没有函数调用的行上stepInto等同于stepOver
	if s.frameCalling != nil && f.Caller() == s.frameCalling {
		return reason, true
	}
	if s.frameStop != nil && f == s.frameStop {
		return reason, true
	}
	if s.frameReturn != nil && f == s.frameReturn {
		return reason, true
	}
	if s.frameSuspend {
		return constants.PauseStopped, true
	}
	return "", false
}

func (s *Session) shouldBreakHere(f *vm.Frame) bool {
	if !s.registry.AnyActive() {
		return false
	}
	file := s.sources.Canonic(f.File())
	if !s.registry.HasFile(file) {
		return false
	}
	return s.registry.LookupEffective(file, f.Lineno(), s.conditionFunc(f)) != nil
}

// conditionFunc 在栈帧中计算断点条件
func (s *Session) conditionFunc(f *vm.Frame) ConditionFunc {
	return func(condition string) (bool, error) {
		if s.evaluator == nil {
			return false, nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.evalTimeout)
		defer cancel()
		value, err := s.evaluator.Eval(ctx, condition, frameScope{f: f})
		if err != nil {
			return false, err
		}
		return Truthy(value), nil
	}
}

// breakAt 在f处暂停，等待客户端的继续执行指令
// 同一时刻只有一个线程处于断点中，其它线程在breakLock上等待
func (s *Session) breakAt(f *vm.Frame, reason constants.StoppedReasonType, exc *ExceptionInfo) vm.Action {
	s.breakLock.Lock()
	defer s.breakLock.Unlock()
	if s.closed.Load() {
		return vm.ActionContinue
	}

	s.handles.reset()
	s.mu.Lock()
	beginning := s.frameBeginning
	s.mu.Unlock()
	frames := s.inspect.dumpFrames(f, beginning)
	globalsRef := s.handles.add(s.machine.Globals())

	event := NewStoppedEvent(reason, f.Thread().ID(), frames)
	event.Exception = exc
	s.mu.Lock()
	if s.stopAtFirstStatement {
		event.Warnings = append(event.Warnings, entryWarning)
		s.stopAtFirstStatement = false
	}
	s.currentFrames = frames
	s.globalsReference = globalsRef
	s.parked = true
	s.mu.Unlock()

	if s.xlog.Logger.IsLevelEnabled(logrus.DebugLevel) {
		s.xlog.Debugf("[Dispatcher] break at %s:%d [%s] reason=%s", f.File(), f.Lineno(), f.Thread().Name(), reason)
	}
	s.statusManager.Set(utils.Stopped)
	s.callback(event)

	directive := <-s.resumeQ
	if !s.statusManager.Is(utils.Finish) {
		s.statusManager.Set(utils.Running)
	}

	s.mu.Lock()
	s.currentFrames = nil
	switch directive {
	case constants.ResumeDirectiveResume:
		s.setupResumeLocked()
	case constants.ResumeDirectiveStepOver:
		s.setupStepOverLocked(f)
	case constants.ResumeDirectiveStepInto:
		s.setupStepIntoLocked(f)
	case constants.ResumeDirectiveStepOut:
		s.setupStepOutLocked(f)
	default:
		// 没有安全的默认行为，终止会话和被调试线程，通知连接断开
		s.xlog.Errorf("[Dispatcher] unknown resume directive: %s", directive)
		s.closed.Store(true)
		s.clearMarkersLocked()
		s.disableTracingLocked()
		s.mu.Unlock()
		s.callback(NewTerminatedEvent(fmt.Sprintf("unknown resume directive %q", directive)))
		return vm.ActionTerminate
	}
	s.mu.Unlock()
	return vm.ActionContinue
}

func (s *Session) setupStepOverLocked(f *vm.Frame) {
	s.frameCalling = nil
	s.frameStop = f
	s.frameReturn = f.Caller()
	s.frameSuspend = false
	s.pendingStop.Store(true)
}

func (s *Session) setupStepIntoLocked(f *vm.Frame) {
	s.frameCalling = f
	s.frameStop = f
	s.frameReturn = nil
	s.frameSuspend = false
	s.pendingStop.Store(true)
}

func (s *Session) setupStepOutLocked(f *vm.Frame) {
	s.frameCalling = nil
	s.frameStop = nil
	s.frameReturn = f.Caller()
	s.frameSuspend = false
	s.pendingStop.Store(true)
}

func (s *Session) setupSuspendLocked() {
	s.frameCalling = nil
	s.frameStop = nil
	s.frameReturn = nil
	s.frameSuspend = true
	s.pendingStop.Store(true)
	s.enableTracingLocked()
}

func (s *Session) setupResumeLocked() {
	s.clearMarkersLocked()
	if !s.registry.AnyActive() {
		s.disableTracingLocked()
	}
}

func (s *Session) clearMarkersLocked() {
	s.frameCalling = nil
	s.frameStop = nil
	s.frameReturn = nil
	s.frameSuspend = false
	s.pendingStop.Store(false)
}

// resetLocked 运行程序之前重置状态
func (s *Session) resetLocked() {
	s.frameBeginning = nil
	s.beginningSeen.Store(false)
	s.setupResumeLocked()
}

// refreshTracing 断点变化后根据是否需要追踪开启或关闭钩子
func (s *Session) refreshTracing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingStop.Load() || s.registry.AnyActive() {
		s.enableTracingLocked()
	} else {
		s.disableTracingLocked()
	}
}

// enableTracingLocked 给除命令处理线程以外的所有线程安装钩子，之后创建的线程也会继承
func (s *Session) enableTracingLocked() {
	if s.tracingEnabled || !s.executionStarted || s.closed.Load() {
		return
	}
	s.machine.SetInheritedHook(s.dispatch)
	s.machine.SetHookAll(s.dispatch, s.controlThread)
	s.tracingEnabled = true
	s.xlog.Debugf("[Dispatcher] tracing enabled")
}

func (s *Session) disableTracingLocked() {
	if !s.tracingEnabled || !s.executionStarted {
		return
	}
	s.machine.SetInheritedHook(nil)
	s.machine.SetHookAll(nil, s.controlThread)
	s.tracingEnabled = false
	s.xlog.Debugf("[Dispatcher] tracing disabled")
}
