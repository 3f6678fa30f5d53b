package vm

import (
	"fmt"
	"reflect"
	"runtime"
	"runtime/debug"

	"go.uber.org/atomic"
)

// Event 执行事件类型
type Event int

const (
	// EventCall 进入一个函数
	EventCall Event = iota
	// EventLine 即将执行新的一行
	EventLine
	// EventReturn 函数正常返回
	EventReturn
)

func (e Event) String() string {
	switch e {
	case EventCall:
		return "call"
	case EventLine:
		return "line"
	case EventReturn:
		return "return"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Action 钩子的处理结果
type Action int

const (
	ActionContinue Action = iota
	// ActionTerminate 终止当前线程的执行
	ActionTerminate
)

// Hook 执行事件钩子，在产生事件的线程上同步调用
type Hook func(f *Frame, ev Event) Action

type hookBox struct {
	fn Hook
}

func boxOf(h Hook) *hookBox {
	if h == nil {
		return nil
	}
	return &hookBox{fn: h}
}

// Fault 被调试程序未捕获的panic
type Fault struct {
	Value interface{}
	// Frame 发生panic的最内层栈帧
	Frame *Frame
	Stack []byte
}

func (f *Fault) Error() string {
	switch v := f.Value.(type) {
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	}
	// 复合类型的值可能引用自身，只显示类型
	switch reflect.ValueOf(f.Value).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Ptr, reflect.Interface:
		return fmt.Sprintf("panic with %T", f.Value)
	}
	return fmt.Sprint(f.Value)
}

// Thread 被调试线程，每个线程运行在自己的goroutine上
type Thread struct {
	id   int64
	name string
	m    *Machine
	hook atomic.Pointer[hookBox]

	// 以下字段只由线程自己的goroutine修改
	top        *Frame
	fault      *Fault
	terminated bool
}

func (t *Thread) ID() int64 {
	return t.id
}

func (t *Thread) Name() string {
	return t.name
}

func (t *Thread) Machine() *Machine {
	return t.m
}

// Current 当前正在执行的栈帧
func (t *Thread) Current() *Frame {
	return t.top
}

// SetHook 设置本线程的钩子，nil表示移除
func (t *Thread) SetHook(h Hook) {
	t.hook.Store(boxOf(h))
}

// Hooked 本线程是否安装了钩子
func (t *Thread) Hooked() bool {
	return t.hook.Load() != nil
}

// Call 压入新的栈帧并执行body
func (t *Thread) Call(name string, file string, line int, body func(f *Frame)) {
	f := newFrame(t, t.top, name, file, line)
	t.top = f
	defer func() {
		if r := recover(); r != nil {
			// 最内层的defer最先执行，记录panic发生的位置
			if t.fault == nil {
				t.fault = &Fault{Value: r, Frame: f, Stack: debug.Stack()}
			}
			t.top = f.caller
			panic(r)
		}
		t.top = f.caller
	}()
	t.emit(f, EventCall)
	body(f)
	t.emit(f, EventReturn)
}

func (t *Thread) emit(f *Frame, ev Event) {
	box := t.hook.Load()
	if box == nil {
		return
	}
	t.m.hookCalls.Inc()
	if box.fn(f, ev) == ActionTerminate {
		t.terminated = true
		runtime.Goexit()
	}
}

// run 执行线程主体，返回未捕获的panic
func (t *Thread) run(fn func(th *Thread)) (fault *Fault) {
	defer func() {
		if r := recover(); r != nil {
			fault = t.fault
			if fault == nil {
				fault = &Fault{Value: r, Stack: debug.Stack()}
			}
		}
	}()
	fn(t)
	return nil
}
