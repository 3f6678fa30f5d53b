package vm

import (
	"go.uber.org/atomic"
)

// Frame 一次函数调用的活动记录
// caller 链接到调用者，最外层的frame的caller为nil
type Frame struct {
	thread *Thread
	caller *Frame
	name   string
	file   string
	line   *atomic.Int64
	locals *Scope
}

func newFrame(t *Thread, caller *Frame, name string, file string, line int) *Frame {
	return &Frame{
		thread: t,
		caller: caller,
		name:   name,
		file:   file,
		line:   atomic.NewInt64(int64(line)),
		locals: NewScope(),
	}
}

// Line 执行到某一行，产生line事件
// 只能由frame所属的线程调用
func (f *Frame) Line(line int) {
	f.line.Store(int64(line))
	f.thread.emit(f, EventLine)
}

// Call 在当前线程中调用一个函数
func (f *Frame) Call(name string, file string, line int, body func(f *Frame)) {
	f.thread.Call(name, file, line, body)
}

// Go 启动一个新的被调试线程
func (f *Frame) Go(name string, fn func(th *Thread)) *Thread {
	return f.thread.m.Go(name, fn)
}

func (f *Frame) Caller() *Frame {
	return f.caller
}

func (f *Frame) Thread() *Thread {
	return f.thread
}

func (f *Frame) Name() string {
	return f.name
}

func (f *Frame) File() string {
	return f.file
}

func (f *Frame) Lineno() int {
	return int(f.line.Load())
}

func (f *Frame) Locals() *Scope {
	return f.locals
}

func (f *Frame) Globals() *Scope {
	return f.thread.m.globals
}

// Get 先查局部变量，再查全局变量
func (f *Frame) Get(name string) interface{} {
	if v, ok := f.locals.Get(name); ok {
		return v
	}
	v, _ := f.Globals().Get(name)
	return v
}

// Set 设置局部变量
func (f *Frame) Set(name string, value interface{}) {
	f.locals.Set(name, value)
}

// Int 读取整型变量，调试器可能通过setVariable修改变量的类型
func (f *Frame) Int(name string) int {
	switch v := f.Get(name).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
