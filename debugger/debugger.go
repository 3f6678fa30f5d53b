package debugger

import (
	"context"
)

type NotificationCallback func(interface{})

// Debugger
// 一个连接对应的一次调试会话
// 命令处理协程和被调试线程会同时调用，需要保证并发安全
type Debugger interface {
	// Start
	// 开始运行被调试程序，即runScript命令，程序的事件通过callback异步通知
	Start(ctx context.Context) error
	// GetBreakpoints 获取所有断点
	GetBreakpoints(ctx context.Context) []*Breakpoint
	// SetBreakpoint 设置断点，返回断点编号
	SetBreakpoint(ctx context.Context, file string, line int, condition string, enabled bool) (int, error)
	// ChangeBreakpointState 修改断点的启用状态和条件
	ChangeBreakpointState(ctx context.Context, number int, enabled bool, condition string) error
	// ClearBreakpoint 删除断点
	ClearBreakpoint(ctx context.Context, number int) error
	// GetProperties 查看引用的值的属性
	GetProperties(ctx context.Context, reference int) ([]*Variable, error)
	// SetVariable 修改栈帧中的变量
	SetVariable(ctx context.Context, frameID int, name string, value string) error
	// Evaluate 计算表达式，返回值和类型
	Evaluate(ctx context.Context, frameID int, expression string, global bool, disableBreak bool) (string, string)
	// Suspend 在下一行暂停
	Suspend(ctx context.Context) error
	// Resume 继续执行
	Resume(ctx context.Context) error
	// StepOver 下一步，不会进入函数内部
	StepOver(ctx context.Context) error
	// StepIn 下一步，会进入函数内部
	StepIn(ctx context.Context) error
	// StepOut 单步退出
	StepOut(ctx context.Context) error
	// GetStackTrace 当前断点的栈帧
	GetStackTrace(ctx context.Context) ([]*StackFrame, error)
	// GetThreads 被调试程序存活的线程
	GetThreads(ctx context.Context) []*Thread
	// Terminate 断开调试，被调试程序继续运行直到结束
	Terminate(ctx context.Context) error
	// Done 被调试程序结束后关闭
	Done() <-chan struct{}
}
