package debugger

import (
	"time"

	"github.com/fansqz/trace-debugger/constants"
	"github.com/fansqz/trace-debugger/vm"
)

// StartOption 创建调试会话的参数
type StartOption struct {
	// Program 被调试程序
	Program *vm.Program
	// Machine 运行程序的环境，为nil时新建
	Machine *vm.Machine
	// Evaluator 表达式求值引擎
	Evaluator Evaluator
	// StopAtEntry 在第一行暂停
	StopAtEntry bool
	// WorkingDirectory 查找断点文件的目录
	WorkingDirectory string
	// MaxReprLength 变量值的最大长度
	MaxReprLength int
	// EvalTimeout 表达式求值的超时时间
	EvalTimeout time.Duration
	// Callback 事件回调
	Callback NotificationCallback
}

// Breakpoint 表示断点
type Breakpoint struct {
	Number    int
	File      string // 规范化的文件路径
	Line      int
	Condition string // 为空表示没有条件
	Enabled   bool
}

// StackFrame 栈帧
type StackFrame struct {
	ID        int    `json:"id"`   // 栈帧id，只在当前断点期间有效
	Name      string `json:"name"` // 函数名称和线程名称
	Path      string `json:"path"` // 文件路径
	Line      int    `json:"line"`
	ThreadID  int64  `json:"thread"`
	Variables []*Variable
}

// Variable 变量
type Variable struct {
	// 变量引用
	Reference int    `json:"reference"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Value     string `json:"value"`
	// 可以展开的子元素数量，0表示原子值
	ChildrenNumber int
}

// Thread 被调试线程
type Thread struct {
	ID   int64
	Name string
}

// ExceptionInfo 被调试程序未捕获的panic
type ExceptionInfo struct {
	Type string
	Info string
}

// StartEvent
// 连接建立后的欢迎消息
type StartEvent struct {
	Name    string
	Version string
}

func NewStartEvent(name string, version string) *StartEvent {
	return &StartEvent{
		Name:    name,
		Version: version,
	}
}

// StoppedEvent
// 该event表明，由于某些原因，被调试线程的执行已经停止。
// 线程会一直等待，直到收到继续执行的指令
type StoppedEvent struct {
	Reason    constants.StoppedReasonType // 停止执行的原因
	ThreadID  int64
	Frames    []*StackFrame
	Warnings  []string
	Exception *ExceptionInfo
}

func NewStoppedEvent(reason constants.StoppedReasonType, threadID int64, frames []*StackFrame) *StoppedEvent {
	return &StoppedEvent{
		Reason:   reason,
		ThreadID: threadID,
		Frames:   frames,
	}
}

// ExitedEvent
// 该event表明被调试对象已经退出并返回exit code
type ExitedEvent struct {
	ExitCode int
	Message  string
}

func NewExitedEvent(code int, message string) *ExitedEvent {
	return &ExitedEvent{
		ExitCode: code,
		Message:  message,
	}
}

// TerminatedEvent
// 该event表明调试会话异常终止，不会再有新的事件，连接应当断开
type TerminatedEvent struct {
	Reason string
}

func NewTerminatedEvent(reason string) *TerminatedEvent {
	return &TerminatedEvent{Reason: reason}
}
