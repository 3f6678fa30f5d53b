package constants

// CommandType 客户端发送的命令
type CommandType string

const (
	// GetBreakpoints 获取断点列表
	GetBreakpoints CommandType = "getBreakpoints"
	// SetBreakpoint 设置断点，返回断点编号
	SetBreakpoint CommandType = "setBreakpoint"
	// ChangeBreakpointState 启用、禁用断点或者修改断点条件
	ChangeBreakpointState CommandType = "changeBreakpointState"
	// ClearBreakpoint 删除断点，断点编号不会被复用
	ClearBreakpoint CommandType = "clearBreakpoint"
	// GetProperties 根据引用获取变量的属性列表
	GetProperties CommandType = "getProperties"
	// SetVariable 修改栈帧中的变量
	SetVariable CommandType = "setVariable"
	// Evaluate 在栈帧或者全局作用域中计算表达式
	Evaluate CommandType = "evaluate"
	// RunScript 开始运行被调试程序
	RunScript CommandType = "runScript"
	// Suspend 在下一行暂停
	Suspend CommandType = "suspend"
	// Resume 继续执行，直到遇到下一个断点
	Resume CommandType = "resume"
	// StepOver 执行下一行，不进入函数内部
	StepOver CommandType = "stepOver"
	// StepInto 执行下一行，进入函数内部
	StepInto CommandType = "stepInto"
	// StepOut 跳出当前函数
	StepOut CommandType = "stepOut"
	// InternalQuit 连接断开时由传输层生成，客户端不能发送该命令
	InternalQuit CommandType = "_InternalQuit"
)

// NotificationType 调试器主动发送的消息
type NotificationType string

const (
	StartNotification        NotificationType = "start"
	ProgramBreakNotification NotificationType = "programBreak"
	ProgramEndNotification   NotificationType = "programEnd"
)

// ExecStatus 命令执行结果
type ExecStatus string

const (
	StatusOK    ExecStatus = "ok"
	StatusError ExecStatus = "error"
)

// ExecutionStatus 被调试程序的状态
type ExecutionStatus string

const (
	ExecutionRunning    ExecutionStatus = "running"
	ExecutionStopped    ExecutionStatus = "stopped"
	ExecutionTerminated ExecutionStatus = "terminated"
)

// ResumeDirective 断点处等待的线程收到的继续执行指令
type ResumeDirective string

const (
	ResumeDirectiveResume   ResumeDirective = "resume"
	ResumeDirectiveStepOver ResumeDirective = "stepOver"
	ResumeDirectiveStepInto ResumeDirective = "stepInto"
	ResumeDirectiveStepOut  ResumeDirective = "stepOut"
)

// StoppedReasonType 程序停止类型
type StoppedReasonType string

const (
	BreakpointStopped StoppedReasonType = "breakpoint"
	StepStopped       StoppedReasonType = "step"
	PauseStopped      StoppedReasonType = "pause"
	EntryStopped      StoppedReasonType = "entry"
	ExceptionStopped  StoppedReasonType = "exception"
)

// ProtocolType 服务端使用的协议
type ProtocolType string

const (
	ProtocolNative ProtocolType = "native"
	ProtocolDAP    ProtocolType = "dap"
)
