package protocol

import "github.com/fansqz/trace-debugger/constants"

// ExecutionResult 运行类命令的回复以及programBreak的result
type ExecutionResult struct {
	ExecutionStatus constants.ExecutionStatus `json:"executionStatus"`
}

// ProgramEndResult programEnd的result
type ProgramEndResult struct {
	ExitCode        int                       `json:"exit_code"`
	ExecutionStatus constants.ExecutionStatus `json:"executionStatus"`
}

// BreakpointResult setBreakpoint的result
type BreakpointResult struct {
	BreakpointNumber int `json:"breakpoint_number"`
}

// EvaluateResult evaluate的result
type EvaluateResult struct {
	Value string `json:"value"`
	Type  string `json:"type"`
}

// PropertiesResult getProperties的result
type PropertiesResult struct {
	Properties []*VariableDescriptor `json:"properties"`
}

// NewStartEvent 连接建立后的欢迎消息
func NewStartEvent(name string, version string) *Message {
	return &Message{
		Command:           string(constants.StartNotification),
		CommandExecStatus: constants.StatusOK,
		InfoMessages:      []string{"Welcome to", name, version},
	}
}

// NewProgramBreakEvent 程序在断点处暂停
func NewProgramBreakEvent(frames []*FrameDescriptor, warnings []string, exception *Exception) *Message {
	return &Message{
		Command:           string(constants.ProgramBreakNotification),
		CommandExecStatus: constants.StatusOK,
		Frames:            frames,
		Result:            &ExecutionResult{ExecutionStatus: constants.ExecutionStopped},
		WarningMessages:   warnings,
		Exception:         exception,
	}
}

// NewProgramEndEvent 程序结束
func NewProgramEndEvent(exitCode int) *Message {
	return &Message{
		Command:           string(constants.ProgramEndNotification),
		CommandExecStatus: constants.StatusOK,
		Result: &ProgramEndResult{
			ExitCode:        exitCode,
			ExecutionStatus: constants.ExecutionTerminated,
		},
	}
}
