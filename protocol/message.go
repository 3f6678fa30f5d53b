package protocol

import (
	"fmt"

	"github.com/fansqz/trace-debugger/constants"
)

// Message 客户端与调试器之间传输的消息
// 回复会带回请求的_id和command，args会被去掉
type Message struct {
	ID                *int64               `json:"_id,omitempty"`
	Command           string               `json:"command,omitempty"`
	Args              Args                 `json:"args,omitempty"`
	Result            interface{}          `json:"result,omitempty"`
	CommandExecStatus constants.ExecStatus `json:"commandExecStatus,omitempty"`
	Frames            []*FrameDescriptor   `json:"frames,omitempty"`
	InfoMessages      []string             `json:"info_messages,omitempty"`
	WarningMessages   []string             `json:"warning_messages,omitempty"`
	ErrorMessages     []string             `json:"error_messages,omitempty"`
	Exception         *Exception           `json:"exception,omitempty"`
}

// Exception 异常描述
type Exception struct {
	Type string `json:"type"`
	Info string `json:"info"`
}

// FrameDescriptor 栈帧描述，只在一次断点期间有效
type FrameDescriptor struct {
	ID         int                   `json:"id"`
	Name       string                `json:"name"`
	LineNumber int                   `json:"line_number"`
	FilePath   string                `json:"file_path"`
	Thread     int64                 `json:"thread"`
	Locals     []*VariableDescriptor `json:"f_locals"`
}

// VariableDescriptor 变量描述
// ChildrenCount 为0表示原子值，否则客户端可以通过getProperties展开
type VariableDescriptor struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Value         string `json:"value"`
	ChildrenCount int    `json:"children_count"`
}

// BreakpointDescriptor getBreakpoints返回的断点信息
type BreakpointDescriptor struct {
	BreakpointNumber int    `json:"breakpoint_number"`
	FileName         string `json:"file_name"`
	LineNumber       int    `json:"line_number"`
	Condition        string `json:"condition"`
	Enabled          bool   `json:"enabled"`
}

// Reply 根据请求创建回复，去掉参数
func (m *Message) Reply() *Message {
	return &Message{
		ID:                m.ID,
		Command:           m.Command,
		CommandExecStatus: constants.StatusOK,
	}
}

// Fail 把回复标记为失败
func (m *Message) Fail(format string, a ...interface{}) *Message {
	m.CommandExecStatus = constants.StatusError
	m.ErrorMessages = append(m.ErrorMessages, fmt.Sprintf(format, a...))
	return m
}

// Warn 增加一条警告
func (m *Message) Warn(msg string) *Message {
	m.WarningMessages = append(m.WarningMessages, msg)
	return m
}

// Failed 回复是否失败
func (m *Message) Failed() bool {
	return m.CommandExecStatus == constants.StatusError
}
