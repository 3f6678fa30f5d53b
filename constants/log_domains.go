package constants

// LogDomain 日志域，每个域可以单独打开debug级别
type LogDomain string

const (
	DomainNetwork    LogDomain = "network"
	DomainBreakpoint LogDomain = "breakpoint"
	DomainEval       LogDomain = "eval"
	DomainExecution  LogDomain = "execution"
	DomainFrame      LogDomain = "frame"
	DomainPath       LogDomain = "path"
	DomainGlobal     LogDomain = "global"
)

// DomainLetters 命令行中用字母表示日志域
var DomainLetters = map[rune]LogDomain{
	'n': DomainNetwork,
	'b': DomainBreakpoint,
	'e': DomainEval,
	'x': DomainExecution,
	'f': DomainFrame,
	'p': DomainPath,
	'g': DomainGlobal,
}
