package debugger

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/fansqz/trace-debugger/constants"
	"github.com/fansqz/trace-debugger/utils"
	"github.com/fansqz/trace-debugger/vm"
)

// EvalScope 表达式求值时的变量作用域
type EvalScope interface {
	Lookup(name string) (interface{}, bool)
	Assign(name string, value interface{})
}

// Evaluator 表达式求值引擎
type Evaluator interface {
	// Eval 计算表达式的值
	Eval(ctx context.Context, expression string, scope EvalScope) (interface{}, error)
	// Exec 执行语句，返回语句的输出
	Exec(ctx context.Context, statement string, scope EvalScope) (string, error)
	// Assign 计算value并赋值给name
	Assign(ctx context.Context, name string, value string, scope EvalScope) error
}

const (
	SyntaxErrorType  = "SyntaxError"
	RuntimeErrorType = "RuntimeError"
	NameErrorType    = "NameError"
)

// EvalError 求值失败，Type为错误类型
type EvalError struct {
	Type    string
	Message string
}

func (err *EvalError) Error() string {
	return fmt.Sprintf("%s: %s", err.Type, err.Message)
}

// IsSyntaxError 表达式无法解析
func IsSyntaxError(err error) bool {
	var evalErr *EvalError
	return errors.As(err, &evalErr) && evalErr.Type == SyntaxErrorType
}

// failure 把错误转换为(值,类型)
func failure(err error) (string, string) {
	var evalErr *EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Error(), evalErr.Type
	}
	return fmt.Sprintf("Error: %v", err), "Error"
}

// frameScope 栈帧的作用域，先查局部变量再查全局变量，赋值写入局部变量
type frameScope struct {
	f *vm.Frame
}

func (s frameScope) Lookup(name string) (interface{}, bool) {
	if v, ok := s.f.Locals().Get(name); ok {
		return v, true
	}
	return s.f.Globals().Get(name)
}

func (s frameScope) Assign(name string, value interface{}) {
	s.f.Locals().Set(name, value)
}

// globalScope 只包含全局变量
type globalScope struct {
	globals *vm.Scope
}

func (s globalScope) Lookup(name string) (interface{}, bool) {
	return s.globals.Get(name)
}

func (s globalScope) Assign(name string, value interface{}) {
	s.globals.Set(name, value)
}

// Truthy 判断条件表达式的值是否为真
func Truthy(v interface{}) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array, reflect.Chan:
		return rv.Len() > 0
	case reflect.Ptr, reflect.Interface, reflect.Func:
		return !rv.IsNil()
	default:
		return true
	}
}

// scopeFor 选择求值的作用域，global为true或者没有栈帧时使用全局作用域
func (s *Session) scopeFor(frameID int, global bool) (EvalScope, error) {
	if frameID == 0 || global {
		return globalScope{globals: s.machine.Globals()}, nil
	}
	f, err := s.resolveFrame(frameID)
	if err != nil {
		return nil, err
	}
	return frameScope{f: f}, nil
}

// suppressBreakpoints 禁用所有断点，返回恢复函数
func (s *Session) suppressBreakpoints() func() {
	backup := s.registry.Backup()
	s.registry.DisableAll()
	return func() {
		s.registry.Restore(backup)
	}
}

// Evaluate 计算表达式，返回(值,类型)，失败时返回错误描述和错误类型
// 表达式无法解析时作为语句执行，返回语句的输出
func (s *Session) Evaluate(ctx context.Context, frameID int, expression string, global bool, disableBreak bool) (string, string) {
	if disableBreak {
		defer s.suppressBreakpoints()()
	}
	elog := utils.Logger(constants.DomainEval)
	if s.evaluator == nil {
		return failure(errors.New("no evaluator"))
	}
	scope, err := s.scopeFor(frameID, global)
	if err != nil {
		return failure(&EvalError{Type: NameErrorType, Message: err.Error()})
	}
	ctx, cancel := context.WithTimeout(ctx, s.evalTimeout)
	defer cancel()
	value, err := s.evaluator.Eval(ctx, expression, scope)
	if IsSyntaxError(err) {
		output, execErr := s.evaluator.Exec(ctx, expression, scope)
		if execErr != nil {
			elog.Debugf("[Evaluate] %s => %v", expression, execErr)
			return failure(execErr)
		}
		return "<plaintext>" + output, "str"
	}
	if err != nil {
		elog.Debugf("[Evaluate] %s => %v", expression, err)
		return failure(err)
	}
	result, typ := s.inspect.repr(value), typeLabel(value)
	elog.Debugf("[Evaluate] %s => %s:%s", expression, result, typ)
	return result, typ
}

// SetVariable 计算value并赋值给栈帧中的变量，赋值期间禁用断点
func (s *Session) SetVariable(ctx context.Context, frameID int, name string, value string) error {
	defer s.suppressBreakpoints()()
	if s.evaluator == nil {
		return errors.New("no evaluator")
	}
	f, err := s.resolveFrame(frameID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.evalTimeout)
	defer cancel()
	if err = s.evaluator.Assign(ctx, name, value, frameScope{f: f}); err != nil {
		utils.Logger(constants.DomainEval).Debugf("[SetVariable] %s=%s => %v", name, value, err)
		return err
	}
	return nil
}
