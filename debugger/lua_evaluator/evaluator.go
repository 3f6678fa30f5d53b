package lua_evaluator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/fansqz/trace-debugger/constants"
	"github.com/fansqz/trace-debugger/debugger"
	"github.com/fansqz/trace-debugger/utils"
	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"
)

// TimeoutErrorType 求值超时
const TimeoutErrorType = "TimeoutError"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LuaEvaluator 使用Lua计算表达式
// 每次求值创建新的LState，全局变量的查找和赋值转发到作用域
type LuaEvaluator struct {
	log *logrus.Entry
}

var _ debugger.Evaluator = (*LuaEvaluator)(nil)

func NewLuaEvaluator() *LuaEvaluator {
	return &LuaEvaluator{
		log: utils.Logger(constants.DomainEval),
	}
}

// Eval 计算表达式
func (l *LuaEvaluator) Eval(ctx context.Context, expression string, scope debugger.EvalScope) (interface{}, error) {
	L, b, _ := l.newState(ctx, scope)
	defer L.Close()
	fn, err := L.LoadString("return " + expression)
	if err != nil {
		return nil, l.convertError(ctx, err)
	}
	L.Push(fn)
	if err = L.PCall(0, 1, nil); err != nil {
		return nil, l.convertError(ctx, err)
	}
	value := L.Get(-1)
	L.Pop(1)
	return b.toGo(value), nil
}

// Exec 执行语句，返回print的输出
func (l *LuaEvaluator) Exec(ctx context.Context, statement string, scope debugger.EvalScope) (string, error) {
	L, _, out := l.newState(ctx, scope)
	defer L.Close()
	fn, err := L.LoadString(statement)
	if err != nil {
		return "", l.convertError(ctx, err)
	}
	L.Push(fn)
	if err = L.PCall(0, 0, nil); err != nil {
		return "", l.convertError(ctx, err)
	}
	return out.String(), nil
}

// Assign 计算value并赋值给变量name，数字会转换为变量原来的类型
func (l *LuaEvaluator) Assign(ctx context.Context, name string, value string, scope debugger.EvalScope) error {
	if !identifier.MatchString(name) {
		return &debugger.EvalError{Type: debugger.SyntaxErrorType, Message: fmt.Sprintf("invalid variable name %q", name)}
	}
	v, err := l.Eval(ctx, value, scope)
	if err != nil {
		return err
	}
	old, _ := scope.Lookup(name)
	scope.Assign(name, coerce(v, old))
	return nil
}

func (l *LuaEvaluator) newState(ctx context.Context, scope debugger.EvalScope) (*lua.LState, *bridge, *bytes.Buffer) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)
	L.SetContext(ctx)
	b := &bridge{L: L}
	out := &bytes.Buffer{}

	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		parts := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		out.WriteString(strings.Join(parts, "\t"))
		out.WriteString("\n")
		return 0
	}))

	mt := L.NewTable()
	L.SetField(mt, "__index", L.NewFunction(func(L *lua.LState) int {
		name, ok := L.Get(2).(lua.LString)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		v, found := scope.Lookup(string(name))
		if !found {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(b.toLua(v))
		return 1
	}))
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		name, ok := L.Get(2).(lua.LString)
		if !ok {
			L.RawSet(L.CheckTable(1), L.Get(2), L.Get(3))
			return 0
		}
		v := b.toGo(L.Get(3))
		old, _ := scope.Lookup(string(name))
		scope.Assign(string(name), coerce(v, old))
		return 0
	}))
	L.SetMetatable(L.G.Global, mt)
	return L, b, out
}

// openSafeLibraries 只打开安全的标准库
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
}

func (l *LuaEvaluator) convertError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &debugger.EvalError{Type: TimeoutErrorType, Message: ctx.Err().Error()}
	}
	var apiErr *lua.ApiError
	if !errors.As(err, &apiErr) {
		return &debugger.EvalError{Type: debugger.RuntimeErrorType, Message: err.Error()}
	}
	message := err.Error()
	if apiErr.Object != nil {
		message = apiErr.Object.String()
	}
	switch apiErr.Type {
	case lua.ApiErrorSyntax:
		return &debugger.EvalError{Type: debugger.SyntaxErrorType, Message: message}
	default:
		return &debugger.EvalError{Type: debugger.RuntimeErrorType, Message: message}
	}
}
