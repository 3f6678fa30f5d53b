package debugger

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fansqz/trace-debugger/vm"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

const testFile = "/src/prog.go"

func testSources() map[string]string {
	return map[string]string{testFile: strings.Repeat("statement\n", 60)}
}

// fakeEvaluator 支持测试中用到的几种表达式：
// 变量名、整数、"name > n"、"boom"，以"print "开头的内容按语句执行
type fakeEvaluator struct {
	calls *atomic.Int64
	// onEval 每次Eval开始时调用
	onEval func()
}

func newFakeEvaluator() *fakeEvaluator {
	return &fakeEvaluator{calls: atomic.NewInt64(0)}
}

func (f *fakeEvaluator) Eval(ctx context.Context, expression string, scope EvalScope) (interface{}, error) {
	f.calls.Inc()
	if f.onEval != nil {
		f.onEval()
	}
	if expression == "boom" {
		return nil, &EvalError{Type: RuntimeErrorType, Message: "boom"}
	}
	if strings.HasPrefix(expression, "print ") {
		return nil, &EvalError{Type: SyntaxErrorType, Message: "unexpected symbol"}
	}
	if parts := strings.Fields(expression); len(parts) == 3 && parts[1] == ">" {
		v, _ := scope.Lookup(parts[0])
		n, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, &EvalError{Type: SyntaxErrorType, Message: parts[2]}
		}
		return toInt(v) > n, nil
	}
	if n, err := strconv.Atoi(expression); err == nil {
		return n, nil
	}
	if v, ok := scope.Lookup(expression); ok {
		return v, nil
	}
	return nil, &EvalError{Type: NameErrorType, Message: expression + " is not defined"}
}

func (f *fakeEvaluator) Exec(ctx context.Context, statement string, scope EvalScope) (string, error) {
	return strings.TrimPrefix(statement, "print ") + "\n", nil
}

func (f *fakeEvaluator) Assign(ctx context.Context, name string, value string, scope EvalScope) error {
	v, err := f.Eval(ctx, value, scope)
	if err != nil {
		return err
	}
	scope.Assign(name, v)
	return nil
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}

type harness struct {
	t         *testing.T
	session   *Session
	evaluator *fakeEvaluator
	events    chan interface{}
}

func newHarness(t *testing.T, program *vm.Program, stopAtEntry bool) *harness {
	h := &harness{
		t:         t,
		evaluator: newFakeEvaluator(),
		events:    make(chan interface{}, 32),
	}
	if program.Sources == nil {
		program.Sources = testSources()
	}
	h.session = NewSession(&StartOption{
		Program:     program,
		Evaluator:   h.evaluator,
		StopAtEntry: stopAtEntry,
		Callback: func(event interface{}) {
			h.events <- event
		},
	})
	return h
}

func (h *harness) setBreakpoint(line int, condition string) int {
	n, err := h.session.SetBreakpoint(context.Background(), testFile, line, condition, true)
	require.NoError(h.t, err)
	return n
}

func (h *harness) start() {
	require.NoError(h.t, h.session.Start(context.Background()))
}

func (h *harness) next() interface{} {
	select {
	case event := <-h.events:
		return event
	case <-time.After(5 * time.Second):
		h.t.Fatal("timeout waiting for event")
		return nil
	}
}

func (h *harness) nextStop() *StoppedEvent {
	event := h.next()
	stopped, ok := event.(*StoppedEvent)
	require.True(h.t, ok, "expected stopped event, got %#v", event)
	return stopped
}

func (h *harness) exited() *ExitedEvent {
	event := h.next()
	exited, ok := event.(*ExitedEvent)
	require.True(h.t, ok, "expected exited event, got %#v", event)
	<-h.session.Done()
	return exited
}

// noEvent 在一段时间内没有新的事件
func (h *harness) noEvent(d time.Duration) {
	select {
	case event := <-h.events:
		h.t.Fatalf("unexpected event %#v", event)
	case <-time.After(d):
	}
}
