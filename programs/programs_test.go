package programs

import (
	"strings"
	"sync"
	"testing"

	"github.com/fansqz/trace-debugger/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"crash", "fib", "workers"}, Names())
	_, ok := Lookup("missing")
	assert.False(t, ok)
}

// 程序产生的每一行事件都对应源码中的非空行
func TestPrograms_LinesMatchSources(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			p, ok := Lookup(name)
			require.True(t, ok)
			lines := strings.Split(p.Sources[p.File], "\n")
			var mu sync.Mutex
			var bad []int
			vm.NewMachine().Run(p, func(f *vm.Frame, ev vm.Event) vm.Action {
				if ev == vm.EventLine {
					n := f.Lineno()
					if n < 1 || n > len(lines) || strings.TrimSpace(lines[n-1]) == "" {
						mu.Lock()
						bad = append(bad, n)
						mu.Unlock()
					}
				}
				return vm.ActionContinue
			})
			assert.Empty(t, bad)
		})
	}
}

func TestFibonacci(t *testing.T) {
	m := vm.NewMachine()
	out := m.Run(Fibonacci(), nil)
	assert.Nil(t, out.Fault)
	calls, _ := m.Globals().Get("calls")
	assert.Equal(t, 100, calls)
}

func TestWorkers_RunOnTwoThreads(t *testing.T) {
	m := vm.NewMachine()
	var mu sync.Mutex
	threads := map[string]bool{}
	m.SetInheritedHook(func(f *vm.Frame, ev vm.Event) vm.Action {
		if ev == vm.EventCall && f.Name() == "work" {
			mu.Lock()
			threads[f.Thread().Name()] = true
			mu.Unlock()
		}
		return vm.ActionContinue
	})
	out := m.Run(Workers(), nil)
	assert.Nil(t, out.Fault)
	assert.Equal(t, map[string]bool{"worker-1": true, "worker-2": true}, threads)
}

func TestCrash(t *testing.T) {
	out := vm.NewMachine().Run(Crash(), nil)
	require.NotNil(t, out.Fault)
	assert.Equal(t, "insufficient funds", out.Fault.Error())
	assert.Equal(t, "withdraw", out.Fault.Frame.Name())
	assert.Equal(t, 10, out.Fault.Frame.Lineno())
	assert.Equal(t, &Account{Owner: "alice", Balance: 70}, out.Fault.Frame.Get("a"))
}
