package programs

import (
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/fansqz/trace-debugger/vm"
)

// registry 按名称排序的示例程序
var registry = treemap.NewWithStringComparator()

func register(name string, build func() *vm.Program) {
	registry.Put(name, build)
}

func init() {
	register("fib", Fibonacci)
	register("workers", Workers)
	register("crash", Crash)
}

// Lookup 根据名称创建示例程序
func Lookup(name string) (*vm.Program, bool) {
	value, ok := registry.Get(name)
	if !ok {
		return nil, false
	}
	return value.(func() *vm.Program)(), true
}

// Names 所有示例程序的名称
func Names() []string {
	answer := make([]string, 0, registry.Size())
	for _, key := range registry.Keys() {
		answer = append(answer, key.(string))
	}
	return answer
}
