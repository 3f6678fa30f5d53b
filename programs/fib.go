package programs

import (
	"fmt"

	"github.com/fansqz/trace-debugger/vm"
)

const fibFile = "/programs/fib.go"

const fibSource = `package main

var calls = 0

func fib(n int) int {
	calls = calls + 1
	if n < 2 {
		return n
	}
	return fib(n-1) + fib(n-2)
}

func main() {
	total := 0
	for i := 0; i < 8; i++ {
		total = total + fib(i)
	}
	println(total)
}
`

// Fibonacci 递归程序，适合练习stepInto和stepOut
func Fibonacci() *vm.Program {
	return &vm.Program{
		Name:    "main",
		File:    fibFile,
		Line:    13,
		Sources: map[string]string{fibFile: fibSource},
		Main: func(f *vm.Frame) {
			f.Globals().Set("calls", 0)
			f.Line(14)
			f.Set("total", 0)
			for i := 0; ; i++ {
				f.Line(15)
				f.Set("i", i)
				if f.Int("i") >= 8 {
					break
				}
				f.Line(16)
				f.Set("total", f.Int("total")+fib(f, f.Int("i")))
			}
			f.Line(18)
			fmt.Println(f.Int("total"))
		},
	}
}

func fib(caller *vm.Frame, n int) int {
	result := 0
	caller.Call("fib", fibFile, 5, func(f *vm.Frame) {
		f.Set("n", n)
		f.Line(6)
		calls, _ := f.Globals().Get("calls")
		f.Globals().Set("calls", toInt(calls)+1)
		f.Line(7)
		if f.Int("n") < 2 {
			f.Line(8)
			result = f.Int("n")
			return
		}
		f.Line(10)
		result = fib(f, f.Int("n")-1) + fib(f, f.Int("n")-2)
	})
	return result
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
