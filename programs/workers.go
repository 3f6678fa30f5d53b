package programs

import (
	"fmt"

	"github.com/fansqz/trace-debugger/vm"
)

const workersFile = "/programs/workers.go"

const workersSource = `package main

func work(id int, n int) int {
	sum := 0
	for i := 1; i <= n; i++ {
		sum = sum + i*id
	}
	return sum
}

func main() {
	results := map[string]int{}
	done := make(chan int, 2)
	go func() { done <- work(1, 5) }()
	go func() { done <- work(2, 5) }()
	results["a"] = <-done
	results["b"] = <-done
	println(results["a"] + results["b"])
}
`

// Workers 两个线程同时执行work，断点会依次在两个线程上暂停
func Workers() *vm.Program {
	return &vm.Program{
		Name:    "main",
		File:    workersFile,
		Line:    11,
		Sources: map[string]string{workersFile: workersSource},
		Main: func(f *vm.Frame) {
			f.Line(12)
			results := map[string]int{}
			f.Set("results", results)
			f.Line(13)
			done := make(chan int, 2)
			f.Line(14)
			f.Go("worker-1", func(th *vm.Thread) { done <- work(th, 1, 5) })
			f.Line(15)
			f.Go("worker-2", func(th *vm.Thread) { done <- work(th, 2, 5) })
			f.Line(16)
			results["a"] = <-done
			f.Line(17)
			results["b"] = <-done
			f.Line(18)
			fmt.Println(results["a"] + results["b"])
		},
	}
}

func work(th *vm.Thread, id int, n int) int {
	result := 0
	th.Call("work", workersFile, 3, func(f *vm.Frame) {
		f.Set("id", id)
		f.Set("n", n)
		f.Line(4)
		f.Set("sum", 0)
		for i := 1; ; i++ {
			f.Line(5)
			f.Set("i", i)
			if f.Int("i") > f.Int("n") {
				break
			}
			f.Line(6)
			f.Set("sum", f.Int("sum")+f.Int("i")*f.Int("id"))
		}
		f.Line(8)
		result = f.Int("sum")
	})
	return result
}
