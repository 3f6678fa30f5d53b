package programs

import (
	"github.com/fansqz/trace-debugger/vm"
)

const crashFile = "/programs/crash.go"

const crashSource = `package main

type account struct {
	Owner   string
	Balance int
}

func withdraw(a *account, amount int) {
	if amount > a.Balance {
		panic("insufficient funds")
	}
	a.Balance = a.Balance - amount
}

func main() {
	acct := &account{Owner: "alice", Balance: 100}
	withdraw(acct, 30)
	withdraw(acct, 90)
}
`

// Account crash程序中的账户
type Account struct {
	Owner   string
	Balance int
}

// Crash 第二次取款时panic，调试器在panic的位置暂停
func Crash() *vm.Program {
	return &vm.Program{
		Name:    "main",
		File:    crashFile,
		Line:    15,
		Sources: map[string]string{crashFile: crashSource},
		Main: func(f *vm.Frame) {
			f.Line(16)
			acct := &Account{Owner: "alice", Balance: 100}
			f.Set("acct", acct)
			f.Line(17)
			withdraw(f, acct, 30)
			f.Line(18)
			withdraw(f, acct, 90)
		},
	}
}

func withdraw(caller *vm.Frame, a *Account, amount int) {
	caller.Call("withdraw", crashFile, 8, func(f *vm.Frame) {
		f.Set("a", a)
		f.Set("amount", amount)
		f.Line(9)
		if f.Int("amount") > a.Balance {
			f.Line(10)
			panic("insufficient funds")
		}
		f.Line(12)
		a.Balance = a.Balance - f.Int("amount")
	})
}
