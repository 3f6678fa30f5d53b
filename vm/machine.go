package vm

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// MainThreadName 主线程名称
const MainThreadName = "MainThread"

// Program 被调试程序
type Program struct {
	// Name 入口函数名称
	Name string
	// File 入口所在的源文件
	File string
	Line int
	// Sources 不在磁盘上的源文件内容，key为文件路径
	Sources map[string]string
	Main    func(f *Frame)
}

// Outcome 程序运行结果
type Outcome struct {
	// Fault 主线程未捕获的panic
	Fault *Fault
	// Terminated 主线程被钩子终止
	Terminated bool
}

// FaultHandler 线程未捕获panic时，在该线程上调用，此时其他线程可能还在运行
type FaultHandler func(t *Thread, fault *Fault)

// Machine 被调试程序的执行环境，提供执行事件
// 钩子的安装和移除可以在任意goroutine上进行
type Machine struct {
	mu        sync.Mutex
	threads   map[int64]*Thread
	inherited atomic.Pointer[hookBox]
	onFault   FaultHandler
	nextID    *atomic.Int64
	hookCalls *atomic.Int64
	globals   *Scope
	wg        sync.WaitGroup
}

func NewMachine() *Machine {
	return &Machine{
		threads:   map[int64]*Thread{},
		nextID:    atomic.NewInt64(0),
		hookCalls: atomic.NewInt64(0),
		globals:   NewScope(),
	}
}

func (m *Machine) Globals() *Scope {
	return m.globals
}

// SetFaultHandler 设置线程panic的处理函数
func (m *Machine) SetFaultHandler(h FaultHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFault = h
}

// HookCalls 钩子被调用的总次数
func (m *Machine) HookCalls() int64 {
	return m.hookCalls.Load()
}

func (m *Machine) newThread(name string) *Thread {
	t := &Thread{id: m.nextID.Inc(), name: name, m: m}
	if box := m.inherited.Load(); box != nil {
		t.hook.Store(box)
	}
	m.mu.Lock()
	m.threads[t.id] = t
	m.mu.Unlock()
	return t
}

func (m *Machine) remove(t *Thread) {
	m.mu.Lock()
	delete(m.threads, t.id)
	m.mu.Unlock()
}

// Run 在主线程上运行程序，hook为主线程的初始钩子
// 主线程panic时先在主线程上调用FaultHandler，等待主线程以及所有子线程结束后返回
func (m *Machine) Run(p *Program, hook Hook) Outcome {
	t := m.newThread(MainThreadName)
	if hook != nil {
		t.SetHook(hook)
	}
	done := make(chan Outcome, 1)
	go func() {
		var out Outcome
		defer func() {
			m.remove(t)
			out.Terminated = t.terminated
			done <- out
		}()
		out.Fault = t.run(func(th *Thread) {
			th.Call(p.Name, p.File, p.Line, p.Main)
		})
		if out.Fault != nil {
			m.reportFault(t, out.Fault)
		}
	}()
	out := <-done
	m.wg.Wait()
	return out
}

// Go 启动子线程
func (m *Machine) Go(name string, fn func(th *Thread)) *Thread {
	t := m.newThread(name)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.remove(t)
		if fault := t.run(fn); fault != nil {
			m.reportFault(t, fault)
		}
	}()
	return t
}

func (m *Machine) reportFault(t *Thread, fault *Fault) {
	logrus.Warnf("[Machine] thread %s panic: %v", t.name, fault)
	m.mu.Lock()
	h := m.onFault
	m.mu.Unlock()
	if h != nil {
		h(t, fault)
	}
}

// Threads 存活的线程，按id排序
func (m *Machine) Threads() []*Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	answer := make([]*Thread, 0, len(m.threads))
	for _, t := range m.threads {
		answer = append(answer, t)
	}
	sort.Slice(answer, func(i, j int) bool { return answer[i].id < answer[j].id })
	return answer
}

func (m *Machine) Thread(id int64) (*Thread, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	return t, ok
}

// SetHook 设置某个线程的钩子
func (m *Machine) SetHook(threadID int64, h Hook) bool {
	t, ok := m.Thread(threadID)
	if !ok {
		return false
	}
	t.SetHook(h)
	return true
}

// SetHookAll 给except以外的所有存活线程设置钩子
func (m *Machine) SetHookAll(h Hook, except int64) {
	box := boxOf(h)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.threads {
		if id != except {
			t.hook.Store(box)
		}
	}
}

// SetInheritedHook 之后创建的线程默认安装的钩子
func (m *Machine) SetInheritedHook(h Hook) {
	m.inherited.Store(boxOf(h))
}
