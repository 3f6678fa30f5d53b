package vm

import (
	"sync"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// Scope 变量作用域，保持变量的声明顺序
// 被调试线程写入，调试线程在断点期间读取，所以需要加锁
type Scope struct {
	mu   sync.RWMutex
	vars *linkedhashmap.Map
}

func NewScope() *Scope {
	return &Scope{vars: linkedhashmap.New()}
}

// Get 读取变量
func (s *Scope) Get(name string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vars.Get(name)
}

// Set 设置变量，已存在的变量保持原来的顺序
func (s *Scope) Set(name string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars.Put(name, value)
}

func (s *Scope) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

func (s *Scope) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars.Remove(name)
}

// Keys 按声明顺序返回变量名
func (s *Scope) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.vars.Keys()
	answer := make([]string, 0, len(keys))
	for _, k := range keys {
		answer = append(answer, k.(string))
	}
	return answer
}

func (s *Scope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vars.Size()
}
