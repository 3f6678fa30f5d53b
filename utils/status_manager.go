package utils

import (
	"sync"

	"github.com/fansqz/trace-debugger/constants"
)

const (
	// Init 调试初始化状态，等待runScript
	Init = "Init"
	// Stopped 用户程序暂停
	Stopped = string(constants.ExecutionStopped)
	// Running 用户程序运行中
	Running = string(constants.ExecutionRunning)
	// Finish 调试结束状态
	Finish = string(constants.ExecutionTerminated)
)

// StatusManager 记录调试器的状态的
type StatusManager struct {
	lock   sync.RWMutex
	status string
}

func NewStatusManager() *StatusManager {
	return &StatusManager{
		status: Init,
	}
}

func (s *StatusManager) Set(status string) {
	defer s.lock.Unlock()
	s.lock.Lock()
	s.status = status
}

// CompareAndSet 状态为from之一时才修改为to
func (s *StatusManager) CompareAndSet(to string, from ...string) bool {
	defer s.lock.Unlock()
	s.lock.Lock()
	for _, status := range from {
		if s.status == status {
			s.status = to
			return true
		}
	}
	return false
}

func (s *StatusManager) Get() string {
	defer s.lock.RUnlock()
	s.lock.RLock()
	return s.status
}

func (s *StatusManager) Is(statusList ...string) bool {
	defer s.lock.RUnlock()
	s.lock.RLock()
	for _, status := range statusList {
		if s.status == status {
			return true
		}
	}
	return false
}
