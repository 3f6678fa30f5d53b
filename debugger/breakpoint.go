package debugger

import (
	"fmt"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/sets/hashset"
	"github.com/fansqz/trace-debugger/constants"
	e "github.com/fansqz/trace-debugger/error"
	"github.com/fansqz/trace-debugger/utils"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// LineChecker 判断源文件中某一行是否存在
type LineChecker interface {
	HasLine(file string, line int) bool
}

// ConditionFunc 在某个栈帧中计算断点条件
type ConditionFunc func(condition string) (bool, error)

// BreakpointState 备份的断点状态
type BreakpointState struct {
	Number    int
	Enabled   bool
	Condition string
}

// LineError 断点所在的行不存在
type LineError struct {
	File string
	Line int
}

func (l *LineError) Error() string {
	return fmt.Sprintf("Line %s:%d does not exist.", l.File, l.Line)
}

func (l *LineError) Unwrap() error {
	return e.ErrLineNotFound
}

type fileLine struct {
	file string
	line int
}

// Registry 断点管理
// 断点按编号、(文件,行号)、文件三种方式索引，编号删除后不会复用
type Registry struct {
	mu         sync.RWMutex
	lines      LineChecker
	next       int
	byNumber   *treemap.Map // int -> *Breakpoint
	byFileLine map[fileLine]*Breakpoint
	files      map[string]*hashset.Set
	anyActive  *atomic.Bool
	log        *logrus.Entry
}

func NewRegistry(lines LineChecker) *Registry {
	return &Registry{
		lines:      lines,
		byNumber:   treemap.NewWithIntComparator(),
		byFileLine: map[fileLine]*Breakpoint{},
		files:      map[string]*hashset.Set{},
		anyActive:  atomic.NewBool(false),
		log:        utils.Logger(constants.DomainBreakpoint),
	}
}

// Create 创建断点，file必须是规范化的路径
// 同一行已经存在断点时，旧的断点会被删除
func (r *Registry) Create(file string, line int, condition string, enabled bool) (int, error) {
	if r.lines != nil && !r.lines.HasLine(file, line) {
		return 0, &LineError{File: file, Line: line}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fileLine{file: file, line: line}
	if old, ok := r.byFileLine[key]; ok {
		r.log.Debugf("[Registry] Create replaces breakpoint %d at %s:%d", old.Number, file, line)
		r.removeLocked(old)
	}
	bp := &Breakpoint{
		Number:    r.next,
		File:      file,
		Line:      line,
		Condition: condition,
		Enabled:   enabled,
	}
	r.next++
	r.byNumber.Put(bp.Number, bp)
	r.byFileLine[key] = bp
	lines, ok := r.files[file]
	if !ok {
		lines = hashset.New()
		r.files[file] = lines
	}
	lines.Add(line)
	r.updateActiveLocked()
	r.log.Debugf("[Registry] Create breakpoint %d at %s:%d condition=%q enabled=%v",
		bp.Number, file, line, condition, enabled)
	return bp.Number, nil
}

// HasFile 文件中是否有断点
func (r *Registry) HasFile(file string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.files[file]
	return ok
}

// AnyActive 是否存在启用的断点
func (r *Registry) AnyActive() bool {
	return r.anyActive.Load()
}

// LookupEffective 返回生效的断点
// 条件在锁外计算，计算失败视为不命中
func (r *Registry) LookupEffective(file string, line int, cond ConditionFunc) *Breakpoint {
	r.mu.RLock()
	bp, ok := r.byFileLine[fileLine{file: file, line: line}]
	var snapshot Breakpoint
	if ok {
		snapshot = *bp
	}
	r.mu.RUnlock()
	if !ok || !snapshot.Enabled {
		return nil
	}
	if snapshot.Condition == "" {
		return &snapshot
	}
	if cond == nil {
		return nil
	}
	matched, err := cond(snapshot.Condition)
	if err != nil {
		r.log.Debugf("[Registry] condition %q of breakpoint %d failed: %v",
			snapshot.Condition, snapshot.Number, err)
		return nil
	}
	if !matched {
		return nil
	}
	return &snapshot
}

// UpdateState 修改断点状态和条件
func (r *Registry) UpdateState(number int, enabled bool, condition string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	value, ok := r.byNumber.Get(number)
	if !ok {
		return fmt.Errorf("%w %d", e.ErrBreakpointNotFound, number)
	}
	bp := value.(*Breakpoint)
	bp.Enabled = enabled
	bp.Condition = condition
	r.updateActiveLocked()
	return nil
}

// Clear 删除断点
func (r *Registry) Clear(number int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	value, ok := r.byNumber.Get(number)
	if !ok {
		return fmt.Errorf("%w %d", e.ErrBreakpointNotFound, number)
	}
	r.removeLocked(value.(*Breakpoint))
	r.updateActiveLocked()
	return nil
}

func (r *Registry) removeLocked(bp *Breakpoint) {
	r.byNumber.Remove(bp.Number)
	delete(r.byFileLine, fileLine{file: bp.File, line: bp.Line})
	if lines, ok := r.files[bp.File]; ok {
		lines.Remove(bp.Line)
		if lines.Empty() {
			delete(r.files, bp.File)
		}
	}
}

func (r *Registry) updateActiveLocked() {
	active := false
	it := r.byNumber.Iterator()
	for it.Next() {
		if it.Value().(*Breakpoint).Enabled {
			active = true
			break
		}
	}
	r.anyActive.Store(active)
}

// List 按编号返回所有断点
func (r *Registry) List() []*Breakpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	answer := make([]*Breakpoint, 0, r.byNumber.Size())
	it := r.byNumber.Iterator()
	for it.Next() {
		bp := *it.Value().(*Breakpoint)
		answer = append(answer, &bp)
	}
	return answer
}

// Get 根据编号获取断点
func (r *Registry) Get(number int) (*Breakpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.byNumber.Get(number)
	if !ok {
		return nil, false
	}
	bp := *value.(*Breakpoint)
	return &bp, true
}

// Backup 备份所有断点的启用状态和条件
func (r *Registry) Backup() []BreakpointState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	answer := make([]BreakpointState, 0, r.byNumber.Size())
	it := r.byNumber.Iterator()
	for it.Next() {
		bp := it.Value().(*Breakpoint)
		answer = append(answer, BreakpointState{
			Number:    bp.Number,
			Enabled:   bp.Enabled,
			Condition: bp.Condition,
		})
	}
	return answer
}

// Restore 恢复备份，备份之后删除的断点会被忽略
func (r *Registry) Restore(states []BreakpointState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, state := range states {
		value, ok := r.byNumber.Get(state.Number)
		if !ok {
			continue
		}
		bp := value.(*Breakpoint)
		bp.Enabled = state.Enabled
		bp.Condition = state.Condition
	}
	r.updateActiveLocked()
}

// DisableAll 禁用所有断点
func (r *Registry) DisableAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	it := r.byNumber.Iterator()
	for it.Next() {
		it.Value().(*Breakpoint).Enabled = false
	}
	r.anyActive.Store(false)
}
