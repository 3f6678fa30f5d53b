package debugger

import (
	"fmt"
	"sync"

	e "github.com/fansqz/trace-debugger/error"
)

// generationMask 保证引用不超过2^53，js客户端可以精确表示
const generationMask = 0x1FFFFF

// handleTable 引用和值的对应关系
// 每次断点开始时换代，上一次断点的引用全部失效
type handleTable struct {
	mu     sync.Mutex
	gen    int
	values []interface{}
}

func newHandleTable() *handleTable {
	return &handleTable{gen: 1}
}

// reset 换代
func (h *handleTable) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gen = (h.gen + 1) & generationMask
	if h.gen == 0 {
		h.gen = 1
	}
	h.values = nil
}

// add 保存一个值，返回引用，引用不会为0
func (h *handleTable) add(value interface{}) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values = append(h.values, value)
	return h.gen<<32 | len(h.values)
}

// resolve 根据引用获取值，过期或者不存在的引用返回ErrStaleHandle
func (h *handleTable) resolve(ref int) (interface{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	gen := ref >> 32
	idx := ref & 0xFFFFFFFF
	if gen != h.gen || idx < 1 || idx > len(h.values) {
		return nil, fmt.Errorf("%w: %d", e.ErrStaleHandle, ref)
	}
	return h.values[idx-1], nil
}
