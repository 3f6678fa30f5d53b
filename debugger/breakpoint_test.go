package debugger

import (
	"errors"
	"testing"

	e "github.com/fansqz/trace-debugger/error"
	"github.com/maxatome/go-testdeep/td"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linesUpTo 每个文件都有1到n行
type linesUpTo int

func (n linesUpTo) HasLine(file string, line int) bool {
	return line >= 1 && line <= int(n)
}

func TestRegistry_CreateValidatesLine(t *testing.T) {
	r := NewRegistry(linesUpTo(10))
	_, err := r.Create("/a.go", 11, "", true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, e.ErrLineNotFound))
	assert.Equal(t, "Line /a.go:11 does not exist.", err.Error())
	assert.False(t, r.AnyActive())
	assert.Empty(t, r.List())
}

func TestRegistry_LookupEffective(t *testing.T) {
	r := NewRegistry(linesUpTo(100))
	_, err := r.Create("/a.go", 1, "", true)
	require.NoError(t, err)
	_, err = r.Create("/a.go", 2, "", false)
	require.NoError(t, err)
	_, err = r.Create("/a.go", 3, "cond", true)
	require.NoError(t, err)

	truthy := func(string) (bool, error) { return true, nil }
	falsy := func(string) (bool, error) { return false, nil }
	failing := func(string) (bool, error) { return false, errors.New("bad condition") }

	assert.NotNil(t, r.LookupEffective("/a.go", 1, falsy))
	assert.Nil(t, r.LookupEffective("/a.go", 2, truthy))
	assert.NotNil(t, r.LookupEffective("/a.go", 3, truthy))
	assert.Nil(t, r.LookupEffective("/a.go", 3, falsy))
	assert.Nil(t, r.LookupEffective("/a.go", 3, failing))
	assert.Nil(t, r.LookupEffective("/a.go", 4, truthy))
	assert.Nil(t, r.LookupEffective("/b.go", 1, truthy))
}

func TestRegistry_NumbersNeverReused(t *testing.T) {
	r := NewRegistry(linesUpTo(100))
	first, err := r.Create("/a.go", 1, "", true)
	require.NoError(t, err)
	assert.Equal(t, 0, first)
	second, err := r.Create("/a.go", 2, "", true)
	require.NoError(t, err)
	require.NoError(t, r.Clear(second))

	assert.True(t, errors.Is(r.Clear(second), e.ErrBreakpointNotFound))
	assert.True(t, errors.Is(r.UpdateState(second, true, ""), e.ErrBreakpointNotFound))

	third, err := r.Create("/a.go", 2, "", true)
	require.NoError(t, err)
	assert.Equal(t, 2, third)

	// 同一行再次设置断点，旧的编号被删除
	fourth, err := r.Create("/a.go", 1, "x > 1", true)
	require.NoError(t, err)
	assert.Equal(t, 3, fourth)
	_, ok := r.Get(first)
	assert.False(t, ok)

	td.Cmp(t, r.List(), []*Breakpoint{
		{Number: 2, File: "/a.go", Line: 2, Enabled: true},
		{Number: 3, File: "/a.go", Line: 1, Condition: "x > 1", Enabled: true},
	})
}

func TestRegistry_AnyActiveTracksEnabled(t *testing.T) {
	r := NewRegistry(linesUpTo(100))
	assert.False(t, r.AnyActive())
	a, _ := r.Create("/a.go", 1, "", true)
	b, _ := r.Create("/a.go", 2, "", false)
	assert.True(t, r.AnyActive())

	require.NoError(t, r.UpdateState(a, false, ""))
	assert.False(t, r.AnyActive())
	require.NoError(t, r.UpdateState(b, true, ""))
	assert.True(t, r.AnyActive())
	require.NoError(t, r.Clear(b))
	assert.False(t, r.AnyActive())
	require.NoError(t, r.UpdateState(a, true, ""))
	assert.True(t, r.AnyActive())
	require.NoError(t, r.Clear(a))
	assert.False(t, r.AnyActive())
	assert.False(t, r.HasFile("/a.go"))
}

func TestRegistry_BackupRestore(t *testing.T) {
	r := NewRegistry(linesUpTo(100))
	r.Create("/a.go", 1, "x > 1", true)
	r.Create("/a.go", 2, "", false)
	r.Create("/b.go", 3, "", true)
	before := r.List()

	r.Restore(r.Backup())
	td.Cmp(t, r.List(), before)

	backup := r.Backup()
	r.DisableAll()
	assert.False(t, r.AnyActive())
	for _, bp := range r.List() {
		assert.False(t, bp.Enabled)
	}
	r.Restore(backup)
	td.Cmp(t, r.List(), before)
	assert.True(t, r.AnyActive())
}

func TestRegistry_HasFile(t *testing.T) {
	r := NewRegistry(linesUpTo(100))
	n, _ := r.Create("/a.go", 1, "", true)
	r.Create("/a.go", 2, "", true)
	assert.True(t, r.HasFile("/a.go"))
	r.Clear(n)
	assert.True(t, r.HasFile("/a.go"))
	assert.False(t, r.HasFile("/b.go"))
}
