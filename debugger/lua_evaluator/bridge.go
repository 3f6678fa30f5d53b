package lua_evaluator

import (
	"fmt"
	"reflect"

	lua "github.com/yuin/gopher-lua"
)

// bridge Go值和Lua值之间的转换
type bridge struct {
	L *lua.LState
}

// toGo 把Lua值转换为Go值，整数转换为int
func (b *bridge) toGo(lv lua.LValue) interface{} {
	return b.toGoVisited(lv, map[*lua.LTable]bool{})
}

func (b *bridge) toGoVisited(lv lua.LValue, visited map[*lua.LTable]bool) interface{} {
	switch v := lv.(type) {
	case nil:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		return b.tableToGo(v, visited)
	case *lua.LUserData:
		return v.Value
	case *lua.LFunction:
		return fmt.Sprintf("function: %p", v)
	default:
		return nil
	}
}

// tableToGo 连续的整数键转换为切片，否则转换为map
func (b *bridge) tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) interface{} {
	isArray := true
	maxN := 0
	count := 0
	t.ForEach(func(k, _ lua.LValue) {
		count++
		if kn, ok := k.(lua.LNumber); ok {
			n := int(kn)
			if float64(n) == float64(kn) && n > 0 {
				if n > maxN {
					maxN = n
				}
				return
			}
		}
		isArray = false
	})
	if isArray && maxN > 0 && count == maxN {
		arr := make([]interface{}, maxN)
		for i := 1; i <= maxN; i++ {
			arr[i-1] = b.toGoVisited(t.RawGetInt(i), visited)
		}
		return arr
	}
	m := make(map[string]interface{})
	t.ForEach(func(k, v lua.LValue) {
		m[k.String()] = b.toGoVisited(v, visited)
	})
	return m
}

// refKey 引用类型值的标识，类型不同的同一地址视为不同的值
type refKey struct {
	ptr uintptr
	typ reflect.Type
	len int
}

// toLua 把Go值转换为Lua值，不能转换的值作为userdata
func (b *bridge) toLua(v interface{}) lua.LValue {
	return b.toLuaVisited(v, map[refKey]*lua.LTable{})
}

// toLuaVisited 已经转换过的引用值复用同一个table，自引用的值在Lua中同样自引用
func (b *bridge) toLuaVisited(v interface{}, visited map[refKey]*lua.LTable) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int8:
		return lua.LNumber(val)
	case int16:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint:
		return lua.LNumber(val)
	case uint8:
		return lua.LNumber(val)
	case uint16:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case lua.LValue:
		return val
	}
	return b.reflectToLua(v, visited)
}

func (b *bridge) reflectToLua(v interface{}, visited map[refKey]*lua.LTable) lua.LValue {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return lua.LNil
		}
		if rv.Elem().Kind() == reflect.Struct {
			key := refKey{ptr: rv.Pointer(), typ: rv.Type()}
			if t, ok := visited[key]; ok {
				return t
			}
			t := b.L.NewTable()
			visited[key] = t
			b.fillStruct(t, rv.Elem(), visited)
			return t
		}
		return b.toLuaVisited(rv.Elem().Interface(), visited)
	case reflect.Slice:
		if rv.IsNil() {
			return b.L.NewTable()
		}
		key := refKey{ptr: rv.Pointer(), typ: rv.Type(), len: rv.Len()}
		if t, ok := visited[key]; ok {
			return t
		}
		t := b.L.NewTable()
		visited[key] = t
		b.fillSequence(t, rv, visited)
		return t
	case reflect.Array:
		t := b.L.NewTable()
		b.fillSequence(t, rv, visited)
		return t
	case reflect.Map:
		if rv.IsNil() {
			return b.L.NewTable()
		}
		key := refKey{ptr: rv.Pointer(), typ: rv.Type()}
		if t, ok := visited[key]; ok {
			return t
		}
		t := b.L.NewTable()
		visited[key] = t
		for _, k := range rv.MapKeys() {
			t.RawSet(b.toLuaVisited(k.Interface(), visited), b.toLuaVisited(rv.MapIndex(k).Interface(), visited))
		}
		return t
	case reflect.Struct:
		t := b.L.NewTable()
		b.fillStruct(t, rv, visited)
		return t
	}
	ud := b.L.NewUserData()
	ud.Value = v
	return ud
}

func (b *bridge) fillSequence(t *lua.LTable, rv reflect.Value, visited map[refKey]*lua.LTable) {
	for i := 0; i < rv.Len(); i++ {
		t.RawSetInt(i+1, b.toLuaVisited(rv.Index(i).Interface(), visited))
	}
}

// fillStruct 只转换导出的字段，使用字段名作为键
func (b *bridge) fillStruct(t *lua.LTable, rv reflect.Value, visited map[refKey]*lua.LTable) {
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		t.RawSetString(field.Name, b.toLuaVisited(rv.Field(i).Interface(), visited))
	}
}

// coerce 赋值时尽量保持变量原来的类型
func coerce(value interface{}, old interface{}) interface{} {
	if value == nil || old == nil {
		return value
	}
	ov := reflect.ValueOf(old)
	nv := reflect.ValueOf(value)
	if nv.Type() == ov.Type() {
		return value
	}
	switch ov.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if nv.CanConvert(ov.Type()) && isNumber(nv.Kind()) {
			if isInteger(ov.Kind()) && nv.Kind() == reflect.Float64 && nv.Float() != float64(int64(nv.Float())) {
				return value
			}
			return nv.Convert(ov.Type()).Interface()
		}
	}
	return value
}

func isNumber(k reflect.Kind) bool {
	return isInteger(k) || k == reflect.Float32 || k == reflect.Float64
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
