package debugger

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/fansqz/trace-debugger/vm"
)

// DefaultMaxReprLength 变量值默认的最大长度
const DefaultMaxReprLength = 512

type member struct {
	name  string
	value interface{}
}

// introspector 把栈帧和变量转换为可以发送给客户端的描述
// 只支持三种结构：映射、序列、结构体
type introspector struct {
	handles       *handleTable
	maxReprLength int
}

// dumpFrames 从最内层的栈帧向外遍历，在beginning之前停止
func (in *introspector) dumpFrames(f *vm.Frame, beginning *vm.Frame) []*StackFrame {
	var frames []*StackFrame
	for fr := f; fr != nil && fr != beginning; fr = fr.Caller() {
		thread := fr.Thread()
		frames = append(frames, &StackFrame{
			ID:        in.handles.add(fr),
			Name:      fmt.Sprintf("%s() [%s]", fr.Name(), thread.Name()),
			Path:      fr.File(),
			Line:      fr.Lineno(),
			ThreadID:  thread.ID(),
			Variables: in.extract(fr.Locals()),
		})
	}
	return frames
}

// extract 获取一个值的所有子元素
func (in *introspector) extract(value interface{}) []*Variable {
	members := membersOf(value)
	answer := make([]*Variable, 0, len(members))
	for _, m := range members {
		answer = append(answer, in.describe(m.name, m.value))
	}
	return answer
}

func (in *introspector) describe(name string, value interface{}) *Variable {
	return &Variable{
		Reference:      in.handles.add(value),
		Name:           name,
		Type:           typeLabel(value),
		Value:          in.repr(value),
		ChildrenNumber: childrenCount(value),
	}
}

func (in *introspector) repr(value interface{}) string {
	return truncate(repr(value), in.maxReprLength)
}

// membersOf 按值的结构枚举子元素
func membersOf(value interface{}) []member {
	if scope, ok := value.(*vm.Scope); ok {
		keys := scope.Keys()
		answer := make([]member, 0, len(keys))
		for _, k := range keys {
			v, _ := scope.Get(k)
			answer = append(answer, member{name: k, value: v})
		}
		return answer
	}
	rv := indirect(reflect.ValueOf(value))
	if !rv.IsValid() {
		return nil
	}
	switch rv.Kind() {
	case reflect.Map:
		keys := rv.MapKeys()
		answer := make([]member, 0, len(keys))
		for _, k := range keys {
			answer = append(answer, member{name: keyName(k), value: rv.MapIndex(k).Interface()})
		}
		sort.Slice(answer, func(i, j int) bool { return answer[i].name < answer[j].name })
		return answer
	case reflect.Slice, reflect.Array:
		answer := make([]member, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			answer = append(answer, member{name: strconv.Itoa(i), value: rv.Index(i).Interface()})
		}
		return answer
	case reflect.Struct:
		rt := rv.Type()
		var answer []member
		for i := 0; i < rt.NumField(); i++ {
			field := rt.Field(i)
			if !recordField(field) {
				continue
			}
			answer = append(answer, member{name: field.Name, value: rv.Field(i).Interface()})
		}
		return answer
	}
	return nil
}

// recordField 结构体中可以展示的字段，不包括未导出的字段和函数
func recordField(field reflect.StructField) bool {
	if !field.IsExported() {
		return false
	}
	switch field.Type.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return false
	}
	return true
}

// childrenCount 可以展开的子元素数量，原子值为0
func childrenCount(value interface{}) int {
	if scope, ok := value.(*vm.Scope); ok {
		return scope.Len()
	}
	rv := indirect(reflect.ValueOf(value))
	if !rv.IsValid() {
		return 0
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len()
	case reflect.Struct:
		count := 0
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			if recordField(rt.Field(i)) {
				count++
			}
		}
		return count
	}
	return 0
}

func indirect(rv reflect.Value) reflect.Value {
	for rv.IsValid() && (rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return reflect.Value{}
		}
		rv = rv.Elem()
	}
	return rv
}

// typeLabel 简短的类型名称，不带包名
func typeLabel(value interface{}) string {
	if value == nil {
		return "nil"
	}
	if _, ok := value.(*vm.Scope); ok {
		return "scope"
	}
	return shortTypeName(reflect.TypeOf(value))
}

func shortTypeName(rt reflect.Type) string {
	if rt.Name() != "" {
		return rt.Name()
	}
	switch rt.Kind() {
	case reflect.Ptr:
		return "*" + shortTypeName(rt.Elem())
	case reflect.Slice:
		return "[]" + shortTypeName(rt.Elem())
	case reflect.Array:
		return fmt.Sprintf("[%d]%s", rt.Len(), shortTypeName(rt.Elem()))
	case reflect.Map:
		return fmt.Sprintf("map[%s]%s", shortTypeName(rt.Key()), shortTypeName(rt.Elem()))
	}
	return rt.String()
}

const (
	// maxReprDepth 嵌套超过这个深度的值用...代替
	maxReprDepth = 8
	// maxReprBuffer 生成的表示超过这个长度后不再展开
	maxReprBuffer = 64 * 1024
)

// repr 值的可打印表示，格式与%+v一致，自引用的值用占位符代替
func repr(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(v)
	}
	p := &printer{visiting: map[reference]bool{}}
	p.print(reflect.ValueOf(value), 0)
	return p.String()
}

type printer struct {
	strings.Builder
	// visiting 当前路径上的引用值
	visiting map[reference]bool
}

func (p *printer) print(rv reflect.Value, depth int) {
	if !rv.IsValid() {
		p.WriteString("<nil>")
		return
	}
	if p.Len() > maxReprBuffer {
		p.WriteString("...")
		return
	}
	if s, ok := p.special(rv); ok {
		p.WriteString(s)
		return
	}
	switch rv.Kind() {
	case reflect.Interface:
		p.print(rv.Elem(), depth)
	case reflect.Ptr:
		if rv.IsNil() {
			p.WriteString("<nil>")
			return
		}
		p.WriteByte('&')
		if !p.enter(rv, depth, "{...}") {
			return
		}
		p.print(rv.Elem(), depth+1)
		p.leave(rv)
	case reflect.Map:
		if !p.enter(rv, depth, "map[...]") {
			return
		}
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
		p.WriteString("map[")
		for i, k := range keys {
			if i > 0 {
				p.WriteByte(' ')
			}
			p.print(k, depth+1)
			p.WriteByte(':')
			p.print(rv.MapIndex(k), depth+1)
		}
		p.WriteByte(']')
		p.leave(rv)
	case reflect.Slice:
		if !p.enter(rv, depth, "[...]") {
			return
		}
		p.sequence(rv, depth)
		p.leave(rv)
	case reflect.Array:
		if depth >= maxReprDepth {
			p.WriteString("[...]")
			return
		}
		p.sequence(rv, depth)
	case reflect.Struct:
		if depth >= maxReprDepth {
			p.WriteString("{...}")
			return
		}
		rt := rv.Type()
		p.WriteByte('{')
		for i := 0; i < rv.NumField(); i++ {
			if i > 0 {
				p.WriteByte(' ')
			}
			p.WriteString(rt.Field(i).Name)
			p.WriteByte(':')
			p.print(rv.Field(i), depth+1)
		}
		p.WriteByte('}')
	case reflect.String:
		p.WriteString(rv.String())
	case reflect.Bool:
		p.WriteString(strconv.FormatBool(rv.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		p.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		p.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32:
		p.WriteString(strconv.FormatFloat(rv.Float(), 'g', -1, 32))
	case reflect.Float64:
		p.WriteString(strconv.FormatFloat(rv.Float(), 'g', -1, 64))
	case reflect.Complex64, reflect.Complex128:
		p.WriteString(strconv.FormatComplex(rv.Complex(), 'g', -1, rv.Type().Bits()))
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		if rv.IsNil() {
			p.WriteString("<nil>")
			return
		}
		p.WriteString(shortTypeName(rv.Type()))
	default:
		p.WriteString(rv.Type().String())
	}
}

// special 作用域、error和Stringer使用自己的表示
func (p *printer) special(rv reflect.Value) (string, bool) {
	if !rv.CanInterface() {
		return "", false
	}
	if (rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface) && rv.IsNil() {
		return "", false
	}
	switch v := rv.Interface().(type) {
	case *vm.Scope:
		return fmt.Sprintf("scope(%d)", v.Len()), true
	case error:
		return callString(v.Error)
	case fmt.Stringer:
		return callString(v.String)
	}
	return "", false
}

// callString 调用被调试程序的方法，panic时返回panic的值
func callString(fn func() string) (s string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s, ok = fmt.Sprintf("<panic: %v>", r), true
		}
	}()
	return fn(), true
}

// keyLess 数字按大小排序，其他的按打印结果排序
func keyLess(a, b reflect.Value) bool {
	if a.Kind() == b.Kind() {
		switch a.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return a.Int() < b.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			return a.Uint() < b.Uint()
		case reflect.Float32, reflect.Float64:
			return a.Float() < b.Float()
		case reflect.String:
			return a.String() < b.String()
		}
	}
	return keyName(a) < keyName(b)
}

// keyName 映射键的名称，与嵌套打印的格式相同
func keyName(k reflect.Value) string {
	p := &printer{visiting: map[reference]bool{}}
	p.print(k, 0)
	return p.String()
}

func (p *printer) sequence(rv reflect.Value, depth int) {
	p.WriteByte('[')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			p.WriteByte(' ')
		}
		p.print(rv.Index(i), depth+1)
	}
	p.WriteByte(']')
}

// enter 标记正在打印的引用值，重复出现或者嵌套太深时写入占位符
func (p *printer) enter(rv reflect.Value, depth int, placeholder string) bool {
	if depth >= maxReprDepth || p.visiting[identity(rv)] {
		p.WriteString(placeholder)
		return false
	}
	p.visiting[identity(rv)] = true
	return true
}

func (p *printer) leave(rv reflect.Value) {
	delete(p.visiting, identity(rv))
}

// identity 引用值的标识：类型加数据地址，切片还要加长度
func identity(rv reflect.Value) reference {
	key := reference{typ: rv.Type(), ptr: rv.Pointer()}
	if rv.Kind() == reflect.Slice {
		key.len = rv.Len()
	}
	return key
}

type reference struct {
	typ reflect.Type
	ptr uintptr
	len int
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	// 不截断多字节字符
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
