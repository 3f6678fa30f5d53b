package protocol

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Args 命令参数，保留原始json，按需读取
// 客户端的参数类型比较随意，例如数字可能以字符串的形式发送
type Args []byte

// MarshalJSON 原样输出
func (a Args) MarshalJSON() ([]byte, error) {
	if len(a) == 0 {
		return []byte("null"), nil
	}
	return a, nil
}

// UnmarshalJSON 保存原始json
func (a *Args) UnmarshalJSON(data []byte) error {
	*a = append((*a)[0:0], data...)
	return nil
}

// NewArgs 根据键值对创建参数，键可以是gjson路径
func NewArgs(kv map[string]interface{}) Args {
	a := Args("{}")
	for k, v := range kv {
		a = a.With(k, v)
	}
	return a
}

// With 设置一个参数，返回新的Args
func (a Args) With(path string, value interface{}) Args {
	src := []byte(a)
	if len(src) == 0 || !gjson.ValidBytes(src) {
		src = []byte("{}")
	}
	out, err := sjson.SetBytes(src, path, value)
	if err != nil {
		return a
	}
	return out
}

func (a Args) Get(path string) gjson.Result {
	return gjson.GetBytes(a, path)
}

// Has 参数存在并且不为null
func (a Args) Has(path string) bool {
	r := a.Get(path)
	return r.Exists() && r.Type != gjson.Null
}

// Int 读取整数参数，"3"和3都可以
func (a Args) Int(path string) (int, bool) {
	r := a.Get(path)
	switch r.Type {
	case gjson.Number:
		return int(r.Int()), true
	case gjson.String:
		n := gjson.Parse(r.Str)
		if n.Type == gjson.Number {
			return int(n.Int()), true
		}
	}
	return 0, false
}

// String 读取字符串参数，null返回空字符串
func (a Args) String(path string) string {
	r := a.Get(path)
	if r.Type == gjson.Null {
		return ""
	}
	return r.String()
}

// Bool 读取布尔参数，不存在时返回def
func (a Args) Bool(path string, def bool) bool {
	if !a.Has(path) {
		return def
	}
	return a.Get(path).Bool()
}
