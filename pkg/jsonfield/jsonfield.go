// Package jsonfield 将任意 JSON 兼容值存放在 text 列中.
//
// map/slice/struct 写入时序列化为规范 JSON (键排序, 两空格缩进, 不转义 HTML),
// 读取时解析; 无法解析的文本按原样返回, 不会报错.
package jsonfield

import (
	"bytes"
	"encoding/json"
	"io"
	"reflect"
	"time"
)

// Prepared 写入数据库前的值. Null 为 true 时表示该列为空 (SQL NULL)
type Prepared struct {
	Value any
	Null  bool
}

// Parsed 从数据库读出的值. Fallback 为 true 表示文本不是合法 JSON, Value 为原始文本
type Parsed struct {
	Value    any
	Fallback bool
}

// Absent 空串和 NULL 都视为缺失
func (p Parsed) Absent() bool { return p.Value == nil }

var timeType = reflect.TypeOf(time.Time{})

// Encode 把 v 转成可以写入 text 列的值.
// 空串和 nil 变为缺失; 容器类值序列化为规范 JSON 文本; 其余值原样返回.
func Encode(v any) (Prepared, error) {
	if v == nil {
		return Prepared{Null: true}, nil
	}
	if s, ok := v.(string); ok && s == "" {
		return Prepared{Null: true}, nil
	}
	if !isContainer(v) {
		return Prepared{Value: v}, nil
	}
	text, err := Canonical(v)
	if err != nil {
		return Prepared{}, err
	}
	return Prepared{Value: text}, nil
}

// Decode 把 text 列中的值还原.
// 字符串和 []byte 按 JSON 解析, 数字保留为 json.Number.
// 解析失败或带有多余内容时返回原始文本并标记 Fallback.
func Decode(raw any) Parsed {
	var text []byte
	switch v := raw.(type) {
	case nil:
		return Parsed{}
	case string:
		text = []byte(v)
	case []byte:
		text = v
	default:
		return Parsed{Value: raw}
	}
	if len(text) == 0 {
		return Parsed{}
	}
	var out any
	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return Parsed{Value: string(text), Fallback: true}
	}
	if _, err := dec.Token(); err != io.EOF {
		return Parsed{Value: string(text), Fallback: true}
	}
	return Parsed{Value: out}
}

// Canonical 规范 JSON: 键排序, 两空格缩进, 不转义 HTML, 无结尾换行
func Canonical(v any) (string, error) {
	first, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	// 重新解码成通用结构, 使结构体字段也按键排序
	var generic any
	dec := json.NewDecoder(bytes.NewReader(first))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(generic); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func isContainer(v any) bool {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Array:
		return true
	case reflect.Slice:
		return rv.Type().Elem().Kind() != reflect.Uint8
	case reflect.Struct:
		return rv.Type() != timeType
	}
	return false
}
