package jsonfield

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Field 可直接用作 gorm 模型字段, 列类型为 text
type Field struct {
	V any
}

// Of 包装一个值
func Of(v any) Field { return Field{V: v} }

// Value implements driver.Valuer.
func (f Field) Value() (driver.Value, error) {
	p, err := Encode(f.V)
	if err != nil {
		return nil, err
	}
	if p.Null {
		return nil, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(p.Value)
}

// Scan implements sql.Scanner. 无法解析的文本以字符串形式保存, 不返回错误
func (f *Field) Scan(src any) error {
	p := Decode(src)
	f.V = p.Value
	return nil
}

func (f Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.V)
}

func (f *Field) UnmarshalJSON(data []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	f.V = v
	return nil
}

func (Field) GormDataType() string { return "text" }

// IsNull 值缺失
func (f Field) IsNull() bool {
	if f.V == nil {
		return true
	}
	s, ok := f.V.(string)
	return ok && s == ""
}

// ValueFromObject 展示用文本: 无论值的类型都输出规范 JSON, 缺失时返回 nil
func (f Field) ValueFromObject() (*string, error) {
	if f.V == nil {
		return nil, nil
	}
	text, err := Canonical(f.V)
	if err != nil {
		return nil, err
	}
	return &text, nil
}

func (f Field) String() string {
	if f.V == nil {
		return ""
	}
	if s, ok := f.V.(string); ok {
		return s
	}
	text, err := Canonical(f.V)
	if err != nil {
		return fmt.Sprint(f.V)
	}
	return text
}

// Default 字段默认值: 函数会被调用且结果不做字符串化, 未设置默认值时为空串
func Default(d any) any {
	switch fn := d.(type) {
	case nil:
		return ""
	case func() any:
		return fn()
	}
	return d
}
