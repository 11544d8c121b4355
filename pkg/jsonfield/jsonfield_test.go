package jsonfield

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeCanonical(t *testing.T) {
	p, err := Encode(map[string]any{"type": 3, "title": "<b>test</b>"})
	require.NoError(t, err)
	require.False(t, p.Null)
	require.Equal(t, "{\n  \"title\": \"<b>test</b>\",\n  \"type\": 3\n}", p.Value)
}

func TestEncodeStructSortsKeys(t *testing.T) {
	type page struct {
		Zeta  int    `json:"zeta"`
		Alpha string `json:"alpha"`
	}
	p, err := Encode(&page{Zeta: 1, Alpha: "a"})
	require.NoError(t, err)
	require.Equal(t, "{\n  \"alpha\": \"a\",\n  \"zeta\": 1\n}", p.Value)
}

func TestEncodeAbsentAndPassthrough(t *testing.T) {
	for _, v := range []any{nil, ""} {
		p, err := Encode(v)
		require.NoError(t, err)
		require.True(t, p.Null)
	}

	now := time.Now()
	for _, v := range []any{42, "plain", []byte("raw"), now, true} {
		p, err := Encode(v)
		require.NoError(t, err)
		require.False(t, p.Null)
		require.Equal(t, v, p.Value)
	}
}

func TestRoundTrip(t *testing.T) {
	in := map[string]any{
		"title": "test",
		"tags":  []any{"a", "b"},
		"meta":  map[string]any{"n": 1.5, "ok": true},
		"id":    int64(9007199254740993),
	}
	p, err := Encode(in)
	require.NoError(t, err)
	out := Decode(p.Value)
	require.False(t, out.Fallback)
	again, err := Canonical(out.Value)
	require.NoError(t, err)
	require.Equal(t, p.Value, again)

	meta := out.Value.(map[string]any)["meta"].(map[string]any)
	require.Equal(t, json.Number("1.5"), meta["n"])
	require.Equal(t, json.Number("9007199254740993"), out.Value.(map[string]any)["id"])

	list := []any{"x", 2}
	p, err = Encode(list)
	require.NoError(t, err)
	require.Equal(t, []any{"x", json.Number("2")}, Decode([]byte(p.Value.(string))).Value)
}

func TestDecodeMixedNumbers(t *testing.T) {
	doc := `{"a":1,"b":2.5,"big":9007199254740993,"neg":-3e2}`
	p := Decode(doc)
	require.False(t, p.Fallback)
	require.Equal(t, map[string]any{
		"a":   json.Number("1"),
		"b":   json.Number("2.5"),
		"big": json.Number("9007199254740993"),
		"neg": json.Number("-3e2"),
	}, p.Value)

	big, err := p.Value.(map[string]any)["big"].(json.Number).Int64()
	require.NoError(t, err)
	require.Equal(t, int64(9007199254740993), big)
}

func TestDecodeAbsent(t *testing.T) {
	require.True(t, Decode("").Absent())
	require.True(t, Decode(nil).Absent())
	require.True(t, Decode([]byte{}).Absent())
}

func TestDecodeFallback(t *testing.T) {
	p := Decode("not json {")
	require.True(t, p.Fallback)
	require.Equal(t, "not json {", p.Value)

	for _, text := range []string{`{"a":1} x`, `[1][2]`, `{"a":1}{}`} {
		p = Decode(text)
		require.True(t, p.Fallback, text)
		require.Equal(t, text, p.Value)
	}
	require.False(t, Decode("{\"a\":1}\n").Fallback)

	p = Decode(int64(7))
	require.False(t, p.Fallback)
	require.Equal(t, int64(7), p.Value)
}

func TestFieldValueAndScan(t *testing.T) {
	v, err := Of(map[string]any{"b": 1, "a": 2}).Value()
	require.NoError(t, err)
	require.Equal(t, "{\n  \"a\": 2,\n  \"b\": 1\n}", v)

	v, err = Of("").Value()
	require.NoError(t, err)
	require.Nil(t, v)

	v, err = Of(7).Value()
	require.NoError(t, err)
	require.Equal(t, int64(7), v)

	var f Field
	require.NoError(t, f.Scan([]byte(`["a"]`)))
	require.Equal(t, []any{"a"}, f.V)

	require.NoError(t, f.Scan("{broken"))
	require.Equal(t, "{broken", f.V)

	require.NoError(t, f.Scan(nil))
	require.True(t, f.IsNull())
}

func TestFieldJSON(t *testing.T) {
	var f Field
	require.NoError(t, f.UnmarshalJSON([]byte(`{"k":"v"}`)))
	out, err := f.MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, `{"k":"v"}`, string(out))
	require.Equal(t, "text", f.GormDataType())
}

func TestValueFromObject(t *testing.T) {
	text, err := Of("hello").ValueFromObject()
	require.NoError(t, err)
	require.Equal(t, `"hello"`, *text)

	text, err = Field{}.ValueFromObject()
	require.NoError(t, err)
	require.Nil(t, text)
}

func TestDefault(t *testing.T) {
	require.Equal(t, "", Default(nil))
	require.Equal(t, map[string]any{}, Default(func() any { return map[string]any{} }))
	require.Equal(t, 3, Default(3))
}
