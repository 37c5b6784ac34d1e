// ABOUTME: Tests for the raw event value model and its constructors
// ABOUTME: Covers JSON key order, byte buffers, paths, and cyclic string scans

package rawevent

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromJSON_PreservesKeyOrder(t *testing.T) {
	v, err := FromJSON([]byte(`{"zeta":1,"alpha":{"b":2,"a":3},"mid":"x"}`))
	require.NoError(t, err)

	m, ok := v.AsMap()
	require.True(t, ok)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, m.Keys())

	inner, ok := v.Get("alpha").AsMap()
	require.True(t, ok)
	assert.Equal(t, []string{"b", "a"}, inner.Keys())
}

func TestFromJSON_BytesObject(t *testing.T) {
	v, err := FromJSON([]byte(`{"payload":{"@bytes":"aGVsbG8="}}`))
	require.NoError(t, err)

	raw, ok := v.Get("payload").AsBytes()
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), raw)
}

func TestFromJSON_BadBase64(t *testing.T) {
	_, err := FromJSON([]byte(`{"payload":{"@bytes":"!!"}}`))
	assert.Error(t, err)
}

func TestFromJSON_Numbers(t *testing.T) {
	v, err := FromJSON([]byte(`{"i":16,"f":-4.5}`))
	require.NoError(t, err)

	i, ok := v.Get("i").AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(16), i)
	assert.Equal(t, KindInt, v.Get("i").Kind())

	f, ok := v.Get("f").AsFloat()
	require.True(t, ok)
	assert.Equal(t, -4.5, f)
	_, ok = v.Get("f").AsInt()
	assert.False(t, ok)
}

func TestFromJSON_TrailingData(t *testing.T) {
	_, err := FromJSON([]byte(`{} {}`))
	assert.Error(t, err)
}

func TestFromAny_SortsMapKeys(t *testing.T) {
	v := MustFromAny(map[string]any{"b": 1, "a": []any{"x", []byte{1}}})
	m, _ := v.AsMap()
	assert.Equal(t, []string{"a", "b"}, m.Keys())

	l, ok := v.Get("a").AsList()
	require.True(t, ok)
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, KindBytes, l.Index(1).Kind())
}

func TestFromAny_Unsupported(t *testing.T) {
	_, err := FromAny(struct{}{})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestPath(t *testing.T) {
	v := MustFromAny(map[string]any{
		"packet": map[string]any{"decoded": map[string]any{"text": "hi"}},
	})

	got, ok := v.Path("packet", "decoded", "text")
	require.True(t, ok)
	s, _ := got.AsString()
	assert.Equal(t, "hi", s)

	_, ok = v.Path("packet", "missing", "text")
	assert.False(t, ok)

	_, ok = v.Path("packet", "decoded", "text", "deeper")
	assert.False(t, ok)
}

func TestCollectStrings_Cycle(t *testing.T) {
	root := NewMap()
	child := NewMap()
	root.Set("name", String("node-a"))
	root.Set("child", MapValue(child))
	child.Set("back", MapValue(root))
	child.Set("note", String("  "))
	child.Set("label", String("inner"))

	got := CollectStrings(MapValue(root), 16)
	assert.Equal(t, []string{"name: node-a", "label: inner"}, got)
}

func TestCollectStrings_Limit(t *testing.T) {
	m := NewMap()
	for _, k := range []string{"a", "b", "c", "d"} {
		m.Set(k, String(k+"-value"))
	}
	assert.Len(t, CollectStrings(MapValue(m), 2), 2)
}

func TestCollectStrings_CutsOnRuneBoundary(t *testing.T) {
	// 199 ASCII bytes then a 3-byte rune straddling the 200 byte cut.
	long := strings.Repeat("a", 199) + "€tail"
	m := NewMap().Set("note", String(long))

	got := CollectStrings(MapValue(m), 1)
	require.Len(t, got, 1)
	assert.True(t, utf8.ValidString(got[0]))
	assert.Equal(t, "note: "+strings.Repeat("a", 199), got[0])
}

func TestAsInt_FromIntegralFloat(t *testing.T) {
	n, ok := Float(32).AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(32), n)
}

func TestNilConstructorsAreNull(t *testing.T) {
	assert.True(t, Bytes(nil).IsNull())
	assert.True(t, MapValue(nil).IsNull())
	assert.True(t, ListValue(nil).IsNull())
}

func TestMarshalJSON_KeepsOrderAndBytes(t *testing.T) {
	src := `{"z":1,"a":{"payload":{"@bytes":"AQID"},"ok":true},"list":[1.5,"s",null]}`
	v, err := FromJSON([]byte(src))
	require.NoError(t, err)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, src, string(out))
	assert.True(t, strings.HasPrefix(string(out), `{"z":1,"a":`))

	back, err := FromJSON(out)
	require.NoError(t, err)
	b, ok := back.Get("a").Get("payload").AsBytes()
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, b)
}

func TestMarshalJSON_Cycle(t *testing.T) {
	m := NewMap()
	m.Set("self", MapValue(m))
	_, err := json.Marshal(MapValue(m))
	assert.ErrorIs(t, err, ErrCycle)
}

func TestMarshalJSON_SharedNodeIsNotACycle(t *testing.T) {
	shared := MapValue(NewMap().Set("x", Int(1)))
	root := NewMap().Set("a", shared).Set("b", shared)
	out, err := json.Marshal(MapValue(root))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":{"x":1},"b":{"x":1}}`, string(out))
}
