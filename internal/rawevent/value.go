// ABOUTME: Tagged-union value type for nested, schema-less radio events
// ABOUTME: Ordered maps and lists are pointer nodes so graphs may be cyclic

package rawevent

import (
	"fmt"
	"math"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindMap
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is one node of a raw event graph. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	raw  []byte
	m    *Map
	l    *List
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps an integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a floating point number.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bytes wraps a byte buffer. A nil buffer yields null.
func Bytes(b []byte) Value {
	if b == nil {
		return Value{}
	}
	return Value{kind: KindBytes, raw: b}
}

// MapValue wraps a map node. A nil map yields null.
func MapValue(m *Map) Value {
	if m == nil {
		return Value{}
	}
	return Value{kind: KindMap, m: m}
}

// ListValue wraps a list node. A nil list yields null.
func ListValue(l *List) Value {
	if l == nil {
		return Value{}
	}
	return Value{kind: KindList, l: l}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsInt returns v as an integer. Floats with no fractional part convert.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		if math.IsInf(v.f, 0) || math.IsNaN(v.f) || v.f != math.Trunc(v.f) {
			return 0, false
		}
		if v.f < math.MinInt64 || v.f > math.MaxInt64 {
			return 0, false
		}
		return int64(v.f), true
	}
	return 0, false
}

// AsFloat returns v as a float. Integers convert.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) {
	return v.s, v.kind == KindString
}

// AsBytes returns the byte buffer held by v.
func (v Value) AsBytes() ([]byte, bool) {
	return v.raw, v.kind == KindBytes
}

// AsMap returns the map node held by v.
func (v Value) AsMap() (*Map, bool) {
	return v.m, v.kind == KindMap
}

// AsList returns the list node held by v.
func (v Value) AsList() (*List, bool) {
	return v.l, v.kind == KindList
}

// Ref returns the identity of a map or list node, or nil for scalars.
// Two Values with the same Ref are the same node.
func (v Value) Ref() any {
	switch v.kind {
	case KindMap:
		return v.m
	case KindList:
		return v.l
	}
	return nil
}

// IsContainer reports whether v is a map or list node.
func (v Value) IsContainer() bool {
	return v.kind == KindMap || v.kind == KindList
}

// Get looks up key when v is a map. It returns null otherwise.
func (v Value) Get(key string) Value {
	if v.kind != KindMap {
		return Value{}
	}
	val, _ := v.m.Get(key)
	return val
}

// Path walks nested map keys from v. A missing segment yields null and false.
func (v Value) Path(keys ...string) (Value, bool) {
	cur := v
	for _, k := range keys {
		m, ok := cur.AsMap()
		if !ok {
			return Value{}, false
		}
		cur, ok = m.Get(k)
		if !ok {
			return Value{}, false
		}
	}
	return cur, true
}

// Children returns the direct child values of a map or list in order.
func (v Value) Children() []Value {
	switch v.kind {
	case KindMap:
		out := make([]Value, 0, v.m.Len())
		v.m.Range(func(_ string, child Value) bool {
			out = append(out, child)
			return true
		})
		return out
	case KindList:
		return v.l.Values()
	}
	return nil
}

// String renders scalars for diagnostics. Containers render as their kind.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprint(v.b)
	case KindInt:
		return fmt.Sprint(v.i)
	case KindFloat:
		return fmt.Sprint(v.f)
	case KindString:
		return v.s
	case KindBytes:
		return fmt.Sprintf("bytes[%d]", len(v.raw))
	case KindMap:
		return fmt.Sprintf("map[%d]", v.m.Len())
	case KindList:
		return fmt.Sprintf("list[%d]", v.l.Len())
	}
	return v.kind.String()
}

// Map is an insertion-ordered string-keyed node.
type Map struct {
	keys   []string
	values map[string]Value
}

// NewMap returns an empty map node.
func NewMap() *Map {
	return &Map{values: make(map[string]Value)}
}

// Set stores val under key. Existing keys keep their position.
func (m *Map) Set(key string, val Value) *Map {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = val
	return m
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Len returns the number of keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Range calls fn for each entry in insertion order until fn returns false.
func (m *Map) Range(fn func(key string, val Value) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// List is an ordered sequence node.
type List struct {
	items []Value
}

// NewList returns a list node holding items.
func NewList(items ...Value) *List {
	return &List{items: items}
}

// Append adds val to the end of the list.
func (l *List) Append(val Value) *List {
	l.items = append(l.items, val)
	return l
}

// Len returns the number of items.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.items)
}

// Index returns the item at i.
func (l *List) Index(i int) Value {
	if l == nil || i < 0 || i >= len(l.items) {
		return Value{}
	}
	return l.items[i]
}

// Values returns a copy of the items.
func (l *List) Values() []Value {
	if l == nil {
		return nil
	}
	out := make([]Value, len(l.items))
	copy(out, l.items)
	return out
}
