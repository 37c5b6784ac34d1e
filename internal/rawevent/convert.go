// ABOUTME: Builds raw event graphs from Go values and order-preserving JSON
// ABOUTME: Also provides the breadth-first string scan used for diagnostics

package rawevent

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"
)

// BytesKey marks a JSON object that stands for a byte buffer:
// {"@bytes": "<base64>"}.
const BytesKey = "@bytes"

// ErrUnsupportedType is returned by FromAny for values it cannot represent.
var ErrUnsupportedType = errors.New("unsupported value type")

// FromAny converts a plain Go value into a Value. Go maps have no order, so
// map keys are sorted.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case *Map:
		return MapValue(t), nil
	case *List:
		return ListValue(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Int(int64(t)), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		return Int(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case json.Number:
		return numberValue(t), nil
	case string:
		return String(t), nil
	case []byte:
		return Bytes(t), nil
	case []any:
		l := NewList()
		for i, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Null(), fmt.Errorf("index %d: %w", i, err)
			}
			l.Append(v)
		}
		return ListValue(l), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			v, err := FromAny(t[k])
			if err != nil {
				return Null(), fmt.Errorf("key %q: %w", k, err)
			}
			m.Set(k, v)
		}
		return MapValue(m), nil
	}
	return Null(), fmt.Errorf("%w: %T", ErrUnsupportedType, x)
}

// MustFromAny is FromAny for literals known to be valid.
func MustFromAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}

// FromJSON parses a JSON document into a Value, keeping object key order.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSON(dec)
	if err != nil {
		return Null(), fmt.Errorf("parsing event json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Null(), fmt.Errorf("parsing event json: trailing data")
	}
	return v, nil
}

func decodeJSON(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Null(), err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeJSONObject(dec)
		case '[':
			l := NewList()
			for dec.More() {
				v, err := decodeJSON(dec)
				if err != nil {
					return Null(), err
				}
				l.Append(v)
			}
			if _, err := dec.Token(); err != nil {
				return Null(), err
			}
			return ListValue(l), nil
		}
		return Null(), fmt.Errorf("unexpected delimiter %q", t)
	case bool:
		return Bool(t), nil
	case json.Number:
		return numberValue(t), nil
	case string:
		return String(t), nil
	case nil:
		return Null(), nil
	}
	return Null(), fmt.Errorf("unexpected token %v", tok)
}

func decodeJSONObject(dec *json.Decoder) (Value, error) {
	m := NewMap()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Null(), err
		}
		key, ok := tok.(string)
		if !ok {
			return Null(), fmt.Errorf("object key %v is not a string", tok)
		}
		v, err := decodeJSON(dec)
		if err != nil {
			return Null(), err
		}
		m.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return Null(), err
	}

	if m.Len() == 1 {
		if enc, ok := m.values[BytesKey]; ok {
			s, isStr := enc.AsString()
			if !isStr {
				return Null(), fmt.Errorf("%s must be a base64 string", BytesKey)
			}
			raw, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return Null(), fmt.Errorf("decoding %s: %w", BytesKey, err)
			}
			return Value{kind: KindBytes, raw: raw}, nil
		}
	}
	return MapValue(m), nil
}

func numberValue(n json.Number) Value {
	if i, err := n.Int64(); err == nil {
		return Int(i)
	}
	f, err := n.Float64()
	if err != nil {
		return String(n.String())
	}
	return Float(f)
}

// ErrCycle is returned when encoding a graph that refers back to itself.
var ErrCycle = errors.New("value graph contains a cycle")

// MarshalJSON encodes v in the form FromJSON reads: byte buffers become
// {"@bytes":"<base64>"} and map key order is kept.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeJSON(&buf, v, make(map[any]struct{})); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeJSON(buf *bytes.Buffer, v Value, path map[any]struct{}) error {
	if v.IsContainer() {
		if _, ok := path[v.Ref()]; ok {
			return ErrCycle
		}
		path[v.Ref()] = struct{}{}
		defer delete(path, v.Ref())
	}

	switch v.kind {
	case KindMap:
		buf.WriteByte('{')
		for i, k := range v.m.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(k)
			buf.Write(key)
			buf.WriteByte(':')
			if err := encodeJSON(buf, v.m.values[k], path); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.l.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeJSON(buf, item, path); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case KindBytes:
		buf.WriteString(`{"` + BytesKey + `":"`)
		buf.WriteString(base64.StdEncoding.EncodeToString(v.raw))
		buf.WriteString(`"}`)
		return nil
	}

	var scalar any
	switch v.kind {
	case KindBool:
		scalar = v.b
	case KindInt:
		scalar = v.i
	case KindFloat:
		scalar = v.f
	case KindString:
		scalar = v.s
	}
	b, err := json.Marshal(scalar)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

const maxStringBytes = 200

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// CollectStrings scans v breadth first and returns up to max non-blank
// string fields as "key: value". Values are cut at 200 bytes, on a rune
// boundary.
func CollectStrings(v Value, max int) []string {
	var out []string
	seen := make(map[any]struct{})
	queue := []Value{v}

	for len(queue) > 0 && len(out) < max {
		cur := queue[0]
		queue = queue[1:]
		if !cur.IsContainer() {
			continue
		}
		if _, ok := seen[cur.Ref()]; ok {
			continue
		}
		seen[cur.Ref()] = struct{}{}

		visit := func(key string, child Value) bool {
			if s, ok := child.AsString(); ok {
				if strings.TrimSpace(s) != "" {
					s = truncate(s, maxStringBytes)
					out = append(out, key+": "+s)
				}
			} else if child.IsContainer() {
				queue = append(queue, child)
			}
			return len(out) < max
		}

		if m, ok := cur.AsMap(); ok {
			m.Range(visit)
			continue
		}
		l, _ := cur.AsList()
		for i, child := range l.items {
			if !visit(fmt.Sprint(i), child) {
				break
			}
		}
	}
	return out
}
