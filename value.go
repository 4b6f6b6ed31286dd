package aro

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Kind tags the dynamic type carried by a Value. ARO is dynamically typed
// by design (spec Non-goals: no strict typing), so every binding flows
// through this tagged union rather than a Go interface type switch alone.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindMap
	KindSequence
	KindTime
	KindHandle
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
	case KindSequence:
		return "sequence"
	case KindTime:
		return "time"
	case KindHandle:
		return "handle"
	default:
		return "unknown"
	}
}

// OrderedMap is a string-keyed mapping that remembers insertion order, per
// spec §3 ("ordered mapping"). JSON object keys, repository entities, and
// Response bodies are all represented this way so re-serialization is
// deterministic.
type OrderedMap struct {
	keys   []string
	values map[string]Value
}

func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: make(map[string]Value)}
}

func (m *OrderedMap) Set(key string, v Value) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

func (m *OrderedMap) Get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *OrderedMap) Delete(key string) {
	if _, exists := m.values[key]; !exists {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

func (m *OrderedMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *OrderedMap) Len() int { return len(m.keys) }

// Clone returns a deep copy so Transform never mutates its source (spec §4.3).
func (m *OrderedMap) Clone() *OrderedMap {
	clone := NewOrderedMap()
	for _, k := range m.keys {
		clone.Set(k, m.values[k].Clone())
	}
	return clone
}

// Value is the tagged union every binding, argument and response body is
// made of (spec §3). Construction from parsed JSON must distinguish integer
// from double and genuine booleans from 0/1 integers — see FromJSON.
type Value struct {
	kind   Kind
	b      bool
	i      int64
	f      float64
	s      string
	bytes  []byte
	m      *OrderedMap
	seq    []Value
	t      time.Time
	handle any
}

func Null() Value                { return Value{kind: KindNull} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Int(i int64) Value          { return Value{kind: KindInt, i: i} }
func Float(f float64) Value      { return Value{kind: KindFloat, f: f} }
func String(s string) Value      { return Value{kind: KindString, s: s} }
func Bytes(b []byte) Value       { return Value{kind: KindBytes, bytes: b} }
func Map(m *OrderedMap) Value    { return Value{kind: KindMap, m: m} }
func Sequence(s []Value) Value   { return Value{kind: KindSequence, seq: s} }
func Time(t time.Time) Value     { return Value{kind: KindTime, t: t} }
func Handle(h any) Value         { return Value{kind: KindHandle, handle: h} }

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }
func (v Value) AsBool() bool    { return v.b }
func (v Value) AsInt() int64    { return v.i }
func (v Value) AsFloat() float64 { return v.f }
func (v Value) AsString() string { return v.s }
func (v Value) AsBytes() []byte  { return v.bytes }
func (v Value) AsMap() *OrderedMap { return v.m }
func (v Value) AsSequence() []Value { return v.seq }
func (v Value) AsTime() time.Time   { return v.t }
func (v Value) AsHandle() any       { return v.handle }

// Clone deep-copies maps and sequences; scalars are copied by value already.
func (v Value) Clone() Value {
	switch v.kind {
	case KindMap:
		return Map(v.m.Clone())
	case KindSequence:
		cloned := make([]Value, len(v.seq))
		for i, e := range v.seq {
			cloned[i] = e.Clone()
		}
		return Sequence(cloned)
	default:
		return v
	}
}

// Native converts a Value back into a plain Go value (map[string]any,
// []any, etc.), the representation the Expression Evaluator and JSON
// encoder both consume.
func (v Value) Native() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.bytes
	case KindTime:
		return v.t
	case KindHandle:
		return v.handle
	case KindMap:
		out := make(map[string]any, v.m.Len())
		for _, k := range v.m.Keys() {
			val, _ := v.m.Get(k)
			out[k] = val.Native()
		}
		return out
	case KindSequence:
		out := make([]any, len(v.seq))
		for i, e := range v.seq {
			out[i] = e.Native()
		}
		return out
	default:
		return nil
	}
}

// FromNative lifts a plain Go value (as produced by encoding/json into an
// any, or returned by a plugin task) into a Value. Go integers become Int,
// float64 stays Float, and a json.Number becomes Int when it parses as an
// integer and Float otherwise, so integer-vs-double is preserved rather
// than collapsed through a naive float64 type switch, per spec §3.
func FromNative(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float64:
		if t == float64(int64(t)) {
			// A whole-number float64 still stays a Float (callers decoding
			// JSON should use FromJSON, which never loses the distinction).
			return Float(t)
		}
		return Float(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i)
		}
		f, _ := t.Float64()
		return Float(f)
	case string:
		return String(t)
	case []byte:
		return Bytes(t)
	case time.Time:
		return Time(t)
	case map[string]any:
		om := NewOrderedMap()
		for k, val := range t {
			om.Set(k, FromNative(val))
		}
		return Map(om)
	case []any:
		seq := make([]Value, len(t))
		for i, e := range t {
			seq[i] = FromNative(e)
		}
		return Sequence(seq)
	default:
		return Handle(t)
	}
}

// FromJSON parses raw JSON bytes into a Value, preserving integer vs double
// distinction (spec §3, §8 round-trip laws) by decoding numbers through
// json.Number rather than collapsing everything to float64.
func FromJSON(raw []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return Value{}, fmt.Errorf("parse json: %w", err)
	}
	return FromNative(data), nil
}

// ToJSON serializes a Value back to canonical JSON, preserving map key
// insertion order by hand-walking the OrderedMap rather than delegating to
// encoding/json's alphabetical map key sort.
func ToJSON(v Value) ([]byte, error) {
	var buf []byte
	buf = append(buf, '{')
	return appendJSON(buf[:0], v)
}

func appendJSON(buf []byte, v Value) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(buf, "null"...), nil
	case KindBool:
		if v.b {
			return append(buf, "true"...), nil
		}
		return append(buf, "false"...), nil
	case KindInt:
		return append(buf, fmt.Sprintf("%d", v.i)...), nil
	case KindFloat:
		return append(buf, fmt.Sprintf("%v", v.f)...), nil
	case KindString:
		encoded, err := json.Marshal(v.s)
		if err != nil {
			return buf, err
		}
		return append(buf, encoded...), nil
	case KindBytes:
		encoded, err := json.Marshal(v.bytes)
		if err != nil {
			return buf, err
		}
		return append(buf, encoded...), nil
	case KindTime:
		encoded, err := json.Marshal(v.t)
		if err != nil {
			return buf, err
		}
		return append(buf, encoded...), nil
	case KindMap:
		buf = append(buf, '{')
		for i, k := range v.m.Keys() {
			if i > 0 {
				buf = append(buf, ',')
			}
			key, _ := json.Marshal(k)
			buf = append(buf, key...)
			buf = append(buf, ':')
			val, _ := v.m.Get(k)
			var err error
			buf, err = appendJSON(buf, val)
			if err != nil {
				return buf, err
			}
		}
		return append(buf, '}'), nil
	case KindSequence:
		buf = append(buf, '[')
		for i, e := range v.seq {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			buf, err = appendJSON(buf, e)
			if err != nil {
				return buf, err
			}
		}
		return append(buf, ']'), nil
	default:
		return append(buf, "null"...), nil
	}
}
