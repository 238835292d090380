// Package types defines the core data structures shared across mgindb:
// the tagged value variant that backs every document and index bucket,
// plus the small set of plain structs (sessions,
// scheduled tasks, config entries) that do not deserve their own package.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind tags which alternative of Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindStr
	KindList
	KindObject
)

// Value is the single tagged union used for every leaf and interior node
// in the document tree and every index bucket key. Using one variant
// everywhere (rather than Go's bare interface{}/any at each call site,
// as the original Python source does by conflating str/int/dict freely)
// means there is exactly one canonical serializer, so equal Values
// encode to the same bytes no matter which subsystem produced them.
// Blockchain transaction ids and block hashes are not computed from
// Values: pkg/blockchain hashes its own structs via encoding/json.
type Value struct {
	Kind Kind
	B    bool
	I    int64
	F    float64
	S    string
	L    []Value
	O    *Object
}

// Object is an ordered string->Value map. Go maps do not preserve
// insertion order; spec.md §3.1 notes key order is irrelevant to
// semantics, but an ordered representation keeps JSON snapshots
// byte-stable across runs.
type Object struct {
	keys   []string
	values map[string]Value
}

func NewObject() *Object {
	return &Object{values: make(map[string]Value)}
}

func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	v, ok := o.values[key]
	return v, ok
}

func (o *Object) Set(key string, v Value) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

func (o *Object) Delete(key string) {
	if _, exists := o.values[key]; !exists {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	clone := NewObject()
	for _, k := range o.keys {
		clone.Set(k, o.values[k].Clone())
	}
	return clone
}

func Null() Value           { return Value{Kind: KindNull} }
func Bool(b bool) Value     { return Value{Kind: KindBool, B: b} }
func Int(i int64) Value     { return Value{Kind: KindInt, I: i} }
func Float(f float64) Value { return Value{Kind: KindFloat, F: f} }
func Str(s string) Value    { return Value{Kind: KindStr, S: s} }
func List(items ...Value) Value {
	return Value{Kind: KindList, L: items}
}
func ObjectValue(o *Object) Value { return Value{Kind: KindObject, O: o} }

func (v Value) IsNull() bool   { return v.Kind == KindNull }
func (v Value) IsObject() bool { return v.Kind == KindObject }
func (v Value) IsList() bool   { return v.Kind == KindList }
func (v Value) IsNumeric() bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

func (v Value) Clone() Value {
	switch v.Kind {
	case KindList:
		items := make([]Value, len(v.L))
		for i, item := range v.L {
			items[i] = item.Clone()
		}
		return Value{Kind: KindList, L: items}
	case KindObject:
		return Value{Kind: KindObject, O: v.O.Clone()}
	default:
		return v
	}
}

// Float64 coerces a numeric Value (or a numeric-looking string) to
// float64. Used by ORDERBY, BETWEEN and comparison operators, which per
// spec.md §4.7/§9 coerce to float and fail closed (return false/last)
// rather than erroring.
func (v Value) Float64() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.I), true
	case KindFloat:
		return v.F, true
	case KindStr:
		f, err := strconv.ParseFloat(v.S, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case KindBool:
		if v.B {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// String renders a Value the way the query engine and index engine
// stringify field values for bucket keys (spec.md §3.3/§4.6).
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		if v.B {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.I, 10)
	case KindFloat:
		if v.F == math.Trunc(v.F) && !math.IsInf(v.F, 0) {
			return strconv.FormatFloat(v.F, 'f', 1, 64)
		}
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case KindStr:
		return v.S
	case KindList:
		parts := make([]string, len(v.L))
		for i, item := range v.L {
			parts[i] = item.String()
		}
		return fmt.Sprintf("%v", parts)
	case KindObject:
		return string(v.Canonical())
	}
	return ""
}

// Canonical produces a deterministic JSON encoding of a Value: object
// keys sorted, no whitespace. It backs String for objects, value
// equality in pkg/command and the SET lines pkg/sharding sends when
// redistributing data. On-disk snapshots use MarshalJSON (insertion
// order) instead, and pkg/blockchain does not use it for txids or
// checksums.
func (v Value) Canonical() []byte {
	var buf bytes.Buffer
	v.writeCanonical(&buf)
	return buf.Bytes()
}

func (v Value) writeCanonical(buf *bytes.Buffer) {
	switch v.Kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.B {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.I, 10))
	case KindFloat:
		buf.WriteString(strconv.FormatFloat(v.F, 'g', -1, 64))
	case KindStr:
		b, _ := json.Marshal(v.S)
		buf.Write(b)
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.L {
			if i > 0 {
				buf.WriteByte(',')
			}
			item.writeCanonical(buf)
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		keys := v.O.Keys()
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			val, _ := v.O.Get(k)
			val.writeCanonical(buf)
		}
		buf.WriteByte('}')
	default:
		buf.WriteString("null")
	}
}

// MarshalJSON implements json.Marshaler using insertion order rather
// than the canonical sorted order, so snapshots read naturally.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.B)
	case KindInt:
		return json.Marshal(v.I)
	case KindFloat:
		return json.Marshal(v.F)
	case KindStr:
		return json.Marshal(v.S)
	case KindList:
		buf := bytes.NewBufferString("[")
		for i, item := range v.L {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindObject:
		buf := bytes.NewBufferString("{")
		for i, k := range v.O.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			val, _ := v.O.Get(k)
			vb, err := val.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	}
	return []byte("null"), nil
}

// UnmarshalJSON implements json.Unmarshaler, decoding numbers as Int when
// they have no fractional part and fit in int64, Float otherwise.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// FromAny converts a decoded interface{} tree (as produced by
// encoding/json with UseNumber) into a Value tree.
func FromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i)
		}
		f, _ := t.Float64()
		return Float(f)
	case float64:
		if t == math.Trunc(t) {
			return Int(int64(t))
		}
		return Float(t)
	case string:
		return Str(t)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}
		return List(items...)
	case map[string]any:
		obj := NewObject()
		for k, val := range t {
			obj.Set(k, FromAny(val))
		}
		return ObjectValue(obj)
	default:
		return Null()
	}
}
