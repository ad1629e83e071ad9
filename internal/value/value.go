// Package value models record payloads as a tagged union of null, scalar,
// sequence and mapping nodes.
//
// Mappings remember the order their keys arrived in so a payload read from
// disk and written back is byte-stable, and so fingerprints can choose to be
// order sensitive. Numbers are kept as their literal text; 1 and 1.0 are
// different scalars.
package value

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	Null Kind = iota
	Scalar
	Sequence
	Mapping
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Scalar:
		return "scalar"
	case Sequence:
		return "sequence"
	case Mapping:
		return "mapping"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is an immutable payload node. The zero Value is Null.
type Value struct {
	kind   Kind
	scalar any // string, bool or json.Number
	items  []Value
	keys   []string
	fields map[string]Value
}

// Field is one key/value pair of a mapping.
type Field struct {
	Key   string
	Value Value
}

func NewNull() Value { return Value{} }

func NewString(s string) Value { return Value{kind: Scalar, scalar: s} }

func NewBool(b bool) Value { return Value{kind: Scalar, scalar: b} }

// NewNumber stores a numeric literal. The literal must be valid JSON.
func NewNumber(literal string) Value { return Value{kind: Scalar, scalar: json.Number(literal)} }

func NewInt(n int64) Value { return NewNumber(strconv.FormatInt(n, 10)) }

func NewSequence(items ...Value) Value {
	return Value{kind: Sequence, items: append([]Value(nil), items...)}
}

// NewMapping builds a mapping in the given key order. A repeated key keeps its
// first position and its last value.
func NewMapping(fields ...Field) Value {
	v := Value{kind: Mapping, fields: make(map[string]Value, len(fields))}
	for _, f := range fields {
		v = v.with(f.Key, f.Value)
	}
	return v
}

func (v Value) with(key string, child Value) Value {
	if v.fields == nil {
		v.fields = make(map[string]Value)
	}
	if _, ok := v.fields[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.fields[key] = child
	return v
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == Null }

// Len is the number of items in a sequence or keys in a mapping.
func (v Value) Len() int {
	switch v.kind {
	case Sequence:
		return len(v.items)
	case Mapping:
		return len(v.keys)
	default:
		return 0
	}
}

// Keys returns mapping keys in stored order.
func (v Value) Keys() []string {
	return append([]string(nil), v.keys...)
}

// Get returns the value stored under key in a mapping.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Mapping {
		return Value{}, false
	}
	child, ok := v.fields[key]
	return child, ok
}

// Items returns the elements of a sequence.
func (v Value) Items() []Value {
	return append([]Value(nil), v.items...)
}

// Fields returns mapping entries in stored order.
func (v Value) Fields() []Field {
	out := make([]Field, 0, len(v.keys))
	for _, k := range v.keys {
		out = append(out, Field{Key: k, Value: v.fields[k]})
	}
	return out
}

// Str returns the string held by a string scalar.
func (v Value) Str() (string, bool) {
	s, ok := v.scalar.(string)
	return s, ok && v.kind == Scalar
}

// Bool returns the boolean held by a boolean scalar.
func (v Value) Bool() (bool, bool) {
	b, ok := v.scalar.(bool)
	return b, ok && v.kind == Scalar
}

// Int returns the integer held by a numeric scalar.
func (v Value) Int() (int64, bool) {
	n, ok := v.scalar.(json.Number)
	if !ok || v.kind != Scalar {
		return 0, false
	}
	i, err := n.Int64()
	return i, err == nil
}

// String renders the value as compact JSON in stored key order.
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid value: %v>", err)
	}
	return string(b)
}

// Canonical renders the value as compact JSON with mapping keys sorted. Two
// values that differ only in key order share a canonical form.
func (v Value) Canonical() string {
	buf := make([]byte, 0, 64)
	buf = v.appendJSON(buf, true)
	return string(buf)
}

// FromAny converts decoded Go data (as produced by encoding/json or a YAML
// decoder) into a Value. Go maps carry no order, so their keys are sorted.
func FromAny(data any) (Value, error) {
	switch t := data.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case string:
		return NewString(t), nil
	case bool:
		return NewBool(t), nil
	case json.Number:
		return NewNumber(t.String()), nil
	case int:
		return NewInt(int64(t)), nil
	case int64:
		return NewInt(t), nil
	case uint64:
		return NewNumber(strconv.FormatUint(t, 10)), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return Value{}, fmt.Errorf("unsupported number %v", t)
		}
		return NewNumber(strconv.FormatFloat(t, 'f', -1, 64)), nil
	case []any:
		items := make([]Value, 0, len(t))
		for i, item := range t {
			child, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items = append(items, child)
		}
		return NewSequence(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := Value{kind: Mapping, fields: make(map[string]Value, len(keys))}
		for _, k := range keys {
			child, err := FromAny(t[k])
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			out = out.with(k, child)
		}
		return out, nil
	default:
		return Value{}, fmt.Errorf("unsupported type %T", data)
	}
}
