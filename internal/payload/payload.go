// Package payload models nested enrichment data as a tagged variant so the
// recursive merge keeps its structure without falling back to untyped maps.
package payload

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindScalar
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is one of Null, Scalar (string, float64, bool), List, or Map.
// The zero Value is Null.
type Value struct {
	kind   Kind
	scalar any
	list   []Value
	fields map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Scalar wraps a string, bool, or number. Integers are widened to float64
// so values compare equal after a JSON round trip.
func Scalar(v any) Value {
	switch n := v.(type) {
	case nil:
		return Null()
	case int:
		return Value{kind: KindScalar, scalar: float64(n)}
	case int32:
		return Value{kind: KindScalar, scalar: float64(n)}
	case int64:
		return Value{kind: KindScalar, scalar: float64(n)}
	case float32:
		return Value{kind: KindScalar, scalar: float64(n)}
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return Value{kind: KindScalar, scalar: n.String()}
		}
		return Value{kind: KindScalar, scalar: f}
	default:
		return Value{kind: KindScalar, scalar: v}
	}
}

// List builds a list value.
func List(items ...Value) Value {
	out := make([]Value, len(items))
	copy(out, items)
	return Value{kind: KindList, list: out}
}

// Map builds a map value. A nil map yields an empty map, not null.
func Map(fields map[string]Value) Value {
	out := make(map[string]Value, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return Value{kind: KindMap, fields: out}
}

// FromAny converts decoded JSON (or equivalent Go values) into a Value.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, fv := range t {
			fields[k] = FromAny(fv)
		}
		return Value{kind: KindMap, fields: fields}
	case map[string]string:
		fields := make(map[string]Value, len(t))
		for k, fv := range t {
			fields[k] = Scalar(fv)
		}
		return Value{kind: KindMap, fields: fields}
	case []any:
		items := make([]Value, len(t))
		for i, iv := range t {
			items[i] = FromAny(iv)
		}
		return Value{kind: KindList, list: items}
	case []string:
		items := make([]Value, len(t))
		for i, iv := range t {
			items[i] = Scalar(iv)
		}
		return Value{kind: KindList, list: items}
	default:
		return Scalar(v)
	}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Scalar returns the scalar payload and whether v is a scalar.
func (v Value) Scalar() (any, bool) {
	if v.kind != KindScalar {
		return nil, false
	}
	return v.scalar, true
}

// String returns the scalar as a string when it is one.
func (v Value) String() (string, bool) {
	s, ok := v.scalar.(string)
	return s, ok && v.kind == KindScalar
}

// Items returns a copy of the list items, or nil when v is not a list.
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	out := make([]Value, len(v.list))
	copy(out, v.list)
	return out
}

// Get returns the field stored under key when v is a map.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Null(), false
	}
	f, ok := v.fields[key]
	return f, ok
}

// Keys returns the map keys in sorted order.
func (v Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.fields))
	for k := range v.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of list items or map fields.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.fields)
	default:
		return 0
	}
}

// With returns a copy of the map v with key set to val. Calling With on a
// non-map value starts a fresh map.
func (v Value) With(key string, val Value) Value {
	fields := make(map[string]Value, len(v.fields)+1)
	if v.kind == KindMap {
		for k, f := range v.fields {
			fields[k] = f
		}
	}
	fields[key] = val
	return Value{kind: KindMap, fields: fields}
}

// ToAny converts v back to plain Go values (map[string]any, []any, scalars).
func (v Value) ToAny() any {
	switch v.kind {
	case KindScalar:
		return v.scalar
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.ToAny()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.fields))
		for k, f := range v.fields {
			out[k] = f.ToAny()
		}
		return out
	default:
		return nil
	}
}

// Equal reports deep structural equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindScalar:
		return v.scalar == o.scalar
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.fields) != len(o.fields) {
			return false
		}
		for k, f := range v.fields {
			of, ok := o.fields[k]
			if !ok || !f.Equal(of) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalJSON encodes v as plain JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON decodes any JSON document into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return eris.Wrap(err, "payload: decode")
	}
	*v = fromDecoded(raw)
	return nil
}

// fromDecoded mirrors FromAny but resolves json.Number eagerly.
func fromDecoded(raw any) Value {
	switch t := raw.(type) {
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, fv := range t {
			fields[k] = fromDecoded(fv)
		}
		return Value{kind: KindMap, fields: fields}
	case []any:
		items := make([]Value, len(t))
		for i, iv := range t {
			items[i] = fromDecoded(iv)
		}
		return Value{kind: KindList, list: items}
	default:
		return Scalar(t)
	}
}
