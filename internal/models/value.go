package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies which member of the Value union is populated.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "null"
	}
}

// Value is one front matter value: string, number, bool, list, nested map
// or null. The zero Value is null.
type Value struct {
	kind  Kind
	str   string
	num   float64
	b     bool
	items []Value
	m     *Attributes
}

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List returns a list value holding items.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, items: items}
}

// Strings returns a list value of string items.
func Strings(ss ...string) Value {
	items := make([]Value, len(ss))
	for i, s := range ss {
		items[i] = String(s)
	}
	return List(items...)
}

// MapValue returns a nested map value.
func MapValue(a *Attributes) Value {
	if a == nil {
		a = NewAttributes()
	}
	return Value{kind: KindMap, m: a}
}

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsNull() bool     { return v.kind == KindNull }
func (v Value) Str() string      { return v.str }
func (v Value) Num() float64     { return v.num }
func (v Value) Boolean() bool    { return v.b }
func (v Value) Items() []Value   { return v.items }
func (v Value) Map() *Attributes { return v.m }

// IsEmpty reports whether v is null, an empty string or an empty list.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == ""
	case KindList:
		return len(v.items) == 0
	}
	return false
}

// Strings renders a list value as strings. A scalar yields a one-element
// slice, null yields nil.
func (v Value) Strings() []string {
	switch v.kind {
	case KindNull:
		return nil
	case KindList:
		out := make([]string, 0, len(v.items))
		for _, it := range v.items {
			out = append(out, it.Text())
		}
		return out
	default:
		return []string{v.Text()}
	}
}

// Text renders a scalar value as display text.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return FormatNumber(v.num)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList, KindMap:
		data, _ := json.Marshal(v)
		return string(data)
	}
	return ""
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		items := make([]Value, len(v.items))
		for i, it := range v.items {
			items[i] = it.Clone()
		}
		return Value{kind: KindList, items: items}
	case KindMap:
		return Value{kind: KindMap, m: v.m.Clone()}
	}
	return v
}

// Equal reports deep equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindList:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return v.m.Equal(o.m)
	}
	return true
}

// FormatNumber prints whole numbers without a fractional part.
func FormatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// MarshalJSON encodes the natural JSON form of v.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		return json.Marshal(v.items)
	case KindMap:
		return json.Marshal(v.m)
	}
	return []byte("null"), nil
}

// UnmarshalJSON decodes any JSON value, keeping object key order.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytesReader(data))
	dec.UseNumber()
	out, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("models: number %q: %w", t, err)
		}
		return Number(f), nil
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				it, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, it)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return List(items...), nil
		case '{':
			a, err := decodeObject(dec)
			if err != nil {
				return Value{}, err
			}
			return MapValue(a), nil
		}
	}
	return Value{}, fmt.Errorf("models: unexpected JSON token %v", tok)
}
