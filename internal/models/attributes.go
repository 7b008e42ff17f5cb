package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Attributes is an insertion-ordered map of front matter keys to values.
type Attributes struct {
	keys   []string
	values map[string]Value
}

// NewAttributes returns an empty attribute map.
func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string]Value)}
}

// Len returns the number of keys.
func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Keys returns keys in declaration order. The slice is a copy.
func (a *Attributes) Keys() []string {
	if a == nil {
		return nil
	}
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Get returns the value for key and whether it was present.
func (a *Attributes) Get(key string) (Value, bool) {
	if a == nil {
		return Value{}, false
	}
	v, ok := a.values[key]
	return v, ok
}

// Has reports whether key is present (a null value still counts).
func (a *Attributes) Has(key string) bool {
	_, ok := a.Get(key)
	return ok
}

// Set replaces key in place or appends it when new.
func (a *Attributes) Set(key string, v Value) {
	if a.values == nil {
		a.values = make(map[string]Value)
	}
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = v
}

// Delete removes key.
func (a *Attributes) Delete(key string) {
	if _, ok := a.values[key]; !ok {
		return
	}
	delete(a.values, key)
	for i, k := range a.keys {
		if k == key {
			a.keys = append(a.keys[:i:i], a.keys[i+1:]...)
			break
		}
	}
}

// Clone returns a deep copy.
func (a *Attributes) Clone() *Attributes {
	out := NewAttributes()
	if a == nil {
		return out
	}
	for _, k := range a.keys {
		out.Set(k, a.values[k].Clone())
	}
	return out
}

// Equal reports deep equality including key order.
func (a *Attributes) Equal(o *Attributes) bool {
	if a.Len() != o.Len() {
		return false
	}
	for i, k := range a.Keys() {
		if o.keys[i] != k || !a.values[k].Equal(o.values[k]) {
			return false
		}
	}
	return true
}

// GetString returns the string form of a scalar key, or "".
func (a *Attributes) GetString(key string) string {
	v, _ := a.Get(key)
	if v.Kind() == KindList || v.Kind() == KindMap {
		return ""
	}
	return v.Text()
}

// Strings returns the string items of key, see Value.Strings.
func (a *Attributes) Strings(key string) []string {
	v, _ := a.Get(key)
	return v.Strings()
}

// MarshalJSON writes an object with keys in declaration order.
func (a *Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if a != nil {
		for i, k := range a.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := json.Marshal(a.values[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object preserving key order.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytesReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*a = *NewAttributes()
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("models: attributes must be a JSON object")
	}
	out, err := decodeObject(dec)
	if err != nil {
		return err
	}
	*a = *out
	return nil
}

// decodeObject reads key/value pairs after the opening brace.
func decodeObject(dec *json.Decoder) (*Attributes, error) {
	out := NewAttributes()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("models: object key %v is not a string", tok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func bytesReader(data []byte) io.Reader { return bytes.NewReader(data) }
