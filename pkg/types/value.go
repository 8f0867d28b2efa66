package types

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ValueKind discriminates the Value union.
type ValueKind int

const (
	// ValueString is a text value.
	ValueString ValueKind = iota
	// ValueNumber is a float64 value (all JSON numbers decode here).
	ValueNumber
	// ValueBool is a boolean value.
	ValueBool
	// ValueList is an ordered list of values.
	ValueList
	// ValueMap is a string-keyed map of values.
	ValueMap
)

// Value is an explicit tagged union for schemaless metadata and edge
// properties. Consumers switch on Kind and get compile-time
// exhaustiveness instead of type-asserting an untyped blob.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	list []Value
	m    map[string]Value
}

// String wraps a text value.
func String(s string) Value { return Value{kind: ValueString, str: s} }

// Number wraps a numeric value.
func Number(f float64) Value { return Value{kind: ValueNumber, num: f} }

// Bool wraps a boolean value.
func Bool(b bool) Value { return Value{kind: ValueBool, b: b} }

// List wraps an ordered list of values.
func List(vs ...Value) Value { return Value{kind: ValueList, list: vs} }

// Map wraps a string-keyed map of values.
func Map(m map[string]Value) Value { return Value{kind: ValueMap, m: m} }

// Kind returns the union discriminant.
func (v Value) Kind() ValueKind { return v.kind }

// AsString returns the text value and whether the value is a string.
func (v Value) AsString() (string, bool) { return v.str, v.kind == ValueString }

// AsNumber returns the numeric value and whether the value is a number.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == ValueNumber }

// AsBool returns the boolean value and whether the value is a bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == ValueBool }

// AsList returns the list value and whether the value is a list.
func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == ValueList }

// AsMap returns the map value and whether the value is a map.
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == ValueMap }

// Text renders any value as a comparable string. Strings come back
// verbatim; other kinds use their JSON rendering. Used by predicate
// evaluation for substring matching.
func (v Value) Text() string {
	if v.kind == ValueString {
		return v.str
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

// Equal reports deep equality between two values.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueString:
		return v.str == o.str
	case ValueNumber:
		return v.num == o.num
	case ValueBool:
		return v.b == o.b
	case ValueList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case ValueMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, vv := range v.m {
			ov, ok := o.m[k]
			if !ok || !vv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalJSON renders the value as natural JSON (no kind envelope), so
// metadata stored in JSON columns stays readable by plain SQL.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueString:
		return json.Marshal(v.str)
	case ValueNumber:
		return json.Marshal(v.num)
	case ValueBool:
		return json.Marshal(v.b)
	case ValueList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case ValueMap:
		if v.m == nil {
			return []byte("{}"), nil
		}
		// Deterministic key order for stable cache rows.
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, _ := json.Marshal(k)
			vb, err := json.Marshal(v.m[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			buf = append(buf, vb...)
		}
		return append(buf, '}'), nil
	}
	return nil, fmt.Errorf("types: unknown value kind %d", v.kind)
}

// UnmarshalJSON decodes natural JSON into the union. JSON numbers
// always decode as ValueNumber; null decodes as an empty string value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := FromJSON(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// FromJSON converts a decoded encoding/json value into a Value.
func FromJSON(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return String(""), nil
	case string:
		return String(t), nil
	case float64:
		return Number(t), nil
	case bool:
		return Bool(t), nil
	case []interface{}:
		list := make([]Value, 0, len(t))
		for _, item := range t {
			v, err := FromJSON(item)
			if err != nil {
				return Value{}, err
			}
			list = append(list, v)
		}
		return Value{kind: ValueList, list: list}, nil
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := FromJSON(item)
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return Map(m), nil
	}
	return Value{}, fmt.Errorf("types: cannot convert %T to Value", raw)
}
