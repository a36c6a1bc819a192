// Package portico holds the leaf types shared by every layer of the
// embedding boundary: the value algebra that crosses the host/engine
// border and the structured Diagnostic produced on failure.
package portico

import (
	"fmt"
	"math"
	"sort"
)

// Value represents any value that can appear in a query parameter, a
// result cell, or a stored relation row.
type Value interface{}

// Valid value types:
// - nil (null, distinct from every "empty" value)
// - bool
// - int64
// - float64
// - string
// - []byte
// - List  (ordered, possibly nested)
// - Map   (string-keyed, possibly nested)

// List is an ordered collection value.
type List []Value

// Map is a string-keyed mapping value.
type Map map[string]Value

// ValueType classifies a Value. The numeric order of the constants is the
// sort order used by the row codec: null < bool < int < float < string <
// bytes < list < map.
type ValueType byte

const (
	TypeNull ValueType = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeBytes
	TypeList
	TypeMap
)

// String returns the type name used in diagnostics.
func (t ValueType) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeBytes:
		return "bytes"
	case TypeList:
		return "list"
	case TypeMap:
		return "map"
	default:
		return fmt.Sprintf("type(%d)", byte(t))
	}
}

// TypeOf returns the type of a value, or an error for dynamic types that
// are not part of the algebra.
func TypeOf(v Value) (ValueType, error) {
	switch v.(type) {
	case nil:
		return TypeNull, nil
	case bool:
		return TypeBool, nil
	case int64:
		return TypeInt, nil
	case float64:
		return TypeFloat, nil
	case string:
		return TypeString, nil
	case []byte:
		return TypeBytes, nil
	case List:
		return TypeList, nil
	case Map:
		return TypeMap, nil
	default:
		return 0, fmt.Errorf("value type %T is outside the value algebra", v)
	}
}

// CloneValue deep-copies a value so that the copy shares no mutable
// backing storage with the original. Engine-side buffers are released
// after marshaling, so every value handed to the host must be a clone.
func CloneValue(v Value) Value {
	switch val := v.(type) {
	case []byte:
		out := make([]byte, len(val))
		copy(out, val)
		return out
	case List:
		out := make(List, len(val))
		for i, elem := range val {
			out[i] = CloneValue(elem)
		}
		return out
	case Map:
		out := make(Map, len(val))
		for k, elem := range val {
			out[k] = CloneValue(elem)
		}
		return out
	default:
		// nil, bool, int64, float64, string are immutable
		return val
	}
}

// CompareValues orders two values, first by type then by value. Lists
// compare lexicographically, maps by sorted key/value pairs.
func CompareValues(a, b Value) int {
	ta, _ := TypeOf(a)
	tb, _ := TypeOf(b)
	if ta != tb {
		if ta < tb {
			return -1
		}
		return 1
	}
	switch va := a.(type) {
	case nil:
		return 0
	case bool:
		vb := b.(bool)
		if va == vb {
			return 0
		}
		if !va {
			return -1
		}
		return 1
	case int64:
		vb := b.(int64)
		switch {
		case va < vb:
			return -1
		case va > vb:
			return 1
		}
		return 0
	case float64:
		vb := b.(float64)
		// NaN sorts below every other float and equal to itself, so
		// ordering stays total and NaN never unifies with a number.
		aNaN, bNaN := math.IsNaN(va), math.IsNaN(vb)
		switch {
		case aNaN && bNaN:
			return 0
		case aNaN:
			return -1
		case bNaN:
			return 1
		case va < vb:
			return -1
		case va > vb:
			return 1
		}
		return 0
	case string:
		vb := b.(string)
		switch {
		case va < vb:
			return -1
		case va > vb:
			return 1
		}
		return 0
	case []byte:
		vb := b.([]byte)
		return compareBytes(va, vb)
	case List:
		vb := b.(List)
		for i := 0; i < len(va) && i < len(vb); i++ {
			if c := CompareValues(va[i], vb[i]); c != 0 {
				return c
			}
		}
		return len(va) - len(vb)
	case Map:
		vb := b.(Map)
		ka := SortedMapKeys(va)
		kb := SortedMapKeys(vb)
		for i := 0; i < len(ka) && i < len(kb); i++ {
			if ka[i] != kb[i] {
				if ka[i] < kb[i] {
					return -1
				}
				return 1
			}
			if c := CompareValues(va[ka[i]], vb[kb[i]]); c != 0 {
				return c
			}
		}
		return len(ka) - len(kb)
	}
	return 0
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}

// SortedMapKeys returns a map value's keys in sorted order.
func SortedMapKeys(m Map) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
