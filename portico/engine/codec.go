package engine

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/porticolabs/portico/portico"
)

// Storage layout. Relation metadata and rows share one keyspace:
//
//	meta key: 0x00 <name>            value: row codec of the column list
//	row key:  0x01 <uvarint len name> <name> <ordered tuple encoding>
//	row val:  row codec of the full tuple
//
// Row keys use an order-preserving encoding so a prefix scan yields rows
// sorted by value, with types ordered null < bool < int < float < string
// < bytes < list < map. Row values use an exact, type-tagged codec that
// round-trips every value without loss; keys are never decoded.
const (
	prefixMeta byte = 0x00
	prefixRow  byte = 0x01
)

func metaKey(rel string) []byte {
	return append([]byte{prefixMeta}, rel...)
}

func rowPrefix(rel string) []byte {
	buf := []byte{prefixRow}
	buf = binary.AppendUvarint(buf, uint64(len(rel)))
	return append(buf, rel...)
}

func rowKey(rel string, row []portico.Value) ([]byte, error) {
	key := rowPrefix(rel)
	for _, v := range row {
		var err error
		key, err = appendOrdered(key, v)
		if err != nil {
			return nil, err
		}
	}
	return key, nil
}

// prefixSuccessor returns the smallest key greater than every key with
// the given prefix, for use as a scan upper bound.
func prefixSuccessor(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xFF; scan to the end
}

// appendOrdered appends the order-preserving encoding of one value.
func appendOrdered(buf []byte, v portico.Value) ([]byte, error) {
	t, err := portico.TypeOf(v)
	if err != nil {
		return nil, err
	}
	buf = append(buf, byte(t))
	switch val := v.(type) {
	case nil:
	case bool:
		if val {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case int64:
		// Flip the sign bit so negative values sort below positive ones.
		buf = binary.BigEndian.AppendUint64(buf, uint64(val)^(1<<63))
	case float64:
		bits := math.Float64bits(val)
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		buf = binary.BigEndian.AppendUint64(buf, bits)
	case string:
		buf = appendEscaped(buf, []byte(val))
	case []byte:
		buf = appendEscaped(buf, val)
	case portico.List:
		// 0x01 marks another element, 0x00 ends the list, so a list
		// prefix sorts before any extension of it.
		for _, elem := range val {
			buf = append(buf, 1)
			buf, err = appendOrdered(buf, elem)
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, 0)
	case portico.Map:
		for _, k := range portico.SortedMapKeys(val) {
			buf = append(buf, 1)
			buf = appendEscaped(buf, []byte(k))
			buf, err = appendOrdered(buf, val[k])
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, 0)
	}
	return buf, nil
}

// appendEscaped writes bytes with 0x00 escaped as 0x00 0xFF, terminated
// by 0x00 0x00, preserving lexicographic order.
func appendEscaped(buf, data []byte) []byte {
	for _, b := range data {
		if b == 0 {
			buf = append(buf, 0, 0xFF)
		} else {
			buf = append(buf, b)
		}
	}
	return append(buf, 0, 0)
}

// encodeRow serializes a tuple with the exact row codec.
func encodeRow(row []portico.Value) ([]byte, error) {
	buf := binary.AppendUvarint(nil, uint64(len(row)))
	for _, v := range row {
		var err error
		buf, err = appendValue(buf, v)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// decodeRow deserializes a tuple written by encodeRow.
func decodeRow(data []byte) ([]portico.Value, error) {
	n, off := binary.Uvarint(data)
	if off <= 0 {
		return nil, fmt.Errorf("corrupt row: bad arity prefix")
	}
	row := make([]portico.Value, 0, n)
	rest := data[off:]
	for i := uint64(0); i < n; i++ {
		var (
			v   portico.Value
			err error
		)
		v, rest, err = decodeValue(rest)
		if err != nil {
			return nil, fmt.Errorf("corrupt row at column %d: %w", i, err)
		}
		row = append(row, v)
	}
	return row, nil
}

func appendValue(buf []byte, v portico.Value) ([]byte, error) {
	t, err := portico.TypeOf(v)
	if err != nil {
		return nil, err
	}
	buf = append(buf, byte(t))
	switch val := v.(type) {
	case nil:
	case bool:
		if val {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case int64:
		buf = binary.BigEndian.AppendUint64(buf, uint64(val))
	case float64:
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(val))
	case string:
		buf = binary.AppendUvarint(buf, uint64(len(val)))
		buf = append(buf, val...)
	case []byte:
		buf = binary.AppendUvarint(buf, uint64(len(val)))
		buf = append(buf, val...)
	case portico.List:
		buf = binary.AppendUvarint(buf, uint64(len(val)))
		for _, elem := range val {
			buf, err = appendValue(buf, elem)
			if err != nil {
				return nil, err
			}
		}
	case portico.Map:
		buf = binary.AppendUvarint(buf, uint64(len(val)))
		for _, k := range portico.SortedMapKeys(val) {
			buf = binary.AppendUvarint(buf, uint64(len(k)))
			buf = append(buf, k...)
			buf, err = appendValue(buf, val[k])
			if err != nil {
				return nil, err
			}
		}
	}
	return buf, nil
}

func decodeValue(data []byte) (portico.Value, []byte, error) {
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("truncated value")
	}
	t := portico.ValueType(data[0])
	rest := data[1:]
	switch t {
	case portico.TypeNull:
		return nil, rest, nil
	case portico.TypeBool:
		if len(rest) < 1 {
			return nil, nil, fmt.Errorf("truncated bool")
		}
		return rest[0] != 0, rest[1:], nil
	case portico.TypeInt:
		if len(rest) < 8 {
			return nil, nil, fmt.Errorf("truncated int")
		}
		return int64(binary.BigEndian.Uint64(rest[:8])), rest[8:], nil
	case portico.TypeFloat:
		if len(rest) < 8 {
			return nil, nil, fmt.Errorf("truncated float")
		}
		return math.Float64frombits(binary.BigEndian.Uint64(rest[:8])), rest[8:], nil
	case portico.TypeString, portico.TypeBytes:
		n, off := binary.Uvarint(rest)
		if off <= 0 || uint64(len(rest)-off) < n {
			return nil, nil, fmt.Errorf("truncated %s", t)
		}
		body := rest[off : off+int(n)]
		rest = rest[off+int(n):]
		if t == portico.TypeString {
			return string(body), rest, nil
		}
		return append([]byte(nil), body...), rest, nil
	case portico.TypeList:
		n, off := binary.Uvarint(rest)
		if off <= 0 {
			return nil, nil, fmt.Errorf("truncated list")
		}
		rest = rest[off:]
		out := make(portico.List, 0, n)
		for i := uint64(0); i < n; i++ {
			var (
				elem portico.Value
				err  error
			)
			elem, rest, err = decodeValue(rest)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, elem)
		}
		return out, rest, nil
	case portico.TypeMap:
		n, off := binary.Uvarint(rest)
		if off <= 0 {
			return nil, nil, fmt.Errorf("truncated map")
		}
		rest = rest[off:]
		out := make(portico.Map, n)
		for i := uint64(0); i < n; i++ {
			klen, koff := binary.Uvarint(rest)
			if koff <= 0 || uint64(len(rest)-koff) < klen {
				return nil, nil, fmt.Errorf("truncated map key")
			}
			k := string(rest[koff : koff+int(klen)])
			rest = rest[koff+int(klen):]
			var (
				elem portico.Value
				err  error
			)
			elem, rest, err = decodeValue(rest)
			if err != nil {
				return nil, nil, err
			}
			out[k] = elem
		}
		return out, rest, nil
	default:
		return nil, nil, fmt.Errorf("unknown value tag %d", data[0])
	}
}
