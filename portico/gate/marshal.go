package gate

import (
	"encoding/json"

	"github.com/porticolabs/portico/portico"
	"github.com/porticolabs/portico/portico/engine"
)

// NamedRows is the result shape handed back to embedding hosts: ordered
// headers and rows of plain Go values decoupled from engine internals.
type NamedRows struct {
	Headers []string `json:"headers"`
	Rows    [][]any  `json:"rows"`
}

// marshalParams converts host-supplied parameters into engine values.
// Integer kinds stay integers and floats stay floats; there is no silent
// coercion between the two, so a host sending int64(7) reads back
// int64(7) rather than 7.0.
func marshalParams(params map[string]any) (map[string]portico.Value, error) {
	if len(params) == 0 {
		return nil, nil
	}
	out := make(map[string]portico.Value, len(params))
	for name, raw := range params {
		v, err := marshalValue(name, raw)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func marshalValue(name string, raw any) (portico.Value, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case bool:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case json.Number:
		// Integer-preserving: only fall back to float when the literal
		// is not a valid int64.
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, portico.NewDiagnostic(portico.CategoryEval, "eval::param_invalid",
				"parameter $%s: invalid number %q", name, string(v))
		}
		return f, nil
	case string:
		return v, nil
	case []byte:
		clone := make([]byte, len(v))
		copy(clone, v)
		return clone, nil
	case []any:
		list := make(portico.List, len(v))
		for i, elem := range v {
			ev, err := marshalValue(name, elem)
			if err != nil {
				return nil, err
			}
			list[i] = ev
		}
		return list, nil
	case map[string]any:
		m := make(portico.Map, len(v))
		for key, elem := range v {
			ev, err := marshalValue(name, elem)
			if err != nil {
				return nil, err
			}
			m[key] = ev
		}
		return m, nil
	case portico.List, portico.Map:
		return portico.CloneValue(v), nil
	default:
		return nil, portico.NewDiagnostic(portico.CategoryEval, "eval::param_invalid",
			"parameter $%s: unsupported host type %T", name, raw)
	}
}

// hostRows converts a materialized relation into the host result shape,
// deep-copying every cell.
func hostRows(rel *engine.Relation) *NamedRows {
	out := &NamedRows{Headers: rel.Columns, Rows: make([][]any, len(rel.Rows))}
	for i, row := range rel.Rows {
		hostRow := make([]any, len(row))
		for j, v := range row {
			hostRow[j] = unmarshalValue(v)
		}
		out.Rows[i] = hostRow
	}
	return out
}

// unmarshalValue converts an engine value into the host shape. Lists and
// maps are deep-copied so the host can never alias engine memory.
func unmarshalValue(v portico.Value) any {
	switch val := v.(type) {
	case nil, bool, int64, float64, string:
		return val
	case []byte:
		clone := make([]byte, len(val))
		copy(clone, val)
		return clone
	case portico.List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = unmarshalValue(elem)
		}
		return out
	case portico.Map:
		out := make(map[string]any, len(val))
		for key, elem := range val {
			out[key] = unmarshalValue(elem)
		}
		return out
	default:
		return val
	}
}
