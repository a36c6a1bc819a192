package gate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porticolabs/portico/portico"
)

func TestMarshalParams(t *testing.T) {
	t.Run("IntegerKindsBecomeInt64", func(t *testing.T) {
		params, err := marshalParams(map[string]any{
			"a": int(1),
			"b": int32(2),
			"c": int64(3),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), params["a"])
		assert.Equal(t, int64(2), params["b"])
		assert.Equal(t, int64(3), params["c"])
	})

	t.Run("FloatsStayFloats", func(t *testing.T) {
		params, err := marshalParams(map[string]any{"f": 2.5, "g": float32(1.5)})
		require.NoError(t, err)
		assert.Equal(t, 2.5, params["f"])
		assert.Equal(t, 1.5, params["g"])
	})

	t.Run("JSONNumberPreservesIntegers", func(t *testing.T) {
		params, err := marshalParams(map[string]any{
			"i": json.Number("42"),
			"f": json.Number("4.5"),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(42), params["i"])
		assert.Equal(t, 4.5, params["f"])
	})

	t.Run("NestedContainers", func(t *testing.T) {
		params, err := marshalParams(map[string]any{
			"list": []any{int(1), "two", []any{3.0}},
			"map":  map[string]any{"k": int64(9)},
		})
		require.NoError(t, err)
		assert.Equal(t, portico.List{int64(1), "two", portico.List{3.0}}, params["list"])
		assert.Equal(t, portico.Map{"k": int64(9)}, params["map"])
	})

	t.Run("BytesAreCopied", func(t *testing.T) {
		raw := []byte{1, 2, 3}
		params, err := marshalParams(map[string]any{"b": raw})
		require.NoError(t, err)
		raw[0] = 0xFF
		assert.Equal(t, []byte{1, 2, 3}, params["b"])
	})

	t.Run("UnsupportedTypeRejected", func(t *testing.T) {
		for name, raw := range map[string]any{
			"ch":     make(chan int),
			"u64":    uint64(7),
			"i8":     int8(7),
			"struct": struct{ X int }{1},
		} {
			_, err := marshalParams(map[string]any{name: raw})
			require.Error(t, err, "type %T", raw)
			d := portico.AsDiagnostic(err)
			require.NotNil(t, d)
			assert.Equal(t, "eval::param_invalid", d.Code)
		}
	})

	t.Run("EngineContainersAccepted", func(t *testing.T) {
		src := portico.List{int64(1), "x"}
		params, err := marshalParams(map[string]any{"l": src, "m": portico.Map{"k": true}})
		require.NoError(t, err)
		src[0] = int64(9)
		assert.Equal(t, portico.List{int64(1), "x"}, params["l"])
		assert.Equal(t, portico.Map{"k": true}, params["m"])
	})

	t.Run("EmptyIsNil", func(t *testing.T) {
		params, err := marshalParams(nil)
		require.NoError(t, err)
		assert.Nil(t, params)
	})
}

func TestUnmarshalValue(t *testing.T) {
	t.Run("ContainersToHostShapes", func(t *testing.T) {
		got := unmarshalValue(portico.List{int64(1), portico.Map{"k": "v"}})
		assert.Equal(t, []any{int64(1), map[string]any{"k": "v"}}, got)
	})

	t.Run("BytesDoNotAliasEngineMemory", func(t *testing.T) {
		src := []byte{1, 2}
		got := unmarshalValue(src).([]byte)
		got[0] = 0xFF
		assert.Equal(t, byte(1), src[0])
	})

	t.Run("Scalars", func(t *testing.T) {
		assert.Nil(t, unmarshalValue(nil))
		assert.Equal(t, int64(3), unmarshalValue(int64(3)))
		assert.Equal(t, "s", unmarshalValue("s"))
		assert.Equal(t, true, unmarshalValue(true))
	})
}
