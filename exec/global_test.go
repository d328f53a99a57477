package exec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pgavlin/polywarp/wasm"
)

func TestGlobalCoercion(t *testing.T) {
	i32 := NewGlobal(wasm.GlobalVar{Type: wasm.ValueTypeI32, Mutable: true})
	assert.NoError(t, i32.SetValue(3.9))
	assert.Equal(t, int32(3), i32.GetI32())
	assert.NoError(t, i32.SetValue(int64(1<<32+5)))
	assert.Equal(t, int32(5), i32.GetI32())
	assert.NoError(t, i32.SetValue(-1.5))
	assert.Equal(t, int32(-1), i32.GetI32())
	assert.NoError(t, i32.SetValue(4294967297.0))
	assert.Equal(t, int32(1), i32.GetI32())
	assert.NoError(t, i32.SetValue(math.NaN()))
	assert.Equal(t, int32(0), i32.GetI32())
	assert.NoError(t, i32.SetValue(true))
	assert.Equal(t, int32(1), i32.GetI32())

	f32 := NewGlobal(wasm.GlobalVar{Type: wasm.ValueTypeF32, Mutable: true})
	assert.NoError(t, f32.SetValue(7))
	assert.Equal(t, float32(7), f32.GetF32())

	f64 := NewGlobal(wasm.GlobalVar{Type: wasm.ValueTypeF64, Mutable: true})
	assert.NoError(t, f64.SetF64(0.25))
	assert.Equal(t, 0.25, f64.GetValue())

	i64 := NewGlobal(wasm.GlobalVar{Type: wasm.ValueTypeI64, Mutable: true})
	assert.NoError(t, i64.SetValue(float32(-2.5)))
	assert.Equal(t, int64(-2), i64.GetValue())

	assert.Error(t, i64.SetValue("nope"))
}

func TestCoerceUnsigned(t *testing.T) {
	cases := []struct {
		name     string
		typ      wasm.ValueType
		value    interface{}
		expected uint64
	}{
		{"u64 2^63 to f64", wasm.ValueTypeF64, uint64(1 << 63), math.Float64bits(9223372036854775808.0)},
		{"u64 max to f64", wasm.ValueTypeF64, uint64(math.MaxUint64), math.Float64bits(18446744073709551615.0)},
		{"uint to f64", wasm.ValueTypeF64, uint(math.MaxUint32), math.Float64bits(4294967295.0)},
		{"u64 2^63 to f32", wasm.ValueTypeF32, uint64(1 << 63), uint64(math.Float32bits(9223372036854775808.0))},
		{"u64 max to f32", wasm.ValueTypeF32, uint64(math.MaxUint64), uint64(math.Float32bits(18446744073709551615.0))},
		{"u32 max to f32", wasm.ValueTypeF32, uint32(math.MaxUint32), uint64(math.Float32bits(4294967295.0))},
		{"u64 max to i64", wasm.ValueTypeI64, uint64(math.MaxUint64), math.MaxUint64},
		{"u64 max to i32", wasm.ValueTypeI32, uint64(math.MaxUint64), math.MaxUint32},
		{"i64 -1 to f64", wasm.ValueTypeF64, int64(-1), math.Float64bits(-1)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			bits, err := CoerceValue(c.typ, c.value)
			assert.NoError(t, err)
			assert.Equal(t, c.expected, bits)
		})
	}

	f64 := NewGlobal(wasm.GlobalVar{Type: wasm.ValueTypeF64, Mutable: true})
	assert.NoError(t, f64.SetValue(uint64(1<<63)))
	assert.Equal(t, 9223372036854775808.0, f64.GetValue())
}

func TestGlobalImmutable(t *testing.T) {
	g := NewGlobalI32(true, 42)
	assert.ErrorIs(t, g.SetValue(int32(1)), ErrImmutableGlobal)
	assert.Equal(t, int32(42), g.GetI32())
	assert.Equal(t, wasm.GlobalVar{Type: wasm.ValueTypeI32}, g.Type())

	// Compiled code and instantiation write through Set.
	g.Set(7)
	assert.Equal(t, int32(7), g.GetI32())
}

func TestGlobalReferences(t *testing.T) {
	f, err := NewHostFunction(func() {})
	assert.NoError(t, err)

	g := NewGlobalRef(wasm.ValueTypeFuncref, false, nil)
	assert.Nil(t, g.GetValue())
	assert.NoError(t, g.SetValue(f))
	assert.Equal(t, f, g.GetRef())
	assert.Error(t, g.SetValue(42))
	assert.NoError(t, g.SetValue(nil))
	assert.Nil(t, g.GetRef())

	e := NewGlobalRef(wasm.ValueTypeExternref, false, nil)
	assert.NoError(t, e.SetValue(42))
	assert.Equal(t, 42, e.GetValue())
}

func TestEvalConstantExpression(t *testing.T) {
	globals := []*Global{NewGlobalI64(true, -5), NewGlobalRef(wasm.ValueTypeExternref, true, "host")}
	f, err := NewHostFunction(func(x int32) int32 { return x })
	assert.NoError(t, err)
	functions := []Function{f}

	bits, _, err := EvalConstantExpression(wasm.I32Const(-1), globals, functions)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0xffffffff), bits)

	bits, _, err = EvalConstantExpression(wasm.GlobalGet(0), globals, functions)
	assert.NoError(t, err)
	assert.Equal(t, int64(-5), int64(bits))

	_, ref, err := EvalConstantExpression(wasm.GlobalGet(1), globals, functions)
	assert.NoError(t, err)
	assert.Equal(t, "host", ref)

	_, ref, err = EvalConstantExpression(wasm.RefFunc(0), globals, functions)
	assert.NoError(t, err)
	assert.Equal(t, f, ref)

	_, ref, err = EvalConstantExpression(wasm.RefNull(wasm.ValueTypeFuncref), globals, functions)
	assert.NoError(t, err)
	assert.Nil(t, ref)

	_, _, err = EvalConstantExpression(wasm.GlobalGet(2), globals, functions)
	assert.Equal(t, InvalidGlobalIndexError(2), err)
	_, _, err = EvalConstantExpression(wasm.RefFunc(1), globals, functions)
	assert.Equal(t, InvalidFunctionIndexError(1), err)
}
