package exec

import (
	"errors"
	"fmt"
	"math"

	"github.com/pgavlin/polywarp/wasm"
)

// ErrImmutableGlobal is returned when an embedder attempts to set the value of an immutable global.
var ErrImmutableGlobal = errors.New("global is immutable")

// A Global is a typed global variable. Numeric values are stored as raw bits; reference values are stored
// separately.
type Global struct {
	typ       wasm.ValueType
	immutable bool
	value     uint64
	ref       Reference
}

// NewGlobal creates a new global of the given type with a zero value.
func NewGlobal(type_ wasm.GlobalVar) *Global {
	return &Global{typ: type_.Type, immutable: !type_.Mutable}
}

func NewGlobalI32(immutable bool, value int32) *Global {
	return &Global{typ: wasm.ValueTypeI32, immutable: immutable, value: uint64(uint32(value))}
}

func NewGlobalI64(immutable bool, value int64) *Global {
	return &Global{typ: wasm.ValueTypeI64, immutable: immutable, value: uint64(value)}
}

func NewGlobalF32(immutable bool, value float32) *Global {
	return &Global{typ: wasm.ValueTypeF32, immutable: immutable, value: uint64(math.Float32bits(value))}
}

func NewGlobalF64(immutable bool, value float64) *Global {
	return &Global{typ: wasm.ValueTypeF64, immutable: immutable, value: math.Float64bits(value)}
}

// NewGlobalRef creates a new global of reference type t.
func NewGlobalRef(t wasm.ValueType, immutable bool, value Reference) *Global {
	return &Global{typ: t, immutable: immutable, ref: value}
}

func (g *Global) Type() wasm.GlobalVar {
	return wasm.GlobalVar{Type: g.typ, Mutable: !g.immutable}
}

// Get returns the raw bits of a numeric global.
func (g *Global) Get() uint64 {
	return g.value
}

// GetRef returns the value of a reference-typed global.
func (g *Global) GetRef() Reference {
	return g.ref
}

func (g *Global) GetValue() interface{} {
	switch g.typ {
	case wasm.ValueTypeI32:
		return g.GetI32()
	case wasm.ValueTypeI64:
		return g.GetI64()
	case wasm.ValueTypeF32:
		return g.GetF32()
	case wasm.ValueTypeF64:
		return g.GetF64()
	default:
		return g.ref
	}
}

func (g *Global) GetI32() int32 {
	return int32(g.value)
}

func (g *Global) GetI64() int64 {
	return int64(g.value)
}

func (g *Global) GetF32() float32 {
	return math.Float32frombits(uint32(g.value))
}

func (g *Global) GetF64() float64 {
	return math.Float64frombits(g.value)
}

// Set sets the raw bits of a numeric global. Set does not check mutability; it is used by compiled code, which has
// been validated, and during instantiation.
func (g *Global) Set(v uint64) {
	g.value = v
}

// SetRef sets the value of a reference-typed global without checking mutability.
func (g *Global) SetRef(v Reference) {
	g.ref = v
}

// SetValue sets the global's value on behalf of an embedder. The value is coerced to the global's type: integers and
// floats convert to one another, with conversions to i32 wrapping modulo 2^32 after truncation toward zero.
func (g *Global) SetValue(v interface{}) error {
	if g.immutable {
		return ErrImmutableGlobal
	}

	if g.typ.IsRef() {
		if g.typ == wasm.ValueTypeFuncref {
			if _, ok := v.(Function); !ok && v != nil {
				return fmt.Errorf("cannot set funcref global to %T", v)
			}
		}
		g.ref = v
		return nil
	}

	bits, err := CoerceValue(g.typ, v)
	if err != nil {
		return err
	}
	g.value = bits
	return nil
}

func (g *Global) SetI32(v int32) error {
	return g.SetValue(v)
}

func (g *Global) SetI64(v int64) error {
	return g.SetValue(v)
}

func (g *Global) SetF32(v float32) error {
	return g.SetValue(v)
}

func (g *Global) SetF64(v float64) error {
	return g.SetValue(v)
}

// CoerceValue converts a Go numeric value to the raw bits of a value of type t.
func CoerceValue(t wasm.ValueType, v interface{}) (uint64, error) {
	var i int64
	var u uint64
	var f float64
	unsigned, isFloat := false, false
	switch v := v.(type) {
	case int:
		i = int64(v)
	case int8:
		i = int64(v)
	case int16:
		i = int64(v)
	case int32:
		i = int64(v)
	case int64:
		i = v
	case uint:
		u, unsigned = uint64(v), true
	case uint8:
		u, unsigned = uint64(v), true
	case uint16:
		u, unsigned = uint64(v), true
	case uint32:
		u, unsigned = uint64(v), true
	case uint64:
		u, unsigned = v, true
	case float32:
		f, isFloat = float64(v), true
	case float64:
		f, isFloat = v, true
	case bool:
		if v {
			i = 1
		}
	default:
		return 0, fmt.Errorf("cannot convert %T to %v", v, t)
	}

	bits := uint64(i)
	switch {
	case unsigned:
		bits = u
	case isFloat:
		bits = uint64(wrapFloat(f))
	}

	switch t {
	case wasm.ValueTypeI32:
		return uint64(uint32(bits)), nil
	case wasm.ValueTypeI64:
		return bits, nil
	case wasm.ValueTypeF32:
		switch {
		case isFloat:
			return uint64(math.Float32bits(float32(f))), nil
		case unsigned:
			return uint64(math.Float32bits(float32(u))), nil
		default:
			return uint64(math.Float32bits(float32(i))), nil
		}
	case wasm.ValueTypeF64:
		switch {
		case isFloat:
			return math.Float64bits(f), nil
		case unsigned:
			return math.Float64bits(float64(u)), nil
		default:
			return math.Float64bits(float64(i)), nil
		}
	default:
		return 0, fmt.Errorf("cannot convert %T to %v", v, t)
	}
}

// wrapFloat truncates f toward zero and wraps it modulo 2^64. NaN and infinities convert to zero.
func wrapFloat(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Trunc(f)
	if f >= -(1<<63) && f < 1<<63 {
		return int64(f)
	}
	m := math.Mod(f, 1<<64)
	if m < 0 {
		m += 1 << 64
	}
	if m >= 1<<63 {
		m -= 1 << 64
	}
	return int64(m)
}
