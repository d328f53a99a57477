package exec

import (
	"fmt"
	"math"
	"reflect"

	"github.com/pgavlin/polywarp/wasm"
)

var (
	referenceType = reflect.TypeOf((*Reference)(nil)).Elem()
	functionType  = reflect.TypeOf((*Function)(nil)).Elem()
)

func wasmType(t reflect.Type) wasm.ValueType {
	if t == referenceType {
		return wasm.ValueTypeExternref
	}
	if t == functionType {
		return wasm.ValueTypeFuncref
	}

	switch t.Kind() {
	case reflect.Int32, reflect.Uint32:
		return wasm.ValueTypeI32
	case reflect.Int64, reflect.Uint64:
		return wasm.ValueTypeI64
	case reflect.Float32:
		return wasm.ValueTypeF32
	case reflect.Float64:
		return wasm.ValueTypeF64
	default:
		return 0
	}
}

// ToValue converts the raw bits of a numeric value of the given type to its Go representation.
func ToValue(t wasm.ValueType, bits uint64) interface{} {
	switch t {
	case wasm.ValueTypeI32:
		return int32(bits)
	case wasm.ValueTypeI64:
		return int64(bits)
	case wasm.ValueTypeF32:
		return math.Float32frombits(uint32(bits))
	case wasm.ValueTypeF64:
		return math.Float64frombits(bits)
	default:
		panic(fmt.Errorf("%v is not a numeric type", t))
	}
}

// FromValue converts a Go value to the raw bits of a numeric value of the given type.
func FromValue(t wasm.ValueType, v interface{}) (uint64, error) {
	return CoerceValue(t, v)
}
