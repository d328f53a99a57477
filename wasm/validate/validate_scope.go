package validate

import (
	"github.com/pgavlin/polywarp/wasm"
)

func kindName(kind wasm.External) string {
	switch kind {
	case wasm.ExternalFunction:
		return "function"
	case wasm.ExternalTable:
		return "table"
	case wasm.ExternalMemory:
		return "memory"
	default:
		return "global"
	}
}

// validateConstExpr checks that a constant expression produces a value of the expected type. global.get may only
// refer to the first visible globals, which must be immutable.
func (v *validator) validateConstExpr(expr wasm.ConstExpr, expected wasm.ValueType, visible uint32) error {
	switch expr.Opcode {
	case wasm.ConstOpGlobalGet:
		if expr.Index() >= visible {
			return wasm.ValidationError("unknown global")
		}
		g, _ := v.GetGlobalType(expr.Index())
		if g.Mutable {
			return wasm.ValidationError("constant expression required")
		}
	case wasm.ConstOpRefFunc:
		if _, ok := v.GetFunctionSignature(expr.Index()); !ok {
			return wasm.ValidationError("unknown function")
		}
	}

	t, ok := expr.Type(v.GetGlobalType)
	if !ok || t != expected {
		return wasm.ValidationError("type mismatch")
	}
	return nil
}
