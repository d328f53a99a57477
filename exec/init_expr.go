package exec

import (
	"fmt"

	"github.com/pgavlin/polywarp/wasm"
)

type InvalidGlobalIndexError uint32

func (e InvalidGlobalIndexError) Error() string {
	return fmt.Sprintf("invalid index to global index space: %#x", uint32(e))
}

type InvalidFunctionIndexError uint32

func (e InvalidFunctionIndexError) Error() string {
	return fmt.Sprintf("invalid index to function index space: %#x", uint32(e))
}

// EvalConstantExpression evaluates a constant expression. globals holds the globals that the expression may read;
// functions holds the instance's functions. The result is either raw numeric bits or a reference, depending on the
// expression's type.
func EvalConstantExpression(expr wasm.ConstExpr, globals []*Global, functions []Function) (uint64, Reference, error) {
	switch expr.Opcode {
	case wasm.ConstOpI32Const, wasm.ConstOpI64Const, wasm.ConstOpF32Const, wasm.ConstOpF64Const:
		return expr.Immediate, nil, nil
	case wasm.ConstOpGlobalGet:
		index := expr.Index()
		if index >= uint32(len(globals)) {
			return 0, nil, InvalidGlobalIndexError(index)
		}
		g := globals[index]
		return g.value, g.ref, nil
	case wasm.ConstOpRefNull:
		return 0, nil, nil
	case wasm.ConstOpRefFunc:
		index := expr.Index()
		if index >= uint32(len(functions)) {
			return 0, nil, InvalidFunctionIndexError(index)
		}
		return 0, functions[index], nil
	default:
		return 0, nil, wasm.InvalidInitExprOpError(expr.Opcode)
	}
}
