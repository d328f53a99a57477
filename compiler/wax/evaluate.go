package wax

import (
	"github.com/pgavlin/polywarp/exec"
	"github.com/pgavlin/polywarp/wasm"
	"github.com/pgavlin/polywarp/wasm/code"
)

func constant(t wasm.ValueType, v uint64) code.Instruction {
	switch t {
	case wasm.ValueTypeI32:
		return code.Instruction{Opcode: code.OpI32Const, Immediate: uint64(uint32(v))}
	case wasm.ValueTypeI64:
		return code.Instruction{Opcode: code.OpI64Const, Immediate: v}
	case wasm.ValueTypeF32:
		return code.Instruction{Opcode: code.OpF32Const, Immediate: uint64(uint32(v))}
	default:
		return code.Instruction{Opcode: code.OpF64Const, Immediate: v}
	}
}

// evaluate folds a numeric expression whose operands are all constants into a single constant instruction.
// Expressions that would trap are left alone so that the trap happens at runtime.
func evaluate(x *Expression, result wasm.ValueType) (instr code.Instruction, ok bool) {
	// We can only evaluate pure expressions.
	if x.Flags&^FlagsMayTrap != 0 || len(x.Uses) == 0 || len(x.Uses) > 2 {
		return code.Instruction{}, false
	}

	args := make([]uint64, len(x.Uses))
	for i, u := range x.Uses {
		if !u.IsConst() {
			return code.Instruction{}, false
		}
		args[i] = u.X.Instr.Immediate
	}

	defer func() {
		if x := recover(); x != nil {
			if _, isTrap := x.(exec.Trap); !isTrap {
				panic(x)
			}
			instr, ok = code.Instruction{}, false
		}
	}()

	if len(args) == 1 {
		f, ok := exec.UnaryOp(x.Instr.Opcode)
		if !ok {
			return code.Instruction{}, false
		}
		return constant(result, f(args[0])), true
	}

	f, ok := exec.BinaryOp(x.Instr.Opcode)
	if !ok {
		return code.Instruction{}, false
	}
	return constant(result, f(args[0], args[1])), true
}
