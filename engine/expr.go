package engine

import (
	"fmt"

	"github.com/pgavlin/polywarp/compiler/wax"
	"github.com/pgavlin/polywarp/exec"
	"github.com/pgavlin/polywarp/wasm"
	"github.com/pgavlin/polywarp/wasm/code"
)

// An expr computes a numeric value in its slot representation.
type expr func(fr *frame) uint64

// A refExpr computes a reference.
type refExpr func(fr *frame) exec.Reference

// An operand is either a numeric or a reference expression.
type operand struct {
	num expr
	ref refExpr
}

func (o operand) isRef() bool {
	return o.ref != nil
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (c *compiler) operand(u *wax.Use) operand {
	if u.Type.IsRef() {
		return operand{ref: c.refExpr(u)}
	}
	return operand{num: c.expr(u)}
}

func (c *compiler) operands(uses wax.Uses) []operand {
	ops := make([]operand, len(uses))
	for i, u := range uses {
		ops[i] = c.operand(u)
	}
	return ops
}

func (c *compiler) expr(u *wax.Use) expr {
	if u.IsTemp() {
		slot := u.Temp
		return func(fr *frame) uint64 { return fr.slots[slot] }
	}
	return c.lowerExpr(u.X)
}

func (c *compiler) refExpr(u *wax.Use) refExpr {
	if u.IsTemp() {
		slot := u.Temp
		return func(fr *frame) exec.Reference { return fr.refs[slot] }
	}
	return c.lowerRefExpr(u.X)
}

func (c *compiler) lowerRefExpr(x *wax.Expression) refExpr {
	instr := x.Instr
	switch instr.Opcode {
	case code.OpLocalGet:
		slot := int(instr.Localidx())
		return func(fr *frame) exec.Reference { return fr.refs[slot] }
	case code.OpGlobalGet:
		g := instr.Globalidx()
		return func(fr *frame) exec.Reference { return fr.inst.globals[g].GetRef() }
	case code.OpRefNull:
		return func(fr *frame) exec.Reference { return nil }
	case code.OpRefFunc:
		f := instr.Funcidx()
		return func(fr *frame) exec.Reference { return fr.inst.functions[f] }
	case code.OpTableGet:
		t, index := instr.Tableidx(), c.expr(x.Uses[0])
		return func(fr *frame) exec.Reference { return fr.inst.tables[t].Get(uint32(index(fr))) }
	case code.OpSelect, code.OpSelectT:
		v1, v2, cond := c.refExpr(x.Uses[0]), c.refExpr(x.Uses[1]), c.expr(x.Uses[2])
		return func(fr *frame) exec.Reference {
			a, b := v1(fr), v2(fr)
			if uint32(cond(fr)) != 0 {
				return a
			}
			return b
		}
	default:
		panic(fmt.Errorf("unexpected reference instruction %v", instr.Opcode))
	}
}

func (c *compiler) lowerExpr(x *wax.Expression) expr {
	instr := x.Instr
	switch instr.Opcode {
	case code.OpI32Const, code.OpI64Const, code.OpF32Const, code.OpF64Const:
		v := instr.Immediate
		return func(fr *frame) uint64 { return v }

	case code.OpLocalGet:
		slot := int(instr.Localidx())
		return func(fr *frame) uint64 { return fr.slots[slot] }
	case code.OpGlobalGet:
		g := instr.Globalidx()
		return func(fr *frame) uint64 { return fr.inst.globals[g].Get() }

	case code.OpSelect, code.OpSelectT:
		v1, v2, cond := c.expr(x.Uses[0]), c.expr(x.Uses[1]), c.expr(x.Uses[2])
		return func(fr *frame) uint64 {
			a, b := v1(fr), v2(fr)
			if uint32(cond(fr)) != 0 {
				return a
			}
			return b
		}

	case code.OpRefIsNull:
		ref := c.refExpr(x.Uses[0])
		return func(fr *frame) uint64 { return b2u(ref(fr) == nil) }

	case code.OpMemorySize:
		return func(fr *frame) uint64 { return uint64(fr.mem.Size()) }
	case code.OpTableSize:
		t := instr.Tableidx()
		return func(fr *frame) uint64 { return uint64(fr.inst.tables[t].Len()) }

	case code.OpI32Load, code.OpI64Load, code.OpF32Load, code.OpF64Load,
		code.OpI32Load8S, code.OpI32Load8U, code.OpI32Load16S, code.OpI32Load16U,
		code.OpI64Load8S, code.OpI64Load8U, code.OpI64Load16S, code.OpI64Load16U, code.OpI64Load32S, code.OpI64Load32U:
		return c.lowerLoad(x)
	}

	switch len(x.Uses) {
	case 1:
		if f, ok := exec.UnaryOp(instr.Opcode); ok {
			return unary(instr.Opcode, f, c.expr(x.Uses[0]))
		}
	case 2:
		if f, ok := exec.BinaryOp(instr.Opcode); ok {
			return c.binary(instr.Opcode, f, x.Uses[0], x.Uses[1])
		}
	}
	panic(fmt.Errorf("unexpected instruction %v", instr.Opcode))
}

func (c *compiler) lowerLoad(x *wax.Expression) expr {
	offset, _ := x.Instr.Memarg()
	addr := c.expr(x.Uses[0])

	switch x.Instr.Opcode {
	case code.OpI32Load, code.OpF32Load:
		return func(fr *frame) uint64 { return uint64(fr.mem.Uint32(uint32(addr(fr)), offset)) }
	case code.OpI64Load, code.OpF64Load:
		return func(fr *frame) uint64 { return fr.mem.Uint64(uint32(addr(fr)), offset) }
	case code.OpI32Load8S:
		return func(fr *frame) uint64 { return uint64(uint32(int32(int8(fr.mem.Uint8(uint32(addr(fr)), offset))))) }
	case code.OpI32Load8U, code.OpI64Load8U:
		return func(fr *frame) uint64 { return uint64(fr.mem.Uint8(uint32(addr(fr)), offset)) }
	case code.OpI32Load16S:
		return func(fr *frame) uint64 { return uint64(uint32(int32(int16(fr.mem.Uint16(uint32(addr(fr)), offset))))) }
	case code.OpI32Load16U, code.OpI64Load16U:
		return func(fr *frame) uint64 { return uint64(fr.mem.Uint16(uint32(addr(fr)), offset)) }
	case code.OpI64Load8S:
		return func(fr *frame) uint64 { return uint64(int64(int8(fr.mem.Uint8(uint32(addr(fr)), offset)))) }
	case code.OpI64Load16S:
		return func(fr *frame) uint64 { return uint64(int64(int16(fr.mem.Uint16(uint32(addr(fr)), offset)))) }
	case code.OpI64Load32S:
		return func(fr *frame) uint64 { return uint64(int64(int32(fr.mem.Uint32(uint32(addr(fr)), offset)))) }
	default: // i64.load32_u
		return func(fr *frame) uint64 { return uint64(fr.mem.Uint32(uint32(addr(fr)), offset)) }
	}
}

func unary(op code.Opcode, f func(uint64) uint64, v expr) expr {
	switch op {
	case code.OpI32Eqz:
		return func(fr *frame) uint64 { return b2u(uint32(v(fr)) == 0) }
	case code.OpI64Eqz:
		return func(fr *frame) uint64 { return b2u(v(fr) == 0) }
	case code.OpI32WrapI64:
		return func(fr *frame) uint64 { return uint64(uint32(v(fr))) }
	case code.OpI64ExtendI32S:
		return func(fr *frame) uint64 { return uint64(int64(int32(v(fr)))) }
	case code.OpI64ExtendI32U, code.OpI64ReinterpretF64, code.OpF64ReinterpretI64, code.OpI32ReinterpretF32, code.OpF32ReinterpretI32:
		// Slots already hold the bit patterns.
		return v
	default:
		return func(fr *frame) uint64 { return f(v(fr)) }
	}
}

// binary lowers a binary numeric instruction. The most common integer operations are open-coded, with separate
// forms for a constant right-hand operand.
func (c *compiler) binary(op code.Opcode, f func(uint64, uint64) uint64, left, right *wax.Use) expr {
	a := c.expr(left)
	if right.IsConst() {
		if e := binaryConst(op, a, right.X.Instr.Immediate); e != nil {
			return e
		}
	}
	b := c.expr(right)

	switch op {
	case code.OpI32Add:
		return func(fr *frame) uint64 { return uint64(uint32(a(fr) + b(fr))) }
	case code.OpI32Sub:
		return func(fr *frame) uint64 { return uint64(uint32(a(fr) - b(fr))) }
	case code.OpI32Mul:
		return func(fr *frame) uint64 { return uint64(uint32(a(fr) * b(fr))) }
	case code.OpI32And, code.OpI64And:
		return func(fr *frame) uint64 { return a(fr) & b(fr) }
	case code.OpI32Or, code.OpI64Or:
		return func(fr *frame) uint64 { return a(fr) | b(fr) }
	case code.OpI32Xor, code.OpI64Xor:
		return func(fr *frame) uint64 { return a(fr) ^ b(fr) }
	case code.OpI32Eq:
		return func(fr *frame) uint64 { return b2u(uint32(a(fr)) == uint32(b(fr))) }
	case code.OpI32Ne:
		return func(fr *frame) uint64 { return b2u(uint32(a(fr)) != uint32(b(fr))) }
	case code.OpI32LtS:
		return func(fr *frame) uint64 { return b2u(int32(a(fr)) < int32(b(fr))) }
	case code.OpI32LtU:
		return func(fr *frame) uint64 { return b2u(uint32(a(fr)) < uint32(b(fr))) }
	case code.OpI32GtS:
		return func(fr *frame) uint64 { return b2u(int32(a(fr)) > int32(b(fr))) }
	case code.OpI32GeS:
		return func(fr *frame) uint64 { return b2u(int32(a(fr)) >= int32(b(fr))) }
	case code.OpI32LeS:
		return func(fr *frame) uint64 { return b2u(int32(a(fr)) <= int32(b(fr))) }
	case code.OpI64Add:
		return func(fr *frame) uint64 { return a(fr) + b(fr) }
	case code.OpI64Sub:
		return func(fr *frame) uint64 { return a(fr) - b(fr) }
	case code.OpI64Mul:
		return func(fr *frame) uint64 { return a(fr) * b(fr) }
	case code.OpI64Eq:
		return func(fr *frame) uint64 { return b2u(a(fr) == b(fr)) }
	case code.OpI64Ne:
		return func(fr *frame) uint64 { return b2u(a(fr) != b(fr)) }
	case code.OpI64LtS:
		return func(fr *frame) uint64 { return b2u(int64(a(fr)) < int64(b(fr))) }
	case code.OpI64LtU:
		return func(fr *frame) uint64 { return b2u(a(fr) < b(fr)) }
	default:
		return func(fr *frame) uint64 { return f(a(fr), b(fr)) }
	}
}

func binaryConst(op code.Opcode, a expr, k uint64) expr {
	switch op {
	case code.OpI32Add:
		return func(fr *frame) uint64 { return uint64(uint32(a(fr) + k)) }
	case code.OpI32Sub:
		return func(fr *frame) uint64 { return uint64(uint32(a(fr) - k)) }
	case code.OpI32And, code.OpI64And:
		return func(fr *frame) uint64 { return a(fr) & k }
	case code.OpI32Shl:
		s := k & 31
		return func(fr *frame) uint64 { return uint64(uint32(a(fr)) << s) }
	case code.OpI32ShrU:
		s := k & 31
		return func(fr *frame) uint64 { return uint64(uint32(a(fr)) >> s) }
	case code.OpI32ShrS:
		s := k & 31
		return func(fr *frame) uint64 { return uint64(uint32(int32(a(fr)) >> s)) }
	case code.OpI32Eq:
		return func(fr *frame) uint64 { return b2u(uint32(a(fr)) == uint32(k)) }
	case code.OpI32Ne:
		return func(fr *frame) uint64 { return b2u(uint32(a(fr)) != uint32(k)) }
	case code.OpI32LtS:
		return func(fr *frame) uint64 { return b2u(int32(a(fr)) < int32(k)) }
	case code.OpI32LtU:
		return func(fr *frame) uint64 { return b2u(uint32(a(fr)) < uint32(k)) }
	case code.OpI32GtS:
		return func(fr *frame) uint64 { return b2u(int32(a(fr)) > int32(k)) }
	case code.OpI64Add:
		return func(fr *frame) uint64 { return a(fr) + k }
	default:
		return nil
	}
}

// storeValues returns a closure that evaluates the given operands and stores them into consecutive slots starting at
// temp. All operands are evaluated before any slot is written, so operands may read the slots being written.
func (c *compiler) storeValues(uses wax.Uses, temp int) func(fr *frame) {
	ops := c.operands(uses)
	switch len(ops) {
	case 0:
		return nil
	case 1:
		if o := ops[0]; o.isRef() {
			return func(fr *frame) { fr.refs[temp] = o.ref(fr) }
		} else {
			return func(fr *frame) { fr.slots[temp] = o.num(fr) }
		}
	}

	hasRefs := false
	for _, o := range ops {
		hasRefs = hasRefs || o.isRef()
	}
	return func(fr *frame) {
		nums, refs := evaluateOperands(fr, ops, hasRefs)
		for i, o := range ops {
			if o.isRef() {
				fr.refs[temp+i] = refs[i]
			} else {
				fr.slots[temp+i] = nums[i]
			}
		}
	}
}

func evaluateOperands(fr *frame, ops []operand, hasRefs bool) ([]uint64, []exec.Reference) {
	nums := make([]uint64, len(ops))
	var refs []exec.Reference
	if hasRefs {
		refs = make([]exec.Reference, len(ops))
	}
	for i, o := range ops {
		if o.isRef() {
			refs[i] = o.ref(fr)
		} else {
			nums[i] = o.num(fr)
		}
	}
	return nums, refs
}

func hasRefTypes(types []wasm.ValueType) bool {
	for _, t := range types {
		if t.IsRef() {
			return true
		}
	}
	return false
}
