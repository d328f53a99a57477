package engine

import (
	"fmt"

	"github.com/pgavlin/polywarp/compiler/wax"
	"github.com/pgavlin/polywarp/exec"
	"github.com/pgavlin/polywarp/wasm/code"
)

// An action is a statement that always continues with the next statement.
type action func(fr *frame)

// lowerAction lowers a statement that does not transfer control.
func (c *compiler) lowerAction(d *wax.Def) action {
	instr := d.Instr
	switch instr.Opcode {
	case code.OpUnreachable:
		return func(fr *frame) { panic(exec.TrapUnreachable) }

	case code.OpDrop:
		if o := c.operand(d.Uses[0]); o.isRef() {
			return func(fr *frame) { o.ref(fr) }
		} else {
			return func(fr *frame) { o.num(fr) }
		}

	case code.OpLocalSet:
		return c.storeValues(d.Uses, int(instr.Localidx()))

	case code.OpGlobalSet:
		g := instr.Globalidx()
		if o := c.operand(d.Uses[0]); o.isRef() {
			return func(fr *frame) { fr.inst.globals[g].SetRef(o.ref(fr)) }
		} else {
			return func(fr *frame) { fr.inst.globals[g].Set(o.num(fr)) }
		}

	case code.OpI32Store, code.OpI64Store, code.OpF32Store, code.OpF64Store,
		code.OpI32Store8, code.OpI32Store16, code.OpI64Store8, code.OpI64Store16, code.OpI64Store32:
		return c.lowerStore(d)

	case code.OpMemoryGrow:
		n, temp := c.expr(d.Uses[0]), d.Temp
		return func(fr *frame) { fr.slots[temp] = uint64(uint32(fr.mem.Grow(uint32(n(fr))))) }
	case code.OpMemoryFill:
		dst, v, n := c.expr(d.Uses[0]), c.expr(d.Uses[1]), c.expr(d.Uses[2])
		return func(fr *frame) {
			d, v, n := uint32(dst(fr)), byte(v(fr)), uint32(n(fr))
			fr.mem.Fill(d, v, n)
		}
	case code.OpMemoryCopy:
		dst, src, n := c.expr(d.Uses[0]), c.expr(d.Uses[1]), c.expr(d.Uses[2])
		return func(fr *frame) {
			d, s, n := uint32(dst(fr)), uint32(src(fr)), uint32(n(fr))
			fr.mem.Copy(d, s, n)
		}
	case code.OpMemoryInit:
		seg := instr.Dataidx()
		dst, src, n := c.expr(d.Uses[0]), c.expr(d.Uses[1]), c.expr(d.Uses[2])
		return func(fr *frame) {
			d, s, n := uint32(dst(fr)), uint32(src(fr)), uint32(n(fr))
			fr.mem.Init(d, fr.inst.data[seg], s, n)
		}
	case code.OpDataDrop:
		seg := instr.Dataidx()
		return func(fr *frame) { fr.inst.data[seg] = nil }

	case code.OpTableSet:
		t, index, v := instr.Tableidx(), c.expr(d.Uses[0]), c.refExpr(d.Uses[1])
		return func(fr *frame) {
			i, v := uint32(index(fr)), v(fr)
			fr.inst.tables[t].Set(i, v)
		}
	case code.OpTableGrow:
		t, initial, n, temp := instr.Tableidx(), c.refExpr(d.Uses[0]), c.expr(d.Uses[1]), d.Temp
		return func(fr *frame) {
			v, n := initial(fr), uint32(n(fr))
			fr.slots[temp] = uint64(uint32(fr.inst.tables[t].Grow(n, v)))
		}
	case code.OpTableFill:
		t, dst, v, n := instr.Tableidx(), c.expr(d.Uses[0]), c.refExpr(d.Uses[1]), c.expr(d.Uses[2])
		return func(fr *frame) {
			d, v, n := uint32(dst(fr)), v(fr), uint32(n(fr))
			fr.inst.tables[t].Fill(d, v, n)
		}
	case code.OpTableCopy:
		dt, st := instr.Tableidx(), instr.SourceTableidx()
		dst, src, n := c.expr(d.Uses[0]), c.expr(d.Uses[1]), c.expr(d.Uses[2])
		return func(fr *frame) {
			d, s, n := uint32(dst(fr)), uint32(src(fr)), uint32(n(fr))
			fr.inst.tables[dt].Copy(d, fr.inst.tables[st], s, n)
		}
	case code.OpTableInit:
		t, seg := instr.Tableidx(), instr.Elemidx()
		dst, src, n := c.expr(d.Uses[0]), c.expr(d.Uses[1]), c.expr(d.Uses[2])
		return func(fr *frame) {
			d, s, n := uint32(dst(fr)), uint32(src(fr)), uint32(n(fr))
			fr.inst.tables[t].Init(d, fr.inst.elements[seg], s, n)
		}
	case code.OpElemDrop:
		seg := instr.Elemidx()
		return func(fr *frame) { fr.inst.elements[seg] = nil }

	case code.OpCall:
		return c.lowerCall(d)
	case code.OpCallIndirect:
		return c.lowerCallIndirect(d)
	}

	// Anything else is a flush of a pending expression into a temp.
	if len(d.Types) != 1 {
		panic(fmt.Errorf("unexpected statement %v", d))
	}
	u := wax.UseExpression(d.Types[0], d.Expression)
	return c.storeValues(wax.Uses{u}, d.Temp)
}

func (c *compiler) lowerStore(d *wax.Def) action {
	offset, _ := d.Instr.Memarg()
	addr, value := c.expr(d.Uses[0]), c.expr(d.Uses[1])

	switch d.Instr.Opcode {
	case code.OpI32Store, code.OpF32Store, code.OpI64Store32:
		return func(fr *frame) {
			base, v := uint32(addr(fr)), value(fr)
			fr.mem.PutUint32(uint32(v), base, offset)
		}
	case code.OpI64Store, code.OpF64Store:
		return func(fr *frame) {
			base, v := uint32(addr(fr)), value(fr)
			fr.mem.PutUint64(v, base, offset)
		}
	case code.OpI32Store8, code.OpI64Store8:
		return func(fr *frame) {
			base, v := uint32(addr(fr)), value(fr)
			fr.mem.PutUint8(uint8(v), base, offset)
		}
	default: // i32.store16, i64.store16
		return func(fr *frame) {
			base, v := uint32(addr(fr)), value(fr)
			fr.mem.PutUint16(uint16(v), base, offset)
		}
	}
}

func (c *compiler) lowerCall(d *wax.Def) action {
	funcidx := d.Instr.Funcidx()
	sig, _ := c.def.scope.GetFunctionSignature(funcidx)
	args, temp := c.operands(d.Uses), d.Temp

	if funcidx < uint32(c.def.importedFunctions) {
		hasRefs := hasRefTypes(sig.ParamTypes)
		return func(fr *frame) {
			nums, refs := evaluateOperands(fr, args, hasRefs)
			callValues(fr, fr.inst.functions[funcidx], sig, nums, refs, temp)
		}
	}

	// Calls to functions defined by this module evaluate their arguments directly into the callee's frame.
	index := int(funcidx) - c.def.importedFunctions
	return func(fr *frame) {
		callee := fr.inst.defined[index]
		cfr := callee.newFrame(fr.thread)
		for i, a := range args {
			if a.isRef() {
				cfr.refs[i] = a.ref(fr)
			} else {
				cfr.slots[i] = a.num(fr)
			}
		}
		callee.run(cfr)
		callee.copyResults(fr, temp, cfr)
	}
}

func (c *compiler) lowerCallIndirect(d *wax.Def) action {
	sig, _ := c.def.scope.GetType(d.Instr.Typeidx())
	t := d.Instr.Tableidx()

	n := len(d.Uses) - 1
	args, index, temp := c.operands(d.Uses[:n]), c.expr(d.Uses[n]), d.Temp
	hasRefs := hasRefTypes(sig.ParamTypes)

	return func(fr *frame) {
		nums, refs := evaluateOperands(fr, args, hasRefs)
		i := uint32(index(fr))

		table := fr.inst.tables[t]
		if i >= table.Len() {
			panic(exec.TrapUndefinedElement)
		}
		ref := table.Get(i)
		if ref == nil {
			panic(exec.TrapUninitializedElement)
		}
		f, ok := ref.(exec.Function)
		if !ok || !f.GetSignature().Equals(sig) {
			panic(exec.TrapIndirectCallTypeMismatch)
		}
		callValues(fr, f, sig, nums, refs, temp)
	}
}
