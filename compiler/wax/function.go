package wax

import (
	"github.com/willf/bitset"

	"github.com/pgavlin/polywarp/wasm"
	"github.com/pgavlin/polywarp/wasm/code"
)

// DefaultMaxPendingDepth is the default limit on the height of a pending expression tree.
const DefaultMaxPendingDepth = 8

// - form expression trees by stacking instructions
// - spill stack to temps at side-effecting instructions and at every control boundary
// - a spilled entry takes every entry below it along, so evaluation order is unchanged
//
// block entry:
// - uses on entry consume the block's parameters, which are stored to the input temps
// - output temps are allocated
//
// block exit:
// - uses on else and end consume the block's results, which are stored to the output temps
//
// branches:
// - to loop continuation, uses are stored to the input temps
// - to block/if/function continuation, uses are stored to the output temps
// - for br_if, the values stay on the stack as temps

// Function is the IR for a single function body.
type Function struct {
	Signature wasm.FunctionSig

	// Slots holds the type of each slot. The function's locals occupy the first NumLocals slots; temps follow.
	Slots     []wasm.ValueType
	NumLocals int

	// MaxPendingDepth limits the height of pending expression trees. Zero flushes every value to a temp.
	MaxPendingDepth int

	Metrics code.Metrics

	// Blocks holds every reachable block in order of entry. Blocks[0] is the function body.
	Blocks []*Block

	// Body holds the function's statements. Body[0] enters the function body block; the last statement ends it.
	Body []*Def

	stack   []*Use
	control []*Block
}

type FunctionScope struct {
	code.Scope
	f *Function
}

func (s *FunctionScope) GetLocalType(localidx uint32) (wasm.ValueType, bool) {
	if localidx >= uint32(s.f.NumLocals) {
		return 0, false
	}
	return s.f.Slots[int(localidx)], true
}

func (f *Function) Scope(module code.Scope) *FunctionScope {
	return &FunctionScope{Scope: module, f: f}
}

// ImportFunction decodes and validates a function body and builds its IR.
func ImportFunction(signature wasm.FunctionSig, body wasm.FunctionBody, scope code.Scope, maxPendingDepth int) (*Function, error) {
	f := NewFunction(signature, body, maxPendingDepth)
	s := f.Scope(scope)

	decoded, err := code.Decode(body.Code, s, signature.ReturnTypes)
	if err != nil {
		return nil, err
	}
	f.Metrics = decoded.Metrics

	// The decoded body ends with the end of the function body block, which NewFunction has already entered.
	for ip, instr := range decoded.Instructions {
		f.ImportInstruction(ip, instr, s)
	}
	return f, nil
}

// NewFunction creates a function with the given signature and locals and enters its body block.
func NewFunction(signature wasm.FunctionSig, body wasm.FunctionBody, maxPendingDepth int) *Function {
	f := &Function{Signature: signature, MaxPendingDepth: maxPendingDepth}

	// Expand locals.
	f.Slots = append(f.Slots, signature.ParamTypes...)
	for _, l := range body.Locals {
		for i := 0; i < int(l.Count); i++ {
			f.Slots = append(f.Slots, l.Type)
		}
	}
	f.NumLocals = len(f.Slots)

	f.enterBlock(-1, code.Block(), nil, signature.ReturnTypes, nil)
	return f
}

// NumTemps returns the number of temps used by the function.
func (f *Function) NumTemps() int {
	return len(f.Slots) - f.NumLocals
}

func (f *Function) top() *Block {
	return f.control[len(f.control)-1]
}

func (f *Function) label(depth int) *Block {
	return f.control[len(f.control)-depth-1]
}

func (f *Function) unreachable() bool {
	return len(f.control) > 0 && f.top().Unreachable
}

func (f *Function) setUnreachable() {
	b := f.top()
	b.Unreachable = true
	f.stack = f.stack[:b.StackHeight]
}

func (f *Function) newTemps(types []wasm.ValueType) int {
	first := len(f.Slots)
	f.Slots = append(f.Slots, types...)
	return first
}

func (f *Function) pushTemps(types []wasm.ValueType, first int) {
	for i, t := range types {
		f.stack = append(f.stack, UseTemp(t, first+i))
	}
}

func (f *Function) pop() *Use {
	u := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return u
}

func (f *Function) popN(n int) Uses {
	if n == 0 {
		return nil
	}
	first := len(f.stack) - n
	uses := append(Uses(nil), f.stack[first:]...)
	f.stack = f.stack[:first]
	return uses
}

func (f *Function) emit(d *Def) *Def {
	f.Body = append(f.Body, d)
	return d
}

// materialize emits a flush of a pending use into a fresh temp and returns a use of the temp.
func (f *Function) materialize(u *Use) *Use {
	types := []wasm.ValueType{u.Type}
	temp := f.newTemps(types)
	f.emit(&Def{Expression: u.X, Types: types, Temp: temp})
	return UseTemp(u.Type, temp)
}

// flush materializes every pending stack entry at or below index i.
func (f *Function) flush(i int) {
	for j := 0; j <= i; j++ {
		if u := f.stack[j]; !u.IsTemp() {
			f.stack[j] = f.materialize(u)
		}
	}
}

func (f *Function) flushAll() {
	f.flush(len(f.stack) - 1)
}

// spill flushes the highest stack entry that cannot be evaluated after an instruction with the given effects,
// along with every entry below it.
func (f *Function) spill(flags Flags, localStores *bitset.BitSet) {
	for i := len(f.stack) - 1; i >= 0; i-- {
		if !f.stack[i].CanMoveAfter(flags, localStores) {
			f.flush(i)
			return
		}
	}
}

func (f *Function) enterBlock(ip int, instr code.Instruction, ins, outs []wasm.ValueType, uses Uses) {
	b := &Block{
		Kind:        instr.Opcode,
		Label:       len(f.control),
		StackHeight: len(f.stack),
		Ins:         ins,
		Outs:        outs,
	}
	b.InTemp = f.newTemps(ins)
	b.OutTemp = f.newTemps(outs)
	b.Entry = f.emit(&Def{Expression: &Expression{IP: ip, Instr: instr, Uses: uses}, Block: b, Types: ins, Temp: b.InTemp})

	f.control = append(f.control, b)
	f.Blocks = append(f.Blocks, b)
	f.pushTemps(ins, b.InTemp)
}

func (f *Function) enterElse(ip int, instr code.Instruction, uses Uses) {
	b := f.top()
	b.Else = f.emit(&Def{Expression: &Expression{IP: ip, Instr: instr, Uses: uses}, Block: b})
	b.Unreachable = false
	f.stack = f.stack[:b.StackHeight]
	f.pushTemps(b.Ins, b.InTemp)
}

func (f *Function) exitBlock(ip int, instr code.Instruction, uses Uses) {
	b := f.top()
	b.End = f.emit(&Def{Expression: &Expression{IP: ip, Instr: instr, Uses: uses}, Block: b})

	f.control = f.control[:len(f.control)-1]
	f.stack = f.stack[:b.StackHeight]
	if len(f.control) != 0 {
		f.pushTemps(b.Outs, b.OutTemp)
	}
}

func (f *Function) branch(ip int, instr code.Instruction, uses Uses, targets ...*Block) {
	for _, t := range targets {
		t.BranchTarget = true
	}
	f.emit(&Def{Expression: &Expression{IP: ip, Instr: instr, Uses: uses}, BranchTargets: targets})
}

// ordered emits an instruction that must run in order with respect to the other statements of the function.
func (f *Function) ordered(ip int, instr code.Instruction, flags Flags, localStores *bitset.BitSet, uses Uses, results []wasm.ValueType) {
	all := flags
	for _, u := range uses {
		all |= u.AllFlags
	}
	f.spill(all, localStores)

	d := &Def{Expression: &Expression{IP: ip, Instr: instr, Uses: uses, Flags: flags}, Types: results}
	if len(results) != 0 {
		d.Temp = f.newTemps(results)
	}
	f.emit(d)
	f.pushTemps(results, d.Temp)
}

// pending pushes an instruction that produces a single value as an expression tree.
func (f *Function) pending(ip int, instr code.Instruction, flags Flags, uses Uses, result wasm.ValueType) {
	x := &Expression{IP: ip, Instr: instr, Uses: uses, Flags: flags}
	if c, ok := evaluate(x, result); ok {
		x = &Expression{IP: ip, Instr: c}
	}

	u := UseExpression(result, x)
	if u.Depth > f.MaxPendingDepth {
		f.spill(u.AllFlags, nil)
		u = f.materialize(u)
	}
	f.stack = append(f.stack, u)
}

// ImportInstruction adds a single decoded instruction to the function.
func (f *Function) ImportInstruction(ip int, instr code.Instruction, scope code.Scope) {
	if f.unreachable() {
		f.importUnreachable(ip, instr)
		return
	}

	switch instr.Opcode {
	case code.OpNop:
		// no-op

	case code.OpUnreachable:
		f.flushAll()
		f.emit(&Def{Expression: &Expression{IP: ip, Instr: instr, Flags: FlagsMayTrap}})
		f.setUnreachable()

	case code.OpBlock, code.OpLoop, code.OpIf:
		ins, outs, _ := instr.BlockType(scope)
		var cond *Use
		if instr.Opcode == code.OpIf {
			cond = f.pop()
		}
		uses := f.popN(len(ins))
		if cond != nil {
			uses = append(uses, cond)
		}
		f.flushAll()
		f.enterBlock(ip, instr, ins, outs, uses)

	case code.OpElse:
		f.enterElse(ip, instr, f.popN(len(f.top().Outs)))

	case code.OpEnd:
		f.exitBlock(ip, instr, f.popN(len(f.top().Outs)))

	case code.OpBr:
		dest := f.label(instr.Labelidx())
		uses := f.popN(len(dest.LabelTypes()))
		f.flushAll()
		f.branch(ip, instr, uses, dest)
		f.setUnreachable()

	case code.OpBrIf:
		dest := f.label(instr.Labelidx())
		cond := f.pop()

		// The branch values remain on the stack if the branch is not taken, so they must be temps.
		f.flushAll()
		values := f.popN(len(dest.LabelTypes()))
		f.branch(ip, instr, append(append(Uses(nil), values...), cond), dest)
		f.stack = append(f.stack, values...)

	case code.OpBrTable:
		targets := make([]*Block, 0, len(instr.Labels)+1)
		for _, l := range instr.Labels {
			targets = append(targets, f.label(l))
		}
		dest := f.label(instr.Default())
		targets = append(targets, dest)

		index := f.pop()
		uses := append(f.popN(len(dest.LabelTypes())), index)
		f.flushAll()
		f.branch(ip, instr, uses, targets...)
		f.setUnreachable()

	case code.OpReturn:
		uses := f.popN(len(f.Signature.ReturnTypes))
		f.flushAll()
		f.branch(ip, instr, uses, f.control[0])
		f.setUnreachable()

	case code.OpLocalTee:
		// Decompose tee into a set followed by a get to avoid extra temps and allow for code motion.
		f.ImportInstruction(ip, code.LocalSet(instr.Localidx()), scope)
		f.ImportInstruction(ip, code.LocalGet(instr.Localidx()), scope)

	case code.OpLocalSet:
		var stores bitset.BitSet
		stores.Set(uint(instr.Localidx()))
		f.ordered(ip, instr, FlagsStoreLocal, &stores, f.popN(1), nil)

	case code.OpDrop:
		// Dropped expressions are only evaluated if they may trap.
		if u := f.pop(); !u.IsTemp() && u.AllFlags&FlagsMayTrap != 0 {
			f.ordered(ip, instr, 0, nil, Uses{u}, nil)
		}

	default:
		pop, push := instr.Types(scope)
		uses := f.popN(len(pop))
		flags := instructionFlags(instr.Opcode)

		if isOrdered(instr.Opcode) {
			f.ordered(ip, instr, flags, nil, uses, push)
			return
		}

		result := push[0]
		if result == wasm.ValueTypeT {
			result = uses[0].Type
		}
		f.pending(ip, instr, flags, uses, result)
	}
}

// importUnreachable handles an instruction that follows an unconditional control transfer. Only the structure of
// the code matters: blocks entered in unreachable code are ignored entirely, and an else or end of a reachable
// block resumes compilation.
func (f *Function) importUnreachable(ip int, instr code.Instruction) {
	switch instr.Opcode {
	case code.OpBlock, code.OpLoop, code.OpIf:
		f.control = append(f.control, &Block{Label: len(f.control), StackHeight: len(f.stack), Unreachable: true, NeverReachable: true})
	case code.OpElse:
		if !f.top().NeverReachable {
			f.enterElse(ip, instr, nil)
		}
	case code.OpEnd:
		if b := f.top(); b.NeverReachable {
			f.control = f.control[:len(f.control)-1]
		} else {
			f.exitBlock(ip, instr, nil)
		}
	}
}

func isOrdered(op code.Opcode) bool {
	switch op {
	case code.OpCall, code.OpCallIndirect,
		code.OpGlobalSet,
		code.OpI32Store, code.OpI64Store, code.OpF32Store, code.OpF64Store,
		code.OpI32Store8, code.OpI32Store16, code.OpI64Store8, code.OpI64Store16, code.OpI64Store32,
		code.OpMemoryGrow, code.OpMemoryInit, code.OpDataDrop, code.OpMemoryCopy, code.OpMemoryFill,
		code.OpTableSet, code.OpTableInit, code.OpElemDrop, code.OpTableCopy, code.OpTableGrow, code.OpTableFill:
		return true
	default:
		return false
	}
}

func instructionFlags(op code.Opcode) Flags {
	switch op {
	case code.OpLocalGet:
		return FlagsLoadLocal
	case code.OpGlobalGet:
		return FlagsLoadGlobal
	case code.OpGlobalSet:
		return FlagsStoreGlobal

	case code.OpCall, code.OpCallIndirect:
		return FlagsCall

	case code.OpI32Load, code.OpI64Load, code.OpF32Load, code.OpF64Load,
		code.OpI32Load8S, code.OpI32Load8U, code.OpI32Load16S, code.OpI32Load16U,
		code.OpI64Load8S, code.OpI64Load8U, code.OpI64Load16S, code.OpI64Load16U, code.OpI64Load32S, code.OpI64Load32U:
		return FlagsLoadMem | FlagsMayTrap
	case code.OpI32Store, code.OpI64Store, code.OpF32Store, code.OpF64Store,
		code.OpI32Store8, code.OpI32Store16, code.OpI64Store8, code.OpI64Store16, code.OpI64Store32,
		code.OpMemoryInit, code.OpMemoryFill:
		return FlagsStoreMem | FlagsMayTrap
	case code.OpMemoryCopy:
		return FlagsLoadMem | FlagsStoreMem | FlagsMayTrap
	case code.OpMemorySize:
		return FlagsLoadMem
	case code.OpMemoryGrow, code.OpDataDrop:
		return FlagsStoreMem

	case code.OpTableGet:
		return FlagsLoadTable | FlagsMayTrap
	case code.OpTableSize:
		return FlagsLoadTable
	case code.OpTableSet, code.OpTableFill, code.OpTableInit:
		return FlagsStoreTable | FlagsMayTrap
	case code.OpTableCopy:
		return FlagsLoadTable | FlagsStoreTable | FlagsMayTrap
	case code.OpTableGrow, code.OpElemDrop:
		return FlagsStoreTable

	case code.OpI32DivS, code.OpI32DivU, code.OpI32RemS, code.OpI32RemU,
		code.OpI64DivS, code.OpI64DivU, code.OpI64RemS, code.OpI64RemU,
		code.OpI32TruncF32S, code.OpI32TruncF32U, code.OpI32TruncF64S, code.OpI32TruncF64U,
		code.OpI64TruncF32S, code.OpI64TruncF32U, code.OpI64TruncF64S, code.OpI64TruncF64U:
		return FlagsMayTrap

	default:
		return 0
	}
}
