package wax

import (
	"github.com/willf/bitset"

	"github.com/pgavlin/polywarp/wasm"
	"github.com/pgavlin/polywarp/wasm/code"
)

// Flags describe the state read and written by an expression.
type Flags int32

const (
	FlagsLoadLocal Flags = 1 << iota
	FlagsLoadGlobal
	FlagsLoadMem
	FlagsLoadTable
	FlagsStoreLocal
	FlagsStoreGlobal
	FlagsStoreMem
	FlagsStoreTable
	FlagsMayTrap

	FlagsLoadMask  = FlagsLoadLocal | FlagsLoadGlobal | FlagsLoadMem | FlagsLoadTable
	FlagsStoreMask = FlagsStoreLocal | FlagsStoreGlobal | FlagsStoreMem | FlagsStoreTable

	// FlagsCall describes the effects of a call. Callees cannot observe or modify the caller's locals.
	FlagsCall = FlagsLoadGlobal | FlagsLoadMem | FlagsLoadTable | FlagsStoreGlobal | FlagsStoreMem | FlagsStoreTable | FlagsMayTrap
)

// CanMoveAfter returns true if an expression with flags f that was evaluated before an expression with flags g may
// instead be evaluated after it.
//
// Neither expression may store state that the other loads. An expression that may trap cannot move after a store
// to non-local state or after another expression that may trap, as either would change which effects are visible
// when the trap occurs. Stores to locals are invisible after a trap.
func (f Flags) CanMoveAfter(g Flags) bool {
	if (f&FlagsLoadMask)&((g&FlagsStoreMask)>>4) != 0 || (g&FlagsLoadMask)&((f&FlagsStoreMask)>>4) != 0 {
		return false
	}

	const visibleEffects = (FlagsStoreMask &^ FlagsStoreLocal) | FlagsMayTrap
	if f&FlagsMayTrap != 0 && g&visibleEffects != 0 {
		return false
	}
	if g&FlagsMayTrap != 0 && f&visibleEffects != 0 {
		return false
	}
	return true
}

// An Expression is a single instruction and its operands.
type Expression struct {
	IP    int
	Instr code.Instruction
	Uses  Uses
	Flags Flags
}

// A Use is an operand. Operands are either pending expression trees or temps.
type Use struct {
	Type wasm.ValueType

	// AllFlags is the union of the flags of the expression tree.
	AllFlags Flags
	// Locals is the set of locals read by the expression tree.
	Locals bitset.BitSet
	// Depth is the height of the expression tree, or 0 for a temp.
	Depth int

	Temp int
	X    *Expression
}

// UseExpression creates a use of the single result of an expression.
func UseExpression(type_ wasm.ValueType, x *Expression) *Use {
	u := &Use{Type: type_, AllFlags: x.Flags, X: x, Temp: -1}
	if x.Instr.Opcode == code.OpLocalGet {
		u.Locals.Set(uint(x.Instr.Localidx()))
	}

	depth := 0
	for _, arg := range x.Uses {
		u.AllFlags |= arg.AllFlags
		if arg.Locals.Len() != 0 {
			u.Locals.InPlaceUnion(&arg.Locals)
		}
		if arg.Depth > depth {
			depth = arg.Depth
		}
	}
	u.Depth = depth + 1
	return u
}

// UseTemp creates a use of a temp.
func UseTemp(type_ wasm.ValueType, temp int) *Use {
	return &Use{Type: type_, Temp: temp}
}

func (u *Use) IsTemp() bool {
	return u.X == nil
}

// CanMoveAfter returns true if the use may be evaluated after an instruction with the given flags that stores to
// the given locals.
func (u *Use) CanMoveAfter(flags Flags, localStores *bitset.BitSet) bool {
	if u.IsTemp() {
		return true
	}

	// If there is global, memory, table, or trap interference, no move is possible.
	if !(u.AllFlags &^ FlagsLoadLocal).CanMoveAfter(flags &^ (FlagsLoadLocal | FlagsStoreLocal)) {
		return false
	}

	// Otherwise, the use can be moved if the local sets do not intersect.
	return localStores == nil || u.Locals.IntersectionCardinality(localStores) == 0
}

func (u *Use) IsConst() bool {
	if !u.IsTemp() {
		switch u.X.Instr.Opcode {
		case code.OpI32Const, code.OpI64Const, code.OpF32Const, code.OpF64Const:
			return true
		}
	}
	return false
}

type Uses []*Use

// A Block is a structured control construct: a block, loop, if, or the function body itself.
type Block struct {
	Kind  code.Opcode
	Entry *Def
	Else  *Def
	End   *Def

	// Label is the block's nesting level. The function body has label 0.
	Label       int
	StackHeight int

	BranchTarget   bool
	Unreachable    bool
	NeverReachable bool

	Ins  []wasm.ValueType
	Outs []wasm.ValueType

	// InTemp is the first temp that holds the block's parameters. Branches to a loop write its parameters.
	InTemp int
	// OutTemp is the first temp that holds the block's results. Branches to any other block write its results.
	OutTemp int
}

// IsLoop returns true if the block is a loop.
func (b *Block) IsLoop() bool {
	return b.Kind == code.OpLoop
}

// LabelTypes returns the types of the values carried by a branch to the block.
func (b *Block) LabelTypes() []wasm.ValueType {
	if b.IsLoop() {
		return b.Ins
	}
	return b.Outs
}

// LabelTemp returns the first temp written by a branch to the block.
func (b *Block) LabelTemp() int {
	if b.IsLoop() {
		return b.InTemp
	}
	return b.OutTemp
}

// A Def is a statement. Defs run in order; each evaluates its uses and performs its instruction. Defs with
// result types write their results to consecutive temps starting at Temp.
//
// A Def whose instruction produces a single value and has no other effect is a flush: it evaluates a pending
// expression into a temp.
type Def struct {
	*Expression

	Block *Block

	BranchTargets []*Block
	Types         []wasm.ValueType
	Temp          int
}
