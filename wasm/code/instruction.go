package code

import (
	"fmt"
	"math"
	"strings"

	"github.com/pgavlin/polywarp/wasm"
)

// An Instruction is a single decoded instruction. Instructions with two index immediates pack the second index
// into the upper 32 bits of Immediate.
type Instruction struct {
	Opcode    Opcode `json:"opcode"`
	Immediate uint64 `json:"immediate"`
	Labels    []int  `json:"labels"`
}

// Continuation returns the index of the instruction that follows the end of a block, or the index of a loop
// instruction itself.
func (i *Instruction) Continuation() int {
	return i.Labels[0]
}

// Else returns the index of an if instruction's else instruction, or 0 if it has none.
func (i *Instruction) Else() int {
	return i.Labels[1]
}

func (i *Instruction) StackHeight() int {
	return int((i.Immediate & StackHeightMask) >> 32)
}

func (i *Instruction) Default() int {
	return int(i.Immediate)
}

func (i *Instruction) Labelidx() int {
	return int(i.Immediate)
}

func (i *Instruction) Funcidx() uint32 {
	return uint32(i.Immediate)
}

func (i *Instruction) Localidx() uint32 {
	return uint32(i.Immediate)
}

func (i *Instruction) Globalidx() uint32 {
	return uint32(i.Immediate)
}

func (i *Instruction) Typeidx() uint32 {
	return uint32(i.Immediate)
}

func (i *Instruction) Dataidx() uint32 {
	return uint32(i.Immediate)
}

func (i *Instruction) Elemidx() uint32 {
	return uint32(i.Immediate)
}

// Tableidx returns the table operated on by the instruction. For table.copy this is the destination table.
func (i *Instruction) Tableidx() uint32 {
	switch i.Opcode {
	case OpCallIndirect, OpTableInit, OpTableCopy:
		return uint32(i.Immediate >> 32)
	default:
		return uint32(i.Immediate)
	}
}

// SourceTableidx returns the source table of a table.copy instruction.
func (i *Instruction) SourceTableidx() uint32 {
	return uint32(i.Immediate)
}

func (i *Instruction) Memarg() (offset uint32, align uint32) {
	return uint32(i.Immediate), uint32(i.Immediate >> 32)
}

func (i *Instruction) Offset() uint32 {
	return uint32(i.Immediate)
}

// ValueType returns the type immediate of a typed select or a ref.null.
func (i *Instruction) ValueType() wasm.ValueType {
	return wasm.ValueType(i.Immediate)
}

func (i *Instruction) I32() int32 {
	return int32(i.Immediate)
}

func (i *Instruction) I64() int64 {
	return int64(i.Immediate)
}

func (i *Instruction) F32() float32 {
	return math.Float32frombits(uint32(i.Immediate))
}

func (i *Instruction) F64() float64 {
	return math.Float64frombits(i.Immediate)
}

// Size returns the natural access width in bytes of a load or store, or 0 for other instructions.
func (i *Instruction) Size() uint32 {
	if info := i.Opcode.info(); info != nil {
		return info.size
	}
	return 0
}

func (i *Instruction) BlockType(scope Scope) (in, out []wasm.ValueType, ok bool) {
	bt := i.Immediate & BlockTypeMask
	if bt&BlockTypeSpecial != 0 {
		switch t := wasm.ValueType(bt); t {
		case 0x40:
			return nil, nil, true
		case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64, wasm.ValueTypeFuncref, wasm.ValueTypeExternref:
			return nil, []wasm.ValueType{t}, true
		default:
			return nil, nil, false
		}
	}
	sig, ok := scope.GetType(uint32(bt))
	if !ok {
		return nil, nil, false
	}
	return sig.ParamTypes, sig.ReturnTypes, true
}

// Types returns the operand types consumed and produced by a non-control instruction. Operands whose types are
// only known from the state of the operand stack are reported as wasm.ValueTypeT.
func (i *Instruction) Types(scope Scope) (pop, push []wasm.ValueType) {
	const (
		I32 = wasm.ValueTypeI32
		T   = wasm.ValueTypeT
	)

	if info := i.Opcode.info(); info != nil && info.fixed {
		return info.pop, info.push
	}

	switch i.Opcode {
	case OpCall:
		sig, _ := scope.GetFunctionSignature(i.Funcidx())
		return sig.ParamTypes, sig.ReturnTypes
	case OpCallIndirect:
		sig, _ := scope.GetType(i.Typeidx())
		return append(append([]wasm.ValueType(nil), sig.ParamTypes...), I32), sig.ReturnTypes

	case OpDrop:
		return []wasm.ValueType{T}, nil
	case OpSelect:
		return []wasm.ValueType{T, T, I32}, []wasm.ValueType{T}
	case OpSelectT:
		t := i.ValueType()
		return []wasm.ValueType{t, t, I32}, []wasm.ValueType{t}

	case OpLocalGet:
		t, _ := scope.GetLocalType(i.Localidx())
		return nil, []wasm.ValueType{t}
	case OpLocalSet:
		t, _ := scope.GetLocalType(i.Localidx())
		return []wasm.ValueType{t}, nil
	case OpLocalTee:
		t, _ := scope.GetLocalType(i.Localidx())
		return []wasm.ValueType{t}, []wasm.ValueType{t}
	case OpGlobalGet:
		t, _ := scope.GetGlobalType(i.Globalidx())
		return nil, []wasm.ValueType{t.Type}
	case OpGlobalSet:
		t, _ := scope.GetGlobalType(i.Globalidx())
		return []wasm.ValueType{t.Type}, nil

	case OpTableGet:
		t, _ := scope.GetTableType(i.Tableidx())
		return []wasm.ValueType{I32}, []wasm.ValueType{t}
	case OpTableSet:
		t, _ := scope.GetTableType(i.Tableidx())
		return []wasm.ValueType{I32, t}, nil
	case OpTableGrow:
		t, _ := scope.GetTableType(i.Tableidx())
		return []wasm.ValueType{t, I32}, []wasm.ValueType{I32}
	case OpTableSize:
		return nil, []wasm.ValueType{I32}
	case OpTableFill:
		t, _ := scope.GetTableType(i.Tableidx())
		return []wasm.ValueType{I32, t, I32}, nil
	case OpTableInit, OpTableCopy, OpMemoryInit:
		return []wasm.ValueType{I32, I32, I32}, nil
	case OpElemDrop, OpDataDrop:
		return nil, nil

	case OpRefNull:
		return nil, []wasm.ValueType{i.ValueType()}
	case OpRefIsNull:
		return []wasm.ValueType{T}, []wasm.ValueType{I32}
	case OpRefFunc:
		return nil, []wasm.ValueType{wasm.ValueTypeFuncref}
	}
	return nil, nil
}

func memarg(offset, align uint32) uint64 {
	return uint64(align)<<32 | uint64(offset)
}

func pack(hi, lo uint32) uint64 {
	return uint64(hi)<<32 | uint64(lo)
}

func (i *Instruction) blockString(op string) string {
	switch bt := i.Immediate & BlockTypeMask; {
	case bt == BlockTypeEmpty:
		return op
	case bt&BlockTypeSpecial != 0:
		return fmt.Sprintf("%s (result %v)", op, wasm.ValueType(bt))
	default:
		return fmt.Sprintf("%s (type %d)", op, uint32(bt))
	}
}

func (i *Instruction) String() string {
	info := i.Opcode.info()
	if info == nil {
		return i.Opcode.String()
	}

	name := info.name
	switch info.imm {
	case immBlockType:
		return i.blockString(name)
	case immIndex:
		return fmt.Sprintf("%s %d", name, uint32(i.Immediate))
	case immBrTable:
		var b strings.Builder
		b.WriteString(name)
		for _, l := range i.Labels {
			fmt.Fprintf(&b, " %d", l)
		}
		fmt.Fprintf(&b, " %d", i.Default())
		return b.String()
	case immCallIndirect:
		return fmt.Sprintf("%s %d (type %d)", name, i.Tableidx(), i.Typeidx())
	case immMemarg:
		offset, align := i.Memarg()
		var b strings.Builder
		b.WriteString(name)
		if offset != 0 {
			fmt.Fprintf(&b, " offset=%d", offset)
		}
		if align != 0 {
			fmt.Fprintf(&b, " align=%d", 1<<align)
		}
		return b.String()
	case immI32:
		return fmt.Sprintf("%s %d", name, i.I32())
	case immI64:
		return fmt.Sprintf("%s %d", name, i.I64())
	case immF32:
		return fmt.Sprintf("%s %v", name, i.F32())
	case immF64:
		return fmt.Sprintf("%s %v", name, i.F64())
	case immValueTypes:
		return fmt.Sprintf("%s (result %v)", name, i.ValueType())
	case immRefType:
		if i.ValueType() == wasm.ValueTypeFuncref {
			return name + " func"
		}
		return name + " extern"
	case immTableInit:
		return fmt.Sprintf("%s %d %d", name, i.Tableidx(), i.Elemidx())
	case immTableCopy:
		return fmt.Sprintf("%s %d %d", name, i.Tableidx(), i.SourceTableidx())
	case immMemoryInit:
		return fmt.Sprintf("%s %d", name, i.Dataidx())
	default:
		return name
	}
}
