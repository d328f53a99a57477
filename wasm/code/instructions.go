package code

import (
	"math"

	"github.com/pgavlin/polywarp/wasm"
)

// Op returns an instruction with no immediates.
func Op(op Opcode) Instruction {
	return Instruction{Opcode: op}
}

func Unreachable() Instruction {
	return Instruction{Opcode: OpUnreachable}
}

func Nop() Instruction {
	return Instruction{Opcode: OpNop}
}

func blockType(blockType []uint64) uint64 {
	if len(blockType) != 0 {
		return blockType[0]
	}
	return BlockTypeEmpty
}

func Block(bt ...uint64) Instruction {
	return Instruction{Opcode: OpBlock, Immediate: blockType(bt)}
}

func Loop(bt ...uint64) Instruction {
	return Instruction{Opcode: OpLoop, Immediate: blockType(bt)}
}

func If(bt ...uint64) Instruction {
	return Instruction{Opcode: OpIf, Immediate: blockType(bt)}
}

func Else() Instruction {
	return Instruction{Opcode: OpElse}
}

func End() Instruction {
	return Instruction{Opcode: OpEnd}
}

func Br(labelidx int) Instruction {
	return Instruction{Opcode: OpBr, Immediate: uint64(labelidx)}
}

func BrIf(labelidx int) Instruction {
	return Instruction{Opcode: OpBrIf, Immediate: uint64(labelidx)}
}

// BrTable returns a br_table instruction that branches to labels[i] for an index i in range and to defaultLabel
// otherwise.
func BrTable(defaultLabel int, labels ...int) Instruction {
	return Instruction{Opcode: OpBrTable, Immediate: uint64(defaultLabel), Labels: append([]int(nil), labels...)}
}

func Return() Instruction {
	return Instruction{Opcode: OpReturn}
}

func Call(funcidx uint32) Instruction {
	return Instruction{Opcode: OpCall, Immediate: uint64(funcidx)}
}

func CallIndirect(typeidx, tableidx uint32) Instruction {
	return Instruction{Opcode: OpCallIndirect, Immediate: pack(tableidx, typeidx)}
}

func Drop() Instruction {
	return Instruction{Opcode: OpDrop}
}

func Select() Instruction {
	return Instruction{Opcode: OpSelect}
}

func SelectT(t wasm.ValueType) Instruction {
	return Instruction{Opcode: OpSelectT, Immediate: uint64(t)}
}

func LocalGet(localidx uint32) Instruction {
	return Instruction{Opcode: OpLocalGet, Immediate: uint64(localidx)}
}

func LocalSet(localidx uint32) Instruction {
	return Instruction{Opcode: OpLocalSet, Immediate: uint64(localidx)}
}

func LocalTee(localidx uint32) Instruction {
	return Instruction{Opcode: OpLocalTee, Immediate: uint64(localidx)}
}

func GlobalGet(globalidx uint32) Instruction {
	return Instruction{Opcode: OpGlobalGet, Immediate: uint64(globalidx)}
}

func GlobalSet(globalidx uint32) Instruction {
	return Instruction{Opcode: OpGlobalSet, Immediate: uint64(globalidx)}
}

func TableGet(tableidx uint32) Instruction {
	return Instruction{Opcode: OpTableGet, Immediate: uint64(tableidx)}
}

func TableSet(tableidx uint32) Instruction {
	return Instruction{Opcode: OpTableSet, Immediate: uint64(tableidx)}
}

// Mem returns a load or store instruction with the given offset and alignment exponent.
func Mem(op Opcode, offset, align uint32) Instruction {
	return Instruction{Opcode: op, Immediate: memarg(offset, align)}
}

func MemorySize() Instruction {
	return Instruction{Opcode: OpMemorySize}
}

func MemoryGrow() Instruction {
	return Instruction{Opcode: OpMemoryGrow}
}

func I32Const(v int32) Instruction {
	return Instruction{Opcode: OpI32Const, Immediate: uint64(uint32(v))}
}

func I64Const(v int64) Instruction {
	return Instruction{Opcode: OpI64Const, Immediate: uint64(v)}
}

func F32Const(v float32) Instruction {
	return Instruction{Opcode: OpF32Const, Immediate: uint64(math.Float32bits(v))}
}

func F64Const(v float64) Instruction {
	return Instruction{Opcode: OpF64Const, Immediate: math.Float64bits(v)}
}

func RefNull(t wasm.ValueType) Instruction {
	return Instruction{Opcode: OpRefNull, Immediate: uint64(t)}
}

func RefIsNull() Instruction {
	return Instruction{Opcode: OpRefIsNull}
}

func RefFunc(funcidx uint32) Instruction {
	return Instruction{Opcode: OpRefFunc, Immediate: uint64(funcidx)}
}

func MemoryInit(dataidx uint32) Instruction {
	return Instruction{Opcode: OpMemoryInit, Immediate: uint64(dataidx)}
}

func DataDrop(dataidx uint32) Instruction {
	return Instruction{Opcode: OpDataDrop, Immediate: uint64(dataidx)}
}

func MemoryCopy() Instruction {
	return Instruction{Opcode: OpMemoryCopy}
}

func MemoryFill() Instruction {
	return Instruction{Opcode: OpMemoryFill}
}

func TableInit(elemidx, tableidx uint32) Instruction {
	return Instruction{Opcode: OpTableInit, Immediate: pack(tableidx, elemidx)}
}

func ElemDrop(elemidx uint32) Instruction {
	return Instruction{Opcode: OpElemDrop, Immediate: uint64(elemidx)}
}

func TableCopy(dst, src uint32) Instruction {
	return Instruction{Opcode: OpTableCopy, Immediate: pack(dst, src)}
}

func TableGrow(tableidx uint32) Instruction {
	return Instruction{Opcode: OpTableGrow, Immediate: uint64(tableidx)}
}

func TableSize(tableidx uint32) Instruction {
	return Instruction{Opcode: OpTableSize, Immediate: uint64(tableidx)}
}

func TableFill(tableidx uint32) Instruction {
	return Instruction{Opcode: OpTableFill, Immediate: uint64(tableidx)}
}
