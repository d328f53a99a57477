package code

import (
	"fmt"

	"github.com/pgavlin/polywarp/wasm"
)

// Opcode identifies an instruction. Instructions behind the 0xFC prefix are numbered 0xFC00 plus their
// sub-opcode.
type Opcode uint16

const (
	OpUnreachable Opcode = 0x00
	OpNop         Opcode = 0x01
	OpBlock       Opcode = 0x02
	OpLoop        Opcode = 0x03
	OpIf          Opcode = 0x04
	OpElse        Opcode = 0x05

	OpEnd          Opcode = 0x0b
	OpBr           Opcode = 0x0c
	OpBrIf         Opcode = 0x0d
	OpBrTable      Opcode = 0x0e
	OpReturn       Opcode = 0x0f
	OpCall         Opcode = 0x10
	OpCallIndirect Opcode = 0x11

	OpDrop    Opcode = 0x1a
	OpSelect  Opcode = 0x1b
	OpSelectT Opcode = 0x1c

	OpLocalGet  Opcode = 0x20
	OpLocalSet  Opcode = 0x21
	OpLocalTee  Opcode = 0x22
	OpGlobalGet Opcode = 0x23
	OpGlobalSet Opcode = 0x24
	OpTableGet  Opcode = 0x25
	OpTableSet  Opcode = 0x26

	OpI32Load           Opcode = 0x28
	OpI64Load           Opcode = 0x29
	OpF32Load           Opcode = 0x2a
	OpF64Load           Opcode = 0x2b
	OpI32Load8S         Opcode = 0x2c
	OpI32Load8U         Opcode = 0x2d
	OpI32Load16S        Opcode = 0x2e
	OpI32Load16U        Opcode = 0x2f
	OpI64Load8S         Opcode = 0x30
	OpI64Load8U         Opcode = 0x31
	OpI64Load16S        Opcode = 0x32
	OpI64Load16U        Opcode = 0x33
	OpI64Load32S        Opcode = 0x34
	OpI64Load32U        Opcode = 0x35
	OpI32Store          Opcode = 0x36
	OpI64Store          Opcode = 0x37
	OpF32Store          Opcode = 0x38
	OpF64Store          Opcode = 0x39
	OpI32Store8         Opcode = 0x3a
	OpI32Store16        Opcode = 0x3b
	OpI64Store8         Opcode = 0x3c
	OpI64Store16        Opcode = 0x3d
	OpI64Store32        Opcode = 0x3e
	OpMemorySize        Opcode = 0x3f
	OpMemoryGrow        Opcode = 0x40
	OpI32Const          Opcode = 0x41
	OpI64Const          Opcode = 0x42
	OpF32Const          Opcode = 0x43
	OpF64Const          Opcode = 0x44
	OpI32Eqz            Opcode = 0x45
	OpI32Eq             Opcode = 0x46
	OpI32Ne             Opcode = 0x47
	OpI32LtS            Opcode = 0x48
	OpI32LtU            Opcode = 0x49
	OpI32GtS            Opcode = 0x4a
	OpI32GtU            Opcode = 0x4b
	OpI32LeS            Opcode = 0x4c
	OpI32LeU            Opcode = 0x4d
	OpI32GeS            Opcode = 0x4e
	OpI32GeU            Opcode = 0x4f
	OpI64Eqz            Opcode = 0x50
	OpI64Eq             Opcode = 0x51
	OpI64Ne             Opcode = 0x52
	OpI64LtS            Opcode = 0x53
	OpI64LtU            Opcode = 0x54
	OpI64GtS            Opcode = 0x55
	OpI64GtU            Opcode = 0x56
	OpI64LeS            Opcode = 0x57
	OpI64LeU            Opcode = 0x58
	OpI64GeS            Opcode = 0x59
	OpI64GeU            Opcode = 0x5a
	OpF32Eq             Opcode = 0x5b
	OpF32Ne             Opcode = 0x5c
	OpF32Lt             Opcode = 0x5d
	OpF32Gt             Opcode = 0x5e
	OpF32Le             Opcode = 0x5f
	OpF32Ge             Opcode = 0x60
	OpF64Eq             Opcode = 0x61
	OpF64Ne             Opcode = 0x62
	OpF64Lt             Opcode = 0x63
	OpF64Gt             Opcode = 0x64
	OpF64Le             Opcode = 0x65
	OpF64Ge             Opcode = 0x66
	OpI32Clz            Opcode = 0x67
	OpI32Ctz            Opcode = 0x68
	OpI32Popcnt         Opcode = 0x69
	OpI32Add            Opcode = 0x6a
	OpI32Sub            Opcode = 0x6b
	OpI32Mul            Opcode = 0x6c
	OpI32DivS           Opcode = 0x6d
	OpI32DivU           Opcode = 0x6e
	OpI32RemS           Opcode = 0x6f
	OpI32RemU           Opcode = 0x70
	OpI32And            Opcode = 0x71
	OpI32Or             Opcode = 0x72
	OpI32Xor            Opcode = 0x73
	OpI32Shl            Opcode = 0x74
	OpI32ShrS           Opcode = 0x75
	OpI32ShrU           Opcode = 0x76
	OpI32Rotl           Opcode = 0x77
	OpI32Rotr           Opcode = 0x78
	OpI64Clz            Opcode = 0x79
	OpI64Ctz            Opcode = 0x7a
	OpI64Popcnt         Opcode = 0x7b
	OpI64Add            Opcode = 0x7c
	OpI64Sub            Opcode = 0x7d
	OpI64Mul            Opcode = 0x7e
	OpI64DivS           Opcode = 0x7f
	OpI64DivU           Opcode = 0x80
	OpI64RemS           Opcode = 0x81
	OpI64RemU           Opcode = 0x82
	OpI64And            Opcode = 0x83
	OpI64Or             Opcode = 0x84
	OpI64Xor            Opcode = 0x85
	OpI64Shl            Opcode = 0x86
	OpI64ShrS           Opcode = 0x87
	OpI64ShrU           Opcode = 0x88
	OpI64Rotl           Opcode = 0x89
	OpI64Rotr           Opcode = 0x8a
	OpF32Abs            Opcode = 0x8b
	OpF32Neg            Opcode = 0x8c
	OpF32Ceil           Opcode = 0x8d
	OpF32Floor          Opcode = 0x8e
	OpF32Trunc          Opcode = 0x8f
	OpF32Nearest        Opcode = 0x90
	OpF32Sqrt           Opcode = 0x91
	OpF32Add            Opcode = 0x92
	OpF32Sub            Opcode = 0x93
	OpF32Mul            Opcode = 0x94
	OpF32Div            Opcode = 0x95
	OpF32Min            Opcode = 0x96
	OpF32Max            Opcode = 0x97
	OpF32Copysign       Opcode = 0x98
	OpF64Abs            Opcode = 0x99
	OpF64Neg            Opcode = 0x9a
	OpF64Ceil           Opcode = 0x9b
	OpF64Floor          Opcode = 0x9c
	OpF64Trunc          Opcode = 0x9d
	OpF64Nearest        Opcode = 0x9e
	OpF64Sqrt           Opcode = 0x9f
	OpF64Add            Opcode = 0xa0
	OpF64Sub            Opcode = 0xa1
	OpF64Mul            Opcode = 0xa2
	OpF64Div            Opcode = 0xa3
	OpF64Min            Opcode = 0xa4
	OpF64Max            Opcode = 0xa5
	OpF64Copysign       Opcode = 0xa6
	OpI32WrapI64        Opcode = 0xa7
	OpI32TruncF32S      Opcode = 0xa8
	OpI32TruncF32U      Opcode = 0xa9
	OpI32TruncF64S      Opcode = 0xaa
	OpI32TruncF64U      Opcode = 0xab
	OpI64ExtendI32S     Opcode = 0xac
	OpI64ExtendI32U     Opcode = 0xad
	OpI64TruncF32S      Opcode = 0xae
	OpI64TruncF32U      Opcode = 0xaf
	OpI64TruncF64S      Opcode = 0xb0
	OpI64TruncF64U      Opcode = 0xb1
	OpF32ConvertI32S    Opcode = 0xb2
	OpF32ConvertI32U    Opcode = 0xb3
	OpF32ConvertI64S    Opcode = 0xb4
	OpF32ConvertI64U    Opcode = 0xb5
	OpF32DemoteF64      Opcode = 0xb6
	OpF64ConvertI32S    Opcode = 0xb7
	OpF64ConvertI32U    Opcode = 0xb8
	OpF64ConvertI64S    Opcode = 0xb9
	OpF64ConvertI64U    Opcode = 0xba
	OpF64PromoteF32     Opcode = 0xbb
	OpI32ReinterpretF32 Opcode = 0xbc
	OpI64ReinterpretF64 Opcode = 0xbd
	OpF32ReinterpretI32 Opcode = 0xbe
	OpF64ReinterpretI64 Opcode = 0xbf
	OpI32Extend8S       Opcode = 0xc0
	OpI32Extend16S      Opcode = 0xc1
	OpI64Extend8S       Opcode = 0xc2
	OpI64Extend16S      Opcode = 0xc3
	OpI64Extend32S      Opcode = 0xc4

	OpRefNull   Opcode = 0xd0
	OpRefIsNull Opcode = 0xd1
	OpRefFunc   Opcode = 0xd2

	// OpPrefix is the byte that introduces a prefixed instruction.
	OpPrefix Opcode = 0xfc
)

const (
	OpI32TruncSatF32S Opcode = 0xfc00
	OpI32TruncSatF32U Opcode = 0xfc01
	OpI32TruncSatF64S Opcode = 0xfc02
	OpI32TruncSatF64U Opcode = 0xfc03
	OpI64TruncSatF32S Opcode = 0xfc04
	OpI64TruncSatF32U Opcode = 0xfc05
	OpI64TruncSatF64S Opcode = 0xfc06
	OpI64TruncSatF64U Opcode = 0xfc07

	OpMemoryInit Opcode = 0xfc08
	OpDataDrop   Opcode = 0xfc09
	OpMemoryCopy Opcode = 0xfc0a
	OpMemoryFill Opcode = 0xfc0b
	OpTableInit  Opcode = 0xfc0c
	OpElemDrop   Opcode = 0xfc0d
	OpTableCopy  Opcode = 0xfc0e
	OpTableGrow  Opcode = 0xfc0f
	OpTableSize  Opcode = 0xfc10
	OpTableFill  Opcode = 0xfc11
)

// immediate describes the encoding of an instruction's immediate operands.
type immediate uint8

const (
	immNone immediate = iota
	immBlockType
	immIndex
	immBrTable
	immCallIndirect
	immMemarg
	immMemory
	immI32
	immI64
	immF32
	immF64
	immValueTypes
	immRefType
	immMemoryInit
	immMemoryCopy
	immTableInit
	immTableCopy
)

type opInfo struct {
	name string
	imm  immediate

	// fixed is true if pop and push describe the instruction's operands regardless of its immediates.
	fixed     bool
	pop, push []wasm.ValueType

	// size is the natural access width in bytes of a load or store.
	size uint32
}

var (
	typesF32       = []wasm.ValueType{wasm.ValueTypeF32}
	typesF64       = []wasm.ValueType{wasm.ValueTypeF64}
	typesI32       = []wasm.ValueType{wasm.ValueTypeI32}
	typesI64       = []wasm.ValueType{wasm.ValueTypeI64}
	typesF32F32    = []wasm.ValueType{wasm.ValueTypeF32, wasm.ValueTypeF32}
	typesF64F64    = []wasm.ValueType{wasm.ValueTypeF64, wasm.ValueTypeF64}
	typesI32F32    = []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeF32}
	typesI32F64    = []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeF64}
	typesI32I32    = []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}
	typesI32I64    = []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI64}
	typesI64I64    = []wasm.ValueType{wasm.ValueTypeI64, wasm.ValueTypeI64}
	typesI32I32I32 = []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32, wasm.ValueTypeI32}
)

var singleByteOpcodes = [256]opInfo{
	OpUnreachable:       {name: "unreachable", fixed: true},
	OpNop:               {name: "nop", fixed: true},
	OpBlock:             {name: "block", imm: immBlockType},
	OpLoop:              {name: "loop", imm: immBlockType},
	OpIf:                {name: "if", imm: immBlockType},
	OpElse:              {name: "else"},
	OpEnd:               {name: "end"},
	OpBr:                {name: "br", imm: immIndex},
	OpBrIf:              {name: "br_if", imm: immIndex},
	OpBrTable:           {name: "br_table", imm: immBrTable},
	OpReturn:            {name: "return"},
	OpCall:              {name: "call", imm: immIndex},
	OpCallIndirect:      {name: "call_indirect", imm: immCallIndirect},
	OpDrop:              {name: "drop"},
	OpSelect:            {name: "select"},
	OpSelectT:           {name: "select", imm: immValueTypes},
	OpLocalGet:          {name: "local.get", imm: immIndex},
	OpLocalSet:          {name: "local.set", imm: immIndex},
	OpLocalTee:          {name: "local.tee", imm: immIndex},
	OpGlobalGet:         {name: "global.get", imm: immIndex},
	OpGlobalSet:         {name: "global.set", imm: immIndex},
	OpTableGet:          {name: "table.get", imm: immIndex},
	OpTableSet:          {name: "table.set", imm: immIndex},
	OpI32Load:           {name: "i32.load", imm: immMemarg, fixed: true, pop: typesI32, push: typesI32, size: 4},
	OpI64Load:           {name: "i64.load", imm: immMemarg, fixed: true, pop: typesI32, push: typesI64, size: 8},
	OpF32Load:           {name: "f32.load", imm: immMemarg, fixed: true, pop: typesI32, push: typesF32, size: 4},
	OpF64Load:           {name: "f64.load", imm: immMemarg, fixed: true, pop: typesI32, push: typesF64, size: 8},
	OpI32Load8S:         {name: "i32.load8_s", imm: immMemarg, fixed: true, pop: typesI32, push: typesI32, size: 1},
	OpI32Load8U:         {name: "i32.load8_u", imm: immMemarg, fixed: true, pop: typesI32, push: typesI32, size: 1},
	OpI32Load16S:        {name: "i32.load16_s", imm: immMemarg, fixed: true, pop: typesI32, push: typesI32, size: 2},
	OpI32Load16U:        {name: "i32.load16_u", imm: immMemarg, fixed: true, pop: typesI32, push: typesI32, size: 2},
	OpI64Load8S:         {name: "i64.load8_s", imm: immMemarg, fixed: true, pop: typesI32, push: typesI64, size: 1},
	OpI64Load8U:         {name: "i64.load8_u", imm: immMemarg, fixed: true, pop: typesI32, push: typesI64, size: 1},
	OpI64Load16S:        {name: "i64.load16_s", imm: immMemarg, fixed: true, pop: typesI32, push: typesI64, size: 2},
	OpI64Load16U:        {name: "i64.load16_u", imm: immMemarg, fixed: true, pop: typesI32, push: typesI64, size: 2},
	OpI64Load32S:        {name: "i64.load32_s", imm: immMemarg, fixed: true, pop: typesI32, push: typesI64, size: 4},
	OpI64Load32U:        {name: "i64.load32_u", imm: immMemarg, fixed: true, pop: typesI32, push: typesI64, size: 4},
	OpI32Store:          {name: "i32.store", imm: immMemarg, fixed: true, pop: typesI32I32, size: 4},
	OpI64Store:          {name: "i64.store", imm: immMemarg, fixed: true, pop: typesI32I64, size: 8},
	OpF32Store:          {name: "f32.store", imm: immMemarg, fixed: true, pop: typesI32F32, size: 4},
	OpF64Store:          {name: "f64.store", imm: immMemarg, fixed: true, pop: typesI32F64, size: 8},
	OpI32Store8:         {name: "i32.store8", imm: immMemarg, fixed: true, pop: typesI32I32, size: 1},
	OpI32Store16:        {name: "i32.store16", imm: immMemarg, fixed: true, pop: typesI32I32, size: 2},
	OpI64Store8:         {name: "i64.store8", imm: immMemarg, fixed: true, pop: typesI32I64, size: 1},
	OpI64Store16:        {name: "i64.store16", imm: immMemarg, fixed: true, pop: typesI32I64, size: 2},
	OpI64Store32:        {name: "i64.store32", imm: immMemarg, fixed: true, pop: typesI32I64, size: 4},
	OpMemorySize:        {name: "memory.size", imm: immMemory, fixed: true, push: typesI32},
	OpMemoryGrow:        {name: "memory.grow", imm: immMemory, fixed: true, pop: typesI32, push: typesI32},
	OpI32Const:          {name: "i32.const", imm: immI32, fixed: true, push: typesI32},
	OpI64Const:          {name: "i64.const", imm: immI64, fixed: true, push: typesI64},
	OpF32Const:          {name: "f32.const", imm: immF32, fixed: true, push: typesF32},
	OpF64Const:          {name: "f64.const", imm: immF64, fixed: true, push: typesF64},
	OpI32Eqz:            {name: "i32.eqz", fixed: true, pop: typesI32, push: typesI32},
	OpI32Eq:             {name: "i32.eq", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32Ne:             {name: "i32.ne", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32LtS:            {name: "i32.lt_s", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32LtU:            {name: "i32.lt_u", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32GtS:            {name: "i32.gt_s", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32GtU:            {name: "i32.gt_u", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32LeS:            {name: "i32.le_s", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32LeU:            {name: "i32.le_u", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32GeS:            {name: "i32.ge_s", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32GeU:            {name: "i32.ge_u", fixed: true, pop: typesI32I32, push: typesI32},
	OpI64Eqz:            {name: "i64.eqz", fixed: true, pop: typesI64, push: typesI32},
	OpI64Eq:             {name: "i64.eq", fixed: true, pop: typesI64I64, push: typesI32},
	OpI64Ne:             {name: "i64.ne", fixed: true, pop: typesI64I64, push: typesI32},
	OpI64LtS:            {name: "i64.lt_s", fixed: true, pop: typesI64I64, push: typesI32},
	OpI64LtU:            {name: "i64.lt_u", fixed: true, pop: typesI64I64, push: typesI32},
	OpI64GtS:            {name: "i64.gt_s", fixed: true, pop: typesI64I64, push: typesI32},
	OpI64GtU:            {name: "i64.gt_u", fixed: true, pop: typesI64I64, push: typesI32},
	OpI64LeS:            {name: "i64.le_s", fixed: true, pop: typesI64I64, push: typesI32},
	OpI64LeU:            {name: "i64.le_u", fixed: true, pop: typesI64I64, push: typesI32},
	OpI64GeS:            {name: "i64.ge_s", fixed: true, pop: typesI64I64, push: typesI32},
	OpI64GeU:            {name: "i64.ge_u", fixed: true, pop: typesI64I64, push: typesI32},
	OpF32Eq:             {name: "f32.eq", fixed: true, pop: typesF32F32, push: typesI32},
	OpF32Ne:             {name: "f32.ne", fixed: true, pop: typesF32F32, push: typesI32},
	OpF32Lt:             {name: "f32.lt", fixed: true, pop: typesF32F32, push: typesI32},
	OpF32Gt:             {name: "f32.gt", fixed: true, pop: typesF32F32, push: typesI32},
	OpF32Le:             {name: "f32.le", fixed: true, pop: typesF32F32, push: typesI32},
	OpF32Ge:             {name: "f32.ge", fixed: true, pop: typesF32F32, push: typesI32},
	OpF64Eq:             {name: "f64.eq", fixed: true, pop: typesF64F64, push: typesI32},
	OpF64Ne:             {name: "f64.ne", fixed: true, pop: typesF64F64, push: typesI32},
	OpF64Lt:             {name: "f64.lt", fixed: true, pop: typesF64F64, push: typesI32},
	OpF64Gt:             {name: "f64.gt", fixed: true, pop: typesF64F64, push: typesI32},
	OpF64Le:             {name: "f64.le", fixed: true, pop: typesF64F64, push: typesI32},
	OpF64Ge:             {name: "f64.ge", fixed: true, pop: typesF64F64, push: typesI32},
	OpI32Clz:            {name: "i32.clz", fixed: true, pop: typesI32, push: typesI32},
	OpI32Ctz:            {name: "i32.ctz", fixed: true, pop: typesI32, push: typesI32},
	OpI32Popcnt:         {name: "i32.popcnt", fixed: true, pop: typesI32, push: typesI32},
	OpI32Add:            {name: "i32.add", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32Sub:            {name: "i32.sub", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32Mul:            {name: "i32.mul", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32DivS:           {name: "i32.div_s", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32DivU:           {name: "i32.div_u", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32RemS:           {name: "i32.rem_s", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32RemU:           {name: "i32.rem_u", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32And:            {name: "i32.and", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32Or:             {name: "i32.or", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32Xor:            {name: "i32.xor", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32Shl:            {name: "i32.shl", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32ShrS:           {name: "i32.shr_s", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32ShrU:           {name: "i32.shr_u", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32Rotl:           {name: "i32.rotl", fixed: true, pop: typesI32I32, push: typesI32},
	OpI32Rotr:           {name: "i32.rotr", fixed: true, pop: typesI32I32, push: typesI32},
	OpI64Clz:            {name: "i64.clz", fixed: true, pop: typesI64, push: typesI64},
	OpI64Ctz:            {name: "i64.ctz", fixed: true, pop: typesI64, push: typesI64},
	OpI64Popcnt:         {name: "i64.popcnt", fixed: true, pop: typesI64, push: typesI64},
	OpI64Add:            {name: "i64.add", fixed: true, pop: typesI64I64, push: typesI64},
	OpI64Sub:            {name: "i64.sub", fixed: true, pop: typesI64I64, push: typesI64},
	OpI64Mul:            {name: "i64.mul", fixed: true, pop: typesI64I64, push: typesI64},
	OpI64DivS:           {name: "i64.div_s", fixed: true, pop: typesI64I64, push: typesI64},
	OpI64DivU:           {name: "i64.div_u", fixed: true, pop: typesI64I64, push: typesI64},
	OpI64RemS:           {name: "i64.rem_s", fixed: true, pop: typesI64I64, push: typesI64},
	OpI64RemU:           {name: "i64.rem_u", fixed: true, pop: typesI64I64, push: typesI64},
	OpI64And:            {name: "i64.and", fixed: true, pop: typesI64I64, push: typesI64},
	OpI64Or:             {name: "i64.or", fixed: true, pop: typesI64I64, push: typesI64},
	OpI64Xor:            {name: "i64.xor", fixed: true, pop: typesI64I64, push: typesI64},
	OpI64Shl:            {name: "i64.shl", fixed: true, pop: typesI64I64, push: typesI64},
	OpI64ShrS:           {name: "i64.shr_s", fixed: true, pop: typesI64I64, push: typesI64},
	OpI64ShrU:           {name: "i64.shr_u", fixed: true, pop: typesI64I64, push: typesI64},
	OpI64Rotl:           {name: "i64.rotl", fixed: true, pop: typesI64I64, push: typesI64},
	OpI64Rotr:           {name: "i64.rotr", fixed: true, pop: typesI64I64, push: typesI64},
	OpF32Abs:            {name: "f32.abs", fixed: true, pop: typesF32, push: typesF32},
	OpF32Neg:            {name: "f32.neg", fixed: true, pop: typesF32, push: typesF32},
	OpF32Ceil:           {name: "f32.ceil", fixed: true, pop: typesF32, push: typesF32},
	OpF32Floor:          {name: "f32.floor", fixed: true, pop: typesF32, push: typesF32},
	OpF32Trunc:          {name: "f32.trunc", fixed: true, pop: typesF32, push: typesF32},
	OpF32Nearest:        {name: "f32.nearest", fixed: true, pop: typesF32, push: typesF32},
	OpF32Sqrt:           {name: "f32.sqrt", fixed: true, pop: typesF32, push: typesF32},
	OpF32Add:            {name: "f32.add", fixed: true, pop: typesF32F32, push: typesF32},
	OpF32Sub:            {name: "f32.sub", fixed: true, pop: typesF32F32, push: typesF32},
	OpF32Mul:            {name: "f32.mul", fixed: true, pop: typesF32F32, push: typesF32},
	OpF32Div:            {name: "f32.div", fixed: true, pop: typesF32F32, push: typesF32},
	OpF32Min:            {name: "f32.min", fixed: true, pop: typesF32F32, push: typesF32},
	OpF32Max:            {name: "f32.max", fixed: true, pop: typesF32F32, push: typesF32},
	OpF32Copysign:       {name: "f32.copysign", fixed: true, pop: typesF32F32, push: typesF32},
	OpF64Abs:            {name: "f64.abs", fixed: true, pop: typesF64, push: typesF64},
	OpF64Neg:            {name: "f64.neg", fixed: true, pop: typesF64, push: typesF64},
	OpF64Ceil:           {name: "f64.ceil", fixed: true, pop: typesF64, push: typesF64},
	OpF64Floor:          {name: "f64.floor", fixed: true, pop: typesF64, push: typesF64},
	OpF64Trunc:          {name: "f64.trunc", fixed: true, pop: typesF64, push: typesF64},
	OpF64Nearest:        {name: "f64.nearest", fixed: true, pop: typesF64, push: typesF64},
	OpF64Sqrt:           {name: "f64.sqrt", fixed: true, pop: typesF64, push: typesF64},
	OpF64Add:            {name: "f64.add", fixed: true, pop: typesF64F64, push: typesF64},
	OpF64Sub:            {name: "f64.sub", fixed: true, pop: typesF64F64, push: typesF64},
	OpF64Mul:            {name: "f64.mul", fixed: true, pop: typesF64F64, push: typesF64},
	OpF64Div:            {name: "f64.div", fixed: true, pop: typesF64F64, push: typesF64},
	OpF64Min:            {name: "f64.min", fixed: true, pop: typesF64F64, push: typesF64},
	OpF64Max:            {name: "f64.max", fixed: true, pop: typesF64F64, push: typesF64},
	OpF64Copysign:       {name: "f64.copysign", fixed: true, pop: typesF64F64, push: typesF64},
	OpI32WrapI64:        {name: "i32.wrap_i64", fixed: true, pop: typesI64, push: typesI32},
	OpI32TruncF32S:      {name: "i32.trunc_f32_s", fixed: true, pop: typesF32, push: typesI32},
	OpI32TruncF32U:      {name: "i32.trunc_f32_u", fixed: true, pop: typesF32, push: typesI32},
	OpI32TruncF64S:      {name: "i32.trunc_f64_s", fixed: true, pop: typesF64, push: typesI32},
	OpI32TruncF64U:      {name: "i32.trunc_f64_u", fixed: true, pop: typesF64, push: typesI32},
	OpI64ExtendI32S:     {name: "i64.extend_i32_s", fixed: true, pop: typesI32, push: typesI64},
	OpI64ExtendI32U:     {name: "i64.extend_i32_u", fixed: true, pop: typesI32, push: typesI64},
	OpI64TruncF32S:      {name: "i64.trunc_f32_s", fixed: true, pop: typesF32, push: typesI64},
	OpI64TruncF32U:      {name: "i64.trunc_f32_u", fixed: true, pop: typesF32, push: typesI64},
	OpI64TruncF64S:      {name: "i64.trunc_f64_s", fixed: true, pop: typesF64, push: typesI64},
	OpI64TruncF64U:      {name: "i64.trunc_f64_u", fixed: true, pop: typesF64, push: typesI64},
	OpF32ConvertI32S:    {name: "f32.convert_i32_s", fixed: true, pop: typesI32, push: typesF32},
	OpF32ConvertI32U:    {name: "f32.convert_i32_u", fixed: true, pop: typesI32, push: typesF32},
	OpF32ConvertI64S:    {name: "f32.convert_i64_s", fixed: true, pop: typesI64, push: typesF32},
	OpF32ConvertI64U:    {name: "f32.convert_i64_u", fixed: true, pop: typesI64, push: typesF32},
	OpF32DemoteF64:      {name: "f32.demote_f64", fixed: true, pop: typesF64, push: typesF32},
	OpF64ConvertI32S:    {name: "f64.convert_i32_s", fixed: true, pop: typesI32, push: typesF64},
	OpF64ConvertI32U:    {name: "f64.convert_i32_u", fixed: true, pop: typesI32, push: typesF64},
	OpF64ConvertI64S:    {name: "f64.convert_i64_s", fixed: true, pop: typesI64, push: typesF64},
	OpF64ConvertI64U:    {name: "f64.convert_i64_u", fixed: true, pop: typesI64, push: typesF64},
	OpF64PromoteF32:     {name: "f64.promote_f32", fixed: true, pop: typesF32, push: typesF64},
	OpI32ReinterpretF32: {name: "i32.reinterpret_f32", fixed: true, pop: typesF32, push: typesI32},
	OpI64ReinterpretF64: {name: "i64.reinterpret_f64", fixed: true, pop: typesF64, push: typesI64},
	OpF32ReinterpretI32: {name: "f32.reinterpret_i32", fixed: true, pop: typesI32, push: typesF32},
	OpF64ReinterpretI64: {name: "f64.reinterpret_i64", fixed: true, pop: typesI64, push: typesF64},
	OpI32Extend8S:       {name: "i32.extend8_s", fixed: true, pop: typesI32, push: typesI32},
	OpI32Extend16S:      {name: "i32.extend16_s", fixed: true, pop: typesI32, push: typesI32},
	OpI64Extend8S:       {name: "i64.extend8_s", fixed: true, pop: typesI64, push: typesI64},
	OpI64Extend16S:      {name: "i64.extend16_s", fixed: true, pop: typesI64, push: typesI64},
	OpI64Extend32S:      {name: "i64.extend32_s", fixed: true, pop: typesI64, push: typesI64},
	OpRefNull:           {name: "ref.null", imm: immRefType},
	OpRefIsNull:         {name: "ref.is_null"},
	OpRefFunc:           {name: "ref.func", imm: immIndex},
}

var prefixedOpcodes = [...]opInfo{
	OpI32TruncSatF32S & 0xff: {name: "i32.trunc_sat_f32_s", fixed: true, pop: typesF32, push: typesI32},
	OpI32TruncSatF32U & 0xff: {name: "i32.trunc_sat_f32_u", fixed: true, pop: typesF32, push: typesI32},
	OpI32TruncSatF64S & 0xff: {name: "i32.trunc_sat_f64_s", fixed: true, pop: typesF64, push: typesI32},
	OpI32TruncSatF64U & 0xff: {name: "i32.trunc_sat_f64_u", fixed: true, pop: typesF64, push: typesI32},
	OpI64TruncSatF32S & 0xff: {name: "i64.trunc_sat_f32_s", fixed: true, pop: typesF32, push: typesI64},
	OpI64TruncSatF32U & 0xff: {name: "i64.trunc_sat_f32_u", fixed: true, pop: typesF32, push: typesI64},
	OpI64TruncSatF64S & 0xff: {name: "i64.trunc_sat_f64_s", fixed: true, pop: typesF64, push: typesI64},
	OpI64TruncSatF64U & 0xff: {name: "i64.trunc_sat_f64_u", fixed: true, pop: typesF64, push: typesI64},
	OpMemoryInit & 0xff:      {name: "memory.init", imm: immMemoryInit},
	OpDataDrop & 0xff:        {name: "data.drop", imm: immIndex},
	OpMemoryCopy & 0xff:      {name: "memory.copy", imm: immMemoryCopy, fixed: true, pop: typesI32I32I32},
	OpMemoryFill & 0xff:      {name: "memory.fill", imm: immMemory, fixed: true, pop: typesI32I32I32},
	OpTableInit & 0xff:       {name: "table.init", imm: immTableInit},
	OpElemDrop & 0xff:        {name: "elem.drop", imm: immIndex},
	OpTableCopy & 0xff:       {name: "table.copy", imm: immTableCopy},
	OpTableGrow & 0xff:       {name: "table.grow", imm: immIndex},
	OpTableSize & 0xff:       {name: "table.size", imm: immIndex},
	OpTableFill & 0xff:       {name: "table.fill", imm: immIndex},
}

// IsPrefixed returns true if the opcode is encoded behind the 0xFC prefix.
func (op Opcode) IsPrefixed() bool {
	return op>>8 == OpPrefix
}

func (op Opcode) info() *opInfo {
	var info *opInfo
	switch {
	case op.IsPrefixed():
		if sub := int(op & 0xff); sub < len(prefixedOpcodes) {
			info = &prefixedOpcodes[sub]
		}
	case op <= 0xff:
		info = &singleByteOpcodes[op]
	}
	if info == nil || info.name == "" {
		return nil
	}
	return info
}

// IsValid returns true if the opcode belongs to the supported instruction set.
func (op Opcode) IsValid() bool {
	return op.info() != nil
}

func (op Opcode) String() string {
	if info := op.info(); info != nil {
		return info.name
	}
	if op.IsPrefixed() {
		return fmt.Sprintf("<unknown 0xfc %d>", op&0xff)
	}
	return fmt.Sprintf("<unknown 0x%02x>", uint16(op))
}

// UnsupportedInstructionError is returned when a function body contains an opcode outside the supported set.
type UnsupportedInstructionError struct {
	Prefixed bool
	Code     uint32
}

func (e *UnsupportedInstructionError) Error() string {
	if e.Prefixed {
		return fmt.Sprintf("Unsupported instruction: 0xFC %d", e.Code)
	}
	return fmt.Sprintf("Unsupported instruction: 0x%02X", e.Code)
}
