package exec

import (
	"math"

	"github.com/pgavlin/polywarp/wasm/code"
)

// UnaryOp returns the implementation of a numeric instruction with a single operand. Operands and results use the
// slot representation: i32 values are zero-extended, and floats are stored as their bit patterns. The returned
// function may panic with a Trap.
func UnaryOp(op code.Opcode) (func(uint64) uint64, bool) {
	f, ok := unaryOps[op]
	return f, ok
}

// BinaryOp returns the implementation of a numeric instruction with two operands. The returned function may panic
// with a Trap.
func BinaryOp(op code.Opcode) (func(uint64, uint64) uint64, bool) {
	f, ok := binaryOps[op]
	return f, ok
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func f32(v uint64) float32 {
	return math.Float32frombits(uint32(v))
}

func f64(v uint64) float64 {
	return math.Float64frombits(v)
}

func u32(v uint32) uint64 {
	return uint64(v)
}

func f32u(v float32) uint64 {
	return uint64(math.Float32bits(v))
}

func f64u(v float64) uint64 {
	return math.Float64bits(v)
}

var unaryOps = map[code.Opcode]func(uint64) uint64{
	code.OpI32Eqz:    func(v uint64) uint64 { return b2u(uint32(v) == 0) },
	code.OpI64Eqz:    func(v uint64) uint64 { return b2u(v == 0) },
	code.OpI32Clz:    func(v uint64) uint64 { return u32(I32Clz(uint32(v))) },
	code.OpI32Ctz:    func(v uint64) uint64 { return u32(I32Ctz(uint32(v))) },
	code.OpI32Popcnt: func(v uint64) uint64 { return u32(I32Popcnt(uint32(v))) },
	code.OpI64Clz:    func(v uint64) uint64 { return I64Clz(v) },
	code.OpI64Ctz:    func(v uint64) uint64 { return I64Ctz(v) },
	code.OpI64Popcnt: func(v uint64) uint64 { return I64Popcnt(v) },

	code.OpF32Abs:     func(v uint64) uint64 { return f32u(F32Abs(f32(v))) },
	code.OpF32Neg:     func(v uint64) uint64 { return f32u(F32Neg(f32(v))) },
	code.OpF32Ceil:    func(v uint64) uint64 { return f32u(float32(math.Ceil(float64(f32(v))))) },
	code.OpF32Floor:   func(v uint64) uint64 { return f32u(float32(math.Floor(float64(f32(v))))) },
	code.OpF32Trunc:   func(v uint64) uint64 { return f32u(float32(math.Trunc(float64(f32(v))))) },
	code.OpF32Nearest: func(v uint64) uint64 { return f32u(F32Nearest(f32(v))) },
	code.OpF32Sqrt:    func(v uint64) uint64 { return f32u(float32(math.Sqrt(float64(f32(v))))) },
	code.OpF64Abs:     func(v uint64) uint64 { return f64u(F64Abs(f64(v))) },
	code.OpF64Neg:     func(v uint64) uint64 { return f64u(F64Neg(f64(v))) },
	code.OpF64Ceil:    func(v uint64) uint64 { return f64u(math.Ceil(f64(v))) },
	code.OpF64Floor:   func(v uint64) uint64 { return f64u(math.Floor(f64(v))) },
	code.OpF64Trunc:   func(v uint64) uint64 { return f64u(math.Trunc(f64(v))) },
	code.OpF64Nearest: func(v uint64) uint64 { return f64u(F64Nearest(f64(v))) },
	code.OpF64Sqrt:    func(v uint64) uint64 { return f64u(math.Sqrt(f64(v))) },

	code.OpI32WrapI64:      func(v uint64) uint64 { return u32(uint32(v)) },
	code.OpI32TruncF32S:    func(v uint64) uint64 { return u32(uint32(I32TruncS(float64(f32(v))))) },
	code.OpI32TruncF32U:    func(v uint64) uint64 { return u32(I32TruncU(float64(f32(v)))) },
	code.OpI32TruncF64S:    func(v uint64) uint64 { return u32(uint32(I32TruncS(f64(v)))) },
	code.OpI32TruncF64U:    func(v uint64) uint64 { return u32(I32TruncU(f64(v))) },
	code.OpI64ExtendI32S:   func(v uint64) uint64 { return uint64(int64(int32(v))) },
	code.OpI64ExtendI32U:   func(v uint64) uint64 { return uint64(uint32(v)) },
	code.OpI64TruncF32S:    func(v uint64) uint64 { return uint64(I64TruncS(float64(f32(v)))) },
	code.OpI64TruncF32U:    func(v uint64) uint64 { return I64TruncU(float64(f32(v))) },
	code.OpI64TruncF64S:    func(v uint64) uint64 { return uint64(I64TruncS(f64(v))) },
	code.OpI64TruncF64U:    func(v uint64) uint64 { return I64TruncU(f64(v)) },
	code.OpF32ConvertI32S:  func(v uint64) uint64 { return f32u(float32(int32(v))) },
	code.OpF32ConvertI32U:  func(v uint64) uint64 { return f32u(float32(uint32(v))) },
	code.OpF32ConvertI64S:  func(v uint64) uint64 { return f32u(float32(int64(v))) },
	code.OpF32ConvertI64U:  func(v uint64) uint64 { return f32u(float32(v)) },
	code.OpF32DemoteF64:    func(v uint64) uint64 { return f32u(float32(f64(v))) },
	code.OpF64ConvertI32S:  func(v uint64) uint64 { return f64u(float64(int32(v))) },
	code.OpF64ConvertI32U:  func(v uint64) uint64 { return f64u(float64(uint32(v))) },
	code.OpF64ConvertI64S:  func(v uint64) uint64 { return f64u(float64(int64(v))) },
	code.OpF64ConvertI64U:  func(v uint64) uint64 { return f64u(float64(v)) },
	code.OpF64PromoteF32:   func(v uint64) uint64 { return f64u(float64(f32(v))) },

	code.OpI32ReinterpretF32: func(v uint64) uint64 { return u32(uint32(v)) },
	code.OpI64ReinterpretF64: func(v uint64) uint64 { return v },
	code.OpF32ReinterpretI32: func(v uint64) uint64 { return u32(uint32(v)) },
	code.OpF64ReinterpretI64: func(v uint64) uint64 { return v },

	code.OpI32Extend8S:  func(v uint64) uint64 { return u32(I32Extend8S(uint32(v))) },
	code.OpI32Extend16S: func(v uint64) uint64 { return u32(I32Extend16S(uint32(v))) },
	code.OpI64Extend8S:  I64Extend8S,
	code.OpI64Extend16S: I64Extend16S,
	code.OpI64Extend32S: I64Extend32S,

	code.OpI32TruncSatF32S: func(v uint64) uint64 { return u32(uint32(I32TruncSatS(float64(f32(v))))) },
	code.OpI32TruncSatF32U: func(v uint64) uint64 { return u32(I32TruncSatU(float64(f32(v)))) },
	code.OpI32TruncSatF64S: func(v uint64) uint64 { return u32(uint32(I32TruncSatS(f64(v)))) },
	code.OpI32TruncSatF64U: func(v uint64) uint64 { return u32(I32TruncSatU(f64(v))) },
	code.OpI64TruncSatF32S: func(v uint64) uint64 { return uint64(I64TruncSatS(float64(f32(v)))) },
	code.OpI64TruncSatF32U: func(v uint64) uint64 { return I64TruncSatU(float64(f32(v))) },
	code.OpI64TruncSatF64S: func(v uint64) uint64 { return uint64(I64TruncSatS(f64(v))) },
	code.OpI64TruncSatF64U: func(v uint64) uint64 { return I64TruncSatU(f64(v)) },
}

var binaryOps = map[code.Opcode]func(uint64, uint64) uint64{
	code.OpI32Eq:  func(a, b uint64) uint64 { return b2u(uint32(a) == uint32(b)) },
	code.OpI32Ne:  func(a, b uint64) uint64 { return b2u(uint32(a) != uint32(b)) },
	code.OpI32LtS: func(a, b uint64) uint64 { return b2u(int32(a) < int32(b)) },
	code.OpI32LtU: func(a, b uint64) uint64 { return b2u(uint32(a) < uint32(b)) },
	code.OpI32GtS: func(a, b uint64) uint64 { return b2u(int32(a) > int32(b)) },
	code.OpI32GtU: func(a, b uint64) uint64 { return b2u(uint32(a) > uint32(b)) },
	code.OpI32LeS: func(a, b uint64) uint64 { return b2u(int32(a) <= int32(b)) },
	code.OpI32LeU: func(a, b uint64) uint64 { return b2u(uint32(a) <= uint32(b)) },
	code.OpI32GeS: func(a, b uint64) uint64 { return b2u(int32(a) >= int32(b)) },
	code.OpI32GeU: func(a, b uint64) uint64 { return b2u(uint32(a) >= uint32(b)) },

	code.OpI64Eq:  func(a, b uint64) uint64 { return b2u(a == b) },
	code.OpI64Ne:  func(a, b uint64) uint64 { return b2u(a != b) },
	code.OpI64LtS: func(a, b uint64) uint64 { return b2u(int64(a) < int64(b)) },
	code.OpI64LtU: func(a, b uint64) uint64 { return b2u(a < b) },
	code.OpI64GtS: func(a, b uint64) uint64 { return b2u(int64(a) > int64(b)) },
	code.OpI64GtU: func(a, b uint64) uint64 { return b2u(a > b) },
	code.OpI64LeS: func(a, b uint64) uint64 { return b2u(int64(a) <= int64(b)) },
	code.OpI64LeU: func(a, b uint64) uint64 { return b2u(a <= b) },
	code.OpI64GeS: func(a, b uint64) uint64 { return b2u(int64(a) >= int64(b)) },
	code.OpI64GeU: func(a, b uint64) uint64 { return b2u(a >= b) },

	code.OpF32Eq: func(a, b uint64) uint64 { return b2u(f32(a) == f32(b)) },
	code.OpF32Ne: func(a, b uint64) uint64 { return b2u(f32(a) != f32(b)) },
	code.OpF32Lt: func(a, b uint64) uint64 { return b2u(f32(a) < f32(b)) },
	code.OpF32Gt: func(a, b uint64) uint64 { return b2u(f32(a) > f32(b)) },
	code.OpF32Le: func(a, b uint64) uint64 { return b2u(f32(a) <= f32(b)) },
	code.OpF32Ge: func(a, b uint64) uint64 { return b2u(f32(a) >= f32(b)) },
	code.OpF64Eq: func(a, b uint64) uint64 { return b2u(f64(a) == f64(b)) },
	code.OpF64Ne: func(a, b uint64) uint64 { return b2u(f64(a) != f64(b)) },
	code.OpF64Lt: func(a, b uint64) uint64 { return b2u(f64(a) < f64(b)) },
	code.OpF64Gt: func(a, b uint64) uint64 { return b2u(f64(a) > f64(b)) },
	code.OpF64Le: func(a, b uint64) uint64 { return b2u(f64(a) <= f64(b)) },
	code.OpF64Ge: func(a, b uint64) uint64 { return b2u(f64(a) >= f64(b)) },

	code.OpI32Add:  func(a, b uint64) uint64 { return u32(uint32(a) + uint32(b)) },
	code.OpI32Sub:  func(a, b uint64) uint64 { return u32(uint32(a) - uint32(b)) },
	code.OpI32Mul:  func(a, b uint64) uint64 { return u32(uint32(a) * uint32(b)) },
	code.OpI32DivS: func(a, b uint64) uint64 { return u32(uint32(I32DivS(int32(a), int32(b)))) },
	code.OpI32DivU: func(a, b uint64) uint64 { return u32(I32DivU(uint32(a), uint32(b))) },
	code.OpI32RemS: func(a, b uint64) uint64 { return u32(uint32(I32RemS(int32(a), int32(b)))) },
	code.OpI32RemU: func(a, b uint64) uint64 { return u32(I32RemU(uint32(a), uint32(b))) },
	code.OpI32And:  func(a, b uint64) uint64 { return a & b },
	code.OpI32Or:   func(a, b uint64) uint64 { return a | b },
	code.OpI32Xor:  func(a, b uint64) uint64 { return a ^ b },
	code.OpI32Shl:  func(a, b uint64) uint64 { return u32(uint32(a) << (b & 31)) },
	code.OpI32ShrS: func(a, b uint64) uint64 { return u32(uint32(int32(a) >> (b & 31))) },
	code.OpI32ShrU: func(a, b uint64) uint64 { return u32(uint32(a) >> (b & 31)) },
	code.OpI32Rotl: func(a, b uint64) uint64 { return u32(Rotl32(uint32(a), uint32(b))) },
	code.OpI32Rotr: func(a, b uint64) uint64 { return u32(Rotr32(uint32(a), uint32(b))) },

	code.OpI64Add:  func(a, b uint64) uint64 { return a + b },
	code.OpI64Sub:  func(a, b uint64) uint64 { return a - b },
	code.OpI64Mul:  func(a, b uint64) uint64 { return a * b },
	code.OpI64DivS: func(a, b uint64) uint64 { return uint64(I64DivS(int64(a), int64(b))) },
	code.OpI64DivU: I64DivU,
	code.OpI64RemS: func(a, b uint64) uint64 { return uint64(I64RemS(int64(a), int64(b))) },
	code.OpI64RemU: I64RemU,
	code.OpI64And:  func(a, b uint64) uint64 { return a & b },
	code.OpI64Or:   func(a, b uint64) uint64 { return a | b },
	code.OpI64Xor:  func(a, b uint64) uint64 { return a ^ b },
	code.OpI64Shl:  func(a, b uint64) uint64 { return a << (b & 63) },
	code.OpI64ShrS: func(a, b uint64) uint64 { return uint64(int64(a) >> (b & 63)) },
	code.OpI64ShrU: func(a, b uint64) uint64 { return a >> (b & 63) },
	code.OpI64Rotl: Rotl64,
	code.OpI64Rotr: Rotr64,

	code.OpF32Add:      func(a, b uint64) uint64 { return f32u(f32(a) + f32(b)) },
	code.OpF32Sub:      func(a, b uint64) uint64 { return f32u(f32(a) - f32(b)) },
	code.OpF32Mul:      func(a, b uint64) uint64 { return f32u(f32(a) * f32(b)) },
	code.OpF32Div:      func(a, b uint64) uint64 { return f32u(f32(a) / f32(b)) },
	code.OpF32Min:      func(a, b uint64) uint64 { return f32u(F32Min(f32(a), f32(b))) },
	code.OpF32Max:      func(a, b uint64) uint64 { return f32u(F32Max(f32(a), f32(b))) },
	code.OpF32Copysign: func(a, b uint64) uint64 { return f32u(F32Copysign(f32(a), f32(b))) },
	code.OpF64Add:      func(a, b uint64) uint64 { return f64u(f64(a) + f64(b)) },
	code.OpF64Sub:      func(a, b uint64) uint64 { return f64u(f64(a) - f64(b)) },
	code.OpF64Mul:      func(a, b uint64) uint64 { return f64u(f64(a) * f64(b)) },
	code.OpF64Div:      func(a, b uint64) uint64 { return f64u(f64(a) / f64(b)) },
	code.OpF64Min:      func(a, b uint64) uint64 { return f64u(Fmin(f64(a), f64(b))) },
	code.OpF64Max:      func(a, b uint64) uint64 { return f64u(Fmax(f64(a), f64(b))) },
	code.OpF64Copysign: func(a, b uint64) uint64 { return f64u(F64Copysign(f64(a), f64(b))) },
}
