package exec

import (
	"math"
	"math/bits"
)

func I32DivS(i1, i2 int32) int32 {
	if i2 == 0 {
		panic(TrapIntegerDivideByZero)
	}
	if i1 == math.MinInt32 && i2 == -1 {
		panic(TrapIntegerOverflow)
	}
	return i1 / i2
}

func I32DivU(i1, i2 uint32) uint32 {
	if i2 == 0 {
		panic(TrapIntegerDivideByZero)
	}
	return i1 / i2
}

func I32RemS(i1, i2 int32) int32 {
	if i2 == 0 {
		panic(TrapIntegerDivideByZero)
	}
	if i2 == -1 {
		return 0
	}
	return i1 % i2
}

func I32RemU(i1, i2 uint32) uint32 {
	if i2 == 0 {
		panic(TrapIntegerDivideByZero)
	}
	return i1 % i2
}

func I64DivS(i1, i2 int64) int64 {
	if i2 == 0 {
		panic(TrapIntegerDivideByZero)
	}
	if i1 == math.MinInt64 && i2 == -1 {
		panic(TrapIntegerOverflow)
	}
	return i1 / i2
}

func I64DivU(i1, i2 uint64) uint64 {
	if i2 == 0 {
		panic(TrapIntegerDivideByZero)
	}
	return i1 / i2
}

func I64RemS(i1, i2 int64) int64 {
	if i2 == 0 {
		panic(TrapIntegerDivideByZero)
	}
	if i2 == -1 {
		return 0
	}
	return i1 % i2
}

func I64RemU(i1, i2 uint64) uint64 {
	if i2 == 0 {
		panic(TrapIntegerDivideByZero)
	}
	return i1 % i2
}

// Rotations take their count modulo the operand width.

func Rotl32(x, k uint32) uint32 {
	return bits.RotateLeft32(x, int(k&31))
}

func Rotr32(x, k uint32) uint32 {
	return bits.RotateLeft32(x, -int(k&31))
}

func Rotl64(x, k uint64) uint64 {
	return bits.RotateLeft64(x, int(k&63))
}

func Rotr64(x, k uint64) uint64 {
	return bits.RotateLeft64(x, -int(k&63))
}

func I32Clz(x uint32) uint32 {
	return uint32(bits.LeadingZeros32(x))
}

func I32Ctz(x uint32) uint32 {
	return uint32(bits.TrailingZeros32(x))
}

func I32Popcnt(x uint32) uint32 {
	return uint32(bits.OnesCount32(x))
}

func I64Clz(x uint64) uint64 {
	return uint64(bits.LeadingZeros64(x))
}

func I64Ctz(x uint64) uint64 {
	return uint64(bits.TrailingZeros64(x))
}

func I64Popcnt(x uint64) uint64 {
	return uint64(bits.OnesCount64(x))
}

func I32Extend8S(x uint32) uint32 {
	return uint32(int32(int8(x)))
}

func I32Extend16S(x uint32) uint32 {
	return uint32(int32(int16(x)))
}

func I64Extend8S(x uint64) uint64 {
	return uint64(int64(int8(x)))
}

func I64Extend16S(x uint64) uint64 {
	return uint64(int64(int16(x)))
}

func I64Extend32S(x uint64) uint64 {
	return uint64(int64(int32(x)))
}

// Fmax returns the larger of z1 and z2. NaN operands propagate and +0 is larger than -0.
func Fmax(z1, z2 float64) float64 {
	if math.IsNaN(z1) {
		return z1
	}
	if math.IsNaN(z2) {
		return z2
	}
	return math.Max(z1, z2)
}

// Fmin returns the smaller of z1 and z2. NaN operands propagate and -0 is smaller than +0.
func Fmin(z1, z2 float64) float64 {
	if math.IsNaN(z1) {
		return z1
	}
	if math.IsNaN(z2) {
		return z2
	}
	return math.Min(z1, z2)
}

func F32Max(z1, z2 float32) float32 {
	return float32(Fmax(float64(z1), float64(z2)))
}

func F32Min(z1, z2 float32) float32 {
	return float32(Fmin(float64(z1), float64(z2)))
}

// F32Nearest rounds to the nearest integer, rounding halfway cases to even.
func F32Nearest(z float32) float32 {
	return float32(math.RoundToEven(float64(z)))
}

func F64Nearest(z float64) float64 {
	return math.RoundToEven(z)
}

// The sign operations work on the raw bits so that NaN payloads are preserved.

func F32Abs(z float32) float32 {
	return math.Float32frombits(math.Float32bits(z) &^ (1 << 31))
}

func F32Neg(z float32) float32 {
	return math.Float32frombits(math.Float32bits(z) ^ (1 << 31))
}

func F32Copysign(z1, z2 float32) float32 {
	return math.Float32frombits(math.Float32bits(z1)&^(1<<31) | math.Float32bits(z2)&(1<<31))
}

func F64Abs(z float64) float64 {
	return math.Float64frombits(math.Float64bits(z) &^ (1 << 63))
}

func F64Neg(z float64) float64 {
	return math.Float64frombits(math.Float64bits(z) ^ (1 << 63))
}

func F64Copysign(z1, z2 float64) float64 {
	return math.Float64frombits(math.Float64bits(z1)&^(1<<63) | math.Float64bits(z2)&(1<<63))
}

// The trapping truncations accept float32 operands through their float64 forms; the widening is exact.

func I32TruncS(z float64) int32 {
	z = math.Trunc(z)
	if math.IsNaN(z) {
		panic(TrapInvalidConversionToInteger)
	}
	if z < math.MinInt32 || z > math.MaxInt32 {
		panic(TrapIntegerOverflow)
	}
	return int32(z)
}

func I32TruncU(z float64) uint32 {
	z = math.Trunc(z)
	if math.IsNaN(z) {
		panic(TrapInvalidConversionToInteger)
	}
	if z <= -1 || z > math.MaxUint32 {
		panic(TrapIntegerOverflow)
	}
	return uint32(z)
}

func I64TruncS(z float64) int64 {
	z = math.Trunc(z)
	if math.IsNaN(z) {
		panic(TrapInvalidConversionToInteger)
	}
	if z < math.MinInt64 || z >= math.MaxInt64 {
		panic(TrapIntegerOverflow)
	}
	return int64(z)
}

func I64TruncU(z float64) uint64 {
	z = math.Trunc(z)
	if math.IsNaN(z) {
		panic(TrapInvalidConversionToInteger)
	}
	if z <= -1 || z >= math.MaxUint64 {
		panic(TrapIntegerOverflow)
	}
	return uint64(z)
}

func I32TruncSatS(z float64) int32 {
	switch {
	case math.IsNaN(z):
		return 0
	case z <= math.MinInt32:
		return math.MinInt32
	case z >= math.MaxInt32:
		return math.MaxInt32
	default:
		return int32(z)
	}
}

func I32TruncSatU(z float64) uint32 {
	switch {
	case math.IsNaN(z) || z <= 0:
		return 0
	case z >= math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(z)
	}
}

func I64TruncSatS(z float64) int64 {
	switch {
	case math.IsNaN(z):
		return 0
	case z <= math.MinInt64:
		return math.MinInt64
	case z >= math.MaxInt64:
		return math.MaxInt64
	default:
		return int64(z)
	}
}

func I64TruncSatU(z float64) uint64 {
	switch {
	case math.IsNaN(z) || z <= 0:
		return 0
	case z >= math.MaxUint64:
		return math.MaxUint64
	default:
		return uint64(z)
	}
}
