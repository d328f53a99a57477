// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/pgavlin/polywarp/wasm/leb128"
)

// Opcodes that may appear in a constant expression.
const (
	ConstOpI32Const  byte = 0x41
	ConstOpI64Const  byte = 0x42
	ConstOpF32Const  byte = 0x43
	ConstOpF64Const  byte = 0x44
	ConstOpGlobalGet byte = 0x23
	ConstOpRefNull   byte = 0xd0
	ConstOpRefFunc   byte = 0xd2

	constOpEnd byte = 0x0b
)

// ErrEmptyInitExpr is returned when a constant expression holds no instruction.
var ErrEmptyInitExpr = errors.New("wasm: initializer expression produces no value")

// InvalidInitExprOpError is returned when a constant expression holds an instruction that is not constant.
type InvalidInitExprOpError byte

func (e InvalidInitExprOpError) Error() string {
	return fmt.Sprintf("unsupported constant instruction: 0x%02X", byte(e))
}

// A ConstExpr is a constant expression. Constant expressions initialize globals and compute the offsets and
// contents of element and data segments. Each holds exactly one instruction.
type ConstExpr struct {
	Opcode byte
	// Immediate holds the raw bits of a numeric constant, the index for global.get and ref.func, or the reference type
	// for ref.null.
	Immediate uint64
}

// I32Const returns a constant expression that produces the given i32.
func I32Const(v int32) ConstExpr {
	return ConstExpr{Opcode: ConstOpI32Const, Immediate: uint64(uint32(v))}
}

// I64Const returns a constant expression that produces the given i64.
func I64Const(v int64) ConstExpr {
	return ConstExpr{Opcode: ConstOpI64Const, Immediate: uint64(v)}
}

// F32Const returns a constant expression that produces the given f32.
func F32Const(v float32) ConstExpr {
	return ConstExpr{Opcode: ConstOpF32Const, Immediate: uint64(math.Float32bits(v))}
}

// F64Const returns a constant expression that produces the given f64.
func F64Const(v float64) ConstExpr {
	return ConstExpr{Opcode: ConstOpF64Const, Immediate: math.Float64bits(v)}
}

// GlobalGet returns a constant expression that produces the value of the given global.
func GlobalGet(globalidx uint32) ConstExpr {
	return ConstExpr{Opcode: ConstOpGlobalGet, Immediate: uint64(globalidx)}
}

// RefNull returns a constant expression that produces a null reference of the given type.
func RefNull(t ValueType) ConstExpr {
	return ConstExpr{Opcode: ConstOpRefNull, Immediate: uint64(t)}
}

// RefFunc returns a constant expression that produces a reference to the given function.
func RefFunc(funcidx uint32) ConstExpr {
	return ConstExpr{Opcode: ConstOpRefFunc, Immediate: uint64(funcidx)}
}

// Index returns the global or function index of a global.get or ref.func expression.
func (e ConstExpr) Index() uint32 {
	return uint32(e.Immediate)
}

// Type returns the type of the value produced by the expression. The type of a global.get expression is
// determined by the referenced global, which must be supplied by the caller.
func (e ConstExpr) Type(globalType func(uint32) (GlobalVar, bool)) (ValueType, bool) {
	switch e.Opcode {
	case ConstOpI32Const:
		return ValueTypeI32, true
	case ConstOpI64Const:
		return ValueTypeI64, true
	case ConstOpF32Const:
		return ValueTypeF32, true
	case ConstOpF64Const:
		return ValueTypeF64, true
	case ConstOpRefNull:
		return ValueType(e.Immediate), true
	case ConstOpRefFunc:
		return ValueTypeFuncref, true
	case ConstOpGlobalGet:
		g, ok := globalType(e.Index())
		return g.Type, ok
	default:
		return ValueTypeT, false
	}
}

func (e ConstExpr) String() string {
	switch e.Opcode {
	case ConstOpI32Const:
		return fmt.Sprintf("i32.const %d", int32(e.Immediate))
	case ConstOpI64Const:
		return fmt.Sprintf("i64.const %d", int64(e.Immediate))
	case ConstOpF32Const:
		return fmt.Sprintf("f32.const %v", math.Float32frombits(uint32(e.Immediate)))
	case ConstOpF64Const:
		return fmt.Sprintf("f64.const %v", math.Float64frombits(e.Immediate))
	case ConstOpGlobalGet:
		return fmt.Sprintf("global.get %d", e.Immediate)
	case ConstOpRefNull:
		return fmt.Sprintf("ref.null %v", ValueType(e.Immediate))
	case ConstOpRefFunc:
		return fmt.Sprintf("ref.func %d", e.Immediate)
	default:
		return fmt.Sprintf("<invalid 0x%02x>", e.Opcode)
	}
}

func (e *ConstExpr) UnmarshalWASM(r io.Reader) error {
	op, err := readByte(r)
	if err != nil {
		return err
	}

	switch op {
	case ConstOpI32Const:
		v, err := leb128.ReadVarint32(r)
		if err != nil {
			return err
		}
		e.Immediate = uint64(uint32(v))
	case ConstOpI64Const:
		v, err := leb128.ReadVarint64(r)
		if err != nil {
			return err
		}
		e.Immediate = uint64(v)
	case ConstOpF32Const:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		e.Immediate = uint64(binary.LittleEndian.Uint32(buf[:]))
	case ConstOpF64Const:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		e.Immediate = binary.LittleEndian.Uint64(buf[:])
	case ConstOpGlobalGet, ConstOpRefFunc:
		idx, err := leb128.ReadVarUint32(r)
		if err != nil {
			return err
		}
		e.Immediate = uint64(idx)
	case ConstOpRefNull:
		var t ValueType
		if err := t.UnmarshalWASM(r); err != nil {
			return err
		}
		if !t.IsRef() {
			return fmt.Errorf("wasm: ref.null of non-reference type %v", t)
		}
		e.Immediate = uint64(t)
	case constOpEnd:
		return ErrEmptyInitExpr
	default:
		return InvalidInitExprOpError(op)
	}
	e.Opcode = op

	end, err := readByte(r)
	if err != nil {
		return err
	}
	if end != constOpEnd {
		return InvalidInitExprOpError(end)
	}
	return nil
}

func (e *ConstExpr) MarshalWASM(w io.Writer) error {
	buf := []byte{e.Opcode}
	switch e.Opcode {
	case ConstOpI32Const:
		buf = leb128.AppendVarint64(buf, int64(int32(uint32(e.Immediate))))
	case ConstOpI64Const:
		buf = leb128.AppendVarint64(buf, int64(e.Immediate))
	case ConstOpF32Const:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(e.Immediate))
	case ConstOpF64Const:
		buf = binary.LittleEndian.AppendUint64(buf, e.Immediate)
	case ConstOpGlobalGet, ConstOpRefFunc:
		buf = leb128.AppendVarUint64(buf, e.Immediate)
	case ConstOpRefNull:
		buf = append(buf, byte(e.Immediate))
	default:
		return InvalidInitExprOpError(e.Opcode)
	}
	_, err := w.Write(append(buf, constOpEnd))
	return err
}
