package code

import (
	"io"

	"github.com/pgavlin/polywarp/wasm"
	"github.com/pgavlin/polywarp/wasm/leb128"
)

// A block's immediate holds its block type in the low 32 bits and the operand stack height at the start of the
// block in bits 32-62. Single-value block types are marked by the high bit; otherwise the block type is a type
// index.
const (
	BlockTypeSpecial = 0x8000000000000000
	BlockTypeMask    = 0x80000000ffffffff
	StackHeightMask  = 0x7fffffff00000000

	BlockTypeEmpty     = 0x40 | BlockTypeSpecial
	BlockTypeI32       = 0x7f | BlockTypeSpecial
	BlockTypeI64       = 0x7e | BlockTypeSpecial
	BlockTypeF32       = 0x7d | BlockTypeSpecial
	BlockTypeF64       = 0x7c | BlockTypeSpecial
	BlockTypeFuncref   = 0x70 | BlockTypeSpecial
	BlockTypeExternref = 0x6f | BlockTypeSpecial
)

// BlockType returns the block type that refers to the function type with the given index.
func BlockType(typeidx uint32) uint64 {
	return uint64(typeidx)
}

// ValueBlockType returns the block type for a block that produces a single value of the given type.
func ValueBlockType(t wasm.ValueType) uint64 {
	return uint64(t) | BlockTypeSpecial
}

func decodeBlockType(body []byte) (uint64, []byte, error) {
	if len(body) == 0 {
		return 0, nil, io.ErrUnexpectedEOF
	}

	switch body[0] {
	case 0x40, 0x7f, 0x7e, 0x7d, 0x7c, 0x70, 0x6f:
		return uint64(body[0]) | BlockTypeSpecial, body[1:], nil
	default:
		index, read, err := leb128.GetVarint33(body)
		if err != nil {
			return 0, nil, err
		}
		if index < 0 || index > 0xffffffff {
			return 0, nil, wasm.ValidationError("malformed block type")
		}
		return uint64(index), body[read:], nil
	}
}

func encodeBlockType(buf []byte, blockType uint64) []byte {
	blockType &= BlockTypeMask
	if blockType&BlockTypeSpecial != 0 {
		return append(buf, byte(blockType))
	}
	return leb128.AppendVarint64(buf, int64(blockType))
}
