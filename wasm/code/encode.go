package code

import (
	"encoding/binary"
	"io"

	"github.com/pgavlin/polywarp/wasm/leb128"
)

// AppendInstruction appends the binary encoding of an instruction to buf.
func AppendInstruction(buf []byte, instr Instruction) ([]byte, error) {
	info := instr.Opcode.info()
	if info == nil {
		return nil, &UnsupportedInstructionError{Prefixed: instr.Opcode.IsPrefixed(), Code: uint32(instr.Opcode & 0xff)}
	}

	if instr.Opcode.IsPrefixed() {
		buf = append(buf, byte(OpPrefix))
		buf = leb128.AppendVarUint64(buf, uint64(instr.Opcode&0xff))
	} else {
		buf = append(buf, byte(instr.Opcode))
	}

	imm := instr.Immediate
	switch info.imm {
	case immBlockType:
		buf = encodeBlockType(buf, imm)
	case immIndex:
		buf = leb128.AppendVarUint64(buf, uint64(uint32(imm)))
	case immBrTable:
		buf = leb128.AppendVarUint64(buf, uint64(len(instr.Labels)))
		for _, l := range instr.Labels {
			buf = leb128.AppendVarUint64(buf, uint64(l))
		}
		buf = leb128.AppendVarUint64(buf, uint64(uint32(imm)))
	case immCallIndirect, immTableInit:
		buf = leb128.AppendVarUint64(buf, uint64(uint32(imm)))
		buf = leb128.AppendVarUint64(buf, imm>>32)
	case immTableCopy:
		buf = leb128.AppendVarUint64(buf, imm>>32)
		buf = leb128.AppendVarUint64(buf, uint64(uint32(imm)))
	case immMemarg:
		offset, align := instr.Memarg()
		buf = leb128.AppendVarUint64(buf, uint64(align))
		buf = leb128.AppendVarUint64(buf, uint64(offset))
	case immMemory:
		buf = append(buf, 0x00)
	case immMemoryCopy:
		buf = append(buf, 0x00, 0x00)
	case immMemoryInit:
		buf = leb128.AppendVarUint64(buf, uint64(uint32(imm)))
		buf = append(buf, 0x00)
	case immI32:
		buf = leb128.AppendVarint64(buf, int64(int32(imm)))
	case immI64:
		buf = leb128.AppendVarint64(buf, int64(imm))
	case immF32:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(imm))
	case immF64:
		buf = binary.LittleEndian.AppendUint64(buf, imm)
	case immValueTypes:
		buf = append(buf, 0x01, byte(imm))
	case immRefType:
		buf = append(buf, byte(imm))
	}
	return buf, nil
}

// Encode writes the binary encoding of a function body. The body must be terminated by an end instruction.
func Encode(w io.Writer, body []Instruction) error {
	var buf []byte
	for i, instr := range body {
		var err error
		if buf, err = AppendInstruction(buf, instr); err != nil {
			return err
		}
		if instr.Opcode == OpEnd && i == len(body)-1 {
			_, err = w.Write(buf)
			return err
		}
	}
	return io.ErrUnexpectedEOF
}
