package code

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/pgavlin/polywarp/wasm"
	"github.com/pgavlin/polywarp/wasm/leb128"
)

// ErrInvalidInstruction is returned when a reserved immediate byte is not zero.
var ErrInvalidInstruction = errors.New("wasm: invalid instruction")

// MaxStackDepth is the maximum depth of a function's operand stack.
const MaxStackDepth = 65535

// InstructionError records the offset within a function body of the instruction that failed to decode.
type InstructionError struct {
	Offset int
	Err    error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction at offset %d: %v", e.Offset, e.Err)
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}

type Metrics struct {
	MaxNesting    int  // The maximum block nesting for the function.
	MaxStackDepth int  // The maximum stack depth for the function.
	LabelCount    int  // The number of labels in the function.
	HasLoops      bool // True if this function has loops
}

type block struct {
	*Instruction

	in, out     []wasm.ValueType
	stackHeight int
	unreachable bool
}

type decoder struct {
	Scope

	ibuf    []Instruction
	metrics Metrics

	blocks []block
	stack  []wasm.ValueType
}

// Body is a decoded and validated function body.
type Body struct {
	Instructions []Instruction
	Metrics      Metrics
}

// Decode decodes and validates a function body. The body must produce values of the given result types.
func Decode(body []byte, scope Scope, out []wasm.ValueType) (Body, error) {
	decoder := decoder{Scope: scope}
	start := len(body)
	result, rest, err := decoder.decode(body, out)
	if err != nil {
		return Body{}, &InstructionError{Offset: start - len(rest), Err: err}
	}
	return result, nil
}

func (d *decoder) popOpd() (wasm.ValueType, error) {
	b := &d.blocks[len(d.blocks)-1]
	if b.unreachable && len(d.stack) == b.stackHeight {
		return wasm.ValueTypeT, nil
	}
	if len(d.stack) == b.stackHeight {
		return 0, wasm.ValidationError("stack underflow")
	}
	t := d.stack[len(d.stack)-1]
	d.stack = d.stack[:len(d.stack)-1]
	return t, nil
}

func (d *decoder) popOpds(types ...wasm.ValueType) error {
	for i := len(types) - 1; i >= 0; i-- {
		expected := types[i]
		actual, err := d.popOpd()
		if err != nil {
			return err
		}
		if actual != wasm.ValueTypeT && expected != wasm.ValueTypeT && actual != expected {
			return wasm.ValidationError("type mismatch")
		}
	}
	return nil
}

func (d *decoder) pushOpds(types ...wasm.ValueType) {
	d.stack = append(d.stack, types...)

	if len(d.stack) > d.metrics.MaxStackDepth {
		d.metrics.MaxStackDepth = len(d.stack)
	}
}

func (d *decoder) pushBlock(instr *Instruction, in, out []wasm.ValueType) {
	d.blocks = append(d.blocks, block{
		Instruction: instr,
		in:          in,
		out:         out,
		stackHeight: len(d.stack),
	})
	d.pushOpds(in...)

	if len(d.blocks) > d.metrics.MaxNesting {
		d.metrics.MaxNesting = len(d.blocks)
	}
	d.metrics.LabelCount++
}

func (d *decoder) popBlock() (*block, error) {
	if len(d.blocks) == 0 {
		return nil, wasm.ValidationError("label stack underflow")
	}
	b := &d.blocks[len(d.blocks)-1]
	if err := d.popOpds(b.out...); err != nil {
		return nil, err
	}
	if len(d.stack) != b.stackHeight {
		return nil, wasm.ValidationError("type mismatch")
	}
	d.blocks = d.blocks[:len(d.blocks)-1]
	return b, nil
}

func (d *decoder) labelTypes(n int) ([]wasm.ValueType, error) {
	if n < 0 || len(d.blocks)-1 < n {
		return nil, wasm.ValidationError("unknown label")
	}

	b := &d.blocks[len(d.blocks)-1-n]
	if b.Instruction != nil && b.Opcode == OpLoop {
		return b.in, nil
	}
	return b.out, nil
}

func (d *decoder) unreachable() {
	b := &d.blocks[len(d.blocks)-1]
	d.stack = d.stack[:b.stackHeight]
	b.unreachable = true
}

func sameTypes(a, b []wasm.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (d *decoder) checkTable(tableidx uint32) (wasm.ValueType, error) {
	t, ok := d.GetTableType(tableidx)
	if !ok {
		return 0, wasm.ValidationError("unknown table")
	}
	return t, nil
}

// doStack validates a non-control instruction and applies its effect to the operand stack.
func (d *decoder) doStack(i *Instruction, info *opInfo) error {
	switch info.imm {
	case immMemarg, immMemory, immMemoryCopy, immMemoryInit:
		if !d.HasMemory(0) {
			return wasm.ValidationError("unknown memory")
		}
	}
	if info.imm == immMemarg {
		if _, align := i.Memarg(); align >= 32 || uint64(1)<<align > uint64(info.size) {
			return wasm.ValidationError("alignment must not be larger than natural")
		}
	}

	if info.fixed {
		if err := d.popOpds(info.pop...); err != nil {
			return err
		}
		d.pushOpds(info.push...)
		return nil
	}

	switch i.Opcode {
	case OpLocalGet, OpLocalSet, OpLocalTee:
		if _, ok := d.GetLocalType(i.Localidx()); !ok {
			return wasm.ValidationError("unknown local")
		}

	case OpGlobalGet, OpGlobalSet:
		t, ok := d.GetGlobalType(i.Globalidx())
		if !ok {
			return wasm.ValidationError("unknown global")
		}
		if i.Opcode == OpGlobalSet && !t.Mutable {
			return wasm.ValidationError("global is immutable")
		}

	case OpCall:
		if _, ok := d.GetFunctionSignature(i.Funcidx()); !ok {
			return wasm.ValidationError("unknown function")
		}

	case OpCallIndirect:
		t, err := d.checkTable(i.Tableidx())
		if err != nil {
			return err
		}
		if t != wasm.ValueTypeFuncref {
			return wasm.ValidationError("type mismatch")
		}
		if _, ok := d.GetType(i.Typeidx()); !ok {
			return wasm.ValidationError("unknown type")
		}

	case OpDrop:
		_, err := d.popOpd()
		return err

	case OpSelect:
		if err := d.popOpds(wasm.ValueTypeI32); err != nil {
			return err
		}
		t1, err := d.popOpd()
		if err != nil {
			return err
		}
		t2, err := d.popOpd()
		if err != nil {
			return err
		}
		if t1.IsRef() || t2.IsRef() {
			return wasm.ValidationError("type mismatch")
		}
		if t1 != wasm.ValueTypeT && t2 != wasm.ValueTypeT && t1 != t2 {
			return wasm.ValidationError("type mismatch")
		}
		if t1 == wasm.ValueTypeT {
			t1 = t2
		}
		d.pushOpds(t1)
		return nil

	case OpSelectT:
		if !i.ValueType().IsValid() {
			return wasm.ValidationError("invalid result arity")
		}

	case OpTableGet, OpTableSet, OpTableGrow, OpTableSize, OpTableFill:
		if _, err := d.checkTable(i.Tableidx()); err != nil {
			return err
		}

	case OpTableInit:
		t, err := d.checkTable(i.Tableidx())
		if err != nil {
			return err
		}
		et, ok := d.GetElementType(i.Elemidx())
		if !ok {
			return wasm.ValidationError("unknown elem segment")
		}
		if t != et {
			return wasm.ValidationError("type mismatch")
		}

	case OpTableCopy:
		dst, err := d.checkTable(i.Tableidx())
		if err != nil {
			return err
		}
		src, err := d.checkTable(i.SourceTableidx())
		if err != nil {
			return err
		}
		if dst != src {
			return wasm.ValidationError("type mismatch")
		}

	case OpElemDrop:
		if _, ok := d.GetElementType(i.Elemidx()); !ok {
			return wasm.ValidationError("unknown elem segment")
		}

	case OpMemoryInit, OpDataDrop:
		if !d.HasData(i.Dataidx()) {
			return wasm.ValidationError("unknown data segment")
		}

	case OpRefIsNull:
		t, err := d.popOpd()
		if err != nil {
			return err
		}
		if t != wasm.ValueTypeT && !t.IsRef() {
			return wasm.ValidationError("type mismatch")
		}
		d.pushOpds(wasm.ValueTypeI32)
		return nil

	case OpRefFunc:
		if _, ok := d.GetFunctionSignature(i.Funcidx()); !ok {
			return wasm.ValidationError("unknown function")
		}
	}

	pop, push := i.Types(d)
	if err := d.popOpds(pop...); err != nil {
		return err
	}
	d.pushOpds(push...)
	return nil
}

func getIndex(body []byte) (uint32, []byte, error) {
	index, read, err := leb128.GetVarUint32(body)
	if err != nil {
		return 0, nil, err
	}
	return index, body[read:], nil
}

func getZeroByte(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	if body[0] != 0x00 {
		return nil, ErrInvalidInstruction
	}
	return body[1:], nil
}

// decodeImmediate decodes the immediate operands of an instruction.
func decodeImmediate(imm immediate, body []byte) (value uint64, labels []int, rest []byte, err error) {
	switch imm {
	case immBlockType:
		value, body, err = decodeBlockType(body)
	case immIndex:
		var index uint32
		index, body, err = getIndex(body)
		value = uint64(index)
	case immBrTable:
		var count uint32
		if count, body, err = getIndex(body); err != nil {
			return
		}
		if int(count) > len(body) {
			return 0, nil, nil, io.ErrUnexpectedEOF
		}
		labels = make([]int, int(count))
		for i := range labels {
			var label uint32
			if label, body, err = getIndex(body); err != nil {
				return
			}
			labels[i] = int(label)
		}
		var defaultLabel uint32
		defaultLabel, body, err = getIndex(body)
		value = uint64(defaultLabel)
	case immCallIndirect:
		var typeidx, tableidx uint32
		if typeidx, body, err = getIndex(body); err != nil {
			return
		}
		tableidx, body, err = getIndex(body)
		value = pack(tableidx, typeidx)
	case immMemarg:
		var align, offset uint32
		if align, body, err = getIndex(body); err != nil {
			return
		}
		offset, body, err = getIndex(body)
		value = memarg(offset, align)
	case immMemory:
		body, err = getZeroByte(body)
	case immI32:
		v, read, verr := leb128.GetVarint32(body)
		if verr != nil {
			return 0, nil, nil, verr
		}
		value, body = uint64(uint32(v)), body[read:]
	case immI64:
		v, read, verr := leb128.GetVarint64(body)
		if verr != nil {
			return 0, nil, nil, verr
		}
		value, body = uint64(v), body[read:]
	case immF32:
		if len(body) < 4 {
			return 0, nil, nil, io.ErrUnexpectedEOF
		}
		value, body = uint64(binary.LittleEndian.Uint32(body)), body[4:]
	case immF64:
		if len(body) < 8 {
			return 0, nil, nil, io.ErrUnexpectedEOF
		}
		value, body = binary.LittleEndian.Uint64(body), body[8:]
	case immValueTypes:
		var count uint32
		if count, body, err = getIndex(body); err != nil {
			return
		}
		if count != 1 {
			return 0, nil, nil, wasm.ValidationError("invalid result arity")
		}
		if len(body) == 0 {
			return 0, nil, nil, io.ErrUnexpectedEOF
		}
		value, body = uint64(body[0]), body[1:]
	case immRefType:
		if len(body) == 0 {
			return 0, nil, nil, io.ErrUnexpectedEOF
		}
		if t := wasm.ValueType(body[0]); !t.IsRef() {
			return 0, nil, nil, wasm.InvalidValueTypeError(body[0])
		}
		value, body = uint64(body[0]), body[1:]
	case immMemoryInit:
		var dataidx uint32
		if dataidx, body, err = getIndex(body); err != nil {
			return
		}
		body, err = getZeroByte(body)
		value = uint64(dataidx)
	case immMemoryCopy:
		if body, err = getZeroByte(body); err != nil {
			return
		}
		body, err = getZeroByte(body)
	case immTableInit:
		var elemidx, tableidx uint32
		if elemidx, body, err = getIndex(body); err != nil {
			return
		}
		tableidx, body, err = getIndex(body)
		value = pack(tableidx, elemidx)
	case immTableCopy:
		var dst, src uint32
		if dst, body, err = getIndex(body); err != nil {
			return
		}
		src, body, err = getIndex(body)
		value = pack(dst, src)
	}
	return value, labels, body, err
}

func (d *decoder) decodeInstruction(body []byte) (*Instruction, *opInfo, []byte, error) {
	if len(body) == 0 {
		return nil, nil, body, io.ErrUnexpectedEOF
	}

	ip := len(d.ibuf)
	opcode, rest := Opcode(body[0]), body[1:]
	if opcode == OpPrefix {
		sub, read, err := leb128.GetVarUint32(rest)
		if err != nil {
			return nil, nil, body, err
		}
		if sub > 0xff {
			return nil, nil, body, &UnsupportedInstructionError{Prefixed: true, Code: sub}
		}
		opcode, rest = OpPrefix<<8|Opcode(sub), rest[read:]
	}

	info := opcode.info()
	if info == nil {
		if opcode.IsPrefixed() {
			return nil, nil, body, &UnsupportedInstructionError{Prefixed: true, Code: uint32(opcode & 0xff)}
		}
		return nil, nil, body, &UnsupportedInstructionError{Code: uint32(opcode)}
	}

	immediate, labels, rest, err := decodeImmediate(info.imm, rest)
	if err != nil {
		return nil, nil, body, err
	}

	switch opcode {
	case OpBlock:
		labels = []int{0}
	case OpLoop:
		d.metrics.HasLoops = true
		labels = []int{ip}
	case OpIf:
		labels = []int{0, 0}
	case OpElse:
		labels = []int{0}
	}

	d.ibuf = append(d.ibuf, Instruction{
		Opcode:    opcode,
		Immediate: immediate,
		Labels:    labels,
	})
	return &d.ibuf[len(d.ibuf)-1], info, rest, nil
}

// decode decodes instructions until the end of the function body. On failure, it returns the remainder of the
// body starting at the instruction that failed.
func (d *decoder) decode(body []byte, out []wasm.ValueType) (Body, []byte, error) {
	// Every instruction occupies at least one byte, so the buffer never reallocates. Blocks hold pointers into it.
	d.ibuf = make([]Instruction, 0, len(body))

	d.pushBlock(nil, nil, out)

	for {
		ip := len(d.ibuf)
		instr, info, rest, err := d.decodeInstruction(body)
		if err != nil {
			return Body{}, body, err
		}

		if err := d.validate(ip, instr, info, len(rest) == 0); err != nil {
			return Body{}, body, err
		}
		if d.metrics.MaxStackDepth > MaxStackDepth {
			return Body{}, body, wasm.ValidationError("operand stack too deep")
		}
		body = rest

		if len(d.blocks) == 0 {
			// Condense the instruction list.
			if cap(d.ibuf)-len(d.ibuf) > len(d.ibuf)/10 {
				result := make([]Instruction, len(d.ibuf))
				copy(result, d.ibuf)
				d.ibuf = result
			}
			return Body{
				Instructions: d.ibuf,
				Metrics:      d.metrics,
			}, nil, nil
		}
	}
}

func (d *decoder) validate(ip int, instr *Instruction, info *opInfo, atEnd bool) error {
	switch instr.Opcode {
	default:
		return d.doStack(instr, info)

	case OpUnreachable:
		d.unreachable()

	case OpIf:
		if err := d.popOpds(wasm.ValueTypeI32); err != nil {
			return err
		}
		fallthrough

	case OpBlock, OpLoop:
		in, out, ok := instr.BlockType(d)
		if !ok {
			return wasm.ValidationError("unknown type")
		}
		if err := d.popOpds(in...); err != nil {
			return err
		}
		d.pushBlock(instr, in, out)

		stackHeight := d.blocks[len(d.blocks)-1].stackHeight
		instr.Immediate |= (uint64(stackHeight) << 32) & StackHeightMask

	case OpElse:
		b, err := d.popBlock()
		if err != nil {
			return err
		}
		if b.Instruction == nil || b.Opcode != OpIf || b.Labels[1] != 0 {
			return wasm.ValidationError("else without if")
		}
		b.Labels[1] = ip

		d.pushBlock(b.Instruction, b.in, b.out)

	case OpEnd:
		b, err := d.popBlock()
		if err != nil {
			return err
		}

		switch {
		case b.Instruction != nil:
			if b.Opcode != OpLoop {
				b.Labels[0] = ip + 1
			}
			if b.Opcode == OpIf {
				if b.Labels[1] != 0 {
					d.ibuf[b.Labels[1]].Labels[0] = ip + 1
				} else if !sameTypes(b.in, b.out) {
					return wasm.ValidationError("type mismatch")
				}
			}
			d.pushOpds(b.out...)
		case !atEnd:
			return wasm.ValidationError("unexpected end instruction")
		}

	case OpBr:
		pop, err := d.labelTypes(instr.Labelidx())
		if err != nil {
			return err
		}
		if err := d.popOpds(pop...); err != nil {
			return err
		}
		d.unreachable()

	case OpBrIf:
		pop, err := d.labelTypes(instr.Labelidx())
		if err != nil {
			return err
		}
		if err := d.popOpds(wasm.ValueTypeI32); err != nil {
			return err
		}
		if err := d.popOpds(pop...); err != nil {
			return err
		}
		d.pushOpds(pop...)

	case OpBrTable:
		pop, err := d.labelTypes(instr.Default())
		if err != nil {
			return err
		}
		for _, l := range instr.Labels {
			typs, err := d.labelTypes(l)
			if err != nil {
				return err
			}
			if !sameTypes(typs, pop) {
				return wasm.ValidationError("type mismatch")
			}
		}
		if err := d.popOpds(wasm.ValueTypeI32); err != nil {
			return err
		}
		if err := d.popOpds(pop...); err != nil {
			return err
		}
		d.unreachable()

	case OpReturn:
		if err := d.popOpds(d.blocks[0].out...); err != nil {
			return err
		}
		d.unreachable()
	}
	return nil
}
