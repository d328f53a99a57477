package code

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/pgavlin/polywarp/wasm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	i32 = wasm.ValueTypeI32
	i64 = wasm.ValueTypeI64
)

func testModule(memory bool) *wasm.Module {
	m := wasm.NewModule()
	m.Types.Entries = []wasm.FunctionSig{
		{Form: wasm.TypeFunc, ParamTypes: []wasm.ValueType{i32}, ReturnTypes: []wasm.ValueType{i32}},
		{Form: wasm.TypeFunc},
	}
	m.Function.Types = []uint32{0, 1}
	m.Code.Bodies = make([]wasm.FunctionBody, 2)
	m.Global.Globals = []wasm.GlobalEntry{
		{Type: wasm.GlobalVar{Type: i32}, Init: wasm.I32Const(0)},
		{Type: wasm.GlobalVar{Type: i64, Mutable: true}, Init: wasm.I64Const(0)},
	}
	m.Table.Entries = []wasm.Table{{ElementType: wasm.ValueTypeFuncref, Limits: wasm.ResizableLimits{Initial: 1}}}
	if memory {
		m.Memory.Entries = []wasm.Memory{{Limits: wasm.ResizableLimits{Initial: 1}}}
	}
	return m
}

func testScope(memory bool, locals ...wasm.ValueType) *StaticScope {
	s := NewStaticScope(testModule(memory))
	s.Locals = locals
	return s
}

func encodeBody(t *testing.T, body ...Instruction) []byte {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, body))
	return buf.Bytes()
}

func TestDecodeStraightLine(t *testing.T) {
	body := encodeBody(t,
		LocalGet(0),
		I32Const(-7),
		Op(OpI32Add),
		Mem(OpI32Load, 16, 2),
		End(),
	)

	decoded, err := Decode(body, testScope(true, i32), []wasm.ValueType{i32})
	require.NoError(t, err)

	require.Len(t, decoded.Instructions, 5)
	assert.Equal(t, OpLocalGet, decoded.Instructions[0].Opcode)
	assert.Equal(t, int32(-7), decoded.Instructions[1].I32())
	offset, align := decoded.Instructions[3].Memarg()
	assert.Equal(t, uint32(16), offset)
	assert.Equal(t, uint32(2), align)
	assert.Equal(t, uint32(4), decoded.Instructions[3].Size())
	assert.Equal(t, 2, decoded.Metrics.MaxStackDepth)
	assert.Equal(t, 1, decoded.Metrics.MaxNesting)
	assert.False(t, decoded.Metrics.HasLoops)
}

func TestDecodeLabels(t *testing.T) {
	body := encodeBody(t,
		Block(),      // 0
		Loop(),       // 1
		LocalGet(0),  // 2
		Op(OpI32Eqz), // 3
		BrIf(1),      // 4
		LocalGet(0),  // 5
		If(),         // 6
		Br(1),        // 7
		Else(),       // 8
		Nop(),        // 9
		End(),        // 10
		End(),        // 11
		End(),        // 12
		LocalGet(0),  // 13
		End(),        // 14
	)

	decoded, err := Decode(body, testScope(false, i32), []wasm.ValueType{i32})
	require.NoError(t, err)

	instrs := decoded.Instructions
	require.Len(t, instrs, 15)
	assert.Equal(t, []int{13}, instrs[0].Labels)
	assert.Equal(t, []int{1}, instrs[1].Labels)
	assert.Equal(t, 11, instrs[6].Continuation())
	assert.Equal(t, 8, instrs[6].Else())
	assert.Equal(t, []int{11}, instrs[8].Labels)
	assert.Equal(t, 0, instrs[6].StackHeight())

	assert.Equal(t, 4, decoded.Metrics.MaxNesting)
	assert.Equal(t, 5, decoded.Metrics.LabelCount)
	assert.True(t, decoded.Metrics.HasLoops)
}

func TestDecodeBlockParams(t *testing.T) {
	// Type 0 is (i32) -> i32.
	body := encodeBody(t,
		I64Const(1),
		Op(OpDrop),
		I32Const(1),
		Block(BlockType(0)),
		I32Const(2),
		Op(OpI32Add),
		End(),
		End(),
	)

	decoded, err := Decode(body, testScope(false), []wasm.ValueType{i32})
	require.NoError(t, err)
	assert.Equal(t, 0, decoded.Instructions[3].StackHeight())
}

func TestDecodeUnreachableIsPolymorphic(t *testing.T) {
	body := encodeBody(t,
		Unreachable(),
		Op(OpI32Add),
		End(),
	)
	_, err := Decode(body, testScope(false), []wasm.ValueType{i32})
	assert.NoError(t, err)
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   []byte
		memory bool
		out    []wasm.ValueType
		err    error
	}{
		{name: "unsupported opcode", body: []byte{0xff, 0x0b}, err: &UnsupportedInstructionError{Code: 0xff}},
		{name: "unsupported prefixed opcode", body: []byte{0xfc, 99, 0x0b}, err: &UnsupportedInstructionError{Prefixed: true, Code: 99}},
		{name: "branch depth", body: []byte{0x0c, 0x01, 0x0b}, err: wasm.ValidationError("unknown label")},
		{name: "unknown local", body: []byte{0x20, 0x05, 0x1a, 0x0b}, err: wasm.ValidationError("unknown local")},
		{name: "unknown global", body: []byte{0x23, 0x05, 0x1a, 0x0b}, err: wasm.ValidationError("unknown global")},
		{name: "immutable global", body: []byte{0x41, 0x01, 0x24, 0x00, 0x0b}, err: wasm.ValidationError("global is immutable")},
		{name: "unknown function", body: []byte{0x10, 0x09, 0x0b}, err: wasm.ValidationError("unknown function")},
		{name: "unknown memory", body: []byte{0x41, 0x00, 0x28, 0x02, 0x00, 0x1a, 0x0b}, err: wasm.ValidationError("unknown memory")},
		{name: "bad alignment", memory: true, body: []byte{0x41, 0x00, 0x28, 0x03, 0x00, 0x1a, 0x0b}, err: wasm.ValidationError("alignment must not be larger than natural")},
		{name: "result mismatch", out: []wasm.ValueType{i32}, body: []byte{0x42, 0x00, 0x0b}, err: wasm.ValidationError("type mismatch")},
		{name: "operand mismatch", body: []byte{0x41, 0x00, 0x42, 0x00, 0x6a, 0x1a, 0x0b}, err: wasm.ValidationError("type mismatch")},
		{name: "underflow", body: []byte{0x6a, 0x0b}, err: wasm.ValidationError("stack underflow")},
		{name: "unbalanced", body: []byte{0x41, 0x00, 0x0b}, err: wasm.ValidationError("type mismatch")},
		{name: "else without if", body: []byte{0x02, 0x40, 0x05, 0x0b, 0x0b}, err: wasm.ValidationError("else without if")},
		{name: "if without else", body: []byte{0x41, 0x00, 0x04, 0x7f, 0x41, 0x00, 0x0b, 0x1a, 0x0b}, err: wasm.ValidationError("type mismatch")},
		{name: "trailing bytes", body: []byte{0x0b, 0x01}, err: wasm.ValidationError("unexpected end instruction")},
		{name: "nonzero reserved byte", memory: true, body: []byte{0x3f, 0x01, 0x1a, 0x0b}, err: ErrInvalidInstruction},
		{name: "missing end", body: []byte{0x01}, err: io.ErrUnexpectedEOF},
		{name: "unknown data segment", memory: true, body: []byte{0xfc, 0x09, 0x00, 0x0b}, err: wasm.ValidationError("unknown data segment")},
		{name: "unknown elem segment", body: []byte{0xfc, 0x0d, 0x00, 0x0b}, err: wasm.ValidationError("unknown elem segment")},
		{name: "unknown table", body: []byte{0x41, 0x00, 0x25, 0x01, 0x1a, 0x0b}, err: wasm.ValidationError("unknown table")},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Decode(c.body, testScope(c.memory, i32), c.out)
			require.Error(t, err)

			var ierr *InstructionError
			require.True(t, errors.As(err, &ierr))

			var unsupported *UnsupportedInstructionError
			if errors.As(c.err, &unsupported) {
				var actual *UnsupportedInstructionError
				require.True(t, errors.As(err, &actual))
				assert.Equal(t, unsupported, actual)
				assert.Contains(t, err.Error(), "Unsupported instruction")
				return
			}
			assert.ErrorIs(t, err, c.err)
		})
	}
}

func TestDecodeStackLimit(t *testing.T) {
	body := make([]byte, 0, 2*(MaxStackDepth+1)+1)
	for i := 0; i <= MaxStackDepth; i++ {
		body = append(body, 0x41, 0x00)
	}
	body = append(body, 0x0b)

	_, err := Decode(body, testScope(false), nil)
	assert.ErrorIs(t, err, wasm.ValidationError("operand stack too deep"))
}

func TestDeepNesting(t *testing.T) {
	const depth = 1000

	var body []Instruction
	for i := 0; i < depth; i++ {
		body = append(body, Block())
	}
	body = append(body, Br(depth-1))
	for i := 0; i < depth; i++ {
		body = append(body, End())
	}
	body = append(body, End())

	decoded, err := Decode(encodeBody(t, body...), testScope(false), nil)
	require.NoError(t, err)
	assert.Equal(t, depth+1, decoded.Metrics.MaxNesting)
	assert.Equal(t, 2*depth+1, decoded.Instructions[0].Continuation())
}

func TestInstructionRoundTrip(t *testing.T) {
	instrs := []Instruction{
		Block(ValueBlockType(wasm.ValueTypeF64)),
		Loop(BlockType(300)),
		If(BlockTypeEmpty),
		Br(3),
		BrTable(4, 1, 2, 3),
		Call(70000),
		CallIndirect(2, 1),
		SelectT(wasm.ValueTypeExternref),
		LocalTee(129),
		GlobalSet(3),
		TableGet(1),
		Mem(OpI64Store32, 0xffffffff, 2),
		MemoryGrow(),
		I32Const(-1),
		I64Const(-1 << 63),
		F32Const(1.5),
		F64Const(-0.25),
		RefNull(wasm.ValueTypeFuncref),
		RefFunc(12),
		Op(OpI64TruncSatF64U),
		MemoryInit(5),
		MemoryCopy(),
		MemoryFill(),
		TableInit(7, 1),
		TableCopy(1, 2),
		ElemDrop(3),
		TableFill(0),
	}

	for _, instr := range instrs {
		t.Run(instr.String(), func(t *testing.T) {
			buf, err := AppendInstruction(nil, instr)
			require.NoError(t, err)

			var d decoder
			d.ibuf = make([]Instruction, 0, 1)
			decoded, _, rest, err := d.decodeInstruction(buf)
			require.NoError(t, err)
			assert.Empty(t, rest)
			assert.Equal(t, instr.Opcode, decoded.Opcode)
			assert.Equal(t, instr.Immediate, decoded.Immediate)
			if instr.Opcode == OpBrTable {
				assert.Equal(t, instr.Labels, decoded.Labels)
			}
		})
	}
}

func TestInstructionString(t *testing.T) {
	str := func(i Instruction) string { return i.String() }

	assert.Equal(t, "i32.const -1", str(I32Const(-1)))
	assert.Equal(t, "i32.load offset=4 align=4", str(Mem(OpI32Load, 4, 2)))
	assert.Equal(t, "call_indirect 1 (type 3)", str(CallIndirect(3, 1)))
	assert.Equal(t, "br_table 0 1 2", str(BrTable(2, 0, 1)))
	assert.Equal(t, "block (result i32)", str(Block(BlockTypeI32)))
	assert.Equal(t, "ref.null func", str(RefNull(wasm.ValueTypeFuncref)))
}

func TestEncodeRequiresEnd(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, Encode(&buf, []Instruction{Nop()}), io.ErrUnexpectedEOF)
	assert.Zero(t, buf.Len())
}
