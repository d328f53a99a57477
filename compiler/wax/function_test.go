package wax

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgavlin/polywarp/wasm"
	"github.com/pgavlin/polywarp/wasm/code"
)

var (
	i32 = wasm.ValueTypeI32
	i64 = wasm.ValueTypeI64
)

func sig(params []wasm.ValueType, results ...wasm.ValueType) wasm.FunctionSig {
	return wasm.FunctionSig{Form: wasm.TypeFunc, ParamTypes: params, ReturnTypes: results}
}

func importBody(t *testing.T, maxPendingDepth int, signature wasm.FunctionSig, locals []wasm.LocalEntry, body ...code.Instruction) *Function {
	var buf bytes.Buffer
	require.NoError(t, code.Encode(&buf, body))

	m := wasm.NewModule()
	m.Types.Entries = []wasm.FunctionSig{signature}
	m.Function.Types = []uint32{0}
	m.Memory.Entries = []wasm.Memory{{Limits: wasm.ResizableLimits{Initial: 1}}}

	f, err := ImportFunction(signature, wasm.FunctionBody{Locals: locals, Code: buf.Bytes()}, code.NewStaticScope(m), maxPendingDepth)
	require.NoError(t, err)
	return f
}

func statements(f *Function) []string {
	strs := make([]string, len(f.Body))
	for i, d := range f.Body {
		strs[i] = d.String()
	}
	return strs
}

func TestDeferredExpression(t *testing.T) {
	f := importBody(t, DefaultMaxPendingDepth, sig([]wasm.ValueType{i32}), []wasm.LocalEntry{{Count: 1, Type: i32}},
		code.LocalGet(0),
		code.I32Const(1),
		code.Op(code.OpI32Add),
		code.LocalSet(1),
		code.End())

	assert.Equal(t, []string{
		"block",
		"local.set 1(i32.add(local.get 0, i32.const 1))",
		"end",
	}, statements(f))
	assert.Equal(t, 2, f.NumLocals)
	assert.Equal(t, 0, f.NumTemps())
}

func TestEagerExpression(t *testing.T) {
	f := importBody(t, 0, sig([]wasm.ValueType{i32}), []wasm.LocalEntry{{Count: 1, Type: i32}},
		code.LocalGet(0),
		code.I32Const(1),
		code.Op(code.OpI32Add),
		code.LocalSet(1),
		code.End())

	assert.Equal(t, []string{
		"block",
		"s2 = local.get 0",
		"s3 = i32.const 1",
		"s4 = i32.add(s2, s3)",
		"local.set 1(s4)",
		"end",
	}, statements(f))
	assert.Equal(t, 3, f.NumTemps())
}

func TestLocalInterference(t *testing.T) {
	f := importBody(t, DefaultMaxPendingDepth, sig([]wasm.ValueType{i32}, i32), nil,
		code.LocalGet(0),
		code.I32Const(5),
		code.LocalSet(0),
		code.End())

	assert.Equal(t, []string{
		"block",
		"s2 = local.get 0",
		"local.set 0(i32.const 5)",
		"end(s2)",
	}, statements(f))
}

func TestLocalNoInterference(t *testing.T) {
	f := importBody(t, DefaultMaxPendingDepth, sig([]wasm.ValueType{i32}, i32), []wasm.LocalEntry{{Count: 1, Type: i32}},
		code.LocalGet(0),
		code.I32Const(5),
		code.LocalSet(1),
		code.End())

	assert.Equal(t, []string{
		"block",
		"local.set 1(i32.const 5)",
		"end(local.get 0)",
	}, statements(f))
}

func TestTrapOrdering(t *testing.T) {
	f := importBody(t, DefaultMaxPendingDepth, sig(nil, i32), nil,
		code.I32Const(1),
		code.I32Const(0),
		code.Op(code.OpI32DivS),
		code.I32Const(0),
		code.I32Const(7),
		code.Mem(code.OpI32Store, 0, 2),
		code.End())

	assert.Equal(t, []string{
		"block",
		"s1 = i32.div_s(i32.const 1, i32.const 0)",
		"i32.store align=4(i32.const 0, i32.const 7)",
		"end(s1)",
	}, statements(f))
}

func TestConstantFolding(t *testing.T) {
	f := importBody(t, DefaultMaxPendingDepth, sig(nil, i64), nil,
		code.I32Const(2),
		code.I32Const(3),
		code.Op(code.OpI32Mul),
		code.Op(code.OpI64ExtendI32S),
		code.End())

	assert.Equal(t, []string{"block", "end(i64.const 6)"}, statements(f))
}

func TestMaxPendingDepth(t *testing.T) {
	f := importBody(t, 2, sig([]wasm.ValueType{i32}, i32), nil,
		code.LocalGet(0),
		code.I32Const(1),
		code.Op(code.OpI32Add),
		code.I32Const(2),
		code.Op(code.OpI32Add),
		code.End())

	assert.Equal(t, []string{
		"block",
		"s2 = i32.add(i32.add(local.get 0, i32.const 1), i32.const 2)",
		"end(s2)",
	}, statements(f))
}

func TestLocalTee(t *testing.T) {
	f := importBody(t, DefaultMaxPendingDepth, sig([]wasm.ValueType{i32}, i32), nil,
		code.LocalGet(0),
		code.I32Const(1),
		code.Op(code.OpI32Add),
		code.LocalTee(0),
		code.End())

	assert.Equal(t, []string{
		"block",
		"local.set 0(i32.add(local.get 0, i32.const 1))",
		"end(local.get 0)",
	}, statements(f))
}

func TestUnreachableCode(t *testing.T) {
	f := importBody(t, DefaultMaxPendingDepth, sig(nil, i32), nil,
		code.I32Const(1),
		code.Return(),
		code.I32Const(2),
		code.Drop(),
		code.Block(),
		code.I32Const(3),
		code.Drop(),
		code.End(),
		code.I32Const(4),
		code.End())

	assert.Equal(t, []string{
		"block",
		"return(i32.const 1)",
		"end",
	}, statements(f))
	assert.Len(t, f.Blocks, 1)
	assert.True(t, f.Blocks[0].BranchTarget)
}

func TestBranchValues(t *testing.T) {
	f := importBody(t, DefaultMaxPendingDepth, sig([]wasm.ValueType{i32}, i32), nil,
		code.Block(code.ValueBlockType(i32)),
		code.I32Const(7),
		code.LocalGet(0),
		code.BrIf(0),
		code.Drop(),
		code.I32Const(9),
		code.End(),
		code.End())

	assert.Equal(t, []string{
		"block",
		"block (result i32)",
		"s3 = i32.const 7",
		"br_if 0(s3, local.get 0)",
		"end(i32.const 9)",
		"end(s2)",
	}, statements(f))

	require.Len(t, f.Blocks, 2)
	b := f.Blocks[1]
	assert.True(t, b.BranchTarget)
	assert.Equal(t, 1, b.Label)
	assert.Equal(t, 2, b.OutTemp)
	assert.Equal(t, 2, b.LabelTemp())
}

func TestLoopAndIf(t *testing.T) {
	f := importBody(t, DefaultMaxPendingDepth, sig([]wasm.ValueType{i32}, i32), nil,
		code.Loop(),
		code.LocalGet(0),
		code.If(code.ValueBlockType(i32)),
		code.I32Const(1),
		code.Else(),
		code.I32Const(2),
		code.End(),
		code.LocalGet(0),
		code.BrIf(0),
		code.Drop(),
		code.End(),
		code.I32Const(0),
		code.End())

	assert.Equal(t, []string{
		"block",
		"loop",
		"if (result i32)(local.get 0)",
		"else(i32.const 1)",
		"end(i32.const 2)",
		"br_if 0(local.get 0)",
		"end",
		"end(i32.const 0)",
	}, statements(f))

	require.Len(t, f.Blocks, 3)
	assert.True(t, f.Blocks[1].IsLoop())
	assert.True(t, f.Blocks[1].BranchTarget)
	assert.False(t, f.Blocks[2].BranchTarget)

	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf))
	assert.Contains(t, buf.String(), "\n    else(i32.const 1)\n")
}

func TestFlagsCanMoveAfter(t *testing.T) {
	cases := []struct {
		f, g     Flags
		expected bool
	}{
		{0, FlagsCall, true},
		{FlagsLoadLocal, FlagsStoreLocal, false},
		{FlagsLoadMem, FlagsStoreMem, false},
		{FlagsLoadMem, FlagsStoreGlobal, true},
		{FlagsStoreMem, FlagsLoadMem, false},
		{FlagsMayTrap, FlagsMayTrap, false},
		{FlagsMayTrap, FlagsStoreLocal, true},
		{FlagsMayTrap, FlagsStoreTable, false},
		{FlagsLoadGlobal, FlagsLoadGlobal | FlagsMayTrap, true},
		{FlagsLoadMem | FlagsMayTrap, FlagsLoadTable, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.expected, c.f.CanMoveAfter(c.g), "%v after %v", c.f, c.g)
	}
}
