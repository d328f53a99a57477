package polywarp

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgavlin/polywarp/exec"
	"github.com/pgavlin/polywarp/wasm"
	"github.com/pgavlin/polywarp/wasm/code"
)

func encodeBody(t *testing.T, body ...code.Instruction) []byte {
	var buf bytes.Buffer
	require.NoError(t, code.Encode(&buf, body))
	return buf.Bytes()
}

// counterModule imports env.log and exports a memory-backed counter.
func counterModule(t *testing.T) []byte {
	m := wasm.NewModule()
	m.Types.Entries = []wasm.FunctionSig{
		{Form: wasm.TypeFunc, ParamTypes: []wasm.ValueType{wasm.ValueTypeI32}},
		{Form: wasm.TypeFunc, ReturnTypes: []wasm.ValueType{wasm.ValueTypeI32}},
		{Form: wasm.TypeFunc, ParamTypes: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, ReturnTypes: []wasm.ValueType{wasm.ValueTypeI32}},
	}
	m.Import.Entries = []wasm.ImportEntry{{ModuleName: "env", FieldName: "log", Type: wasm.FuncImport{Type: 0}}}
	m.Memory.Entries = []wasm.Memory{{Limits: wasm.ResizableLimits{Initial: 1}}}
	m.Function.Types = []uint32{1, 2}
	m.Code.Bodies = []wasm.FunctionBody{
		// increment: mem[0] += 1; log(mem[0]); return mem[0]
		{Code: encodeBody(t,
			code.I32Const(0),
			code.I32Const(0),
			code.Mem(code.OpI32Load, 0, 2),
			code.I32Const(1),
			code.Op(code.OpI32Add),
			code.Mem(code.OpI32Store, 0, 2),
			code.I32Const(0),
			code.Mem(code.OpI32Load, 0, 2),
			code.Call(0),
			code.I32Const(0),
			code.Mem(code.OpI32Load, 0, 2),
			code.End(),
		)},
		// div: x / y
		{Code: encodeBody(t, code.LocalGet(0), code.LocalGet(1), code.Op(code.OpI32DivS), code.End())},
	}
	m.Export.Entries = []wasm.ExportEntry{
		{FieldStr: "increment", Kind: wasm.ExternalFunction, Index: 1},
		{FieldStr: "div", Kind: wasm.ExternalFunction, Index: 2},
		{FieldStr: "memory", Kind: wasm.ExternalMemory, Index: 0},
	}

	b, err := wasm.Encode(m)
	require.NoError(t, err)
	return b
}

func TestCompileAndInstantiate(t *testing.T) {
	module, err := Compile(counterModule(t))
	require.NoError(t, err)
	assert.Len(t, module.Stats(), 2)
	assert.Len(t, module.Wasm().Code.Bodies, 2)

	var logged []int32
	inst, err := Instantiate(module, Imports{"env": {"log": func(v int32) { logged = append(logged, v) }}})
	require.NoError(t, err)

	exports := inst.Exports()
	assert.Contains(t, exports, "increment")
	assert.Contains(t, exports, "div")
	assert.IsType(t, &exec.Memory{}, exports["memory"])

	for i := 1; i <= 3; i++ {
		results, err := inst.Call("increment")
		require.NoError(t, err)
		assert.Equal(t, []interface{}{int32(i)}, results)
	}
	assert.Equal(t, []int32{1, 2, 3}, logged)

	mem, err := inst.GetMemory("memory")
	require.NoError(t, err)
	assert.Equal(t, byte(3), mem.Bytes()[0])
}

func TestInstancesAreIndependent(t *testing.T) {
	module, err := Compile(counterModule(t))
	require.NoError(t, err)

	imports := Imports{"env": {"log": func(v int32) {}}}
	a, err := Instantiate(module, imports)
	require.NoError(t, err)
	b, err := Instantiate(module, imports)
	require.NoError(t, err)

	_, err = a.Call("increment")
	require.NoError(t, err)
	results, err := b.Call("increment")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int32(1)}, results)
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile([]byte("not a module"))
	var compileErr *CompileError
	assert.True(t, errors.As(err, &compileErr))

	_, err = Compile(nil)
	assert.True(t, errors.As(err, &compileErr))
}

func TestLinkErrorAlias(t *testing.T) {
	module, err := Compile(counterModule(t))
	require.NoError(t, err)

	_, err = Instantiate(module, nil)
	var linkErr *LinkError
	require.True(t, errors.As(err, &linkErr))
	assert.Equal(t, "env", linkErr.ModuleName)
	assert.Equal(t, "log", linkErr.FieldName)
}

func TestTrapsAreErrors(t *testing.T) {
	module, err := CompileWithOptions(counterModule(t), Options{Eager: true})
	require.NoError(t, err)

	inst, err := Instantiate(module, Imports{"env": {"log": func(v int32) {}}})
	require.NoError(t, err)

	_, err = inst.Call("div", int32(1), int32(0))
	var trap Trap
	require.True(t, errors.As(err, &trap))
	assert.Equal(t, exec.TrapIntegerDivideByZero, trap)

	results, err := inst.Call("div", int32(-9), int32(2))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int32(-4)}, results)
}
