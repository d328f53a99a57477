package run

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgavlin/polywarp/exec"
	"github.com/pgavlin/polywarp/wasm"
	"github.com/pgavlin/polywarp/wasm/code"
)

func body(t *testing.T, instrs ...code.Instruction) wasm.FunctionBody {
	var buf bytes.Buffer
	require.NoError(t, code.Encode(&buf, instrs))
	return wasm.FunctionBody{Code: buf.Bytes()}
}

func writeModule(t *testing.T, dir, name string, m *wasm.Module) string {
	b, err := wasm.Encode(m)
	require.NoError(t, err)
	path := filepath.Join(dir, name+".wasm")
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

// writeModules writes a module that imports lib.scale and a lib module that provides it.
func writeModules(t *testing.T) string {
	dir := t.TempDir()

	binary := wasm.FunctionSig{Form: wasm.TypeFunc, ParamTypes: []wasm.ValueType{wasm.ValueTypeI64, wasm.ValueTypeI64}, ReturnTypes: []wasm.ValueType{wasm.ValueTypeI64}}
	divide := wasm.FunctionSig{Form: wasm.TypeFunc, ParamTypes: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, ReturnTypes: []wasm.ValueType{wasm.ValueTypeI32}}
	float := wasm.FunctionSig{Form: wasm.TypeFunc, ParamTypes: []wasm.ValueType{wasm.ValueTypeF64}, ReturnTypes: []wasm.ValueType{wasm.ValueTypeF64}}

	lib := wasm.NewModule()
	lib.Types.Entries = []wasm.FunctionSig{binary}
	lib.Function.Types = []uint32{0}
	lib.Code.Bodies = []wasm.FunctionBody{body(t, code.LocalGet(0), code.LocalGet(1), code.Op(code.OpI64Mul), code.End())}
	lib.Export.Entries = []wasm.ExportEntry{{FieldStr: "scale", Kind: wasm.ExternalFunction, Index: 0}}
	writeModule(t, dir, "lib", lib)

	m := wasm.NewModule()
	m.Types.Entries = []wasm.FunctionSig{binary, divide, float}
	m.Import.Entries = []wasm.ImportEntry{{ModuleName: "lib", FieldName: "scale", Type: wasm.FuncImport{Type: 0}}}
	m.Function.Types = []uint32{0, 1, 2}
	m.Code.Bodies = []wasm.FunctionBody{
		body(t, code.LocalGet(0), code.LocalGet(1), code.Call(0), code.I64Const(1), code.Op(code.OpI64Add), code.End()),
		body(t, code.LocalGet(0), code.LocalGet(1), code.Op(code.OpI32DivU), code.End()),
		body(t, code.LocalGet(0), code.Op(code.OpF64Sqrt), code.End()),
	}
	m.Export.Entries = []wasm.ExportEntry{
		{FieldStr: "main", Kind: wasm.ExternalFunction, Index: 1},
		{FieldStr: "divide", Kind: wasm.ExternalFunction, Index: 2},
		{FieldStr: "sqrt", Kind: wasm.ExternalFunction, Index: 3},
	}
	return writeModule(t, dir, "prog", m)
}

func TestParseArgument(t *testing.T) {
	v, err := ParseArgument(wasm.ValueTypeI32, "-5")
	require.NoError(t, err)
	assert.Equal(t, int32(-5), v)

	v, err = ParseArgument(wasm.ValueTypeI32, "0xffffffff")
	require.NoError(t, err)
	assert.Equal(t, int32(-1), v)

	v, err = ParseArgument(wasm.ValueTypeI64, "18446744073709551615")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v)

	v, err = ParseArgument(wasm.ValueTypeF32, "1.5")
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), v)

	_, err = ParseArgument(wasm.ValueTypeI32, "x")
	assert.Error(t, err)

	_, err = ParseArgument(wasm.ValueTypeFuncref, "0")
	assert.Error(t, err)
}

func TestFormatResult(t *testing.T) {
	assert.Equal(t, "42", FormatResult(int32(42)))
	assert.Equal(t, "0.1", FormatResult(float32(0.1)))
	assert.Equal(t, "null", FormatResult(nil))
}

func TestRunDefaultEntryPoint(t *testing.T) {
	path := writeModules(t)

	var stdout, stderr bytes.Buffer
	r := runner{stats: true, stdout: &stdout, stderr: &stderr}
	require.NoError(t, r.run(path, []string{"6", "7"}))
	assert.Equal(t, "43\n", stdout.String())
	assert.Contains(t, stderr.String(), "functions: 3")
}

func TestRunCommand(t *testing.T) {
	path := writeModules(t)

	for _, flags := range [][]string{nil, {"--eager"}, {"--dispatch-threshold", "0"}} {
		var stdout bytes.Buffer
		command := Command()
		command.SetOut(&stdout)
		command.SetArgs(append(append([]string{}, flags...), "--invoke", "sqrt", path, "2.25"))
		require.NoError(t, command.Execute())
		assert.Equal(t, "1.5\n", stdout.String())
	}
}

func TestRunErrors(t *testing.T) {
	path := writeModules(t)

	r := runner{invoke: "divide", stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	err := r.run(path, []string{"1", "0"})
	var trap exec.Trap
	require.True(t, errors.As(err, &trap))
	assert.Equal(t, exec.TrapIntegerDivideByZero, trap)

	assert.Error(t, r.run(path, []string{"1"}))

	r.invoke = "missing"
	assert.Error(t, r.run(path, nil))

	require.NoError(t, os.Remove(filepath.Join(filepath.Dir(path), "lib.wasm")))
	r.invoke = "divide"
	err = r.run(path, []string{"4", "2"})
	assert.ErrorIs(t, err, exec.ErrModuleNotFound)
}
