package engine

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgavlin/polywarp/exec"
	"github.com/pgavlin/polywarp/wasm"
	"github.com/pgavlin/polywarp/wasm/code"
)

var (
	i32     = wasm.ValueTypeI32
	i64     = wasm.ValueTypeI64
	f32     = wasm.ValueTypeF32
	f64     = wasm.ValueTypeF64
	funcref = wasm.ValueTypeFuncref
)

func sig(params []wasm.ValueType, results ...wasm.ValueType) wasm.FunctionSig {
	return wasm.FunctionSig{Form: wasm.TypeFunc, ParamTypes: params, ReturnTypes: results}
}

func params(types ...wasm.ValueType) []wasm.ValueType {
	return types
}

// optionSets are the compilation strategies that every program must agree across.
var optionSets = []struct {
	name    string
	options Options
}{
	{"deferred", Options{}},
	{"eager", Options{Eager: true}},
	{"dispatch", Options{NestingThreshold: -1}},
	{"eager-dispatch", Options{Eager: true, NestingThreshold: -1}},
}

func forEachOptions(t *testing.T, test func(t *testing.T, options Options)) {
	for _, o := range optionSets {
		o := o
		t.Run(o.name, func(t *testing.T) { test(t, o.options) })
	}
}

type moduleBuilder struct {
	t *testing.T
	m *wasm.Module
}

func newModuleBuilder(t *testing.T) *moduleBuilder {
	return &moduleBuilder{t: t, m: wasm.NewModule()}
}

func (b *moduleBuilder) typeIndex(signature wasm.FunctionSig) uint32 {
	for i, s := range b.m.Types.Entries {
		if s.Equals(signature) {
			return uint32(i)
		}
	}
	b.m.Types.Entries = append(b.m.Types.Entries, signature)
	return uint32(len(b.m.Types.Entries) - 1)
}

func (b *moduleBuilder) importEntry(module, name string, type_ wasm.Import) {
	b.m.Import.Entries = append(b.m.Import.Entries, wasm.ImportEntry{ModuleName: module, FieldName: name, Type: type_})
}

// importFunction adds a function import. Function imports must be added before any function is defined.
func (b *moduleBuilder) importFunction(module, name string, signature wasm.FunctionSig) uint32 {
	functions, _, _, _ := b.m.ImportCounts()
	b.importEntry(module, name, wasm.FuncImport{Type: b.typeIndex(signature)})
	return uint32(functions)
}

func (b *moduleBuilder) export(name string, kind wasm.External, index uint32) {
	b.m.Export.Entries = append(b.m.Export.Entries, wasm.ExportEntry{FieldStr: name, Kind: kind, Index: index})
}

// function defines a function and exports it if name is not empty.
func (b *moduleBuilder) function(name string, signature wasm.FunctionSig, locals []wasm.LocalEntry, body ...code.Instruction) uint32 {
	var buf bytes.Buffer
	require.NoError(b.t, code.Encode(&buf, body))

	functions, _, _, _ := b.m.ImportCounts()
	index := uint32(functions + len(b.m.Function.Types))

	b.m.Function.Types = append(b.m.Function.Types, b.typeIndex(signature))
	b.m.Code.Bodies = append(b.m.Code.Bodies, wasm.FunctionBody{Locals: locals, Code: buf.Bytes()})
	if name != "" {
		b.export(name, wasm.ExternalFunction, index)
	}
	return index
}

func limits(min, max uint32) wasm.ResizableLimits {
	if max == exec.NoMaximum {
		return wasm.ResizableLimits{Initial: min}
	}
	return wasm.ResizableLimits{Flags: 1, Initial: min, Maximum: max}
}

func (b *moduleBuilder) memory(min, max uint32) {
	b.m.Memory.Entries = append(b.m.Memory.Entries, wasm.Memory{Limits: limits(min, max)})
}

func (b *moduleBuilder) table(min, max uint32) {
	b.m.Table.Entries = append(b.m.Table.Entries, wasm.Table{ElementType: funcref, Limits: limits(min, max)})
}

func (b *moduleBuilder) global(name string, type_ wasm.GlobalVar, init wasm.ConstExpr) uint32 {
	_, _, _, globals := b.m.ImportCounts()
	index := uint32(globals + len(b.m.Global.Globals))
	b.m.Global.Globals = append(b.m.Global.Globals, wasm.GlobalEntry{Type: type_, Init: init})
	if name != "" {
		b.export(name, wasm.ExternalGlobal, index)
	}
	return index
}

func (b *moduleBuilder) definition(options Options) *ModuleDefinition {
	def, err := NewModuleDefinition(b.m, options)
	require.NoError(b.t, err)
	return def
}

func (b *moduleBuilder) instantiate(t *testing.T, options Options, imports exec.ImportResolver) *Instance {
	if imports == nil {
		imports = exec.Imports{}
	}
	inst, err := b.definition(options).Instantiate("test", imports)
	require.NoError(t, err)
	return inst
}

func call(t *testing.T, inst *Instance, name string, args ...interface{}) []interface{} {
	results, err := inst.Call(name, args...)
	require.NoError(t, err)
	return results
}

func call1(t *testing.T, inst *Instance, name string, args ...interface{}) interface{} {
	results := call(t, inst, name, args...)
	require.Len(t, results, 1)
	return results[0]
}
