// Package polywarp embeds a WebAssembly engine that compiles each function of a module into a tree of Go closures.
//
// A typical embedder compiles a module once and instantiates it as many times as needed:
//
//	module, err := polywarp.Compile(bytes)
//	if err != nil {
//		return err
//	}
//	instance, err := polywarp.Instantiate(module, polywarp.Imports{
//		"env": {"log": func(v int32) { fmt.Println(v) }},
//	})
//	if err != nil {
//		return err
//	}
//	results, err := instance.Call("main")
package polywarp

import (
	"bytes"

	"github.com/pgavlin/polywarp/engine"
	"github.com/pgavlin/polywarp/exec"
	"github.com/pgavlin/polywarp/wasm"
)

// A CompileError is returned when a module fails to decode or validate.
type CompileError = wasm.CompileError

// A LinkError is returned when an import cannot be resolved or a segment does not fit its table or memory.
type LinkError = exec.LinkError

// A Trap is a runtime failure raised by compiled code.
type Trap = exec.Trap

// Imports supplies the values imported by a module, keyed by module name and then by field name. Plain Go
// functions are adapted as host functions; int32, int64, float32 and float64 values become immutable globals.
type Imports = exec.Imports

// Options control how modules are compiled.
type Options = engine.Options

// A Module is a decoded, validated and compiled WebAssembly module.
type Module struct {
	definition *engine.ModuleDefinition
}

// Compile decodes, validates and compiles a module using the default options.
func Compile(b []byte) (*Module, error) {
	return CompileWithOptions(b, Options{})
}

// CompileWithOptions decodes, validates and compiles a module.
func CompileWithOptions(b []byte, options Options) (*Module, error) {
	m, err := wasm.DecodeModule(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	return CompileModule(m, options)
}

// CompileModule validates and compiles a decoded module.
func CompileModule(m *wasm.Module, options Options) (*Module, error) {
	def, err := engine.NewModuleDefinition(m, options)
	if err != nil {
		return nil, err
	}
	return &Module{definition: def}, nil
}

// Wasm returns the decoded module.
func (m *Module) Wasm() *wasm.Module {
	return m.definition.Module()
}

// Definition returns the compiled module definition. The definition may be registered with an exec.Store.
func (m *Module) Definition() *engine.ModuleDefinition {
	return m.definition
}

// Stats returns compilation statistics for each function defined by the module.
func (m *Module) Stats() []engine.FunctionStats {
	return m.definition.Stats()
}

// An Instance is an instantiated module.
type Instance struct {
	*engine.Instance
}

// Instantiate instantiates a compiled module. Imports may be nil if the module has none. A failure to link is
// reported as a *LinkError; a trap raised by the start function is returned as a Trap.
func Instantiate(module *Module, imports exec.ImportResolver) (*Instance, error) {
	return InstantiateNamed("", module, imports)
}

// InstantiateNamed instantiates a compiled module under the given name. The name appears in link errors raised
// by modules that import from this instance.
func InstantiateNamed(name string, module *Module, imports exec.ImportResolver) (*Instance, error) {
	if imports == nil {
		imports = Imports{}
	}
	inst, err := module.definition.Instantiate(name, imports)
	if err != nil {
		return nil, err
	}
	return &Instance{Instance: inst}, nil
}
