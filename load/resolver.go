package load

import (
	"io/fs"

	"github.com/pgavlin/polywarp/engine"
	"github.com/pgavlin/polywarp/exec"
	"github.com/pgavlin/polywarp/wasm"
)

// A ModuleDefinitionFunc turns a decoded module into a module definition.
type ModuleDefinitionFunc func(m *wasm.Module) (exec.ModuleDefinition, error)

// Compile returns a ModuleDefinitionFunc that compiles modules with the given options.
func Compile(options engine.Options) ModuleDefinitionFunc {
	return func(m *wasm.Module) (exec.ModuleDefinition, error) {
		return engine.NewModuleDefinition(m, options)
	}
}

// An FSResolver resolves module names to binary modules stored in a file system.
type FSResolver struct {
	fs             fs.FS
	definitionFunc ModuleDefinitionFunc
}

// NewFSResolver creates a resolver that loads modules from the given file system. If definitionFunc is nil,
// modules are compiled with the default options.
func NewFSResolver(fs fs.FS, definitionFunc ModuleDefinitionFunc) *FSResolver {
	if definitionFunc == nil {
		definitionFunc = Compile(engine.Options{})
	}
	return &FSResolver{fs: fs, definitionFunc: definitionFunc}
}

func (r *FSResolver) loadModule(name string) (*wasm.Module, error) {
	if !fs.ValidPath(name) {
		return nil, exec.ErrModuleNotFound
	}
	for _, ext := range []string{".wasm", ""} {
		if f, err := r.fs.Open(name + ext); err == nil {
			defer f.Close()
			return LoadModule(f)
		}
	}
	return nil, exec.ErrModuleNotFound
}

// ResolveModule loads and compiles the module with the given name.
func (r *FSResolver) ResolveModule(name string) (exec.ModuleDefinition, error) {
	m, err := r.loadModule(name)
	if err != nil {
		return nil, err
	}
	return r.definitionFunc(m)
}
