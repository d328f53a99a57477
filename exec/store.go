package exec

import (
	"fmt"

	"github.com/pgavlin/polywarp/wasm"
)

// ImportCycleError is returned when a module's imports lead back to a module that is still being instantiated.
type ImportCycleError struct {
	Path []string
}

func (e *ImportCycleError) Error() string {
	return fmt.Sprintf("import cycle: %v", e.Path)
}

// A Store instantiates modules by name. Imports of a module instantiated through a store are resolved to the
// exports of other modules in the store; modules that are not yet present are resolved to definitions by the
// store's ModuleResolver and instantiated on demand.
//
// A Store is itself an ImportResolver over the modules it holds.
type Store struct {
	resolver ModuleResolver
	modules  map[string]Module

	// pending is the stack of modules whose instantiation is in progress.
	pending []string
}

// NewStore creates a new store that will use the given resolver to resolve modules. The resolver may be nil, in
// which case only registered modules are available.
func NewStore(resolver ModuleResolver) *Store {
	return &Store{
		resolver: resolver,
		modules:  map[string]Module{},
	}
}

// Module returns the instantiated module with the given name, if any.
func (s *Store) Module(name string) (Module, bool) {
	m, ok := s.modules[name]
	return m, ok
}

// RegisterModule registers an instantiated module with the store, replacing any existing module with the same name.
func (s *Store) RegisterModule(name string, module Module) {
	s.modules[name] = module
}

// InstantiateModule returns the module with the given name, instantiating it if necessary. The name is resolved
// to a module definition using the store's ModuleResolver.
func (s *Store) InstantiateModule(name string) (Module, error) {
	if m, ok := s.modules[name]; ok {
		return m, nil
	}
	for i, p := range s.pending {
		if p == name {
			path := append(append([]string(nil), s.pending[i:]...), name)
			return nil, &ImportCycleError{Path: path}
		}
	}

	if s.resolver == nil {
		return nil, ErrModuleNotFound
	}
	definition, err := s.resolver.ResolveModule(name)
	if err != nil {
		return nil, err
	}
	return s.InstantiateModuleDefinition(name, definition)
}

// InstantiateModuleDefinition instantiates the given module definition and registers the result with the store.
// The module's imports are resolved through the store.
func (s *Store) InstantiateModuleDefinition(name string, def ModuleDefinition) (Module, error) {
	a, err := def.Allocate(name)
	if err != nil {
		return nil, err
	}

	s.pending = append(s.pending, name)
	m, err := a.Instantiate(s)
	s.pending = s.pending[:len(s.pending)-1]
	if err != nil {
		return nil, err
	}

	s.modules[name] = m
	return m, nil
}

func (s *Store) ResolveFunction(moduleName, functionName string, type_ wasm.FunctionSig) (Function, error) {
	m, err := s.InstantiateModule(moduleName)
	if err != nil {
		return nil, err
	}
	return m.GetFunction(functionName)
}

func (s *Store) ResolveMemory(moduleName, memoryName string, type_ wasm.Memory) (*Memory, error) {
	m, err := s.InstantiateModule(moduleName)
	if err != nil {
		return nil, err
	}
	return m.GetMemory(memoryName)
}

func (s *Store) ResolveTable(moduleName, tableName string, type_ wasm.Table) (*Table, error) {
	m, err := s.InstantiateModule(moduleName)
	if err != nil {
		return nil, err
	}
	return m.GetTable(tableName)
}

func (s *Store) ResolveGlobal(moduleName, globalName string, type_ wasm.GlobalVar) (*Global, error) {
	m, err := s.InstantiateModule(moduleName)
	if err != nil {
		return nil, err
	}
	return m.GetGlobal(globalName)
}
