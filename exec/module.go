package exec

import (
	"errors"
	"fmt"

	"github.com/pgavlin/polywarp/wasm"
)

// ErrDataSegmentDoesNotFit is returned by Instantiate if a data segment attempts to write outside of its target
// memory's bounds.
var ErrDataSegmentDoesNotFit = errors.New("data segment does not fit")

// ErrElementSegmentDoesNotFit is returned by Instantiate if an element segment attempts to write outside of its
// target table's bounds.
var ErrElementSegmentDoesNotFit = errors.New("elements segment does not fit")

var (
	ErrFunctionType = errors.New("function type mismatch")
	ErrTableType    = errors.New("table type mismatch")
	ErrMemoryType   = errors.New("memory type mismatch")
	ErrGlobalType   = errors.New("global type mismatch")
)

// A LinkError describes a failure to instantiate a module. Import failures name the import; segment failures leave
// the names empty.
type LinkError struct {
	ModuleName string
	FieldName  string
	Kind       wasm.External
	Err        error
}

func (e *LinkError) Error() string {
	if e.ModuleName == "" && e.FieldName == "" {
		return fmt.Sprintf("link error: %v", e.Err)
	}
	return fmt.Sprintf("link error: import %s.%s (%v): %v", e.ModuleName, e.FieldName, e.Kind, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// An ExportNotFoundError is returned when a module has no export with the requested name.
type ExportNotFoundError struct {
	ModuleName string
	FieldName  string
}

func (e *ExportNotFoundError) Error() string {
	return fmt.Sprintf("couldn't find export with name %s in module %s", e.FieldName, e.ModuleName)
}

// A KindMismatchError is returned when an export's kind does not match the kind requested by an import.
type KindMismatchError struct {
	ModuleName string
	FieldName  string
	Import     wasm.External
	Export     wasm.External
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("mismatching import and export external kind values for %s.%s (%v, %v)", e.ModuleName, e.FieldName, e.Import, e.Export)
}

// NewKindMismatchError creates a new error that reports a mismatch between an import and export kind. This function
// should be used to create the errors returned by Module.Get{Function,Table,Memory,Global} if the requested name
// refers to an export of a different kind.
func NewKindMismatchError(exportingModuleName, exportName string, importKind, exportKind wasm.External) error {
	return &KindMismatchError{
		ModuleName: exportingModuleName,
		FieldName:  exportName,
		Import:     importKind,
		Export:     exportKind,
	}
}

// An ImportResolver resolves import entries to function, memory, table, and global instances. Resolvers need not
// check that the resolved entity matches the requested type; instantiation does that.
type ImportResolver interface {
	ResolveFunction(moduleName, functionName string, type_ wasm.FunctionSig) (Function, error)
	ResolveMemory(moduleName, memoryName string, type_ wasm.Memory) (*Memory, error)
	ResolveTable(moduleName, tableName string, type_ wasm.Table) (*Table, error)
	ResolveGlobal(moduleName, globalName string, type_ wasm.GlobalVar) (*Global, error)
}

// ModuleDefinition represents a WASM module definition.
type ModuleDefinition interface {
	// Allocate creates an allocated, uninitialized module with the given name from this module definition.
	Allocate(name string) (AllocatedModule, error)
}

// An AllocatedModule is an allocated but uninitialized WASM module.
type AllocatedModule interface {
	Module

	// Instantiate initializes the allocated module with imports supplied by the given resolver.
	Instantiate(imports ImportResolver) (Module, error)
}

// A Module is an instantiated WASM module.
type Module interface {
	// Name returns the name of this module.
	Name() string
	// GetFunction returns the exported function with the given name. If the function does not exist or the name
	// refers to an export of a different kind, this function returns an error.
	GetFunction(name string) (Function, error)
	// GetTable returns the exported table with the given name. If the table does not exist or the name
	// refers to an export of a different kind, this function returns an error.
	GetTable(name string) (*Table, error)
	// GetMemory returns the exported memory with the given name. If the memory does not exist or the name
	// refers to an export of a different kind, this function returns an error.
	GetMemory(name string) (*Memory, error)
	// GetGlobal returns the exported global with the given name. If the global does not exist or the name
	// refers to an export of a different kind, this function returns an error.
	GetGlobal(name string) (*Global, error)
}

// CheckFunction returns an error if f's signature differs from the given type.
func CheckFunction(f Function, type_ wasm.FunctionSig) error {
	if !f.GetSignature().Equals(type_) {
		return fmt.Errorf("%w: expected %v, got %v", ErrFunctionType, type_, f.GetSignature())
	}
	return nil
}

// CheckTable returns an error if t cannot satisfy an import of the given type.
func CheckTable(t *Table, type_ wasm.Table) error {
	if t.typ != type_.ElementType || !limitsMatch(t.Limits(), type_.Limits) {
		return ErrTableType
	}
	return nil
}

// CheckMemory returns an error if m cannot satisfy an import of the given type.
func CheckMemory(m *Memory, type_ wasm.Memory) error {
	if !limitsMatch(m.Limits(), type_.Limits) {
		return ErrMemoryType
	}
	return nil
}

// CheckGlobal returns an error if g's type or mutability differs from the given type.
func CheckGlobal(g *Global, type_ wasm.GlobalVar) error {
	if g.Type() != type_ {
		return ErrGlobalType
	}
	return nil
}

// limitsMatch returns true if an entity with the actual limits can be imported with the expected limits. The
// entity's current size must be at least the expected minimum, and if a maximum is expected, the entity must
// declare one that is no larger.
func limitsMatch(actual, expected wasm.ResizableLimits) bool {
	if actual.Initial < expected.Initial {
		return false
	}
	if !expected.HasMaximum() {
		return true
	}
	return actual.HasMaximum() && actual.Maximum <= expected.Maximum
}
