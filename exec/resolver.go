package exec

import (
	"fmt"
	"reflect"

	"github.com/pgavlin/polywarp/wasm"
)

var ErrModuleNotFound = fmt.Errorf("module not found")

// A ModuleResolver resolves module names to module definitions.
type ModuleResolver interface {
	// ResolveModule resolves the given module name to a module definition.
	ResolveModule(name string) (ModuleDefinition, error)
}

// A MapResolver is a ModuleResolver that maps module names to definitions using the contents of a map.
type MapResolver map[string]ModuleDefinition

// ResolveModule resolves the given module name to a module definition.
func (r MapResolver) ResolveModule(name string) (ModuleDefinition, error) {
	def, ok := r[name]
	if !ok {
		return nil, ErrModuleNotFound
	}
	return def, nil
}

// Imports is an ImportResolver that maps module names and then field names to importable values.
//
// A field may hold a Function, a *Memory, a *Table, or a *Global. A Go func whose parameters and results are
// int32, uint32, int64, uint64, float32, float64, Function or Reference is adapted with NewHostFunction, and a Go
// number satisfies an immutable global import of any numeric type.
type Imports map[string]map[string]interface{}

func (imports Imports) lookup(moduleName, fieldName string) (interface{}, error) {
	fields, ok := imports[moduleName]
	if !ok {
		return nil, ErrModuleNotFound
	}
	v, ok := fields[fieldName]
	if !ok {
		return nil, &ExportNotFoundError{ModuleName: moduleName, FieldName: fieldName}
	}
	return v, nil
}

func (imports Imports) ResolveFunction(moduleName, functionName string, type_ wasm.FunctionSig) (Function, error) {
	v, err := imports.lookup(moduleName, functionName)
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case Function:
		return v, nil
	default:
		if reflect.ValueOf(v).Kind() == reflect.Func {
			return NewHostFunction(v)
		}
		return nil, NewKindMismatchError(moduleName, functionName, wasm.ExternalFunction, kindOf(v))
	}
}

func (imports Imports) ResolveMemory(moduleName, memoryName string, type_ wasm.Memory) (*Memory, error) {
	v, err := imports.lookup(moduleName, memoryName)
	if err != nil {
		return nil, err
	}
	if m, ok := v.(*Memory); ok {
		return m, nil
	}
	return nil, NewKindMismatchError(moduleName, memoryName, wasm.ExternalMemory, kindOf(v))
}

func (imports Imports) ResolveTable(moduleName, tableName string, type_ wasm.Table) (*Table, error) {
	v, err := imports.lookup(moduleName, tableName)
	if err != nil {
		return nil, err
	}
	if t, ok := v.(*Table); ok {
		return t, nil
	}
	return nil, NewKindMismatchError(moduleName, tableName, wasm.ExternalTable, kindOf(v))
}

func (imports Imports) ResolveGlobal(moduleName, globalName string, type_ wasm.GlobalVar) (*Global, error) {
	v, err := imports.lookup(moduleName, globalName)
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case *Global:
		return v, nil
	case int32, int64, float32, float64:
		if type_.Mutable || type_.Type.IsRef() {
			return nil, ErrGlobalType
		}
		bits, err := CoerceValue(type_.Type, v)
		if err != nil {
			return nil, err
		}
		g := NewGlobal(wasm.GlobalVar{Type: type_.Type})
		g.Set(bits)
		return g, nil
	default:
		return nil, NewKindMismatchError(moduleName, globalName, wasm.ExternalGlobal, kindOf(v))
	}
}

// kindOf returns the kind of entity an import value would satisfy, or 0xff if it satisfies none.
func kindOf(v interface{}) wasm.External {
	switch v := v.(type) {
	case Function:
		return wasm.ExternalFunction
	case *Memory:
		return wasm.ExternalMemory
	case *Table:
		return wasm.ExternalTable
	case *Global, int32, int64, float32, float64:
		return wasm.ExternalGlobal
	default:
		if reflect.ValueOf(v).Kind() == reflect.Func {
			return wasm.ExternalFunction
		}
		return 0xff
	}
}
