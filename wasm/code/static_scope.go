package code

import "github.com/pgavlin/polywarp/wasm"

// StaticScope is a Scope computed from a decoded module. The module's index spaces are flattened when the scope is
// created; Locals is reset for each function body by SetFunction.
type StaticScope struct {
	module *wasm.Module

	importedFunctions int
	functions         []uint32
	globals           []wasm.GlobalVar
	tables            []wasm.ValueType
	memories          int

	Locals []wasm.ValueType
}

func NewStaticScope(m *wasm.Module) *StaticScope {
	s := &StaticScope{module: m}

	if m.Import != nil {
		for _, entry := range m.Import.Entries {
			switch t := entry.Type.(type) {
			case wasm.FuncImport:
				s.functions = append(s.functions, t.Type)
			case wasm.TableImport:
				s.tables = append(s.tables, t.Type.ElementType)
			case wasm.MemoryImport:
				s.memories++
			case wasm.GlobalVarImport:
				s.globals = append(s.globals, t.Type)
			}
		}
	}
	s.importedFunctions = len(s.functions)

	if m.Function != nil {
		s.functions = append(s.functions, m.Function.Types...)
	}
	if m.Global != nil {
		for _, g := range m.Global.Globals {
			s.globals = append(s.globals, g.Type)
		}
	}
	if m.Table != nil {
		for _, t := range m.Table.Entries {
			s.tables = append(s.tables, t.ElementType)
		}
	}
	if m.Memory != nil {
		s.memories += len(m.Memory.Entries)
	}
	return s
}

func lookup[T any](s []T, index uint32) (T, bool) {
	if uint64(index) >= uint64(len(s)) {
		var zero T
		return zero, false
	}
	return s[index], true
}

// NumImportedFunctions returns the number of imported functions. Defined functions follow them in the function
// index space.
func (s *StaticScope) NumImportedFunctions() int { return s.importedFunctions }

// NumGlobals returns the number of imported and defined globals.
func (s *StaticScope) NumGlobals() uint32 { return uint32(len(s.globals)) }

// NumMemories returns the number of imported and defined memories.
func (s *StaticScope) NumMemories() int { return s.memories }

func (s *StaticScope) GetLocalType(localidx uint32) (wasm.ValueType, bool) {
	return lookup(s.Locals, localidx)
}

func (s *StaticScope) GetGlobalType(globalidx uint32) (wasm.GlobalVar, bool) {
	return lookup(s.globals, globalidx)
}

func (s *StaticScope) GetFunctionSignature(funcidx uint32) (wasm.FunctionSig, bool) {
	typeidx, ok := lookup(s.functions, funcidx)
	if !ok {
		return wasm.FunctionSig{}, false
	}
	return s.GetType(typeidx)
}

func (s *StaticScope) GetType(typeidx uint32) (wasm.FunctionSig, bool) {
	if s.module.Types == nil {
		return wasm.FunctionSig{}, false
	}
	return lookup(s.module.Types.Entries, typeidx)
}

func (s *StaticScope) GetTableType(tableidx uint32) (wasm.ValueType, bool) {
	return lookup(s.tables, tableidx)
}

func (s *StaticScope) GetElementType(elemidx uint32) (wasm.ValueType, bool) {
	if s.module.Elements == nil {
		return 0, false
	}
	e, ok := lookup(s.module.Elements.Entries, elemidx)
	return e.Type, ok
}

// SetFunction sets the locals of the scope to the parameters and locals of the given function.
func (s *StaticScope) SetFunction(sig wasm.FunctionSig, body wasm.FunctionBody) {
	s.Locals = append(s.Locals[:0], sig.ParamTypes...)
	for _, l := range body.Locals {
		for i := uint32(0); i < l.Count; i++ {
			s.Locals = append(s.Locals, l.Type)
		}
	}
}

func (s *StaticScope) HasMemory(memoryidx uint32) bool {
	return uint64(memoryidx) < uint64(s.memories)
}

// HasData returns true if the module declares the given data segment. The data count section, if present, is
// authoritative.
func (s *StaticScope) HasData(dataidx uint32) bool {
	if s.module.DataCount != nil {
		return dataidx < s.module.DataCount.Count
	}
	return s.module.Data != nil && dataidx < uint32(len(s.module.Data.Entries))
}
