package code

import "github.com/pgavlin/polywarp/wasm"

// A Scope describes the module-level and function-level entities visible to a function body.
type Scope interface {
	GetLocalType(localidx uint32) (wasm.ValueType, bool)
	GetGlobalType(globalidx uint32) (wasm.GlobalVar, bool)
	GetFunctionSignature(funcidx uint32) (wasm.FunctionSig, bool)
	GetType(typeidx uint32) (wasm.FunctionSig, bool)
	GetTableType(tableidx uint32) (wasm.ValueType, bool)
	GetElementType(elemidx uint32) (wasm.ValueType, bool)

	HasMemory(memoryidx uint32) bool
	HasData(dataidx uint32) bool
}
