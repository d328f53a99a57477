package exec

import (
	"github.com/pgavlin/polywarp/wasm"
)

// Function represents a function exported by a WASM module or supplied by its host.
//
// Arguments and results are passed as Go values: int32 for i32, int64 for i64, float32 for f32, float64 for f64,
// and Reference for funcref and externref.
type Function interface {
	// GetSignature returns this function's signature.
	GetSignature() wasm.FunctionSig
	// Call calls the function with the given arguments. If the number and type of the arguments do not match the
	// number and type of the parameters in this function's signature, this method may panic.
	Call(thread *Thread, args ...interface{}) []interface{}
}
