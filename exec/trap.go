package exec

import (
	"runtime"
	"strings"
)

// A Trap represents a WASM trap. Traps are raised inside compiled code by panicking with a Trap value and are
// recovered at the boundary between the engine and its embedder.
type Trap string

func (t Trap) Error() string {
	return string(t)
}

const (
	// TrapUndefinedElement indicates an indirect call through a table index that is out of bounds.
	TrapUndefinedElement Trap = "undefined element"
	// TrapUninitializedElement indicates an indirect call through a null table element.
	TrapUninitializedElement Trap = "uninitialized element"
	// TrapIndirectCallTypeMismatch indicates a mismatch between the expected and actual signature of a function.
	TrapIndirectCallTypeMismatch Trap = "indirect call type mismatch"

	TrapOutOfBoundsMemoryAccess Trap = "out of bounds memory access"
	TrapOutOfBoundsTableAccess  Trap = "out of bounds table access"

	TrapIntegerOverflow            Trap = "integer overflow"
	TrapInvalidConversionToInteger Trap = "invalid conversion to integer"
	TrapIntegerDivideByZero        Trap = "integer divide by zero"

	TrapCallStackExhausted Trap = "call stack exhausted"
	TrapUnreachable        Trap = "unreachable"
)

// runtimeTraps maps the messages of Go runtime errors to traps. Memory, table and numeric accesses check their
// operands and panic with a Trap themselves, so index and slice errors are not listed: they indicate a bug in the
// engine or in a host function and are re-panicked by Recover.
var runtimeTraps = []struct {
	prefix string
	trap   Trap
}{
	{"runtime error: integer divide by zero", TrapIntegerDivideByZero},
}

// TranslateRuntimeError translates a Go runtime error into the corresponding trap, if any.
func TranslateRuntimeError(err runtime.Error) (Trap, bool) {
	if err == nil {
		return "", false
	}
	msg := err.Error()
	for _, t := range runtimeTraps {
		if strings.HasPrefix(msg, t.prefix) {
			return t.trap, true
		}
	}
	return "", false
}

// Recover converts the result of a call to recover() into an error. Traps and Go runtime errors that correspond to
// traps are returned; any other value is re-panicked. This function should be called like so:
//
//	defer func() { err = exec.Recover(recover(), err) }()
func Recover(x interface{}, err error) error {
	switch x := x.(type) {
	case nil:
		return err
	case Trap:
		return x
	case runtime.Error:
		if trap, ok := TranslateRuntimeError(x); ok {
			return trap
		}
	}
	panic(x)
}
