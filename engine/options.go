package engine

import (
	"github.com/pgavlin/polywarp/compiler/wax"
	"github.com/pgavlin/polywarp/exec"
)

// DefaultNestingThreshold is the default nesting level at which structures are lowered in dispatch-table form.
const DefaultNestingThreshold = 256

// Options control how functions are compiled and run.
type Options struct {
	// MaxPendingDepth limits the height of the expression trees that are built before values are flushed to slots.
	// Zero selects wax.DefaultMaxPendingDepth.
	MaxPendingDepth int

	// NestingThreshold is the nesting level at which control structures switch from nested closures to a
	// dispatch-table loop. Zero selects DefaultNestingThreshold. A negative threshold lowers every structure,
	// including the function body, in dispatch-table form.
	NestingThreshold int

	// MaxCallDepth bounds the depth of the call stack. Zero selects exec.DefaultMaxDepth.
	MaxCallDepth uint

	// Eager flushes every value to a slot as soon as it is produced.
	Eager bool
}

func (o Options) withDefaults() Options {
	switch {
	case o.Eager:
		o.MaxPendingDepth = 0
	case o.MaxPendingDepth <= 0:
		o.MaxPendingDepth = wax.DefaultMaxPendingDepth
	}

	switch {
	case o.NestingThreshold == 0:
		o.NestingThreshold = DefaultNestingThreshold
	case o.NestingThreshold < 0:
		o.NestingThreshold = 0
	}

	if o.MaxCallDepth == 0 {
		o.MaxCallDepth = exec.DefaultMaxDepth
	}
	return o
}
