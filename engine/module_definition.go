package engine

import (
	"io"

	"go.uber.org/zap"

	"github.com/pgavlin/polywarp/compiler/wax"
	"github.com/pgavlin/polywarp/exec"
	"github.com/pgavlin/polywarp/wasm"
	"github.com/pgavlin/polywarp/wasm/code"
	"github.com/pgavlin/polywarp/wasm/validate"
)

// FunctionStats describes a compiled function.
type FunctionStats struct {
	Index         uint32 `csv:"index"`
	Name          string `csv:"name,omitempty"`
	MaxNesting    int    `csv:"max_nesting"`
	MaxStackDepth int    `csv:"max_stack_depth"`
	Labels        int    `csv:"labels"`
	Loops         bool   `csv:"loops"`
	Locals        int    `csv:"locals"`
	Temps         int    `csv:"temps"`
	Statements    int    `csv:"statements"`
	Dispatch      bool   `csv:"dispatch"`
}

// A ModuleDefinition is a validated module whose functions have been compiled. A definition may be instantiated
// any number of times; its compiled functions are shared by every instance.
type ModuleDefinition struct {
	module  *wasm.Module
	options Options
	scope   *code.StaticScope

	importedFunctions int
	importedTables    int
	importedMemories  int
	importedGlobals   int

	functions []*compiledFunction
}

type compiler struct {
	def       *ModuleDefinition
	fn        *wax.Function
	index     uint32
	threshold int
	stats     *FunctionStats
}

// NewModuleDefinition validates and compiles the given module. Failures are reported as *wasm.CompileError.
func NewModuleDefinition(module *wasm.Module, options Options) (*ModuleDefinition, error) {
	if err := validate.ValidateModule(module, false); err != nil {
		return nil, err
	}

	def := &ModuleDefinition{
		module:  module,
		options: options.withDefaults(),
		scope:   code.NewStaticScope(module),
	}
	def.importedFunctions, def.importedTables, def.importedMemories, def.importedGlobals = module.ImportCounts()

	if module.Code == nil {
		return def, nil
	}

	names := module.FunctionNames()
	def.functions = make([]*compiledFunction, len(module.Code.Bodies))
	for i, body := range module.Code.Bodies {
		index := uint32(def.importedFunctions + i)
		f, err := def.compileFunction(index, body, names[index])
		if err != nil {
			return nil, &wasm.CompileError{Section: wasm.SectionIDCode, Function: int(index), Offset: module.Code.Start, Err: err}
		}
		def.functions[i] = f
	}
	return def, nil
}

// LoadModuleDefinition decodes a WASM module from the given Reader and compiles it.
func LoadModuleDefinition(r io.Reader, options Options) (*ModuleDefinition, error) {
	module, err := wasm.DecodeModule(r)
	if err != nil {
		return nil, err
	}
	return NewModuleDefinition(module, options)
}

func (def *ModuleDefinition) compileFunction(index uint32, body wasm.FunctionBody, name string) (*compiledFunction, error) {
	sig, _ := def.scope.GetFunctionSignature(index)

	fn, err := wax.ImportFunction(sig, body, def.scope, def.options.MaxPendingDepth)
	if err != nil {
		return nil, err
	}

	f := &compiledFunction{
		index:      index,
		signature:  sig,
		numSlots:   len(fn.Slots),
		hasRefs:    hasRefTypes(fn.Slots),
		resultSlot: fn.Blocks[0].OutTemp,
		stats: FunctionStats{
			Index:         index,
			Name:          name,
			MaxNesting:    fn.Metrics.MaxNesting,
			MaxStackDepth: fn.Metrics.MaxStackDepth,
			Labels:        fn.Metrics.LabelCount,
			Loops:         fn.Metrics.HasLoops,
			Locals:        fn.NumLocals,
			Temps:         fn.NumTemps(),
			Statements:    len(fn.Body),
		},
	}

	c := &compiler{def: def, fn: fn, index: index, threshold: def.options.NestingThreshold, stats: &f.stats}
	f.body, _ = c.lowerStructure(0)

	log().Debug("compiled function",
		zap.Uint32("index", index),
		zap.String("name", name),
		zap.Int("statements", f.stats.Statements),
		zap.Int("slots", f.numSlots),
		zap.Bool("dispatch", f.stats.Dispatch))
	return f, nil
}

// Module returns the module the definition was compiled from.
func (def *ModuleDefinition) Module() *wasm.Module {
	return def.module
}

// Options returns the options the definition was compiled with.
func (def *ModuleDefinition) Options() Options {
	return def.options
}

// Stats returns statistics for each function defined by the module, in index order.
func (def *ModuleDefinition) Stats() []FunctionStats {
	stats := make([]FunctionStats, len(def.functions))
	for i, f := range def.functions {
		stats[i] = f.stats
	}
	return stats
}

// Allocate creates an uninitialized instance of the module definition.
func (def *ModuleDefinition) Allocate(name string) (exec.AllocatedModule, error) {
	return def.allocate(name), nil
}

// Instantiate allocates and instantiates the module definition using the given imports.
func (def *ModuleDefinition) Instantiate(name string, imports exec.ImportResolver) (*Instance, error) {
	inst := def.allocate(name)
	if _, err := inst.Instantiate(imports); err != nil {
		return nil, err
	}
	return inst, nil
}
