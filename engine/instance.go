package engine

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pgavlin/polywarp/exec"
	"github.com/pgavlin/polywarp/wasm"
)

// ErrAlreadyInstantiated is returned by Instantiate if it is called more than once on the same instance.
var ErrAlreadyInstantiated = errors.New("module is already instantiated")

// An Instance is an instance of a module definition.
type Instance struct {
	name string
	def  *ModuleDefinition

	functions []exec.Function // The function index space: imports, then defined functions.
	defined   []*function     // The functions defined by the module.
	globals   []*exec.Global
	tables    []*exec.Table
	memories  []*exec.Memory
	memory    *exec.Memory // The default memory, if any.

	elements [][]exec.Reference // Element segments; dropped segments are nil.
	data     [][]byte           // Data segments; dropped segments are nil.

	exports      map[string]interface{}
	instantiated bool
}

func (def *ModuleDefinition) allocate(name string) *Instance {
	inst := &Instance{name: name, def: def, exports: map[string]interface{}{}}

	inst.functions = make([]exec.Function, def.importedFunctions, def.importedFunctions+len(def.functions))
	inst.defined = make([]*function, len(def.functions))
	for i, code := range def.functions {
		f := &function{inst: inst, code: code}
		inst.defined[i] = f
		inst.functions = append(inst.functions, f)
	}
	return inst
}

// Instantiate initializes the instance with imports supplied by the given resolver. Import and segment failures are
// reported as *exec.LinkError; a trap raised by the start function is returned as an exec.Trap.
func (inst *Instance) Instantiate(imports exec.ImportResolver) (exec.Module, error) {
	if inst.instantiated {
		return nil, ErrAlreadyInstantiated
	}
	inst.instantiated = true

	logger := log().With(zap.String("module", inst.name))

	logger.Debug("resolving imports")
	if err := inst.resolveImports(imports); err != nil {
		return nil, err
	}
	if err := inst.allocateTablesAndMemories(); err != nil {
		return nil, err
	}

	logger.Debug("initializing globals")
	if err := inst.initializeGlobals(); err != nil {
		return nil, err
	}

	logger.Debug("initializing segments")
	if err := inst.initializeElements(); err != nil {
		return nil, err
	}
	if err := inst.initializeData(); err != nil {
		return nil, err
	}

	inst.defineExports()

	if start := inst.def.module.Start; start != nil {
		logger.Debug("running start function", zap.Uint32("index", start.Index))
		if err := inst.invoke(inst.functions[start.Index]); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

func (inst *Instance) resolveImports(imports exec.ImportResolver) error {
	m := inst.def.module
	if m.Import == nil {
		return nil
	}

	funcidx := 0
	for _, entry := range m.Import.Entries {
		v, err := inst.resolveImport(imports, entry)
		if err != nil {
			return &exec.LinkError{ModuleName: entry.ModuleName, FieldName: entry.FieldName, Kind: entry.Type.Kind(), Err: err}
		}

		switch v := v.(type) {
		case exec.Function:
			inst.functions[funcidx] = v
			funcidx++
		case *exec.Table:
			inst.tables = append(inst.tables, v)
		case *exec.Memory:
			inst.memories = append(inst.memories, v)
		case *exec.Global:
			inst.globals = append(inst.globals, v)
		}
	}
	return nil
}

func (inst *Instance) resolveImport(imports exec.ImportResolver, entry wasm.ImportEntry) (interface{}, error) {
	switch type_ := entry.Type.(type) {
	case wasm.FuncImport:
		sig, _ := inst.def.scope.GetType(type_.Type)
		f, err := imports.ResolveFunction(entry.ModuleName, entry.FieldName, sig)
		if err != nil {
			return nil, err
		}
		return f, exec.CheckFunction(f, sig)
	case wasm.TableImport:
		t, err := imports.ResolveTable(entry.ModuleName, entry.FieldName, type_.Type)
		if err != nil {
			return nil, err
		}
		return t, exec.CheckTable(t, type_.Type)
	case wasm.MemoryImport:
		mem, err := imports.ResolveMemory(entry.ModuleName, entry.FieldName, type_.Type)
		if err != nil {
			return nil, err
		}
		return mem, exec.CheckMemory(mem, type_.Type)
	case wasm.GlobalVarImport:
		g, err := imports.ResolveGlobal(entry.ModuleName, entry.FieldName, type_.Type)
		if err != nil {
			return nil, err
		}
		return g, exec.CheckGlobal(g, type_.Type)
	default:
		return nil, fmt.Errorf("unsupported import kind %v", entry.Type.Kind())
	}
}

func maximum(limits wasm.ResizableLimits) uint32 {
	if limits.HasMaximum() {
		return limits.Maximum
	}
	return exec.NoMaximum
}

func (inst *Instance) allocateTablesAndMemories() error {
	m := inst.def.module
	if m.Table != nil {
		for i, t := range m.Table.Entries {
			if t.Limits.Initial > exec.MaxTableLength {
				return &exec.LinkError{Err: fmt.Errorf("table %d: %w", inst.def.importedTables+i, exec.ErrTableTooLarge)}
			}
			inst.tables = append(inst.tables, exec.NewTable(t.ElementType, t.Limits.Initial, maximum(t.Limits)))
		}
	}
	if m.Memory != nil {
		for _, mem := range m.Memory.Entries {
			inst.memories = append(inst.memories, exec.NewMemory(mem.Limits.Initial, maximum(mem.Limits)))
		}
	}
	if len(inst.memories) != 0 {
		inst.memory = inst.memories[0]
	}
	return nil
}

// initializeGlobals evaluates the initializers of the module's globals in order. Each initializer may read imported
// globals and the globals defined before it.
func (inst *Instance) initializeGlobals() error {
	m := inst.def.module
	if m.Global == nil {
		return nil
	}

	for i, entry := range m.Global.Globals {
		bits, ref, err := exec.EvalConstantExpression(entry.Init, inst.globals, inst.functions)
		if err != nil {
			return &exec.LinkError{Err: fmt.Errorf("initializing global %d: %w", inst.def.importedGlobals+i, err)}
		}

		g := exec.NewGlobal(entry.Type)
		if entry.Type.Type.IsRef() {
			g.SetRef(ref)
		} else {
			g.Set(bits)
		}
		inst.globals = append(inst.globals, g)
	}
	return nil
}

func (inst *Instance) offset(expr wasm.ConstExpr) (uint32, error) {
	bits, _, err := exec.EvalConstantExpression(expr, inst.globals, inst.functions)
	if err != nil {
		return 0, &exec.LinkError{Err: err}
	}
	return uint32(bits), nil
}

func (inst *Instance) evaluateElements(segment *wasm.ElementSegment) ([]exec.Reference, error) {
	refs := make([]exec.Reference, segment.Len())
	if !segment.UsesExpressions() {
		for i, funcidx := range segment.Elems {
			refs[i] = inst.functions[funcidx]
		}
		return refs, nil
	}

	for i, expr := range segment.Exprs {
		_, ref, err := exec.EvalConstantExpression(expr, inst.globals, inst.functions)
		if err != nil {
			return nil, &exec.LinkError{Err: err}
		}
		refs[i] = ref
	}
	return refs, nil
}

// initializeElements evaluates the module's element segments. Active segments are copied into their tables and
// dropped; declarative segments are dropped immediately. Each active segment is bounds-checked before it is written.
func (inst *Instance) initializeElements() error {
	m := inst.def.module
	if m.Elements == nil {
		return nil
	}

	inst.elements = make([][]exec.Reference, len(m.Elements.Entries))
	for i := range m.Elements.Entries {
		segment := &m.Elements.Entries[i]

		refs, err := inst.evaluateElements(segment)
		if err != nil {
			return err
		}

		switch segment.Mode {
		case wasm.SegmentModePassive:
			inst.elements[i] = refs
		case wasm.SegmentModeActive:
			offset, err := inst.offset(segment.Offset)
			if err != nil {
				return err
			}
			table := inst.tables[segment.Index]
			if uint64(offset)+uint64(len(refs)) > uint64(table.Len()) {
				return &exec.LinkError{Err: exec.ErrElementSegmentDoesNotFit}
			}
			table.Init(offset, refs, 0, uint32(len(refs)))
		}
	}
	return nil
}

// initializeData copies active data segments into memory and retains passive segments.
func (inst *Instance) initializeData() error {
	m := inst.def.module
	if m.Data == nil {
		return nil
	}

	inst.data = make([][]byte, len(m.Data.Entries))
	for i, segment := range m.Data.Entries {
		if segment.Mode == wasm.SegmentModePassive {
			inst.data[i] = segment.Data
			continue
		}

		offset, err := inst.offset(segment.Offset)
		if err != nil {
			return err
		}
		mem := inst.memories[segment.Index]
		if uint64(offset)+uint64(len(segment.Data)) > uint64(mem.Size())*wasm.PageSize {
			return &exec.LinkError{Err: exec.ErrDataSegmentDoesNotFit}
		}
		mem.Init(offset, segment.Data, 0, uint32(len(segment.Data)))
	}
	return nil
}

func (inst *Instance) defineExports() {
	m := inst.def.module
	if m.Export == nil {
		return
	}

	for _, export := range m.Export.Entries {
		switch export.Kind {
		case wasm.ExternalFunction:
			inst.exports[export.FieldStr] = inst.functions[export.Index]
		case wasm.ExternalTable:
			inst.exports[export.FieldStr] = inst.tables[export.Index]
		case wasm.ExternalMemory:
			inst.exports[export.FieldStr] = inst.memories[export.Index]
		case wasm.ExternalGlobal:
			inst.exports[export.FieldStr] = inst.globals[export.Index]
		}
	}
}

func (inst *Instance) newThread() exec.Thread {
	return exec.NewThread(inst.def.options.MaxCallDepth)
}

// invoke calls a function with no arguments on a new thread, returning any trap as an error.
func (inst *Instance) invoke(f exec.Function) (err error) {
	defer func() { err = exec.Recover(recover(), err) }()

	thread := inst.newThread()
	f.Call(&thread)
	return nil
}

func (inst *Instance) Name() string {
	return inst.name
}

// Exports returns the instance's exports. Function exports are exec.Functions; the other kinds are *exec.Table,
// *exec.Memory, and *exec.Global.
func (inst *Instance) Exports() map[string]interface{} {
	return inst.exports
}

func exportKind(export interface{}) wasm.External {
	switch export.(type) {
	case exec.Function:
		return wasm.ExternalFunction
	case *exec.Table:
		return wasm.ExternalTable
	case *exec.Memory:
		return wasm.ExternalMemory
	default:
		return wasm.ExternalGlobal
	}
}

func (inst *Instance) newExportError(name string, importKind wasm.External, export interface{}) error {
	if export == nil {
		return &exec.ExportNotFoundError{ModuleName: inst.name, FieldName: name}
	}
	return exec.NewKindMismatchError(inst.name, name, importKind, exportKind(export))
}

func (inst *Instance) GetFunction(name string) (exec.Function, error) {
	export := inst.exports[name]
	if f, ok := export.(exec.Function); ok {
		return f, nil
	}
	return nil, inst.newExportError(name, wasm.ExternalFunction, export)
}

func (inst *Instance) GetTable(name string) (*exec.Table, error) {
	export := inst.exports[name]
	if t, ok := export.(*exec.Table); ok {
		return t, nil
	}
	return nil, inst.newExportError(name, wasm.ExternalTable, export)
}

func (inst *Instance) GetMemory(name string) (*exec.Memory, error) {
	export := inst.exports[name]
	if mem, ok := export.(*exec.Memory); ok {
		return mem, nil
	}
	return nil, inst.newExportError(name, wasm.ExternalMemory, export)
}

func (inst *Instance) GetGlobal(name string) (*exec.Global, error) {
	export := inst.exports[name]
	if g, ok := export.(*exec.Global); ok {
		return g, nil
	}
	return nil, inst.newExportError(name, wasm.ExternalGlobal, export)
}

// Call calls the exported function with the given name on a new thread. Numeric arguments are coerced to the
// function's parameter types. Traps are returned as exec.Trap errors; the instance remains usable afterwards.
func (inst *Instance) Call(name string, args ...interface{}) (results []interface{}, err error) {
	f, err := inst.GetFunction(name)
	if err != nil {
		return nil, err
	}

	sig := f.GetSignature()
	if len(args) != len(sig.ParamTypes) {
		return nil, fmt.Errorf("%s: expected %d arguments, got %d", name, len(sig.ParamTypes), len(args))
	}
	converted := make([]interface{}, len(args))
	for i, t := range sig.ParamTypes {
		if t.IsRef() {
			converted[i] = args[i]
			continue
		}
		bits, err := exec.CoerceValue(t, args[i])
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d: %w", name, i, err)
		}
		converted[i] = exec.ToValue(t, bits)
	}

	defer func() { err = exec.Recover(recover(), err) }()

	thread := inst.newThread()
	return f.Call(&thread, converted...), nil
}
