package validate

import (
	"github.com/pgavlin/polywarp/wasm"
	"github.com/pgavlin/polywarp/wasm/code"
)

// MaxLocals is the maximum number of parameters and locals a single function may declare.
const MaxLocals = 1 << 20

type validator struct {
	*code.StaticScope

	module       *wasm.Module
	validateCode bool
}

// ValidateModule checks that every index referenced by the module's declarations resolves and that every constant
// expression is well-typed. If validateCode is true, function bodies are decoded and validated as well. Failures are
// reported as *wasm.CompileError.
func ValidateModule(m *wasm.Module, validateCode bool) error {
	v := validator{
		StaticScope:  code.NewStaticScope(m),
		module:       m,
		validateCode: validateCode,
	}
	return v.validateModule()
}

func (v *validator) validateModule() error {
	if err := v.validateImports(); err != nil {
		return err
	}
	if err := v.validateFunctions(); err != nil {
		return err
	}
	if err := v.validateTables(); err != nil {
		return err
	}
	if err := v.validateMemories(); err != nil {
		return err
	}
	if err := v.validateGlobals(); err != nil {
		return err
	}
	if err := v.validateExports(); err != nil {
		return err
	}
	if err := v.validateStart(); err != nil {
		return err
	}
	if err := v.validateElements(); err != nil {
		return err
	}
	if err := v.validateData(); err != nil {
		return err
	}
	return v.validateCodeSection()
}

func (v *validator) fail(id wasm.SectionID, s wasm.Section, err error) error {
	var offset int64
	if s != nil {
		offset = s.GetRawSection().Start
	}
	return &wasm.CompileError{Section: id, Function: -1, Offset: offset, Err: err}
}

func (v *validator) validateImports() error {
	if v.module.Import == nil {
		return nil
	}
	for _, i := range v.module.Import.Entries {
		switch i := i.Type.(type) {
		case wasm.FuncImport:
			if _, ok := v.GetType(i.Type); !ok {
				return v.fail(wasm.SectionIDImport, v.module.Import, wasm.ValidationError("unknown type"))
			}
		case wasm.TableImport:
			if err := validateLimits(i.Type.Limits, wasm.MaxTableSize); err != nil {
				return v.fail(wasm.SectionIDImport, v.module.Import, err)
			}
		case wasm.MemoryImport:
			if err := validateLimits(i.Type.Limits, wasm.MaxPages); err != nil {
				return v.fail(wasm.SectionIDImport, v.module.Import, err)
			}
		}
	}
	return nil
}

func (v *validator) validateFunctions() error {
	if v.module.Function == nil {
		return nil
	}
	for _, typeidx := range v.module.Function.Types {
		if _, ok := v.GetType(typeidx); !ok {
			return v.fail(wasm.SectionIDFunction, v.module.Function, wasm.ValidationError("unknown type"))
		}
	}
	return nil
}

func validateLimits(limits wasm.ResizableLimits, ceiling uint64) error {
	if limits.HasMaximum() && limits.Initial > limits.Maximum {
		return wasm.ValidationError("size minimum must not be greater than maximum")
	}
	if uint64(limits.Initial) > ceiling || limits.HasMaximum() && uint64(limits.Maximum) > ceiling {
		return wasm.ValidationError("size exceeds the implementation limit")
	}
	return nil
}

func (v *validator) validateTables() error {
	if v.module.Table == nil {
		return nil
	}
	for _, t := range v.module.Table.Entries {
		if err := validateLimits(t.Limits, wasm.MaxTableSize); err != nil {
			return v.fail(wasm.SectionIDTable, v.module.Table, err)
		}
	}
	return nil
}

func (v *validator) validateMemories() error {
	if v.NumMemories() > 1 {
		return v.fail(wasm.SectionIDMemory, v.module.Memory, wasm.ValidationError("multiple memories"))
	}
	if v.module.Memory == nil {
		return nil
	}
	for _, m := range v.module.Memory.Entries {
		if err := validateLimits(m.Limits, wasm.MaxPages); err != nil {
			return v.fail(wasm.SectionIDMemory, v.module.Memory, err)
		}
	}
	return nil
}

// validateGlobals checks each global's initializer. A reference to a global that is defined later is a link-time
// failure rather than a validation failure, so every global in the index space is visible here.
func (v *validator) validateGlobals() error {
	if v.module.Global == nil {
		return nil
	}
	globals := v.NumGlobals()
	for _, g := range v.module.Global.Globals {
		if err := v.validateConstExpr(g.Init, g.Type.Type, globals); err != nil {
			return v.fail(wasm.SectionIDGlobal, v.module.Global, err)
		}
	}
	return nil
}

func (v *validator) validateExports() error {
	if v.module.Export == nil {
		return nil
	}

	names := map[string]bool{}
	for _, e := range v.module.Export.Entries {
		if names[e.FieldStr] {
			return v.fail(wasm.SectionIDExport, v.module.Export, wasm.DuplicateExportError(e.FieldStr))
		}
		names[e.FieldStr] = true

		var ok bool
		switch e.Kind {
		case wasm.ExternalFunction:
			_, ok = v.GetFunctionSignature(e.Index)
		case wasm.ExternalTable:
			_, ok = v.GetTableType(e.Index)
		case wasm.ExternalMemory:
			ok = v.HasMemory(e.Index)
		case wasm.ExternalGlobal:
			_, ok = v.GetGlobalType(e.Index)
		}
		if !ok {
			return v.fail(wasm.SectionIDExport, v.module.Export, wasm.ValidationError("unknown "+kindName(e.Kind)))
		}
	}
	return nil
}

func (v *validator) validateStart() error {
	if v.module.Start == nil {
		return nil
	}
	sig, ok := v.GetFunctionSignature(v.module.Start.Index)
	if !ok {
		return v.fail(wasm.SectionIDStart, v.module.Start, wasm.ValidationError("unknown function"))
	}
	if len(sig.ParamTypes) != 0 || len(sig.ReturnTypes) != 0 {
		return v.fail(wasm.SectionIDStart, v.module.Start, wasm.ValidationError("start function"))
	}
	return nil
}

func (v *validator) validateElements() error {
	if v.module.Elements == nil {
		return nil
	}

	globals := v.NumGlobals()
	for _, elem := range v.module.Elements.Entries {
		if err := v.validateElement(&elem, globals); err != nil {
			return v.fail(wasm.SectionIDElement, v.module.Elements, err)
		}
	}
	return nil
}

func (v *validator) validateElement(elem *wasm.ElementSegment, globals uint32) error {
	if elem.Mode == wasm.SegmentModeActive {
		t, ok := v.GetTableType(elem.Index)
		if !ok {
			return wasm.ValidationError("unknown table")
		}
		if t != elem.Type {
			return wasm.ValidationError("type mismatch")
		}
		if err := v.validateConstExpr(elem.Offset, wasm.ValueTypeI32, globals); err != nil {
			return err
		}
	}

	for _, funcidx := range elem.Elems {
		if _, ok := v.GetFunctionSignature(funcidx); !ok {
			return wasm.ValidationError("unknown function")
		}
	}
	for _, expr := range elem.Exprs {
		if err := v.validateConstExpr(expr, elem.Type, globals); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) validateData() error {
	if v.module.Data == nil {
		return nil
	}

	globals := v.NumGlobals()
	for _, data := range v.module.Data.Entries {
		if data.Mode != wasm.SegmentModeActive {
			continue
		}
		if !v.HasMemory(data.Index) {
			return v.fail(wasm.SectionIDData, v.module.Data, wasm.ValidationError("unknown memory"))
		}
		if err := v.validateConstExpr(data.Offset, wasm.ValueTypeI32, globals); err != nil {
			return v.fail(wasm.SectionIDData, v.module.Data, err)
		}
	}
	return nil
}

func (v *validator) validateCodeSection() error {
	if v.module.Code == nil {
		return nil
	}

	imported := v.NumImportedFunctions()
	for i, body := range v.module.Code.Bodies {
		sig, _ := v.GetFunctionSignature(uint32(imported + i))
		if len(sig.ParamTypes)+body.NumLocals() > MaxLocals {
			return &wasm.CompileError{Section: wasm.SectionIDCode, Function: imported + i, Err: wasm.ErrTooManyLocals}
		}
		if !v.validateCode {
			continue
		}

		v.SetFunction(sig, body)
		if _, err := code.Decode(body.Code, v, sig.ReturnTypes); err != nil {
			return &wasm.CompileError{Section: wasm.SectionIDCode, Function: imported + i, Offset: v.module.Code.Start, Err: err}
		}
	}
	return nil
}
