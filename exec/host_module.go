package exec

import (
	"errors"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"

	"github.com/pgavlin/polywarp/wasm"
)

type hostModuleDefinition struct {
	instantiate reflect.Value
}

// NewHostModuleDefinition returns a module definition for a host module. instantiate must be a func() (T, error);
// it is called each time the definition is allocated, and its result is exported as described by NewHostModule.
func NewHostModuleDefinition(instantiate interface{}) ModuleDefinition {
	f := reflect.ValueOf(instantiate)

	type_ := f.Type()
	if type_.Kind() != reflect.Func || type_.NumIn() != 0 || type_.NumOut() != 2 || !type_.Out(1).ConvertibleTo(reflect.TypeOf((*error)(nil)).Elem()) {
		panic(errors.New("instantiate must be a func() (T, error)"))
	}

	return hostModuleDefinition{instantiate: f}
}

func (def hostModuleDefinition) Allocate(name string) (AllocatedModule, error) {
	v := def.instantiate.Call(nil)
	if err, ok := v[1].Interface().(error); ok && err != nil {
		return nil, err
	}
	return newHostModule(name, v[0])
}

// A HostFunction is a Go function that can be called by WASM code.
type HostFunction struct {
	sig wasm.FunctionSig
	fn  reflect.Value

	params  []func(v interface{}) reflect.Value
	results []func(v reflect.Value) interface{}
}

// NewHostFunction adapts a Go func to the Function interface. The func's parameters and results must be int32,
// uint32, int64, uint64, float32, float64, Function, or Reference.
func NewHostFunction(fn interface{}) (*HostFunction, error) {
	return newHostFunction(reflect.ValueOf(fn))
}

func newHostFunction(fn reflect.Value) (*HostFunction, error) {
	t := fn.Type()
	if t.Kind() != reflect.Func || t.IsVariadic() {
		return nil, fmt.Errorf("cannot adapt %v to a function", t)
	}

	f := &HostFunction{sig: wasm.FunctionSig{Form: wasm.TypeFunc}, fn: fn}
	for i := 0; i < t.NumIn(); i++ {
		pt := t.In(i)
		vt := wasmType(pt)
		if vt == 0 {
			return nil, fmt.Errorf("cannot export function with parameter type %v", pt)
		}
		f.sig.ParamTypes = append(f.sig.ParamTypes, vt)
		f.params = append(f.params, argumentConverter(pt, vt))
	}
	for i := 0; i < t.NumOut(); i++ {
		rt := t.Out(i)
		vt := wasmType(rt)
		if vt == 0 {
			return nil, fmt.Errorf("cannot export function with return type %v", rt)
		}
		f.sig.ReturnTypes = append(f.sig.ReturnTypes, vt)
		f.results = append(f.results, resultConverter(rt, vt))
	}
	return f, nil
}

// argumentConverter returns a func that converts a WASM value to a Go value of type t.
func argumentConverter(t reflect.Type, vt wasm.ValueType) func(v interface{}) reflect.Value {
	if vt.IsRef() {
		return func(v interface{}) reflect.Value {
			if v == nil {
				return reflect.Zero(t)
			}
			return reflect.ValueOf(v)
		}
	}
	return func(v interface{}) reflect.Value {
		if v == nil {
			return reflect.Zero(t)
		}
		return reflect.ValueOf(v).Convert(t)
	}
}

// resultConverter returns a func that converts a Go value of type t to its canonical WASM representation.
func resultConverter(t reflect.Type, vt wasm.ValueType) func(v reflect.Value) interface{} {
	unsigned := t.Kind() == reflect.Uint32 || t.Kind() == reflect.Uint64
	switch vt {
	case wasm.ValueTypeI32:
		if unsigned {
			return func(v reflect.Value) interface{} { return int32(v.Uint()) }
		}
		return func(v reflect.Value) interface{} { return int32(v.Int()) }
	case wasm.ValueTypeI64:
		if unsigned {
			return func(v reflect.Value) interface{} { return int64(v.Uint()) }
		}
		return func(v reflect.Value) interface{} { return v.Int() }
	case wasm.ValueTypeF32:
		return func(v reflect.Value) interface{} { return float32(v.Float()) }
	case wasm.ValueTypeF64:
		return func(v reflect.Value) interface{} { return v.Float() }
	default:
		return reflect.Value.Interface
	}
}

func (f *HostFunction) GetSignature() wasm.FunctionSig {
	return f.sig
}

func (f *HostFunction) Call(thread *Thread, args ...interface{}) []interface{} {
	if len(args) != len(f.params) {
		panic(fmt.Errorf("expected %v args; got %v", len(f.params), len(args)))
	}

	in := make([]reflect.Value, len(args))
	for i, v := range args {
		in[i] = f.params[i](v)
	}
	out := f.fn.Call(in)

	results := make([]interface{}, len(out))
	for i, v := range out {
		results[i] = f.results[i](v)
	}
	return results
}

// Func returns the adapted Go func.
func (f *HostFunction) Func() interface{} {
	return f.fn.Interface()
}

type hostModule struct {
	name    string
	exports map[string]interface{}
}

// NewHostModule creates a module whose exports are the exported methods of v and the exported fields of v that
// hold a *Table, *Memory, or *Global. Export names are the Go names with a lowercase first letter.
func NewHostModule(name string, v interface{}) (Module, error) {
	return newHostModule(name, reflect.ValueOf(v))
}

var tableType = reflect.TypeOf((*Table)(nil))
var memoryType = reflect.TypeOf((*Memory)(nil))
var globalType = reflect.TypeOf((*Global)(nil))

func isExported(n string) bool {
	r, _ := utf8.DecodeRuneInString(n)
	return unicode.IsUpper(r)
}

func exportName(n string) string {
	runes := []rune(n)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

func newHostModule(name string, v reflect.Value) (*hostModule, error) {
	m := hostModule{
		name:    name,
		exports: map[string]interface{}{},
	}

	value := v
	for value.Kind() == reflect.Ptr {
		value = value.Elem()
	}

	if value.Kind() == reflect.Struct {
		t := value.Type()
		for i, n := 0, t.NumField(); i < n; i++ {
			f := t.Field(i)
			if !isExported(f.Name) {
				continue
			}

			switch f.Type {
			case tableType, memoryType, globalType:
				if fv := value.Field(i); !fv.IsNil() {
					m.exports[exportName(f.Name)] = fv.Interface()
				}
			}
		}
	}

	t := v.Type()
	for i, n := 0, t.NumMethod(); i < n; i++ {
		if name := t.Method(i).Name; isExported(name) {
			f, err := newHostFunction(v.Method(i))
			if err != nil {
				return nil, fmt.Errorf("method %v: %w", name, err)
			}
			m.exports[exportName(name)] = f
		}
	}

	return &m, nil
}

func (m *hostModule) Instantiate(imports ImportResolver) (Module, error) {
	return m, nil
}

func (m *hostModule) Name() string {
	return m.name
}

func (m *hostModule) export(name string, kind wasm.External) (interface{}, error) {
	x, ok := m.exports[name]
	if !ok {
		return nil, &ExportNotFoundError{ModuleName: m.name, FieldName: name}
	}
	if actual := kindOf(x); actual != kind {
		return nil, NewKindMismatchError(m.name, name, kind, actual)
	}
	return x, nil
}

func (m *hostModule) GetFunction(name string) (Function, error) {
	x, err := m.export(name, wasm.ExternalFunction)
	if err != nil {
		return nil, err
	}
	return x.(Function), nil
}

func (m *hostModule) GetTable(name string) (*Table, error) {
	x, err := m.export(name, wasm.ExternalTable)
	if err != nil {
		return nil, err
	}
	return x.(*Table), nil
}

func (m *hostModule) GetMemory(name string) (*Memory, error) {
	x, err := m.export(name, wasm.ExternalMemory)
	if err != nil {
		return nil, err
	}
	return x.(*Memory), nil
}

func (m *hostModule) GetGlobal(name string) (*Global, error) {
	x, err := m.export(name, wasm.ExternalGlobal)
	if err != nil {
		return nil, err
	}
	return x.(*Global), nil
}
