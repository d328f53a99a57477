package wasm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/pgavlin/polywarp/wasm/leb128"
)

// Marshaler is the interface implemented by types that can marshal themselves into valid WASM.
type Marshaler interface {
	MarshalWASM(w io.Writer) error
}

// Unmarshaler is the interface implemented by types that can unmarshal a WASM description of themselves.
type Unmarshaler interface {
	UnmarshalWASM(r io.Reader) error
}

// ValueType represents the type of a valid value in WASM.
type ValueType uint8

const (
	// ValueTypeT is used during validation to represent a value of unknown type.
	ValueTypeT ValueType = 0

	ValueTypeI32       ValueType = 0x7f
	ValueTypeI64       ValueType = 0x7e
	ValueTypeF32       ValueType = 0x7d
	ValueTypeF64       ValueType = 0x7c
	ValueTypeFuncref   ValueType = 0x70
	ValueTypeExternref ValueType = 0x6f
)

var valueTypeStrMap = map[ValueType]string{
	ValueTypeT:         "<unknown>",
	ValueTypeI32:       "i32",
	ValueTypeI64:       "i64",
	ValueTypeF32:       "f32",
	ValueTypeF64:       "f64",
	ValueTypeFuncref:   "funcref",
	ValueTypeExternref: "externref",
}

func (t ValueType) String() string {
	str, ok := valueTypeStrMap[t]
	if !ok {
		str = fmt.Sprintf("<unknown value_type %d>", uint8(t))
	}
	return str
}

// IsRef returns true if the type is a reference type.
func (t ValueType) IsRef() bool {
	return t == ValueTypeFuncref || t == ValueTypeExternref
}

// IsValid returns true if the type is a known value type.
func (t ValueType) IsValid() bool {
	switch t {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64, ValueTypeFuncref, ValueTypeExternref:
		return true
	default:
		return false
	}
}

// InvalidValueTypeError is returned when a value type byte is not recognized.
type InvalidValueTypeError uint8

func (e InvalidValueTypeError) Error() string {
	return fmt.Sprintf("wasm: invalid value type 0x%02x", uint8(e))
}

func (t *ValueType) UnmarshalWASM(r io.Reader) error {
	b, err := readByte(r)
	if err != nil {
		return err
	}
	v := ValueType(b)
	if !v.IsValid() {
		return InvalidValueTypeError(b)
	}
	*t = v
	return nil
}

func (t ValueType) MarshalWASM(w io.Writer) error {
	_, err := w.Write([]byte{byte(t)})
	return err
}

// TypeFunc is the form byte of a function type.
const TypeFunc = 0x60

// FunctionSig describes the signature of a declared function in a WASM module.
type FunctionSig struct {
	// value for the 'func` type constructor
	Form        uint8
	ParamTypes  []ValueType
	ReturnTypes []ValueType
}

// Equals returns true if the two signatures have identical parameter and result types.
func (f FunctionSig) Equals(other FunctionSig) bool {
	if len(f.ParamTypes) != len(other.ParamTypes) || len(f.ReturnTypes) != len(other.ReturnTypes) {
		return false
	}
	for i, t := range f.ParamTypes {
		if other.ParamTypes[i] != t {
			return false
		}
	}
	for i, t := range f.ReturnTypes {
		if other.ReturnTypes[i] != t {
			return false
		}
	}
	return true
}

func (f FunctionSig) String() string {
	var b strings.Builder
	b.WriteString("(")
	for i, t := range f.ParamTypes {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.String())
	}
	b.WriteString(") -> (")
	for i, t := range f.ReturnTypes {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.String())
	}
	b.WriteString(")")
	return b.String()
}

// InvalidTypeConstructorError is returned when a function type does not begin with the func form.
type InvalidTypeConstructorError struct {
	Wanted uint8
	Got    uint8
}

func (e InvalidTypeConstructorError) Error() string {
	return fmt.Sprintf("wasm: invalid type constructor: wanted %#x, got %#x", e.Wanted, e.Got)
}

func readValueTypes(r io.Reader) ([]ValueType, error) {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	types := make([]ValueType, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		var t ValueType
		if err := t.UnmarshalWASM(r); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

func writeValueTypes(w io.Writer, types []ValueType) error {
	if _, err := leb128.WriteVarUint32(w, uint32(len(types))); err != nil {
		return err
	}
	for _, t := range types {
		if err := t.MarshalWASM(w); err != nil {
			return err
		}
	}
	return nil
}

func (f *FunctionSig) UnmarshalWASM(r io.Reader) error {
	form, err := readByte(r)
	if err != nil {
		return err
	}
	if form != TypeFunc {
		return InvalidTypeConstructorError{Wanted: TypeFunc, Got: form}
	}
	f.Form = form

	if f.ParamTypes, err = readValueTypes(r); err != nil {
		return err
	}
	f.ReturnTypes, err = readValueTypes(r)
	return err
}

func (f *FunctionSig) MarshalWASM(w io.Writer) error {
	if _, err := w.Write([]byte{TypeFunc}); err != nil {
		return err
	}
	if err := writeValueTypes(w, f.ParamTypes); err != nil {
		return err
	}
	return writeValueTypes(w, f.ReturnTypes)
}

// MaxPages is the maximum number of 64KiB pages a linear memory may hold.
const MaxPages = 65536

// MaxTableSize is the maximum number of elements a table may hold.
const MaxTableSize = 0xffffffff

// PageSize is the size of a linear memory page in bytes.
const PageSize = 65536

// ResizableLimits describe the limit of a table or linear memory.
type ResizableLimits struct {
	Flags   uint8  // 1 if the Maximum field is valid, 0 otherwise
	Initial uint32 // initial length (in units of table elements or wasm pages)
	Maximum uint32 // If flags is 1, it describes the maximum size of the table or memory
}

func (lim ResizableLimits) String() string {
	if lim.HasMaximum() {
		return fmt.Sprintf("%d..%d", lim.Initial, lim.Maximum)
	}
	return fmt.Sprintf("%d..", lim.Initial)
}

// HasMaximum returns true if the limits declare a maximum.
func (lim ResizableLimits) HasMaximum() bool {
	return lim.Flags&0x1 != 0
}

func (lim *ResizableLimits) UnmarshalWASM(r io.Reader) error {
	f, err := readByte(r)
	if err != nil {
		return err
	}
	if f > 1 {
		return fmt.Errorf("wasm: invalid limits flags 0x%02x", f)
	}
	lim.Flags = f

	if lim.Initial, err = leb128.ReadVarUint32(r); err != nil {
		return err
	}
	if lim.HasMaximum() {
		if lim.Maximum, err = leb128.ReadVarUint32(r); err != nil {
			return err
		}
		if lim.Maximum < lim.Initial {
			return ValidationError("size minimum must not be greater than maximum")
		}
	}
	return nil
}

func (lim *ResizableLimits) MarshalWASM(w io.Writer) error {
	if _, err := w.Write([]byte{lim.Flags & 0x1}); err != nil {
		return err
	}
	if _, err := leb128.WriteVarUint32(w, lim.Initial); err != nil {
		return err
	}
	if lim.HasMaximum() {
		if _, err := leb128.WriteVarUint32(w, lim.Maximum); err != nil {
			return err
		}
	}
	return nil
}

// Table describes a table in a WASM module.
type Table struct {
	// The type of elements
	ElementType ValueType
	Limits      ResizableLimits
}

func (t *Table) UnmarshalWASM(r io.Reader) error {
	if err := t.ElementType.UnmarshalWASM(r); err != nil {
		return err
	}
	if !t.ElementType.IsRef() {
		return fmt.Errorf("wasm: table element type %v is not a reference type", t.ElementType)
	}
	return t.Limits.UnmarshalWASM(r)
}

func (t *Table) MarshalWASM(w io.Writer) error {
	if err := t.ElementType.MarshalWASM(w); err != nil {
		return err
	}
	return t.Limits.MarshalWASM(w)
}

// Memory describes a linear memory in a WASM module.
type Memory struct {
	Limits ResizableLimits
}

func (m *Memory) UnmarshalWASM(r io.Reader) error {
	if err := m.Limits.UnmarshalWASM(r); err != nil {
		return err
	}
	if m.Limits.Initial > MaxPages || (m.Limits.HasMaximum() && m.Limits.Maximum > MaxPages) {
		return ValidationError("memory size must be at most 65536 pages (4GiB)")
	}
	return nil
}

func (m *Memory) MarshalWASM(w io.Writer) error {
	return m.Limits.MarshalWASM(w)
}

// GlobalVar describes the type and mutability of a declared global variable.
type GlobalVar struct {
	Type    ValueType // Type of the value stored by the variable
	Mutable bool      // Whether the value of the variable can be changed by the set_global operator
}

func (g GlobalVar) String() string {
	if g.Mutable {
		return "mut " + g.Type.String()
	}
	return g.Type.String()
}

func (g *GlobalVar) UnmarshalWASM(r io.Reader) error {
	if err := g.Type.UnmarshalWASM(r); err != nil {
		return err
	}

	m, err := readByte(r)
	if err != nil {
		return err
	}
	if m > 1 {
		return fmt.Errorf("wasm: invalid global mutability 0x%02x", m)
	}
	g.Mutable = m == 1
	return nil
}

func (g *GlobalVar) MarshalWASM(w io.Writer) error {
	if err := g.Type.MarshalWASM(w); err != nil {
		return err
	}
	var m byte
	if g.Mutable {
		m = 1
	}
	_, err := w.Write([]byte{m})
	return err
}

// External describes the kind of the entry being imported or exported.
type External uint8

const (
	ExternalFunction External = 0
	ExternalTable    External = 1
	ExternalMemory   External = 2
	ExternalGlobal   External = 3
)

func (e External) String() string {
	switch e {
	case ExternalFunction:
		return "function"
	case ExternalTable:
		return "table"
	case ExternalMemory:
		return "memory"
	case ExternalGlobal:
		return "global"
	default:
		return "<unknown external_kind>"
	}
}

func (e *External) UnmarshalWASM(r io.Reader) error {
	b, err := readByte(r)
	if err != nil {
		return err
	}
	if b > byte(ExternalGlobal) {
		return InvalidExternalError(b)
	}
	*e = External(b)
	return nil
}

func (e External) MarshalWASM(w io.Writer) error {
	_, err := w.Write([]byte{byte(e)})
	return err
}

// ValidationError is returned when a module is structurally invalid.
type ValidationError string

func (e ValidationError) Error() string {
	return string(e)
}

// ErrMalformedUTF8 is returned when a name is not valid UTF-8.
var ErrMalformedUTF8 = errors.New("malformed UTF-8 encoding")

func readByte(r io.Reader) (byte, error) {
	if br, ok := r.(io.ByteReader); ok {
		b, err := br.ReadByte()
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return b, err
	}
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}
	return buf[0], nil
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeU32(w io.Writer, n uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], n)
	_, err := w.Write(buf[:])
	return err
}

// getInitialCap bounds the capacity preallocated for a declared element count so that a malformed count cannot
// trigger a huge allocation.
func getInitialCap(count uint32) uint32 {
	if count > 1024 {
		return 1024
	}
	return count
}

func readBytes(r io.Reader, n uint32) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, 0, getInitialCap(n))
	for uint32(len(buf)) < n {
		chunk := n - uint32(len(buf))
		if chunk > 4096 {
			chunk = 4096
		}
		start := len(buf)
		buf = append(buf, make([]byte, chunk)...)
		if _, err := io.ReadFull(r, buf[start:]); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
	return buf, nil
}

func readBytesUint(r io.Reader) ([]byte, error) {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return nil, err
	}
	return readBytes(r, n)
}

func readUTF8StringUint(r io.Reader) (string, error) {
	b, err := readBytesUint(r)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrMalformedUTF8
	}
	return string(b), nil
}

func writeBytesUint(w io.Writer, b []byte) error {
	if _, err := leb128.WriteVarUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func writeStringUint(w io.Writer, s string) error {
	return writeBytesUint(w, []byte(s))
}
