// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pgavlin/polywarp/wasm/internal/readpos"
	"github.com/pgavlin/polywarp/wasm/leb128"
	"go.uber.org/zap"
)

// Section is a generic WASM section interface.
type Section interface {
	// SectionID returns a section ID for WASM encoding. Should be unique across types.
	SectionID() SectionID
	// GetRawSection Returns an embedded RawSection pointer to populate generic fields.
	GetRawSection() *RawSection
	// ReadPayload reads a section payload, assuming the size was already read, and reader is limited to it.
	ReadPayload(r io.Reader) error
	// WritePayload writes a section payload without the size.
	// Caller should calculate written size and add it before the payload.
	WritePayload(w io.Writer) error
}

// SectionID is a 1-byte code that encodes the section code of both known and custom sections.
type SectionID uint8

const (
	SectionIDCustom    SectionID = 0
	SectionIDType      SectionID = 1
	SectionIDImport    SectionID = 2
	SectionIDFunction  SectionID = 3
	SectionIDTable     SectionID = 4
	SectionIDMemory    SectionID = 5
	SectionIDGlobal    SectionID = 6
	SectionIDExport    SectionID = 7
	SectionIDStart     SectionID = 8
	SectionIDElement   SectionID = 9
	SectionIDCode      SectionID = 10
	SectionIDData      SectionID = 11
	SectionIDDataCount SectionID = 12
)

var sectionNames = [...]string{
	SectionIDCustom:    "custom",
	SectionIDType:      "type",
	SectionIDImport:    "import",
	SectionIDFunction:  "function",
	SectionIDTable:     "table",
	SectionIDMemory:    "memory",
	SectionIDGlobal:    "global",
	SectionIDExport:    "export",
	SectionIDStart:     "start",
	SectionIDElement:   "element",
	SectionIDCode:      "code",
	SectionIDData:      "data",
	SectionIDDataCount: "data count",
}

func (s SectionID) String() string {
	if int(s) < len(sectionNames) {
		return sectionNames[s]
	}
	return "unknown"
}

// order returns the position of the section in the prescribed section order. The data count section sits between
// the element and code sections.
func (s SectionID) order() int {
	switch s {
	case SectionIDDataCount:
		return int(SectionIDElement) + 1
	case SectionIDCode, SectionIDData:
		return int(s) + 1
	default:
		return int(s)
	}
}

// RawSection is a declared section in a WASM module.
type RawSection struct {
	Start int64
	End   int64

	ID    SectionID
	Bytes []byte
}

func (s *RawSection) SectionID() SectionID {
	return s.ID
}

func (s *RawSection) GetRawSection() *RawSection {
	return s
}

// InvalidSectionIDError is returned for a section id that is not recognized.
type InvalidSectionIDError SectionID

func (e InvalidSectionIDError) Error() string {
	return fmt.Sprintf("Unsupported section type: 0x%02X", uint8(e))
}

// ErrSectionOrder is returned when a known section appears twice or out of order.
var ErrSectionOrder = errors.New("wasm: sections must occur at most once and in the prescribed order")

// SectionSizeMismatchError is returned when a section's payload does not consume exactly its declared size.
type SectionSizeMismatchError struct {
	ID       SectionID
	Declared uint32
	Read     int64
}

func (e *SectionSizeMismatchError) Error() string {
	return fmt.Sprintf("wasm: section size mismatch: %v section declared %d bytes but read %d", e.ID, e.Declared, e.Read)
}

type MissingSectionError SectionID

func (e MissingSectionError) Error() string {
	return fmt.Sprintf("wasm: missing section %s", SectionID(e).String())
}

type sectionsReader struct {
	lastSecOrder int // order of the previous non-custom section
	m            *Module
}

func newSectionsReader(m *Module) *sectionsReader {
	return &sectionsReader{m: m}
}

func (sr *sectionsReader) readSections(r *readpos.ReadPos) error {
	for {
		done, err := sr.readSection(r)
		switch {
		case err != nil:
			return err
		case done:
			return nil
		}
	}
}

// reads a valid section from r. The first return value is true if and only if
// the module has been completely read.
func (sr *sectionsReader) readSection(r *readpos.ReadPos) (bool, error) {
	m := sr.m

	start := r.CurPos
	id, err := r.ReadByte()
	if err == io.EOF {
		return true, nil
	} else if err != nil {
		return false, err
	}

	s := RawSection{ID: SectionID(id)}
	fail := func(err error) (bool, error) {
		return false, &CompileError{Section: s.ID, Function: -1, Offset: start, Err: err}
	}

	if s.ID > SectionIDDataCount {
		return fail(InvalidSectionIDError(id))
	}
	if s.ID != SectionIDCustom {
		if s.ID.order() <= sr.lastSecOrder {
			return fail(ErrSectionOrder)
		}
		sr.lastSecOrder = s.ID.order()
	}

	payloadDataLen, err := leb128.ReadVarUint32(r)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return fail(err)
	}

	Logger().Debug("reading section", zap.Stringer("id", s.ID), zap.Uint32("size", payloadDataLen), zap.Int64("offset", start))

	s.Start = r.CurPos

	sectionBytes := new(bytes.Buffer)
	sectionBytes.Grow(int(getInitialCap(payloadDataLen)))
	limited := &io.LimitedReader{R: io.TeeReader(r, sectionBytes), N: int64(payloadDataLen)}

	var sec Section
	switch s.ID {
	case SectionIDCustom:
		cs := &SectionCustom{}
		m.Customs = append(m.Customs, cs)
		sec = cs
	case SectionIDType:
		m.Types = &SectionTypes{}
		sec = m.Types
	case SectionIDImport:
		m.Import = &SectionImports{}
		sec = m.Import
	case SectionIDFunction:
		m.Function = &SectionFunctions{}
		sec = m.Function
	case SectionIDTable:
		m.Table = &SectionTables{}
		sec = m.Table
	case SectionIDMemory:
		m.Memory = &SectionMemories{}
		sec = m.Memory
	case SectionIDGlobal:
		m.Global = &SectionGlobals{}
		sec = m.Global
	case SectionIDExport:
		m.Export = &SectionExports{}
		sec = m.Export
	case SectionIDStart:
		m.Start = &SectionStartFunction{}
		sec = m.Start
	case SectionIDElement:
		m.Elements = &SectionElements{}
		sec = m.Elements
	case SectionIDDataCount:
		m.DataCount = &SectionDataCount{}
		sec = m.DataCount
	case SectionIDCode:
		m.Code = &SectionCode{}
		sec = m.Code
	case SectionIDData:
		m.Data = &SectionData{}
		sec = m.Data
	}

	if err = sec.ReadPayload(limited); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return fail(err)
	}
	if limited.N != 0 {
		return fail(&SectionSizeMismatchError{ID: s.ID, Declared: payloadDataLen, Read: int64(payloadDataLen) - limited.N})
	}

	s.End = r.CurPos
	s.Bytes = sectionBytes.Bytes()
	*sec.GetRawSection() = s
	m.Sections = append(m.Sections, sec)
	return false, nil
}

var _ Section = (*SectionCustom)(nil)

// SectionCustom holds a custom section. Custom sections carry no semantics.
type SectionCustom struct {
	RawSection
	Name string
	Data []byte
}

func (s *SectionCustom) SectionID() SectionID {
	return SectionIDCustom
}

func (s *SectionCustom) ReadPayload(r io.Reader) error {
	var err error
	s.Name, err = readUTF8StringUint(r)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.Data = data
	return nil
}

func (s *SectionCustom) WritePayload(w io.Writer) error {
	if err := writeStringUint(w, s.Name); err != nil {
		return err
	}
	_, err := w.Write(s.Data)
	return err
}

// readVector reads a count-prefixed vector of entries, calling read for each entry.
func readVector(r io.Reader, read func(i uint32) error) (uint32, error) {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return 0, err
	}
	for i := uint32(0); i < count; i++ {
		if err := read(i); err != nil {
			return count, err
		}
	}
	return count, nil
}

func writeVector(w io.Writer, n int, write func(i int) error) error {
	if _, err := leb128.WriteVarUint32(w, uint32(n)); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := write(i); err != nil {
			return err
		}
	}
	return nil
}

// readEntries reads a vector of entries that decode themselves.
func readEntries[T any, P interface {
	*T
	Unmarshaler
}](r io.Reader) ([]T, error) {
	var entries []T
	_, err := readVector(r, func(uint32) error {
		var e T
		if err := P(&e).UnmarshalWASM(r); err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

func writeEntries[T any, P interface {
	*T
	Marshaler
}](w io.Writer, entries []T) error {
	return writeVector(w, len(entries), func(i int) error {
		return P(&entries[i]).MarshalWASM(w)
	})
}

var _ Section = (*SectionTypes)(nil)

// SectionTypes declares all function signatures that will be used in a module.
type SectionTypes struct {
	RawSection
	Entries []FunctionSig
}

func (*SectionTypes) SectionID() SectionID {
	return SectionIDType
}

func (s *SectionTypes) ReadPayload(r io.Reader) (err error) {
	s.Entries, err = readEntries[FunctionSig](r)
	return err
}

func (s *SectionTypes) WritePayload(w io.Writer) error {
	return writeEntries(w, s.Entries)
}

var _ Section = (*SectionImports)(nil)

// SectionImports declares all imports that will be used in the module.
type SectionImports struct {
	RawSection
	Entries []ImportEntry
}

func (*SectionImports) SectionID() SectionID {
	return SectionIDImport
}

func (s *SectionImports) ReadPayload(r io.Reader) (err error) {
	s.Entries, err = readEntries[ImportEntry](r)
	return err
}

func (s *SectionImports) WritePayload(w io.Writer) error {
	return writeEntries(w, s.Entries)
}

// SectionFunctions declares the signature of all functions defined in the module (in the code section)
type SectionFunctions struct {
	RawSection
	// Sequences of indices into (FunctionSignatues).Entries
	Types []uint32
}

func (*SectionFunctions) SectionID() SectionID {
	return SectionIDFunction
}

func (s *SectionFunctions) ReadPayload(r io.Reader) error {
	_, err := readVector(r, func(uint32) error {
		t, err := leb128.ReadVarUint32(r)
		if err != nil {
			return err
		}
		s.Types = append(s.Types, t)
		return nil
	})
	return err
}

func (s *SectionFunctions) WritePayload(w io.Writer) error {
	return writeVector(w, len(s.Types), func(i int) error {
		_, err := leb128.WriteVarUint32(w, s.Types[i])
		return err
	})
}

// SectionTables describes all tables declared by a module.
type SectionTables struct {
	RawSection
	Entries []Table
}

func (*SectionTables) SectionID() SectionID {
	return SectionIDTable
}

func (s *SectionTables) ReadPayload(r io.Reader) (err error) {
	s.Entries, err = readEntries[Table](r)
	return err
}

func (s *SectionTables) WritePayload(w io.Writer) error {
	return writeEntries(w, s.Entries)
}

// SectionMemories describes all linear memories used by a module.
type SectionMemories struct {
	RawSection
	Entries []Memory
}

func (*SectionMemories) SectionID() SectionID {
	return SectionIDMemory
}

func (s *SectionMemories) ReadPayload(r io.Reader) (err error) {
	s.Entries, err = readEntries[Memory](r)
	return err
}

func (s *SectionMemories) WritePayload(w io.Writer) error {
	return writeEntries(w, s.Entries)
}

// SectionGlobals defines the value of all global variables declared in a module.
type SectionGlobals struct {
	RawSection
	Globals []GlobalEntry
}

func (*SectionGlobals) SectionID() SectionID {
	return SectionIDGlobal
}

func (s *SectionGlobals) ReadPayload(r io.Reader) (err error) {
	s.Globals, err = readEntries[GlobalEntry](r)
	return err
}

func (s *SectionGlobals) WritePayload(w io.Writer) error {
	return writeEntries(w, s.Globals)
}

// GlobalEntry declares a global variable.
type GlobalEntry struct {
	Type GlobalVar // Type holds information about the value type and mutability of the variable
	Init ConstExpr // Init is an initializer expression that computes the initial value of the variable
}

func (g *GlobalEntry) UnmarshalWASM(r io.Reader) error {
	if err := g.Type.UnmarshalWASM(r); err != nil {
		return err
	}
	return g.Init.UnmarshalWASM(r)
}

func (g *GlobalEntry) MarshalWASM(w io.Writer) error {
	if err := g.Type.MarshalWASM(w); err != nil {
		return err
	}
	return g.Init.MarshalWASM(w)
}

// SectionExports declares the export section of a module
type SectionExports struct {
	RawSection
	Entries []ExportEntry
}

func (*SectionExports) SectionID() SectionID {
	return SectionIDExport
}

func (s *SectionExports) ReadPayload(r io.Reader) error {
	entries, err := readEntries[ExportEntry](r)
	if err != nil {
		return err
	}
	names := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, ok := names[e.FieldStr]; ok {
			return DuplicateExportError(e.FieldStr)
		}
		names[e.FieldStr] = struct{}{}
	}
	s.Entries = entries
	return nil
}

func (s *SectionExports) WritePayload(w io.Writer) error {
	return writeEntries(w, s.Entries)
}

type DuplicateExportError string

func (e DuplicateExportError) Error() string {
	return fmt.Sprintf("wasm: duplicate export name %q", string(e))
}

// ExportEntry represents an exported entry by the module
type ExportEntry struct {
	FieldStr string
	Kind     External
	Index    uint32
}

func (e *ExportEntry) UnmarshalWASM(r io.Reader) error {
	var err error
	if e.FieldStr, err = readUTF8StringUint(r); err != nil {
		return err
	}
	if err := e.Kind.UnmarshalWASM(r); err != nil {
		return err
	}
	e.Index, err = leb128.ReadVarUint32(r)
	return err
}

func (e *ExportEntry) MarshalWASM(w io.Writer) error {
	if err := writeStringUint(w, e.FieldStr); err != nil {
		return err
	}
	if err := e.Kind.MarshalWASM(w); err != nil {
		return err
	}
	_, err := leb128.WriteVarUint32(w, e.Index)
	return err
}

// SectionStartFunction represents the start function section.
type SectionStartFunction struct {
	RawSection
	Index uint32 // The index of the start function into the global index space.
}

func (*SectionStartFunction) SectionID() SectionID {
	return SectionIDStart
}

func (s *SectionStartFunction) ReadPayload(r io.Reader) error {
	var err error
	s.Index, err = leb128.ReadVarUint32(r)
	return err
}

func (s *SectionStartFunction) WritePayload(w io.Writer) error {
	_, err := leb128.WriteVarUint32(w, s.Index)
	return err
}

// SectionElements describes the initial contents of a table's elements.
type SectionElements struct {
	RawSection
	Entries []ElementSegment
}

func (*SectionElements) SectionID() SectionID {
	return SectionIDElement
}

func (s *SectionElements) ReadPayload(r io.Reader) (err error) {
	s.Entries, err = readEntries[ElementSegment](r)
	return err
}

func (s *SectionElements) WritePayload(w io.Writer) error {
	return writeEntries(w, s.Entries)
}

// SegmentMode describes when the contents of an element or data segment are applied.
type SegmentMode uint8

const (
	// SegmentModeActive segments are copied into their table or memory during instantiation.
	SegmentModeActive SegmentMode = iota
	// SegmentModePassive segments are retained for use by table.init or memory.init.
	SegmentModePassive
	// SegmentModeDeclarative segments only declare the functions they reference.
	SegmentModeDeclarative
)

func (m SegmentMode) String() string {
	switch m {
	case SegmentModeActive:
		return "active"
	case SegmentModePassive:
		return "passive"
	case SegmentModeDeclarative:
		return "declarative"
	default:
		return "<unknown mode>"
	}
}

// Element segment flag bits.
const (
	elemFlagNonActive     = 0x1
	elemFlagExplicitIndex = 0x2
	elemFlagExpressions   = 0x4

	// ElemKindFuncref is the only element kind.
	ElemKindFuncref = 0x00
)

// UnsupportedElementKindError is returned for an element segment with an unknown flag or element kind.
type UnsupportedElementKindError uint32

func (e UnsupportedElementKindError) Error() string {
	return fmt.Sprintf("Unsupported element kind: %d", uint32(e))
}

// ElementSegment describes a group of references that initialize a contiguous range of a table.
type ElementSegment struct {
	Flags  uint32      // The segment's encoding flags.
	Mode   SegmentMode // The segment's mode.
	Index  uint32      // The index of the target table for active segments.
	Offset ConstExpr   // The offset of the first element in the target table for active segments.
	Type   ValueType   // The type of the segment's references.

	Elems []uint32    // Function indices, if the segment does not use expressions.
	Exprs []ConstExpr // Reference expressions, if the segment uses expressions.
}

// UsesExpressions returns true if the segment's contents are given as constant expressions.
func (s *ElementSegment) UsesExpressions() bool {
	return s.Flags&elemFlagExpressions != 0
}

// Len returns the number of references in the segment.
func (s *ElementSegment) Len() int {
	if s.UsesExpressions() {
		return len(s.Exprs)
	}
	return len(s.Elems)
}

func (s *ElementSegment) UnmarshalWASM(r io.Reader) error {
	var err error
	if s.Flags, err = leb128.ReadVarUint32(r); err != nil {
		return err
	}
	if s.Flags > 7 {
		return UnsupportedElementKindError(s.Flags)
	}

	switch {
	case s.Flags&elemFlagNonActive == 0:
		s.Mode = SegmentModeActive
	case s.Flags&elemFlagExplicitIndex != 0:
		s.Mode = SegmentModeDeclarative
	default:
		s.Mode = SegmentModePassive
	}

	if s.Mode == SegmentModeActive {
		if s.Flags&elemFlagExplicitIndex != 0 {
			if s.Index, err = leb128.ReadVarUint32(r); err != nil {
				return err
			}
		}
		if err = s.Offset.UnmarshalWASM(r); err != nil {
			return err
		}
	}

	// Flags 0 and 4 have an implicit type; all other encodings carry an element kind or a reference type.
	s.Type = ValueTypeFuncref
	if s.Flags&^elemFlagExpressions != 0 {
		if s.UsesExpressions() {
			if err = s.Type.UnmarshalWASM(r); err != nil {
				return err
			}
			if !s.Type.IsRef() {
				return UnsupportedElementKindError(s.Type)
			}
		} else {
			kind, err := readByte(r)
			if err != nil {
				return err
			}
			if kind != ElemKindFuncref {
				return UnsupportedElementKindError(kind)
			}
		}
	}

	if s.UsesExpressions() {
		_, err = readVector(r, func(uint32) error {
			var e ConstExpr
			if err := e.UnmarshalWASM(r); err != nil {
				return err
			}
			switch e.Opcode {
			case ConstOpRefNull, ConstOpRefFunc, ConstOpGlobalGet:
			default:
				return InvalidInitExprOpError(e.Opcode)
			}
			s.Exprs = append(s.Exprs, e)
			return nil
		})
		return err
	}

	_, err = readVector(r, func(uint32) error {
		e, err := leb128.ReadVarUint32(r)
		if err != nil {
			return err
		}
		s.Elems = append(s.Elems, e)
		return nil
	})
	return err
}

func (s *ElementSegment) MarshalWASM(w io.Writer) error {
	if _, err := leb128.WriteVarUint32(w, s.Flags); err != nil {
		return err
	}
	if s.Mode == SegmentModeActive {
		if s.Flags&elemFlagExplicitIndex != 0 {
			if _, err := leb128.WriteVarUint32(w, s.Index); err != nil {
				return err
			}
		}
		if err := s.Offset.MarshalWASM(w); err != nil {
			return err
		}
	}
	if s.Flags&^elemFlagExpressions != 0 {
		if s.UsesExpressions() {
			if err := s.Type.MarshalWASM(w); err != nil {
				return err
			}
		} else if _, err := w.Write([]byte{ElemKindFuncref}); err != nil {
			return err
		}
	}

	if s.UsesExpressions() {
		return writeVector(w, len(s.Exprs), func(i int) error {
			return s.Exprs[i].MarshalWASM(w)
		})
	}
	return writeVector(w, len(s.Elems), func(i int) error {
		_, err := leb128.WriteVarUint32(w, s.Elems[i])
		return err
	})
}

// SectionDataCount declares the number of data segments. It allows function bodies to be validated before the data
// section is seen.
type SectionDataCount struct {
	RawSection
	Count uint32
}

func (*SectionDataCount) SectionID() SectionID {
	return SectionIDDataCount
}

func (s *SectionDataCount) ReadPayload(r io.Reader) error {
	var err error
	s.Count, err = leb128.ReadVarUint32(r)
	return err
}

func (s *SectionDataCount) WritePayload(w io.Writer) error {
	_, err := leb128.WriteVarUint32(w, s.Count)
	return err
}

// SectionCode describes the body for every function declared inside a module.
type SectionCode struct {
	RawSection
	Bodies []FunctionBody
}

func (*SectionCode) SectionID() SectionID {
	return SectionIDCode
}

func (s *SectionCode) ReadPayload(r io.Reader) (err error) {
	s.Bodies, err = readEntries[FunctionBody](r)
	return err
}

func (s *SectionCode) WritePayload(w io.Writer) error {
	return writeEntries(w, s.Bodies)
}

// ErrTooManyLocals is returned when a function body declares more than 2^32-1 locals.
var ErrTooManyLocals = errors.New("too many locals")

// FunctionBody holds the locals and the undecoded instructions of a function defined by a module.
type FunctionBody struct {
	Locals []LocalEntry
	Code   []byte
}

// NumLocals returns the number of locals declared by the body, excluding parameters.
func (f *FunctionBody) NumLocals() int {
	n := 0
	for _, l := range f.Locals {
		n += int(l.Count)
	}
	return n
}

func (f *FunctionBody) UnmarshalWASM(r io.Reader) error {
	body, err := readBytesUint(r)
	if err != nil {
		return err
	}

	bytesReader := bytes.NewBuffer(body)

	total := uint64(0)
	_, err = readVector(bytesReader, func(uint32) error {
		var local LocalEntry
		if err := local.UnmarshalWASM(bytesReader); err != nil {
			return err
		}
		if total += uint64(local.Count); total > 0xffffffff {
			return ErrTooManyLocals
		}
		f.Locals = append(f.Locals, local)
		return nil
	})
	if err != nil {
		return err
	}

	f.Code = bytesReader.Bytes()
	return nil
}

func (f *FunctionBody) MarshalWASM(w io.Writer) error {
	body := new(bytes.Buffer)
	err := writeVector(body, len(f.Locals), func(i int) error {
		return f.Locals[i].MarshalWASM(body)
	})
	if err != nil {
		return err
	}
	if _, err := body.Write(f.Code); err != nil {
		return err
	}
	return writeBytesUint(w, body.Bytes())
}

type LocalEntry struct {
	Count uint32    // The total number of local variables of the given Type used in the function body
	Type  ValueType // The type of value stored by the variable
}

func (l *LocalEntry) UnmarshalWASM(r io.Reader) error {
	var err error
	if l.Count, err = leb128.ReadVarUint32(r); err != nil {
		return err
	}
	return l.Type.UnmarshalWASM(r)
}

func (l *LocalEntry) MarshalWASM(w io.Writer) error {
	if _, err := leb128.WriteVarUint32(w, l.Count); err != nil {
		return err
	}
	return l.Type.MarshalWASM(w)
}

// SectionData describes the initial values of a module's linear memory
type SectionData struct {
	RawSection
	Entries []DataSegment
}

func (*SectionData) SectionID() SectionID {
	return SectionIDData
}

func (s *SectionData) ReadPayload(r io.Reader) (err error) {
	s.Entries, err = readEntries[DataSegment](r)
	return err
}

func (s *SectionData) WritePayload(w io.Writer) error {
	return writeEntries(w, s.Entries)
}

// UnsupportedDataModeError is returned for a data segment with an unknown mode.
type UnsupportedDataModeError uint32

func (e UnsupportedDataModeError) Error() string {
	return fmt.Sprintf("Unsupported data mode: %d", uint32(e))
}

// DataSegment describes a group of bytes that initialize a contiguous range of a linear memory.
type DataSegment struct {
	Flags  uint32      // The segment's encoding flags.
	Mode   SegmentMode // Active or passive.
	Index  uint32      // The index of the target memory for active segments.
	Offset ConstExpr   // The offset of the segment in the target memory for active segments.
	Data   []byte
}

func (s *DataSegment) UnmarshalWASM(r io.Reader) error {
	var err error
	if s.Flags, err = leb128.ReadVarUint32(r); err != nil {
		return err
	}

	switch s.Flags {
	case 0:
		s.Mode = SegmentModeActive
	case 1:
		s.Mode = SegmentModePassive
	case 2:
		s.Mode = SegmentModeActive
		if s.Index, err = leb128.ReadVarUint32(r); err != nil {
			return err
		}
	default:
		return UnsupportedDataModeError(s.Flags)
	}

	if s.Mode == SegmentModeActive {
		if err = s.Offset.UnmarshalWASM(r); err != nil {
			return err
		}
	}
	s.Data, err = readBytesUint(r)
	return err
}

func (s *DataSegment) MarshalWASM(w io.Writer) error {
	if _, err := leb128.WriteVarUint32(w, s.Flags); err != nil {
		return err
	}
	if s.Flags == 2 {
		if _, err := leb128.WriteVarUint32(w, s.Index); err != nil {
			return err
		}
	}
	if s.Mode == SegmentModeActive {
		if err := s.Offset.MarshalWASM(w); err != nil {
			return err
		}
	}
	return writeBytesUint(w, s.Data)
}
