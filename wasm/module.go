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

var (
	ErrInvalidMagic   = errors.New("magic header not detected")
	ErrInvalidVersion = errors.New("unknown binary version")
)

const (
	Magic   uint32 = 0x6d736100
	Version uint32 = 0x1
)

// CompileError describes a failure to decode or validate a module. Function is the index of the function whose body
// failed to validate, or -1.
type CompileError struct {
	Section  SectionID
	Function int
	Offset   int64
	Err      error
}

func (e *CompileError) Error() string {
	if e.Function >= 0 {
		return fmt.Sprintf("compile error: function %d: %v", e.Function, e.Err)
	}
	return fmt.Sprintf("compile error: %v section at offset %d: %v", e.Section, e.Offset, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Module represents a parsed WebAssembly module:
// http://webassembly.org/docs/modules/
type Module struct {
	Version  uint32
	Sections []Section

	Types     *SectionTypes
	Import    *SectionImports
	Function  *SectionFunctions
	Table     *SectionTables
	Memory    *SectionMemories
	Global    *SectionGlobals
	Export    *SectionExports
	Start     *SectionStartFunction
	Elements  *SectionElements
	DataCount *SectionDataCount
	Code      *SectionCode
	Data      *SectionData
	Customs   []*SectionCustom
}

// Names returns the names section. If no names section exists, this function returns a MissingSectionError.
func (m *Module) Names() (*NameSection, error) {
	s := m.Custom(CustomSectionName)
	if s == nil {
		return nil, MissingSectionError(0)
	}

	var names NameSection
	if err := names.UnmarshalWASM(bytes.NewReader(s.Data)); err != nil {
		return nil, err
	}

	return &names, nil
}

// FunctionNames returns the names recorded for the module's functions, keyed by function index. Names are only used
// for diagnostics, so a missing or malformed name section yields an empty map.
func (m *Module) FunctionNames() map[uint32]string {
	names, err := m.Names()
	if err != nil {
		if _, missing := err.(MissingSectionError); !missing {
			Logger().Debug("ignoring malformed name section", zap.Error(err))
		}
		return map[uint32]string{}
	}
	return names.FunctionNames()
}

// Custom returns a custom section with a specific name, if it exists.
func (m *Module) Custom(name string) *SectionCustom {
	for _, s := range m.Customs {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// ImportCounts returns the number of imported functions, tables, memories and globals.
func (m *Module) ImportCounts() (functions, tables, memories, globals int) {
	if m.Import == nil {
		return
	}
	for _, e := range m.Import.Entries {
		switch e.Type.Kind() {
		case ExternalFunction:
			functions++
		case ExternalTable:
			tables++
		case ExternalMemory:
			memories++
		case ExternalGlobal:
			globals++
		}
	}
	return
}

// NewModule creates a new empty module
func NewModule() *Module {
	return &Module{
		Version:  Version,
		Types:    &SectionTypes{},
		Import:   &SectionImports{},
		Function: &SectionFunctions{},
		Table:    &SectionTables{},
		Memory:   &SectionMemories{},
		Global:   &SectionGlobals{},
		Export:   &SectionExports{},
		Elements: &SectionElements{},
		Code:     &SectionCode{},
		Data:     &SectionData{},
	}
}

// DecodeModule decodes a WASM module. Any failure is reported as a *CompileError.
func DecodeModule(r io.Reader) (*Module, error) {
	reader := &readpos.ReadPos{
		R:      r,
		CurPos: 0,
	}
	fail := func(err error) (*Module, error) {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, &CompileError{Function: -1, Offset: reader.CurPos, Err: err}
	}

	m := &Module{}
	magic, err := readU32(reader)
	if err != nil {
		return fail(err)
	}
	if magic != Magic {
		return fail(ErrInvalidMagic)
	}
	if m.Version, err = readU32(reader); err != nil {
		return fail(err)
	}
	if m.Version != Version {
		return fail(ErrInvalidVersion)
	}

	if err = newSectionsReader(m).readSections(reader); err != nil {
		return nil, err
	}

	if err = m.checkCounts(); err != nil {
		return fail(err)
	}
	return m, nil
}

// Decode decodes a WASM module from a byte slice.
func Decode(b []byte) (*Module, error) {
	return DecodeModule(bytes.NewReader(b))
}

func (m *Module) checkCounts() error {
	functions, bodies := 0, 0
	if m.Function != nil {
		functions = len(m.Function.Types)
	}
	if m.Code != nil {
		bodies = len(m.Code.Bodies)
	}
	if functions != bodies {
		return ValidationError("function and code section have inconsistent lengths")
	}

	if m.DataCount != nil {
		segments := 0
		if m.Data != nil {
			segments = len(m.Data.Entries)
		}
		if int(m.DataCount.Count) != segments {
			return ValidationError("data count and data section have inconsistent lengths")
		}
	}
	return nil
}

// MustDecode decodes a WASM module and panics on failure.
func MustDecode(r io.Reader) *Module {
	m, err := DecodeModule(r)
	if err != nil {
		panic(fmt.Errorf("decoding module: %w", err))
	}
	return m
}

// EncodeModule writes the binary encoding of a module. Known sections are written in their prescribed order and
// custom sections are written last.
func EncodeModule(w io.Writer, m *Module) error {
	if err := writeU32(w, Magic); err != nil {
		return err
	}
	if err := writeU32(w, Version); err != nil {
		return err
	}

	var sections []Section
	add := func(s Section, present bool) {
		if present {
			sections = append(sections, s)
		}
	}
	add(m.Types, m.Types != nil)
	add(m.Import, m.Import != nil)
	add(m.Function, m.Function != nil)
	add(m.Table, m.Table != nil)
	add(m.Memory, m.Memory != nil)
	add(m.Global, m.Global != nil)
	add(m.Export, m.Export != nil)
	add(m.Start, m.Start != nil)
	add(m.Elements, m.Elements != nil)
	add(m.DataCount, m.DataCount != nil)
	add(m.Code, m.Code != nil)
	add(m.Data, m.Data != nil)
	for _, c := range m.Customs {
		sections = append(sections, c)
	}

	for _, s := range sections {
		if err := writeSection(w, s); err != nil {
			return err
		}
	}
	return nil
}

// Encode returns the binary encoding of a module.
func Encode(m *Module) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeModule(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSection(w io.Writer, s Section) error {
	var payload bytes.Buffer
	if err := s.WritePayload(&payload); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(s.SectionID())}); err != nil {
		return err
	}
	if _, err := leb128.WriteVarUint32(w, uint32(payload.Len())); err != nil {
		return err
	}
	_, err := w.Write(payload.Bytes())
	return err
}
