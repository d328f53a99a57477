// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"fmt"
	"io"

	"github.com/pgavlin/polywarp/wasm/leb128"
)

// Import is the type of an imported value. It is one of FuncImport, TableImport, MemoryImport or
// GlobalVarImport.
type Import interface {
	Marshaler
	fmt.Stringer

	// Kind returns the kind of external value being imported.
	Kind() External

	isImport()
}

// ImportEntry is a single entry of the import section.
type ImportEntry struct {
	ModuleName string
	FieldName  string
	Type       Import
}

func (i ImportEntry) String() string {
	return fmt.Sprintf("%s.%s (%v)", i.ModuleName, i.FieldName, i.Type)
}

// FuncImport imports a function whose signature is the given type index.
type FuncImport struct {
	Type uint32
}

// TableImport imports a table of at least the given size.
type TableImport struct {
	Type Table
}

// MemoryImport imports a memory of at least the given size.
type MemoryImport struct {
	Type Memory
}

// GlobalVarImport imports a global of exactly the given type and mutability.
type GlobalVarImport struct {
	Type GlobalVar
}

func (FuncImport) isImport()      {}
func (TableImport) isImport()     {}
func (MemoryImport) isImport()    {}
func (GlobalVarImport) isImport() {}

func (FuncImport) Kind() External      { return ExternalFunction }
func (TableImport) Kind() External     { return ExternalTable }
func (MemoryImport) Kind() External    { return ExternalMemory }
func (GlobalVarImport) Kind() External { return ExternalGlobal }

func (f FuncImport) String() string { return fmt.Sprintf("function (type %d)", f.Type) }
func (t TableImport) String() string {
	return fmt.Sprintf("table %v %v", t.Type.ElementType, t.Type.Limits)
}
func (m MemoryImport) String() string    { return fmt.Sprintf("memory %v", m.Type.Limits) }
func (g GlobalVarImport) String() string { return fmt.Sprintf("global %v", g.Type) }

func (f FuncImport) MarshalWASM(w io.Writer) error {
	_, err := leb128.WriteVarUint32(w, f.Type)
	return err
}

func (t TableImport) MarshalWASM(w io.Writer) error     { return t.Type.MarshalWASM(w) }
func (m MemoryImport) MarshalWASM(w io.Writer) error    { return m.Type.MarshalWASM(w) }
func (g GlobalVarImport) MarshalWASM(w io.Writer) error { return g.Type.MarshalWASM(w) }

// InvalidExternalError is returned when an import or export kind is not recognized.
type InvalidExternalError uint8

func (e InvalidExternalError) Error() string {
	return fmt.Sprintf("wasm: invalid external kind %d", uint8(e))
}

func decodeImport(kind External, r io.Reader) (Import, error) {
	switch kind {
	case ExternalFunction:
		typeidx, err := leb128.ReadVarUint32(r)
		return FuncImport{Type: typeidx}, err
	case ExternalTable:
		var t TableImport
		err := t.Type.UnmarshalWASM(r)
		return t, err
	case ExternalMemory:
		var m MemoryImport
		err := m.Type.UnmarshalWASM(r)
		return m, err
	case ExternalGlobal:
		var g GlobalVarImport
		err := g.Type.UnmarshalWASM(r)
		return g, err
	default:
		return nil, InvalidExternalError(kind)
	}
}

func (i *ImportEntry) UnmarshalWASM(r io.Reader) error {
	var err error
	if i.ModuleName, err = readUTF8StringUint(r); err != nil {
		return err
	}
	if i.FieldName, err = readUTF8StringUint(r); err != nil {
		return err
	}

	var kind External
	if err = kind.UnmarshalWASM(r); err != nil {
		return err
	}
	t, err := decodeImport(kind, r)
	if err != nil {
		return err
	}
	i.Type = t
	return nil
}

func (i *ImportEntry) MarshalWASM(w io.Writer) error {
	for _, s := range []string{i.ModuleName, i.FieldName} {
		if err := writeStringUint(w, s); err != nil {
			return err
		}
	}
	if err := i.Type.Kind().MarshalWASM(w); err != nil {
		return err
	}
	return i.Type.MarshalWASM(w)
}
