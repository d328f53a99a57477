// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"bytes"
	"io"

	"github.com/pgavlin/polywarp/wasm/leb128"
)

// CustomSectionName is the name of the custom section that carries debug names.
const CustomSectionName = "name"

var (
	_ Marshaler   = (*NameSection)(nil)
	_ Unmarshaler = (*NameSection)(nil)
)

// Name subsection ids.
const (
	nameModule   = 0
	nameFunction = 1
	nameLocal    = 2
)

// Naming associates a name with an index.
type Naming struct {
	Index uint32
	Name  string
}

// A NameMap is a list of namings in index order.
type NameMap []Naming

// Lookup returns the name recorded for the given index.
func (m NameMap) Lookup(index uint32) (string, bool) {
	for _, n := range m {
		if n.Index == index {
			return n.Name, true
		}
	}
	return "", false
}

// LocalNames holds the local names of a single function.
type LocalNames struct {
	Function uint32
	Names    NameMap
}

// NameSection holds the contents of the "name" custom section. Subsections other than the module, function and
// local names are skipped when decoding.
type NameSection struct {
	// Module is the module's name. HasModule is false if the section does not name the module.
	Module    string
	HasModule bool

	Functions NameMap
	Locals    []LocalNames
}

// FunctionNames returns a map from function index to function name.
func (s *NameSection) FunctionNames() map[uint32]string {
	names := make(map[uint32]string, len(s.Functions))
	for _, n := range s.Functions {
		names[n.Index] = n.Name
	}
	return names
}

func (s *NameSection) UnmarshalWASM(r io.Reader) error {
	*s = NameSection{}
	for {
		id, err := readByte(r)
		if err == io.ErrUnexpectedEOF {
			return nil
		} else if err != nil {
			return err
		}

		payload, err := readBytesUint(r)
		if err != nil {
			return err
		}
		if err = s.decodeSubsection(id, bytes.NewReader(payload)); err != nil {
			return err
		}
	}
}

func (s *NameSection) decodeSubsection(id byte, r io.Reader) (err error) {
	switch id {
	case nameModule:
		s.Module, err = readUTF8StringUint(r)
		s.HasModule = err == nil
	case nameFunction:
		s.Functions, err = readNameMap(r)
	case nameLocal:
		_, err = readVector(r, func(uint32) error {
			function, err := leb128.ReadVarUint32(r)
			if err != nil {
				return err
			}
			names, err := readNameMap(r)
			if err != nil {
				return err
			}
			s.Locals = append(s.Locals, LocalNames{Function: function, Names: names})
			return nil
		})
	}
	return err
}

func (s *NameSection) MarshalWASM(w io.Writer) error {
	var buf bytes.Buffer
	subsection := func(id byte, encode func(w io.Writer) error) error {
		buf.Reset()
		if err := encode(&buf); err != nil {
			return err
		}
		if _, err := w.Write([]byte{id}); err != nil {
			return err
		}
		return writeBytesUint(w, buf.Bytes())
	}

	if s.HasModule {
		err := subsection(nameModule, func(w io.Writer) error { return writeStringUint(w, s.Module) })
		if err != nil {
			return err
		}
	}
	if len(s.Functions) != 0 {
		err := subsection(nameFunction, func(w io.Writer) error { return writeNameMap(w, s.Functions) })
		if err != nil {
			return err
		}
	}
	if len(s.Locals) != 0 {
		return subsection(nameLocal, func(w io.Writer) error {
			return writeVector(w, len(s.Locals), func(i int) error {
				if _, err := leb128.WriteVarUint32(w, s.Locals[i].Function); err != nil {
					return err
				}
				return writeNameMap(w, s.Locals[i].Names)
			})
		})
	}
	return nil
}

func readNameMap(r io.Reader) (NameMap, error) {
	var nameMap NameMap
	_, err := readVector(r, func(uint32) error {
		index, err := leb128.ReadVarUint32(r)
		if err != nil {
			return err
		}
		name, err := readUTF8StringUint(r)
		if err != nil {
			return err
		}
		nameMap = append(nameMap, Naming{Index: index, Name: name})
		return nil
	})
	return nameMap, err
}

func writeNameMap(w io.Writer, nameMap NameMap) error {
	return writeVector(w, len(nameMap), func(i int) error {
		if _, err := leb128.WriteVarUint32(w, nameMap[i].Index); err != nil {
			return err
		}
		return writeStringUint(w, nameMap[i].Name)
	})
}
