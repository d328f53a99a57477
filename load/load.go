package load

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/pgavlin/polywarp/engine"
	"github.com/pgavlin/polywarp/wasm"
)

// ErrTextFormat is returned when a module is not in the binary format.
var ErrTextFormat = errors.New("module is not in the binary format; the text format is not supported")

// LoadModule decodes a binary module from a reader.
func LoadModule(r io.Reader) (*wasm.Module, error) {
	br := bufio.NewReader(r)

	buf, err := br.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if len(buf) == 4 && binary.LittleEndian.Uint32(buf) != wasm.Magic && isText(buf) {
		return nil, ErrTextFormat
	}
	return wasm.DecodeModule(br)
}

// isText returns true if the prefix of a module looks like the start of an s-expression.
func isText(prefix []byte) bool {
	trimmed := bytes.TrimLeft(prefix, " \t\r\n")
	return len(trimmed) == 0 || trimmed[0] == '(' || trimmed[0] == ';'
}

// LoadFile decodes the binary module stored in the file at the given path. On unix systems the file is
// memory-mapped for the duration of decoding.
func LoadFile(path string) (*wasm.Module, error) {
	contents, release, err := readFile(path)
	if err != nil {
		return nil, err
	}
	defer release()

	return LoadModule(bytes.NewReader(contents))
}

// CompileFile loads and compiles the module stored in the file at the given path.
func CompileFile(path string, options engine.Options) (*engine.ModuleDefinition, error) {
	m, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return engine.NewModuleDefinition(m, options)
}
