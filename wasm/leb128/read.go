// Package leb128 provides functions for reading and writing integers encoded in the Little Endian Base 128 format
// (https://en.wikipedia.org/wiki/LEB128). The readers accept only encodings that fit the requested width: an
// encoding that uses more bytes than the width requires or that sets bits outside of the width is rejected.
package leb128

import (
	"errors"
	"io"
)

// ErrTooLong is returned when an encoding uses more bytes than its width allows.
var ErrTooLong = errors.New("integer representation too long")

// ErrTooLarge is returned when the final byte of an encoding sets bits outside of its width.
var ErrTooLarge = errors.New("integer too large")

// maxBytes returns the maximum number of bytes in the encoding of an integer with the given bit width.
func maxBytes(width uint) int {
	return int((width + 6) / 7)
}

// byteReader adapts an io.Reader into a source of single bytes.
type byteReader struct {
	r   io.Reader
	buf [1]byte
}

func (b *byteReader) next(i int) (byte, error) {
	if br, ok := b.r.(io.ByteReader); ok {
		c, err := br.ReadByte()
		if err == io.EOF && i > 0 {
			err = io.ErrUnexpectedEOF
		}
		return c, err
	}
	if _, err := io.ReadFull(b.r, b.buf[:]); err != nil {
		if err == io.EOF && i > 0 {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}
	return b.buf[0], nil
}

// sliceReader is a source of single bytes backed by a byte slice.
type sliceReader struct {
	b []byte
}

func (s *sliceReader) next(i int) (byte, error) {
	if i >= len(s.b) {
		if i == 0 {
			return 0, io.EOF
		}
		return 0, io.ErrUnexpectedEOF
	}
	return s.b[i], nil
}

type source interface {
	next(i int) (byte, error)
}

// decodeUnsigned decodes an unsigned integer of the given width. It returns the decoded value and the number of
// bytes consumed.
func decodeUnsigned(src source, width uint) (uint64, int, error) {
	limit := maxBytes(width)

	var result uint64
	var shift uint
	for i := 0; ; i++ {
		b, err := src.next(i)
		if err != nil {
			return 0, i, err
		}

		if i == limit-1 {
			if b&0x80 != 0 {
				return 0, i + 1, ErrTooLong
			}
			remaining := width - shift
			if remaining < 7 && b>>remaining != 0 {
				return 0, i + 1, ErrTooLarge
			}
		}

		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, i + 1, nil
		}
		shift += 7
	}
}

// decodeSigned decodes a signed integer of the given width. It returns the decoded value and the number of
// bytes consumed.
func decodeSigned(src source, width uint) (int64, int, error) {
	limit := maxBytes(width)

	var result int64
	var shift uint
	for i := 0; ; i++ {
		b, err := src.next(i)
		if err != nil {
			return 0, i, err
		}

		if i == limit-1 {
			if b&0x80 != 0 {
				return 0, i + 1, ErrTooLong
			}

			// The bits at and above the sign bit of the width must all be equal.
			remaining := width - shift
			if remaining < 7 {
				upper := (b & 0x7f) >> (remaining - 1)
				if upper != 0 && upper != 0x7f>>(remaining-1) {
					return 0, i + 1, ErrTooLarge
				}
			}
		}

		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, i + 1, nil
		}
	}
}

// ReadVarUint32 reads a LEB128-encoded unsigned 32-bit integer from r.
func ReadVarUint32(r io.Reader) (uint32, error) {
	v, _, err := decodeUnsigned(&byteReader{r: r}, 32)
	return uint32(v), err
}

// ReadVarUint64 reads a LEB128-encoded unsigned 64-bit integer from r.
func ReadVarUint64(r io.Reader) (uint64, error) {
	v, _, err := decodeUnsigned(&byteReader{r: r}, 64)
	return v, err
}

// ReadVarint32 reads a LEB128-encoded signed 32-bit integer from r.
func ReadVarint32(r io.Reader) (int32, error) {
	v, _, err := decodeSigned(&byteReader{r: r}, 32)
	return int32(v), err
}

// ReadVarint33 reads a LEB128-encoded signed 33-bit integer from r. Block types are encoded using this width.
func ReadVarint33(r io.Reader) (int64, error) {
	v, _, err := decodeSigned(&byteReader{r: r}, 33)
	return v, err
}

// ReadVarint64 reads a LEB128-encoded signed 64-bit integer from r.
func ReadVarint64(r io.Reader) (int64, error) {
	v, _, err := decodeSigned(&byteReader{r: r}, 64)
	return v, err
}

// GetVarUint32 decodes a LEB128-encoded unsigned 32-bit integer from the start of b. It returns the value and the
// number of bytes read.
func GetVarUint32(b []byte) (uint32, int, error) {
	v, n, err := decodeUnsigned(&sliceReader{b: b}, 32)
	return uint32(v), n, err
}

// GetVarUint64 decodes a LEB128-encoded unsigned 64-bit integer from the start of b.
func GetVarUint64(b []byte) (uint64, int, error) {
	return decodeUnsigned(&sliceReader{b: b}, 64)
}

// GetVarint32 decodes a LEB128-encoded signed 32-bit integer from the start of b.
func GetVarint32(b []byte) (int32, int, error) {
	v, n, err := decodeSigned(&sliceReader{b: b}, 32)
	return int32(v), n, err
}

// GetVarint33 decodes a LEB128-encoded signed 33-bit integer from the start of b.
func GetVarint33(b []byte) (int64, int, error) {
	return decodeSigned(&sliceReader{b: b}, 33)
}

// GetVarint64 decodes a LEB128-encoded signed 64-bit integer from the start of b.
func GetVarint64(b []byte) (int64, int, error) {
	return decodeSigned(&sliceReader{b: b}, 64)
}
