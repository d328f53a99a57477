// Package readpos provides an io.Reader that tracks its read position.
package readpos

import "io"

// ReadPos implements io.Reader and io.ByteReader, and stores the current number of bytes read from the underlying
// reader.
type ReadPos struct {
	R      io.Reader
	CurPos int64

	buf [1]byte
}

// Read implements the io.Reader interface.
func (r *ReadPos) Read(p []byte) (int, error) {
	n, err := r.R.Read(p)
	r.CurPos += int64(n)
	return n, err
}

// ReadByte implements the io.ByteReader interface.
func (r *ReadPos) ReadByte() (byte, error) {
	if br, ok := r.R.(io.ByteReader); ok {
		b, err := br.ReadByte()
		if err == nil {
			r.CurPos++
		}
		return b, err
	}
	if _, err := io.ReadFull(r.R, r.buf[:]); err != nil {
		return 0, err
	}
	r.CurPos++
	return r.buf[0], nil
}
