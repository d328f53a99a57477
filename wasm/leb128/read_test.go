package leb128

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var casesUint = []struct {
	v uint32
	b []byte
}{
	{v: 8, b: []byte{0x08}},
	{v: 127, b: []byte{0x7f}},
	{v: 128, b: []byte{0x80, 0x01}},
	{v: 624485, b: []byte{0xe5, 0x8e, 0x26}},
	{v: 0xffffffff, b: []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
}

var casesInt = []struct {
	v int64
	b []byte
}{
	{v: -165675008, b: []byte{0x80, 0x80, 0x80, 0xb1, 0x7f}},
	{v: -624485, b: []byte{0x9b, 0xf1, 0x59}},
	{v: -1, b: []byte{0x7f}},
	{v: -64, b: []byte{0x40}},
	{v: 63, b: []byte{0x3f}},
	{v: 64, b: []byte{0xc0, 0x00}},
	{v: 0x7fffffff, b: []byte{0xff, 0xff, 0xff, 0xff, 0x07}},
}

func TestReadVarUint32(t *testing.T) {
	for _, c := range casesUint {
		t.Run(fmt.Sprint(c.v), func(t *testing.T) {
			n, err := ReadVarUint32(bytes.NewReader(c.b))
			require.NoError(t, err)
			assert.Equal(t, c.v, n)

			n, read, err := GetVarUint32(c.b)
			require.NoError(t, err)
			assert.Equal(t, c.v, n)
			assert.Equal(t, len(c.b), read)
		})
	}
}

func TestReadVarint64(t *testing.T) {
	for _, c := range casesInt {
		t.Run(fmt.Sprint(c.v), func(t *testing.T) {
			n, err := ReadVarint64(bytes.NewReader(c.b))
			require.NoError(t, err)
			assert.Equal(t, c.v, n)

			n, read, err := GetVarint64(c.b)
			require.NoError(t, err)
			assert.Equal(t, c.v, n)
			assert.Equal(t, len(c.b), read)
		})
	}
}

func TestMalformedUint32(t *testing.T) {
	cases := []struct {
		b   []byte
		err error
	}{
		{b: []byte{0x83, 0x80, 0x80, 0x80, 0x80, 0x00}, err: ErrTooLong},
		{b: []byte{0x82, 0x80, 0x80, 0x80, 0x70}, err: ErrTooLarge},
		{b: []byte{0xff, 0xff, 0xff, 0xff, 0x1f}, err: ErrTooLarge},
		{b: []byte{0x80, 0x80}, err: io.ErrUnexpectedEOF},
		{b: []byte{}, err: io.EOF},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("%x", c.b), func(t *testing.T) {
			_, err := ReadVarUint32(bytes.NewReader(c.b))
			assert.Equal(t, c.err, err)

			_, _, err = GetVarUint32(c.b)
			assert.Equal(t, c.err, err)
		})
	}
}

func TestMalformedInt32(t *testing.T) {
	cases := []struct {
		b   []byte
		err error
	}{
		{b: []byte{0xff, 0xff, 0xff, 0xff, 0x7f}, err: nil},
		{b: []byte{0x80, 0x80, 0x80, 0x80, 0x0f}, err: ErrTooLarge},
		{b: []byte{0xff, 0xff, 0xff, 0xff, 0x4f}, err: ErrTooLarge},
		{b: []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x00}, err: ErrTooLong},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("%x", c.b), func(t *testing.T) {
			_, err := ReadVarint32(bytes.NewReader(c.b))
			assert.Equal(t, c.err, err)
		})
	}

	v, err := ReadVarint32(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0x7f}))
	require.NoError(t, err)
	assert.Equal(t, int32(-1), v)
}

func TestMalformedInt64(t *testing.T) {
	_, err := ReadVarint64(bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01}))
	assert.Equal(t, ErrTooLarge, err)

	v, err := ReadVarint64(bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x7f}))
	require.NoError(t, err)
	assert.Equal(t, int64(-1)<<63, v)

	_, err = ReadVarint64(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}))
	assert.Equal(t, ErrTooLong, err)
}
