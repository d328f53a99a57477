package exec

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pgavlin/polywarp/wasm"
)

func TestMemoryGrow(t *testing.T) {
	m := NewMemory(1, 2)
	m.PutUint32(0xdeadbeef, 16, 0)

	assert.Equal(t, int32(1), m.Grow(1))
	assert.Equal(t, uint32(2), m.Size())
	assert.Equal(t, uint32(0xdeadbeef), m.Uint32(16, 0))

	assert.Equal(t, int32(-1), m.Grow(1))
	assert.Equal(t, uint32(2), m.Size())
	assert.Equal(t, uint32(0xdeadbeef), m.Uint32(16, 0))

	assert.Equal(t, int32(2), m.Grow(0))
}

func TestMemoryGrowUnbounded(t *testing.T) {
	m := NewMemory(0, NoMaximum)
	assert.Equal(t, int32(0), m.Grow(1))
	assert.Equal(t, int32(-1), m.Grow(wasm.MaxPages))
	assert.Equal(t, int32(-1), m.Grow(0xffffffff))

	lim := m.Limits()
	assert.False(t, lim.HasMaximum())
	assert.Equal(t, uint32(1), lim.Initial)
}

func TestMemoryBounds(t *testing.T) {
	m := NewMemory(1, 1)

	assert.Equal(t, Trap(""), trapOf(func() { m.Uint32(65532, 0) }))
	assert.Equal(t, TrapOutOfBoundsMemoryAccess, trapOf(func() { m.Uint32(65533, 0) }))
	assert.Equal(t, TrapOutOfBoundsMemoryAccess, trapOf(func() { m.Uint32(0, 65533) }))
	assert.Equal(t, TrapOutOfBoundsMemoryAccess, trapOf(func() { m.Uint8(0xffffffff, 1) }))
	assert.Equal(t, TrapOutOfBoundsMemoryAccess, trapOf(func() { m.PutUint64(0, 65529, 0) }))
	assert.Equal(t, Trap(""), trapOf(func() { m.PutUint64(0, 65528, 0) }))
	assert.Equal(t, TrapOutOfBoundsMemoryAccess, trapOf(func() { m.Uint16(0xfffffffe, 0xfffffffe) }))
}

func TestMemoryAccessors(t *testing.T) {
	m := NewMemory(1, 1)

	m.PutUint64(0x0102030405060708, 0, 8)
	assert.Equal(t, byte(0x08), m.Bytes()[8])
	assert.Equal(t, uint8(0x07), m.Uint8(9, 0))
	assert.Equal(t, uint16(0x0506), m.Uint16(8, 2))
	assert.Equal(t, uint32(0x01020304), m.Uint32(12, 0))

	m.PutFloat32(1.5, 32, 0)
	assert.Equal(t, float32(1.5), m.Float32(32, 0))
	m.PutFloat64(-2.25, 40, 0)
	assert.Equal(t, -2.25, m.Float64(40, 0))
	m.PutUint16(0xbeef, 48, 0)
	m.PutUint8(0xff, 50, 0)
	assert.Equal(t, uint32(0x00ffbeef), m.Uint32(48, 0))
}

func TestMemoryBulk(t *testing.T) {
	m := NewMemory(1, 1)
	copy(m.Bytes(), []byte{1, 2, 3, 4, 5, 6, 7, 8})

	// Overlapping copies behave like memmove in both directions.
	m.Copy(2, 0, 4)
	assert.Equal(t, []byte{1, 2, 1, 2, 3, 4, 7, 8}, m.Bytes()[:8])
	m.Copy(0, 2, 4)
	assert.Equal(t, []byte{1, 2, 3, 4, 3, 4, 7, 8}, m.Bytes()[:8])

	m.Fill(1, 0xaa, 3)
	assert.Equal(t, []byte{1, 0xaa, 0xaa, 0xaa, 3, 4, 7, 8}, m.Bytes()[:8])

	m.Init(4, []byte{9, 10, 11, 12}, 1, 2)
	assert.Equal(t, []byte{1, 0xaa, 0xaa, 0xaa, 10, 11, 7, 8}, m.Bytes()[:8])

	// Zero-length operations at the end of memory are in bounds.
	assert.Equal(t, Trap(""), trapOf(func() { m.Copy(65536, 65536, 0) }))
	assert.Equal(t, Trap(""), trapOf(func() { m.Fill(65536, 0, 0) }))
}

func TestMemoryBulkBoundsCheckedBeforeWriting(t *testing.T) {
	m := NewMemory(1, 1)
	copy(m.Bytes(), []byte{1, 2, 3, 4})

	assert.Equal(t, TrapOutOfBoundsMemoryAccess, trapOf(func() { m.Copy(0, 65535, 2) }))
	assert.Equal(t, TrapOutOfBoundsMemoryAccess, trapOf(func() { m.Copy(65535, 0, 2) }))
	assert.Equal(t, TrapOutOfBoundsMemoryAccess, trapOf(func() { m.Fill(65535, 0xff, 2) }))
	assert.Equal(t, TrapOutOfBoundsMemoryAccess, trapOf(func() { m.Init(0, []byte{9, 9}, 1, 2) }))
	assert.Equal(t, TrapOutOfBoundsMemoryAccess, trapOf(func() { m.Init(65535, []byte{9, 9}, 0, 2) }))

	assert.Equal(t, []byte{1, 2, 3, 4}, m.Bytes()[:4])
	assert.Equal(t, byte(0), m.Bytes()[65535])
}

func TestMemoryReadWriteAt(t *testing.T) {
	m := NewMemory(1, 1)

	n, err := m.WriteAt([]byte("hello"), 100)
	assert.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = m.ReadAt(buf, 100)
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	n, err = m.ReadAt(buf, 65534)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 2, n)

	_, err = m.WriteAt([]byte("hello"), 65534)
	assert.Equal(t, TrapOutOfBoundsMemoryAccess, err)
}
