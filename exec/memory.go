package exec

import (
	"encoding/binary"
	"io"
	"math"
	"sync"

	"github.com/pgavlin/polywarp/wasm"
)

// NoMaximum is passed to NewMemory and NewTable to create a memory or table whose size is bounded only by the
// implementation limit.
const NoMaximum = math.MaxUint32

// Memory is a WASM linear memory. A memory may be shared between instances by importing it; accesses and growth are
// synchronized so that growth is exclusive with respect to every access.
type Memory struct {
	mu       sync.RWMutex
	min, max uint32
	bytes    []byte
}

// NewMemory creates a new linear memory with the given limits in pages.
func NewMemory(min, max uint32) *Memory {
	return &Memory{
		min:   min,
		max:   max,
		bytes: make([]byte, int(min)*wasm.PageSize),
	}
}

// Limits returns the memory's current size and maximum size in pages.
func (m *Memory) Limits() wasm.ResizableLimits {
	lim := wasm.ResizableLimits{Initial: m.Size()}
	if m.max != NoMaximum {
		lim.Flags, lim.Maximum = 1, m.max
	}
	return lim
}

// Size returns the current size of the memory in pages.
func (m *Memory) Size() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return uint32(len(m.bytes) / wasm.PageSize)
}

// Grow grows the memory by the given number of pages. It returns the old size of the memory in pages, or -1 if
// growing the memory by the requested amount would exceed the memory's maximum size. The contents of the memory are
// preserved.
func (m *Memory) Grow(pages uint32) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	currentSize := uint64(len(m.bytes) / wasm.PageSize)
	newSize := currentSize + uint64(pages)
	if newSize > uint64(m.max) || newSize > wasm.MaxPages {
		return -1
	}
	if pages != 0 {
		newBytes := make([]byte, int(newSize)*wasm.PageSize)
		copy(newBytes, m.bytes)
		m.bytes = newBytes
	}
	return int32(currentSize)
}

// Bytes returns the memory's bytes. The returned slice is invalidated by Grow.
func (m *Memory) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.bytes
}

// address returns the effective address of an access of the given size. The address is computed with 64-bit
// arithmetic, so a base and offset that wrap in 32 bits are out of bounds.
func (m *Memory) address(base, offset uint32, size uint64) uint64 {
	ea := uint64(base) + uint64(offset)
	if ea+size > uint64(len(m.bytes)) {
		panic(TrapOutOfBoundsMemoryAccess)
	}
	return ea
}

// Uint8 returns the byte stored at the given address.
func (m *Memory) Uint8(base, offset uint32) uint8 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.bytes[m.address(base, offset, 1)]
}

// PutUint8 writes the given byte to the given address.
func (m *Memory) PutUint8(v uint8, base, offset uint32) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	m.bytes[m.address(base, offset, 1)] = v
}

// Uint16 returns the uint16 stored at the given address.
func (m *Memory) Uint16(base, offset uint32) uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return binary.LittleEndian.Uint16(m.bytes[m.address(base, offset, 2):])
}

// PutUint16 writes the given uint16 to the given address.
func (m *Memory) PutUint16(v uint16, base, offset uint32) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	binary.LittleEndian.PutUint16(m.bytes[m.address(base, offset, 2):], v)
}

// Uint32 returns the uint32 stored at the given address.
func (m *Memory) Uint32(base, offset uint32) uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return binary.LittleEndian.Uint32(m.bytes[m.address(base, offset, 4):])
}

// PutUint32 writes the given uint32 to the given address.
func (m *Memory) PutUint32(v uint32, base, offset uint32) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	binary.LittleEndian.PutUint32(m.bytes[m.address(base, offset, 4):], v)
}

// Uint64 returns the uint64 stored at the given address.
func (m *Memory) Uint64(base, offset uint32) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return binary.LittleEndian.Uint64(m.bytes[m.address(base, offset, 8):])
}

// PutUint64 writes the given uint64 to the given address.
func (m *Memory) PutUint64(v uint64, base, offset uint32) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	binary.LittleEndian.PutUint64(m.bytes[m.address(base, offset, 8):], v)
}

// Float32 returns the float32 stored at the given address.
func (m *Memory) Float32(base, offset uint32) float32 {
	return math.Float32frombits(m.Uint32(base, offset))
}

// PutFloat32 writes the given float32 to the given address.
func (m *Memory) PutFloat32(v float32, base, offset uint32) {
	m.PutUint32(math.Float32bits(v), base, offset)
}

// Float64 returns the float64 stored at the given address.
func (m *Memory) Float64(base, offset uint32) float64 {
	return math.Float64frombits(m.Uint64(base, offset))
}

// PutFloat64 writes the given float64 to the given address.
func (m *Memory) PutFloat64(v float64, base, offset uint32) {
	m.PutUint64(math.Float64bits(v), base, offset)
}

func inBounds(start, n uint32, length int) bool {
	return uint64(start)+uint64(n) <= uint64(length)
}

// Copy copies n bytes from src to dst. The ranges may overlap.
func (m *Memory) Copy(dst, src, n uint32) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !inBounds(src, n, len(m.bytes)) || !inBounds(dst, n, len(m.bytes)) {
		panic(TrapOutOfBoundsMemoryAccess)
	}
	d, s, l := uint64(dst), uint64(src), uint64(n)
	copy(m.bytes[d:d+l], m.bytes[s:s+l])
}

// Fill sets n bytes starting at dst to v.
func (m *Memory) Fill(dst uint32, v byte, n uint32) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !inBounds(dst, n, len(m.bytes)) {
		panic(TrapOutOfBoundsMemoryAccess)
	}
	b := m.bytes[uint64(dst) : uint64(dst)+uint64(n)]
	for i := range b {
		b[i] = v
	}
}

// Init copies n bytes starting at src in segment to dst.
func (m *Memory) Init(dst uint32, segment []byte, src, n uint32) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !inBounds(src, n, len(segment)) || !inBounds(dst, n, len(m.bytes)) {
		panic(TrapOutOfBoundsMemoryAccess)
	}
	d, s, l := uint64(dst), uint64(src), uint64(n)
	copy(m.bytes[d:d+l], segment[s:s+l])
}

// ReadAt implements io.ReaderAt.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if off < 0 || off >= int64(len(m.bytes)) {
		return 0, io.EOF
	}
	n := copy(p, m.bytes[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt.
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if off < 0 || off+int64(len(p)) > int64(len(m.bytes)) {
		return 0, TrapOutOfBoundsMemoryAccess
	}
	return copy(m.bytes[off:], p), nil
}
