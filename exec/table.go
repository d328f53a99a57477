package exec

import (
	"errors"
	"sync"

	"github.com/pgavlin/polywarp/wasm"
)

// A Reference is the value of a funcref or externref. A nil Reference is the null reference, a funcref is a
// Function, and an externref is any host value.
type Reference interface{}

// Table is a WASM table. Like memories, tables may be shared between instances by importing them.
type Table struct {
	mu       sync.RWMutex
	typ      wasm.ValueType
	min, max uint32
	entries  []Reference
}

// MaxTableLength is the largest number of elements a table may hold. Tables are allocated eagerly, so a
// table that would be larger is rejected at instantiation and cannot grow past this length.
const MaxTableLength = 10_000_000

// ErrTableTooLarge is returned when a table's initial length exceeds MaxTableLength.
var ErrTableTooLarge = errors.New("table exceeds the maximum table length")

// NewTable creates a new WASM table of the given reference type. All of its elements are null.
func NewTable(elementType wasm.ValueType, min, max uint32) *Table {
	return &Table{typ: elementType, min: min, max: max, entries: make([]Reference, min)}
}

// Type returns the table's type.
func (t *Table) Type() wasm.Table {
	return wasm.Table{ElementType: t.typ, Limits: t.Limits()}
}

// Limits returns the current length and maximum length of the table in elements.
func (t *Table) Limits() wasm.ResizableLimits {
	lim := wasm.ResizableLimits{Initial: t.Len()}
	if t.max != NoMaximum {
		lim.Flags, lim.Maximum = 1, t.max
	}
	return lim
}

// Len returns the table's current length.
func (t *Table) Len() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return uint32(len(t.entries))
}

// Get returns the element at index i.
func (t *Table) Get(i uint32) Reference {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if uint64(i) >= uint64(len(t.entries)) {
		panic(TrapOutOfBoundsTableAccess)
	}
	return t.entries[i]
}

// Set replaces the element at index i.
func (t *Table) Set(i uint32, v Reference) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if uint64(i) >= uint64(len(t.entries)) {
		panic(TrapOutOfBoundsTableAccess)
	}
	t.entries[i] = v
}

// Grow appends n copies of init to the table. It returns the old length of the table, or -1 if the new length would
// exceed the table's maximum.
func (t *Table) Grow(n uint32, init Reference) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	currentLen := uint64(len(t.entries))
	newLen := currentLen + uint64(n)
	if newLen > uint64(t.max) || newLen > MaxTableLength {
		return -1
	}
	entries := make([]Reference, int(newLen))
	copy(entries, t.entries)
	for i := currentLen; i < newLen; i++ {
		entries[i] = init
	}
	t.entries = entries
	return int32(currentLen)
}

// Fill sets n elements starting at dst to v.
func (t *Table) Fill(dst uint32, v Reference, n uint32) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !inBounds(dst, n, len(t.entries)) {
		panic(TrapOutOfBoundsTableAccess)
	}
	entries := t.entries[uint64(dst) : uint64(dst)+uint64(n)]
	for i := range entries {
		entries[i] = v
	}
}

// Init copies n references starting at src in elements to dst.
func (t *Table) Init(dst uint32, elements []Reference, src, n uint32) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !inBounds(src, n, len(elements)) || !inBounds(dst, n, len(t.entries)) {
		panic(TrapOutOfBoundsTableAccess)
	}
	copy(t.entries[uint64(dst):uint64(dst)+uint64(n)], elements[uint64(src):uint64(src)+uint64(n)])
}

// Copy copies n elements starting at srcOffset in src to dst. The source and destination may be the same table, in
// which case the ranges may overlap.
func (t *Table) Copy(dst uint32, src *Table, srcOffset, n uint32) {
	if src == t {
		t.mu.RLock()
		defer t.mu.RUnlock()

		if !inBounds(srcOffset, n, len(t.entries)) || !inBounds(dst, n, len(t.entries)) {
			panic(TrapOutOfBoundsTableAccess)
		}
		copy(t.entries[uint64(dst):uint64(dst)+uint64(n)], t.entries[uint64(srcOffset):uint64(srcOffset)+uint64(n)])
		return
	}

	// Tables only grow, so a range that is in bounds stays in bounds once the source lock is released.
	elements := src.slice(srcOffset, n)
	t.Init(dst, elements, 0, n)
}

func (t *Table) slice(offset, n uint32) []Reference {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !inBounds(offset, n, len(t.entries)) {
		panic(TrapOutOfBoundsTableAccess)
	}
	return append([]Reference(nil), t.entries[uint64(offset):uint64(offset)+uint64(n)]...)
}
