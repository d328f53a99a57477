package exec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgavlin/polywarp/wasm"
)

type testHost struct {
	Memory *Memory
	Table  *Table
	Answer *Global

	calls int
}

func (h *testHost) Add(x, y int32) int32 {
	h.calls++
	return x + y
}

func (h *testHost) Widen(x uint32) (int64, float64) {
	return int64(x), float64(x) / 2
}

func (h *testHost) IsNull(r Reference) int32 {
	if r == nil {
		return 1
	}
	return 0
}

func TestHostModule(t *testing.T) {
	host := &testHost{
		Memory: NewMemory(1, 1),
		Table:  NewTable(wasm.ValueTypeFuncref, 1, NoMaximum),
		Answer: NewGlobalI32(true, 42),
	}
	m, err := NewHostModule("host", host)
	require.NoError(t, err)
	assert.Equal(t, "host", m.Name())

	add, err := m.GetFunction("add")
	require.NoError(t, err)
	assert.Equal(t, wasm.FunctionSig{
		Form:        wasm.TypeFunc,
		ParamTypes:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
		ReturnTypes: []wasm.ValueType{wasm.ValueTypeI32},
	}, add.GetSignature())

	thread := NewThread(0)
	assert.Equal(t, []interface{}{int32(5)}, add.Call(&thread, int32(2), int32(3)))
	assert.Equal(t, 1, host.calls)

	widen, err := m.GetFunction("widen")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(0xffffffff), float64(0xffffffff) / 2}, widen.Call(&thread, int32(-1)))

	isNull, err := m.GetFunction("isNull")
	require.NoError(t, err)
	assert.Equal(t, []wasm.ValueType{wasm.ValueTypeExternref}, isNull.GetSignature().ParamTypes)
	assert.Equal(t, []interface{}{int32(1)}, isNull.Call(&thread, nil))
	assert.Equal(t, []interface{}{int32(0)}, isNull.Call(&thread, "x"))

	mem, err := m.GetMemory("memory")
	require.NoError(t, err)
	assert.Same(t, host.Memory, mem)

	table, err := m.GetTable("table")
	require.NoError(t, err)
	assert.Same(t, host.Table, table)

	g, err := m.GetGlobal("answer")
	require.NoError(t, err)
	assert.Equal(t, int32(42), g.GetI32())

	_, err = m.GetMemory("add")
	var kindErr *KindMismatchError
	require.True(t, errors.As(err, &kindErr))
	assert.Equal(t, wasm.ExternalMemory, kindErr.Import)
	assert.Equal(t, wasm.ExternalFunction, kindErr.Export)

	_, err = m.GetFunction("missing")
	var notFound *ExportNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

type badHost struct{}

func (badHost) Concat(a, b string) string {
	return a + b
}

func TestHostFunctionUnsupportedTypes(t *testing.T) {
	_, err := NewHostModule("bad", badHost{})
	assert.Error(t, err)

	_, err = NewHostFunction(func(...int32) {})
	assert.Error(t, err)

	_, err = NewHostFunction(42)
	assert.Error(t, err)
}

func TestHostModuleDefinition(t *testing.T) {
	def := NewHostModuleDefinition(func() (*testHost, error) {
		return &testHost{Answer: NewGlobalI32(true, 1)}, nil
	})

	store := NewStore(MapResolver{"host": def})
	m, err := store.InstantiateModule("host")
	require.NoError(t, err)

	again, err := store.InstantiateModule("host")
	require.NoError(t, err)
	assert.Same(t, m, again)

	_, err = m.GetMemory("memory")
	assert.Error(t, err)

	failing := NewHostModuleDefinition(func() (*testHost, error) {
		return nil, errors.New("boom")
	})
	_, err = NewStore(MapResolver{"f": failing}).InstantiateModule("f")
	assert.EqualError(t, err, "boom")

	_, err = store.InstantiateModule("missing")
	assert.Equal(t, ErrModuleNotFound, err)

	assert.Panics(t, func() { NewHostModuleDefinition(func() int { return 0 }) })
}
