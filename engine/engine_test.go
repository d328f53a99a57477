package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgavlin/polywarp/exec"
	"github.com/pgavlin/polywarp/wasm"
	"github.com/pgavlin/polywarp/wasm/code"
)

func TestI32Arithmetic(t *testing.T) {
	ops := []struct {
		name string
		op   code.Opcode
		eval func(a, b int32) int32
	}{
		{"add", code.OpI32Add, func(a, b int32) int32 { return a + b }},
		{"sub", code.OpI32Sub, func(a, b int32) int32 { return a - b }},
		{"mul", code.OpI32Mul, func(a, b int32) int32 { return a * b }},
	}

	b := newModuleBuilder(t)
	for _, op := range ops {
		b.function(op.name, sig(params(i32, i32), i32), nil, code.LocalGet(0), code.LocalGet(1), code.Op(op.op), code.End())
	}

	values := []int32{0, 1, -1, 2, 7, -12345, 65536, math.MaxInt32, math.MinInt32, 0x5555_5555}
	forEachOptions(t, func(t *testing.T, options Options) {
		inst := b.instantiate(t, options, nil)
		for _, op := range ops {
			for _, x := range values {
				for _, y := range values {
					assert.Equal(t, op.eval(x, y), call1(t, inst, op.name, x, y), "%v %v %v", op.name, x, y)
				}
			}
		}
	})
}

func TestMemoryGrow(t *testing.T) {
	b := newModuleBuilder(t)
	b.memory(1, 2)
	b.function("grow", sig(params(i32), i32), nil, code.LocalGet(0), code.MemoryGrow(), code.End())
	b.function("size", sig(nil, i32), nil, code.MemorySize(), code.End())
	b.function("store", sig(params(i32, i32)), nil, code.LocalGet(0), code.LocalGet(1), code.Mem(code.OpI32Store, 0, 2), code.End())
	b.function("load", sig(params(i32), i32), nil, code.LocalGet(0), code.Mem(code.OpI32Load, 0, 2), code.End())

	forEachOptions(t, func(t *testing.T, options Options) {
		inst := b.instantiate(t, options, nil)

		call(t, inst, "store", 100, 42)
		assert.Equal(t, int32(1), call1(t, inst, "grow", 1))
		assert.Equal(t, int32(2), call1(t, inst, "size"))
		assert.Equal(t, int32(-1), call1(t, inst, "grow", 1))
		assert.Equal(t, int32(2), call1(t, inst, "size"))
		assert.Equal(t, int32(42), call1(t, inst, "load", 100))

		call(t, inst, "store", 65536+4, 7)
		assert.Equal(t, int32(7), call1(t, inst, "load", 65536+4))
	})
}

func TestOutOfBoundsLoad(t *testing.T) {
	b := newModuleBuilder(t)
	b.memory(1, exec.NoMaximum)
	b.function("load", sig(params(i32), i32), nil, code.LocalGet(0), code.Mem(code.OpI32Load, 0, 2), code.End())
	b.function("loadOffset", sig(params(i32), i32), nil, code.LocalGet(0), code.Mem(code.OpI32Load, 65532, 2), code.End())

	forEachOptions(t, func(t *testing.T, options Options) {
		inst := b.instantiate(t, options, nil)

		assert.Equal(t, int32(0), call1(t, inst, "load", 65532))

		_, err := inst.Call("load", 65533)
		assert.Equal(t, exec.TrapOutOfBoundsMemoryAccess, err)

		_, err = inst.Call("load", -1)
		assert.Equal(t, exec.TrapOutOfBoundsMemoryAccess, err)

		assert.Equal(t, int32(0), call1(t, inst, "loadOffset", 0))
		_, err = inst.Call("loadOffset", 1)
		assert.Equal(t, exec.TrapOutOfBoundsMemoryAccess, err)
	})
}

func TestLoopWithConditionalBranch(t *testing.T) {
	b := newModuleBuilder(t)
	b.function("count", sig(params(i32), i32, i32), []wasm.LocalEntry{{Count: 2, Type: i32}},
		code.Loop(),
		// i++
		code.LocalGet(1), code.I32Const(1), code.Op(code.OpI32Add), code.LocalSet(1),
		// sum += i
		code.LocalGet(2), code.LocalGet(1), code.Op(code.OpI32Add), code.LocalSet(2),
		// if i < n { continue }
		code.LocalGet(1), code.LocalGet(0), code.Op(code.OpI32LtS),
		code.If(),
		code.Br(1),
		code.End(),
		code.End(),
		code.LocalGet(1), code.LocalGet(2),
		code.End())

	reference := func(n int32) (int32, int32) {
		var i, sum int32
		for {
			i++
			sum += i
			if i >= n {
				return i, sum
			}
		}
	}

	forEachOptions(t, func(t *testing.T, options Options) {
		inst := b.instantiate(t, options, nil)
		for _, n := range []int32{0, 1, 5, 100} {
			i, sum := reference(n)
			assert.Equal(t, []interface{}{i, sum}, call(t, inst, "count", n))
		}
	})
}

func TestBranchValues(t *testing.T) {
	b := newModuleBuilder(t)
	b.function("brIf", sig(params(i32), i32), nil,
		code.Block(code.ValueBlockType(i32)),
		code.I32Const(7),
		code.LocalGet(0),
		code.BrIf(0),
		code.Drop(),
		code.I32Const(9),
		code.End(),
		code.End())
	b.function("brTable", sig(params(i32), i32), nil,
		code.Block(code.ValueBlockType(i32)),
		code.Block(code.ValueBlockType(i32)),
		code.I32Const(1),
		code.LocalGet(0),
		code.BrTable(1, 0),
		code.End(),
		code.I32Const(10),
		code.Op(code.OpI32Add),
		code.End(),
		code.End())
	b.function("ifElse", sig(params(i32), i32), nil,
		code.LocalGet(0),
		code.If(code.ValueBlockType(i32)),
		code.I32Const(1),
		code.Else(),
		code.I32Const(2),
		code.End(),
		code.End())
	b.function("return", sig(params(i32), i32, i64), nil,
		code.Block(),
		code.LocalGet(0),
		code.I64Const(-3),
		code.Return(),
		code.End(),
		code.Unreachable(),
		code.End())

	forEachOptions(t, func(t *testing.T, options Options) {
		inst := b.instantiate(t, options, nil)

		assert.Equal(t, int32(7), call1(t, inst, "brIf", 1))
		assert.Equal(t, int32(9), call1(t, inst, "brIf", 0))

		assert.Equal(t, int32(11), call1(t, inst, "brTable", 0))
		assert.Equal(t, int32(1), call1(t, inst, "brTable", 1))
		assert.Equal(t, int32(1), call1(t, inst, "brTable", 100))

		assert.Equal(t, int32(1), call1(t, inst, "ifElse", 1))
		assert.Equal(t, int32(2), call1(t, inst, "ifElse", 0))

		assert.Equal(t, []interface{}{int32(5), int64(-3)}, call(t, inst, "return", 5))
	})
}

func TestDeepNesting(t *testing.T) {
	const depth = 300

	// Each branch from the innermost block leaves the block at nesting level depth-x, after which every enclosing
	// block's trailing increment runs.
	body := make([]code.Instruction, 0, 6*depth+4)
	for i := 0; i < depth; i++ {
		body = append(body, code.Block())
	}
	labels := make([]int, depth)
	for i := range labels {
		labels[i] = i
	}
	body = append(body, code.LocalGet(0), code.BrTable(depth-1, labels...))
	for i := 0; i < depth; i++ {
		body = append(body, code.End(), code.LocalGet(1), code.I32Const(1), code.Op(code.OpI32Add), code.LocalSet(1))
	}
	body = append(body, code.LocalGet(1), code.End())

	b := newModuleBuilder(t)
	b.function("nested", sig(params(i32), i32), []wasm.LocalEntry{{Count: 1, Type: i32}}, body...)

	expected := func(x int32) int32 {
		if x < 0 || x >= depth {
			x = depth - 1
		}
		return depth - x
	}

	cases := []struct {
		name     string
		options  Options
		dispatch bool
	}{
		{"default", Options{}, true},
		{"structured", Options{NestingThreshold: math.MaxInt32}, false},
		{"dispatch", Options{NestingThreshold: -1}, true},
		{"eager", Options{Eager: true}, true},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			def := b.definition(c.options)
			assert.Equal(t, c.dispatch, def.Stats()[0].Dispatch)

			inst, err := def.Instantiate("test", exec.Imports{})
			require.NoError(t, err)
			for _, x := range []int32{0, 1, 2, 43, 255, 256, 257, 298, 299, 300, 1000, -1} {
				assert.Equal(t, expected(x), call1(t, inst, "nested", x), "x = %v", x)
			}
		})
	}
}

func TestIndirectCalls(t *testing.T) {
	b := newModuleBuilder(t)
	b.table(3, 3)
	inc := b.function("", sig(params(i32), i32), nil, code.LocalGet(0), code.I32Const(1), code.Op(code.OpI32Add), code.End())
	b.m.Elements.Entries = []wasm.ElementSegment{
		{Mode: wasm.SegmentModeActive, Offset: wasm.I32Const(0), Type: funcref, Elems: []uint32{inc}},
	}
	b.function("callGood", sig(params(i32), i32), nil,
		code.I32Const(41), code.LocalGet(0), code.CallIndirect(b.typeIndex(sig(params(i32), i32)), 0), code.End())
	b.function("callBad", sig(params(i32), i32), nil,
		code.LocalGet(0), code.CallIndirect(b.typeIndex(sig(nil, i32)), 0), code.End())

	forEachOptions(t, func(t *testing.T, options Options) {
		inst := b.instantiate(t, options, nil)

		assert.Equal(t, int32(42), call1(t, inst, "callGood", 0))

		_, err := inst.Call("callBad", 0)
		assert.Equal(t, exec.TrapIndirectCallTypeMismatch, err)

		_, err = inst.Call("callGood", 1)
		assert.Equal(t, exec.TrapUninitializedElement, err)

		_, err = inst.Call("callGood", 3)
		assert.Equal(t, exec.TrapUndefinedElement, err)
	})
}

func TestCallStackExhausted(t *testing.T) {
	b := newModuleBuilder(t)
	b.function("recurse", sig(nil), nil, code.Call(0), code.End())
	b.function("ok", sig(nil, i32), nil, code.I32Const(1), code.End())

	inst := b.instantiate(t, Options{MaxCallDepth: 100}, nil)
	_, err := inst.Call("recurse")
	assert.Equal(t, exec.TrapCallStackExhausted, err)

	assert.Equal(t, int32(1), call1(t, inst, "ok"))
}

func TestRecursion(t *testing.T) {
	b := newModuleBuilder(t)
	b.function("fib", sig(params(i32), i32), nil,
		code.LocalGet(0), code.I32Const(2), code.Op(code.OpI32LtS),
		code.If(code.ValueBlockType(i32)),
		code.LocalGet(0),
		code.Else(),
		code.LocalGet(0), code.I32Const(1), code.Op(code.OpI32Sub), code.Call(0),
		code.LocalGet(0), code.I32Const(2), code.Op(code.OpI32Sub), code.Call(0),
		code.Op(code.OpI32Add),
		code.End(),
		code.End())

	forEachOptions(t, func(t *testing.T, options Options) {
		inst := b.instantiate(t, options, nil)
		assert.Equal(t, int32(55), call1(t, inst, "fib", 10))
		assert.Equal(t, int32(6765), call1(t, inst, "fib", 20))
	})
}

func TestTrapOrdering(t *testing.T) {
	b := newModuleBuilder(t)
	b.memory(1, 1)
	b.function("divThenStore", sig(params(i32), i32), nil,
		code.I32Const(1), code.LocalGet(0), code.Op(code.OpI32DivS),
		code.I32Const(0), code.I32Const(7), code.Mem(code.OpI32Store, 0, 2),
		code.End())
	b.function("storeThenTrap", sig(nil), nil,
		code.I32Const(4), code.I32Const(9), code.Mem(code.OpI32Store, 0, 2),
		code.Unreachable(),
		code.End())
	b.function("load", sig(params(i32), i32), nil, code.LocalGet(0), code.Mem(code.OpI32Load, 0, 2), code.End())

	forEachOptions(t, func(t *testing.T, options Options) {
		inst := b.instantiate(t, options, nil)

		_, err := inst.Call("divThenStore", 0)
		assert.Equal(t, exec.TrapIntegerDivideByZero, err)
		assert.Equal(t, int32(0), call1(t, inst, "load", 0))

		_, err = inst.Call("storeThenTrap")
		assert.Equal(t, exec.TrapUnreachable, err)
		assert.Equal(t, int32(9), call1(t, inst, "load", 4))

		// The instance remains usable after a trap.
		assert.Equal(t, int32(1), call1(t, inst, "divThenStore", 1))
		assert.Equal(t, int32(7), call1(t, inst, "load", 0))
	})
}

func TestLocalInterference(t *testing.T) {
	b := newModuleBuilder(t)
	b.function("f", sig(params(i32), i32), nil,
		code.LocalGet(0),
		code.LocalGet(0), code.I32Const(10), code.Op(code.OpI32Add), code.LocalSet(0),
		code.LocalGet(0),
		code.Op(code.OpI32Add),
		code.End())
	b.function("tee", sig(params(i32), i32), nil,
		code.LocalGet(0), code.I32Const(3), code.Op(code.OpI32Mul), code.LocalTee(0),
		code.LocalGet(0),
		code.Op(code.OpI32Sub),
		code.End())

	forEachOptions(t, func(t *testing.T, options Options) {
		inst := b.instantiate(t, options, nil)
		assert.Equal(t, int32(12), call1(t, inst, "f", 1))
		assert.Equal(t, int32(0), call1(t, inst, "tee", 5))
	})
}

func TestHostImports(t *testing.T) {
	b := newModuleBuilder(t)
	add := b.importFunction("env", "add", sig(params(i32, i32), i32))
	b.importEntry("env", "base", wasm.GlobalVarImport{Type: wasm.GlobalVar{Type: i32}})
	b.function("f", sig(params(i32), i32), nil, code.LocalGet(0), code.GlobalGet(0), code.Call(add), code.End())

	imports := exec.Imports{
		"env": {
			"add":  func(x, y int32) int32 { return x + y },
			"base": int32(10),
		},
	}
	forEachOptions(t, func(t *testing.T, options Options) {
		inst := b.instantiate(t, options, imports)
		assert.Equal(t, int32(15), call1(t, inst, "f", 5))
	})
}

func TestCrossInstanceCalls(t *testing.T) {
	lib := newModuleBuilder(t)
	lib.function("double", sig(params(i64), i64), nil, code.LocalGet(0), code.LocalGet(0), code.Op(code.OpI64Add), code.End())
	libInst := lib.instantiate(t, Options{}, nil)

	double, err := libInst.GetFunction("double")
	require.NoError(t, err)

	b := newModuleBuilder(t)
	f := b.importFunction("lib", "double", sig(params(i64), i64))
	b.function("quadruple", sig(params(i64), i64), nil, code.LocalGet(0), code.Call(f), code.Call(f), code.End())

	inst := b.instantiate(t, Options{}, exec.Imports{"lib": {"double": double}})
	assert.Equal(t, int64(-28), call1(t, inst, "quadruple", int64(-7)))
}

func TestLinkErrors(t *testing.T) {
	b := newModuleBuilder(t)
	b.importFunction("env", "add", sig(params(i32, i32), i32))
	b.importEntry("env", "mem", wasm.MemoryImport{Type: wasm.Memory{Limits: limits(2, exec.NoMaximum)}})
	def := b.definition(Options{})

	instantiate := func(imports exec.Imports) *exec.LinkError {
		_, err := def.Instantiate("test", imports)
		var linkErr *exec.LinkError
		require.True(t, errors.As(err, &linkErr), "expected a LinkError, got %v", err)
		return linkErr
	}

	err := instantiate(exec.Imports{})
	assert.Equal(t, "env", err.ModuleName)
	assert.Equal(t, "add", err.FieldName)
	assert.Equal(t, wasm.ExternalFunction, err.Kind)
	assert.ErrorIs(t, err, exec.ErrModuleNotFound)

	err = instantiate(exec.Imports{"env": {}})
	var notFound *exec.ExportNotFoundError
	assert.True(t, errors.As(err, &notFound))

	err = instantiate(exec.Imports{"env": {"add": func(x int32) int32 { return x }}})
	assert.ErrorIs(t, err, exec.ErrFunctionType)

	err = instantiate(exec.Imports{"env": {"add": exec.NewMemory(1, 1)}})
	var kindMismatch *exec.KindMismatchError
	assert.True(t, errors.As(err, &kindMismatch))

	add := func(x, y int32) int32 { return x + y }
	err = instantiate(exec.Imports{"env": {"add": add, "mem": exec.NewMemory(1, 4)}})
	assert.Equal(t, "mem", err.FieldName)
	assert.ErrorIs(t, err, exec.ErrMemoryType)

	_, err2 := def.Instantiate("test", exec.Imports{"env": {"add": add, "mem": exec.NewMemory(2, 4)}})
	assert.NoError(t, err2)
}

func TestSegmentsDoNotFit(t *testing.T) {
	b := newModuleBuilder(t)
	b.memory(1, 1)
	b.m.Data.Entries = []wasm.DataSegment{{Mode: wasm.SegmentModeActive, Offset: wasm.I32Const(65535), Data: []byte{1, 2}}}
	_, err := b.definition(Options{}).Instantiate("test", exec.Imports{})
	assert.ErrorIs(t, err, exec.ErrDataSegmentDoesNotFit)

	b = newModuleBuilder(t)
	b.table(1, 1)
	f := b.function("", sig(nil), nil, code.End())
	b.m.Elements.Entries = []wasm.ElementSegment{{Mode: wasm.SegmentModeActive, Offset: wasm.I32Const(1), Type: funcref, Elems: []uint32{f}}}
	_, err = b.definition(Options{}).Instantiate("test", exec.Imports{})
	assert.ErrorIs(t, err, exec.ErrElementSegmentDoesNotFit)
}

func TestPassiveSegments(t *testing.T) {
	b := newModuleBuilder(t)
	b.memory(1, 1)
	b.table(1, exec.NoMaximum)
	seven := b.function("", sig(nil, i32), nil, code.I32Const(7), code.End())

	b.m.Data.Entries = []wasm.DataSegment{{Flags: 1, Mode: wasm.SegmentModePassive, Data: []byte("hello")}}
	b.m.Elements.Entries = []wasm.ElementSegment{{Flags: 1, Mode: wasm.SegmentModePassive, Type: funcref, Elems: []uint32{seven}}}

	b.function("memoryInit", sig(params(i32)), nil, code.LocalGet(0), code.I32Const(0), code.I32Const(5), code.MemoryInit(0), code.End())
	b.function("dataDrop", sig(nil), nil, code.DataDrop(0), code.End())
	b.function("load8", sig(params(i32), i32), nil, code.LocalGet(0), code.Mem(code.OpI32Load8U, 0, 0), code.End())
	b.function("tableInit", sig(nil), nil, code.I32Const(0), code.I32Const(0), code.I32Const(1), code.TableInit(0, 0), code.End())
	b.function("tableGrow", sig(params(i32), i32), nil, code.RefNull(funcref), code.LocalGet(0), code.TableGrow(0), code.End())
	b.function("tableSize", sig(nil, i32), nil, code.TableSize(0), code.End())
	b.function("callIndirect", sig(params(i32), i32), nil, code.LocalGet(0), code.CallIndirect(b.typeIndex(sig(nil, i32)), 0), code.End())

	forEachOptions(t, func(t *testing.T, options Options) {
		inst := b.instantiate(t, options, nil)

		call(t, inst, "memoryInit", 10)
		assert.Equal(t, int32('h'), call1(t, inst, "load8", 10))
		assert.Equal(t, int32('o'), call1(t, inst, "load8", 14))

		call(t, inst, "dataDrop")
		_, err := inst.Call("memoryInit", 10)
		assert.Equal(t, exec.TrapOutOfBoundsMemoryAccess, err)

		_, err = inst.Call("callIndirect", 0)
		assert.Equal(t, exec.TrapUninitializedElement, err)
		call(t, inst, "tableInit")
		assert.Equal(t, int32(7), call1(t, inst, "callIndirect", 0))

		assert.Equal(t, int32(1), call1(t, inst, "tableGrow", 2))
		assert.Equal(t, int32(3), call1(t, inst, "tableSize"))
	})
}

func TestGlobals(t *testing.T) {
	b := newModuleBuilder(t)
	counter := b.global("counter", wasm.GlobalVar{Type: i32, Mutable: true}, wasm.I32Const(5))
	b.global("limit", wasm.GlobalVar{Type: i64}, wasm.I64Const(100))
	b.function("inc", sig(nil, i32), nil,
		code.GlobalGet(counter), code.I32Const(1), code.Op(code.OpI32Add), code.GlobalSet(counter),
		code.GlobalGet(counter),
		code.End())

	inst := b.instantiate(t, Options{}, nil)
	assert.Equal(t, int32(6), call1(t, inst, "inc"))

	g, err := inst.GetGlobal("counter")
	require.NoError(t, err)
	require.NoError(t, g.SetValue(int64(100)))
	assert.Equal(t, int32(101), call1(t, inst, "inc"))

	limit, err := inst.GetGlobal("limit")
	require.NoError(t, err)
	assert.Equal(t, int64(100), limit.GetValue())
	assert.ErrorIs(t, limit.SetValue(1), exec.ErrImmutableGlobal)

	_, err = inst.GetFunction("limit")
	var kindMismatch *exec.KindMismatchError
	assert.True(t, errors.As(err, &kindMismatch))

	_, err = inst.GetMemory("missing")
	var notFound *exec.ExportNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestGlobalForwardReference(t *testing.T) {
	b := newModuleBuilder(t)
	b.global("early", wasm.GlobalVar{Type: i32}, wasm.GlobalGet(1))
	b.global("late", wasm.GlobalVar{Type: i32}, wasm.I32Const(7))

	_, err := b.definition(Options{}).Instantiate("test", exec.Imports{})
	var linkErr *exec.LinkError
	require.True(t, errors.As(err, &linkErr), "expected a LinkError, got %v", err)
	var index exec.InvalidGlobalIndexError
	assert.True(t, errors.As(err, &index))
	assert.Equal(t, exec.InvalidGlobalIndexError(1), index)
}

func TestOversizedTable(t *testing.T) {
	b := newModuleBuilder(t)
	b.table(1<<30, exec.NoMaximum)

	_, err := b.definition(Options{}).Instantiate("test", exec.Imports{})
	var linkErr *exec.LinkError
	require.True(t, errors.As(err, &linkErr), "expected a LinkError, got %v", err)
	assert.ErrorIs(t, err, exec.ErrTableTooLarge)
}

func TestCallUnsignedArguments(t *testing.T) {
	b := newModuleBuilder(t)
	b.function("idF64", sig(params(f64), f64), nil, code.LocalGet(0), code.End())
	b.function("idF32", sig(params(f32), f32), nil, code.LocalGet(0), code.End())
	inst := b.instantiate(t, Options{}, nil)

	assert.Equal(t, 9223372036854775808.0, call1(t, inst, "idF64", uint64(1<<63)))
	assert.Equal(t, 18446744073709551615.0, call1(t, inst, "idF64", uint64(math.MaxUint64)))
	assert.Equal(t, float32(9223372036854775808.0), call1(t, inst, "idF32", uint64(1<<63)))
}

func TestThreadDepthAfterTrap(t *testing.T) {
	b := newModuleBuilder(t)
	trap := b.function("trap", sig(nil), nil, code.Unreachable(), code.End())
	b.function("outer", sig(nil), nil, code.Call(trap), code.End())
	inst := b.instantiate(t, Options{}, nil)

	outer, err := inst.GetFunction("outer")
	require.NoError(t, err)

	thread := exec.NewThread(4)
	for i := 0; i < 8; i++ {
		err := func() (err error) {
			defer func() { err = exec.Recover(recover(), err) }()
			outer.Call(&thread)
			return nil
		}()
		assert.Equal(t, exec.TrapUnreachable, err)
		assert.Equal(t, uint(0), thread.Depth())
	}
}

func TestStartFunction(t *testing.T) {
	b := newModuleBuilder(t)
	b.memory(1, 1)
	start := b.function("", sig(nil), nil, code.I32Const(0), code.I32Const(3), code.Mem(code.OpI32Store, 0, 2), code.End())
	b.function("load", sig(nil, i32), nil, code.I32Const(0), code.Mem(code.OpI32Load, 0, 2), code.End())
	b.m.Start = &wasm.SectionStartFunction{Index: start}

	inst := b.instantiate(t, Options{}, nil)
	assert.Equal(t, int32(3), call1(t, inst, "load"))

	b = newModuleBuilder(t)
	start = b.function("", sig(nil), nil, code.Unreachable(), code.End())
	b.m.Start = &wasm.SectionStartFunction{Index: start}
	_, err := b.definition(Options{}).Instantiate("test", exec.Imports{})
	assert.Equal(t, exec.TrapUnreachable, err)
}

func TestReferences(t *testing.T) {
	b := newModuleBuilder(t)
	b.table(1, 1)
	target := b.function("", sig(nil, i32), nil, code.I32Const(3), code.End())
	b.m.Elements.Entries = []wasm.ElementSegment{{Flags: 3, Mode: wasm.SegmentModeDeclarative, Type: funcref, Elems: []uint32{target}}}
	b.function("isNull", sig(nil, i32), nil, code.RefNull(funcref), code.RefIsNull(), code.End())
	b.function("setAndCall", sig(nil, i32), nil,
		code.I32Const(0), code.RefFunc(target), code.TableSet(0),
		code.I32Const(0), code.TableGet(0), code.RefIsNull(),
		code.I32Const(0), code.CallIndirect(b.typeIndex(sig(nil, i32)), 0),
		code.Op(code.OpI32Add),
		code.End())

	forEachOptions(t, func(t *testing.T, options Options) {
		inst := b.instantiate(t, options, nil)
		assert.Equal(t, int32(1), call1(t, inst, "isNull"))
		assert.Equal(t, int32(3), call1(t, inst, "setAndCall"))
	})
}

func TestCallArguments(t *testing.T) {
	b := newModuleBuilder(t)
	b.function("f", sig(params(i32), i32), nil, code.LocalGet(0), code.End())
	inst := b.instantiate(t, Options{}, nil)

	_, err := inst.Call("f")
	assert.Error(t, err)

	_, err = inst.Call("f", "hello")
	assert.Error(t, err)

	assert.Equal(t, int32(-1), call1(t, inst, "f", uint32(math.MaxUint32)))
}

func TestCompileError(t *testing.T) {
	b := newModuleBuilder(t)
	b.function("f", sig(nil, i32), nil, code.I64Const(1), code.End())

	_, err := NewModuleDefinition(b.m, Options{})
	var compileErr *wasm.CompileError
	require.True(t, errors.As(err, &compileErr), "expected a CompileError, got %v", err)
	assert.Equal(t, wasm.SectionIDCode, compileErr.Section)
	assert.Equal(t, 0, compileErr.Function)
}

func TestAllocate(t *testing.T) {
	b := newModuleBuilder(t)
	b.function("f", sig(nil, i32), nil, code.I32Const(1), code.End())
	def := b.definition(Options{})

	allocated, err := def.Allocate("m")
	require.NoError(t, err)
	assert.Equal(t, "m", allocated.Name())

	module, err := allocated.Instantiate(exec.Imports{})
	require.NoError(t, err)

	_, err = allocated.Instantiate(exec.Imports{})
	assert.ErrorIs(t, err, ErrAlreadyInstantiated)

	f, err := module.GetFunction("f")
	require.NoError(t, err)
	thread := exec.NewThread(0)
	assert.Equal(t, []interface{}{int32(1)}, f.Call(&thread))
}
