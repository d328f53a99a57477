package engine

import (
	"fmt"

	"github.com/pgavlin/polywarp/exec"
	"github.com/pgavlin/polywarp/wasm"
)

// A frame holds the state of a single activation of a compiled function. Locals occupy the first slots; the
// function's temps follow. Reference-typed slots live in refs at the same index.
type frame struct {
	inst   *Instance
	mem    *exec.Memory
	thread *exec.Thread
	slots  []uint64
	refs   []exec.Reference
}

// A compiledFunction holds the closures and metadata for a single function body. Compiled functions are shared by
// every instance of a module definition.
type compiledFunction struct {
	index     uint32
	signature wasm.FunctionSig
	numSlots  int
	hasRefs   bool

	// resultSlot is the first slot of the function's results.
	resultSlot int

	body  stmt
	stats FunctionStats
}

// A function is a compiled function bound to an instance.
type function struct {
	inst *Instance
	code *compiledFunction
}

func (f *function) GetSignature() wasm.FunctionSig {
	return f.code.signature
}

func (f *function) newFrame(thread *exec.Thread) *frame {
	fr := &frame{inst: f.inst, mem: f.inst.memory, thread: thread, slots: make([]uint64, f.code.numSlots)}
	if f.code.hasRefs {
		fr.refs = make([]exec.Reference, f.code.numSlots)
	}
	return fr
}

func (f *function) run(fr *frame) {
	fr.thread.Enter()
	defer fr.thread.Leave()
	f.code.body(fr)
}

// copyResults copies the results of a completed call from the callee's frame into consecutive slots of the
// caller's frame.
func (f *function) copyResults(dest *frame, temp int, src *frame) {
	first := f.code.resultSlot
	for i, t := range f.code.signature.ReturnTypes {
		if t.IsRef() {
			dest.refs[temp+i] = src.refs[first+i]
		} else {
			dest.slots[temp+i] = src.slots[first+i]
		}
	}
}

func (f *function) Call(thread *exec.Thread, args ...interface{}) []interface{} {
	sig := f.code.signature
	if len(args) != len(sig.ParamTypes) {
		panic(fmt.Errorf("expected %v arguments; got %v", len(sig.ParamTypes), len(args)))
	}

	fr := f.newFrame(thread)
	for i, t := range sig.ParamTypes {
		if t.IsRef() {
			fr.refs[i] = args[i]
			continue
		}
		v, err := exec.FromValue(t, args[i])
		if err != nil {
			panic(err)
		}
		fr.slots[i] = v
	}

	f.run(fr)

	results := make([]interface{}, len(sig.ReturnTypes))
	for i, t := range sig.ReturnTypes {
		slot := f.code.resultSlot + i
		if t.IsRef() {
			results[i] = fr.refs[slot]
		} else {
			results[i] = exec.ToValue(t, fr.slots[slot])
		}
	}
	return results
}

// callValues calls f with arguments that have already been evaluated and stores its results into the caller's
// slots starting at temp. Calls to functions compiled by this engine pass raw slot values; other functions are
// called through the exec.Function interface.
func callValues(fr *frame, f exec.Function, sig wasm.FunctionSig, nums []uint64, refs []exec.Reference, temp int) {
	if callee, ok := f.(*function); ok {
		cfr := callee.newFrame(fr.thread)
		copy(cfr.slots, nums)
		if refs != nil {
			copy(cfr.refs, refs)
		}
		callee.run(cfr)
		callee.copyResults(fr, temp, cfr)
		return
	}

	args := make([]interface{}, len(sig.ParamTypes))
	for i, t := range sig.ParamTypes {
		if t.IsRef() {
			args[i] = refs[i]
		} else {
			args[i] = exec.ToValue(t, nums[i])
		}
	}

	results := f.Call(fr.thread, args...)
	if len(results) != len(sig.ReturnTypes) {
		panic(fmt.Errorf("host function returned %v results; expected %v", len(results), len(sig.ReturnTypes)))
	}
	for i, t := range sig.ReturnTypes {
		if t.IsRef() {
			fr.refs[temp+i] = results[i]
			continue
		}
		v, err := exec.FromValue(t, results[i])
		if err != nil {
			panic(err)
		}
		fr.slots[temp+i] = v
	}
}
