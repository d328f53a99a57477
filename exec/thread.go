package exec

// DefaultMaxDepth is the call depth limit of a thread created with a max depth of zero.
const DefaultMaxDepth = 8192

// A Thread carries information about a single WASM thread of control. Each top-level call into an instance runs on
// its own thread.
type Thread struct {
	depth    uint
	maxDepth uint
}

// NewThread creates a new thread with the given max depth. A max depth of zero selects DefaultMaxDepth.
func NewThread(maxDepth uint) Thread {
	if maxDepth == 0 {
		maxDepth = DefaultMaxDepth
	}
	return Thread{maxDepth: maxDepth}
}

// MaxDepth returns the maximum call stack depth.
func (t *Thread) MaxDepth() uint {
	return t.maxDepth
}

// Depth returns the current call stack depth.
func (t *Thread) Depth() uint {
	return t.depth
}

// Enter pushes a new frame onto the thread's stack. Each call to Enter must be balanced with a call to Leave.
func (t *Thread) Enter() {
	if t.depth >= t.maxDepth {
		panic(TrapCallStackExhausted)
	}
	t.depth++
}

// Leave pops the top of the thread's stack.
func (t *Thread) Leave() {
	t.depth--
}
