package memory

import "fmt"

// Context - one self-contained execution context.
//
// Stack, Heap and Collector are explicitly constructed and owned here,
// never ambient globals: multiple independent contexts can coexist in one
// process, which is also what keeps the core testable in isolation.
// Execution is single-threaded and synchronous; every operation runs to
// completion, so collection is stop-the-world by construction.

// Options configures a Context.
type Options struct {
	// StackCapacity is the stack's byte capacity.
	StackCapacity int
	// FrameLocalCap bounds locals per frame; 0 = bounded only by stack
	// bytes.
	FrameLocalCap int
	// HeapCapacity is the heap's hard byte limit; 0 = unlimited.
	HeapCapacity uint64
	// HeapThreshold is the soft live-byte limit that triggers automatic
	// sweeps; 0 disables automatic collection.
	HeapThreshold uint64
}

// DefaultOptions returns the capacities the demo driver runs with.
func DefaultOptions() Options {
	return Options{
		StackCapacity: 64 * 1024,
		FrameLocalCap: 0,
		HeapCapacity:  0,
		HeapThreshold: 1 << 20,
	}
}

// Context bundles one Stack, Heap and Collector.
type Context struct {
	Heap      *Heap
	Stack     *Stack
	Collector *Collector
}

// NewContext builds a fully wired execution context.
func NewContext(opts Options) *Context {
	heap := NewHeap(opts.HeapCapacity, opts.HeapThreshold)
	collector := NewCollector(heap)
	stack := NewStack(opts.StackCapacity, opts.FrameLocalCap, heap, collector)
	return &Context{
		Heap:      heap,
		Stack:     stack,
		Collector: collector,
	}
}

// Allocate requests a new object from the heap. The object is unrooted
// until added to a frame or linked as a child.
func (ctx *Context) Allocate(dataType DataType, size int) (Handle, error) {
	return ctx.Heap.Allocate(dataType, size)
}

// AllocatePrimitive allocates a scalar of dataType at its canonical width.
func (ctx *Context) AllocatePrimitive(dataType DataType) (Handle, error) {
	return ctx.Heap.Allocate(dataType, dataType.Width())
}

// AllocateArray allocates a composite with room for slots children.
func (ctx *Context) AllocateArray(slots int) (Handle, error) {
	return ctx.Heap.Allocate(TypeArray, slots*referenceWidth)
}

// OpenFrame opens a new scope on the stack.
func (ctx *Context) OpenFrame() (*Frame, error) {
	return ctx.Stack.Open()
}

// Get resolves a handle to its live object.
func (ctx *Context) Get(handle Handle) (*Object, error) {
	return ctx.Heap.Get(handle)
}

// Collect runs a manual sweep and returns the number of objects freed.
func (ctx *Context) Collect() int {
	return ctx.Heap.Collect()
}

// Stats returns a copy of the context's activity counters.
func (ctx *Context) Stats() Stats {
	return ctx.Collector.Stats()
}

// Leak describes one object still live after all frames have closed.
type Leak struct {
	Handle      Handle
	DataType    DataType
	SizeInBytes int
	RefCount    int
	ChildCount  int
}

func (l Leak) String() string {
	return fmt.Sprintf("object %d (%s, %d bytes, rc=%d, children=%d)",
		l.Handle, l.DataType, l.SizeInBytes, l.RefCount, l.ChildCount)
}

// LeakCheck sweeps, then reports every object still live. With no open
// frames the survivors are unreclaimable: in a cycle-free run the report
// is empty, so anything listed is a reference cycle (the documented
// limitation - composite cycles never reach zero count).
func (ctx *Context) LeakCheck() []Leak {
	if ctx.Stack.Depth() != 0 {
		panic(fmt.Sprintf("memory: leak check with %d frame(s) still open", ctx.Stack.Depth()))
	}
	ctx.Heap.Collect()

	var leaks []Leak
	for _, info := range ctx.Heap.LiveObjects() {
		leaks = append(leaks, Leak{
			Handle:      info.Handle,
			DataType:    info.DataType,
			SizeInBytes: info.SizeInBytes,
			RefCount:    info.RefCount,
			ChildCount:  info.ChildCount,
		})
	}
	return leaks
}
