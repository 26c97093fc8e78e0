package memory

import "fmt"

// Collector - explicit reference counting with eager cascading free.
//
// Every root edge (open frame -> object) and every parent-child edge
// (composite -> child) holds exactly one count. Retain/Release are the
// only count mutations; an object is freed precisely when its count
// transitions to zero, cascading releases into its children.
//
// Double free and negative counts are not recoverable caller errors:
// they mean the mutator's bookkeeping is corrupt, and the collector
// panics with a diagnostic rather than continuing on bad state.
//
// No cycle detection is performed. A composite cycle never reaches zero
// count and leaks for the run's lifetime; Context.LeakCheck surfaces it.

// Stats counts collector and allocator activity for one context.
type Stats struct {
	Allocations       uint64
	Frees             uint64
	Retains           uint64
	Releases          uint64
	SweepRuns         uint64
	SweepFreed        uint64
	ThresholdTriggers uint64
}

// Collector maintains reference counts for one Heap's objects.
type Collector struct {
	heap  *Heap
	stats Stats
}

// NewCollector creates a Collector bound to heap and wires the heap's
// threshold sweeps to it.
func NewCollector(heap *Heap) *Collector {
	c := &Collector{heap: heap}
	heap.collector = c
	return c
}

// Retain increments the reference count of the object behind handle.
// Called whenever a new root or parent-child edge is created.
func (c *Collector) Retain(handle Handle) error {
	obj, err := c.heap.Get(handle)
	if err != nil {
		return err
	}
	obj.refCount++
	c.stats.Retains++
	return nil
}

// Release decrements the reference count of the object behind handle,
// freeing it on the transition to zero. Releasing a freed or unknown
// object is a double free: a fatal invariant violation.
func (c *Collector) Release(handle Handle) {
	obj, ok := c.heap.objs[handle]
	if !ok || obj == nil {
		panic(fmt.Sprintf("memory: release of nonexistent object %d", handle))
	}
	if obj.freed {
		panic(fmt.Sprintf("memory: double free of object %d", handle))
	}
	c.release(obj)
}

func (c *Collector) release(obj *Object) {
	obj.refCount--
	c.stats.Releases++
	if obj.refCount < 0 {
		panic(fmt.Sprintf("memory: negative reference count on object %d", obj.handle))
	}
	if obj.refCount == 0 {
		c.free(obj)
	}
}

// free reclaims obj: drops the payload, removes it from the heap's live
// set, and releases every child edge it held. The tombstone stays in the
// object table so stale handles fail checked.
func (c *Collector) free(obj *Object) {
	if obj.freed {
		panic(fmt.Sprintf("memory: double free of object %d", obj.handle))
	}
	obj.freed = true
	obj.data = nil
	obj.allocType = AllocHeapOnly
	c.heap.remove(obj)
	c.stats.Frees++

	children := obj.children
	obj.children = nil
	for _, child := range children {
		childObj, ok := c.heap.objs[child]
		if !ok || childObj == nil {
			panic(fmt.Sprintf("memory: object %d held nonexistent child %d", obj.handle, child))
		}
		if childObj.freed {
			// A freed child while the parent edge still counted means
			// the count went wrong somewhere earlier.
			panic(fmt.Sprintf("memory: object %d held freed child %d", obj.handle, child))
		}
		c.release(childObj)
	}
}

// Stats returns a copy of the activity counters.
func (c *Collector) Stats() Stats { return c.stats }
