package memory

import "fmt"

// Heap - table-based object allocator with a soft collection threshold.
//
// The Heap exclusively owns Object existence. Objects are looked up by
// Handle; freed objects remain in the table as tombstones so a stale
// handle produces ErrInvalidReference rather than reaching reclaimed
// state. Live accounting charges payload size plus a fixed per-object
// metadata overhead.
//
// After every allocation the Heap compares live bytes against its soft
// threshold and triggers a collector sweep when exceeded. A hard capacity
// (0 = unlimited) bounds allocation independently of the threshold.

// MetadataOverhead is the fixed per-object accounting overhead in bytes,
// charged against capacity and threshold alongside the payload.
const MetadataOverhead = 16

// Heap owns the set of live Objects for one execution context.
type Heap struct {
	objs map[Handle]*Object
	// live holds the handles of live objects in allocation order, which
	// is ascending handle order. Sweeps and introspection iterate it so
	// traversal is deterministic.
	live []Handle

	next           Handle
	totalLiveBytes uint64
	threshold      uint64
	capacity       uint64 // hard limit; 0 = unlimited

	collector *Collector
}

// NewHeap creates a Heap with the given hard capacity and soft threshold,
// both in bytes. A capacity of 0 means unlimited.
func NewHeap(capacity, threshold uint64) *Heap {
	return &Heap{
		objs:      make(map[Handle]*Object, 128),
		next:      1,
		threshold: threshold,
		capacity:  capacity,
	}
}

// Allocate creates a new Object with the given tag and payload size.
// For primitive tags size must equal the tag's canonical width; for
// composite tags size must be a whole number of child handle slots.
// The new object is unrooted (reference count 0) until registered as a
// frame local or linked as a child.
func (h *Heap) Allocate(dataType DataType, size int) (Handle, error) {
	if dataType.IsComposite() {
		if size < 0 || size%referenceWidth != 0 {
			return 0, fmt.Errorf("%w: composite size %d is not a multiple of %d",
				ErrTypeMismatch, size, referenceWidth)
		}
	} else {
		if size != dataType.Width() {
			return 0, fmt.Errorf("%w: %s requires %d bytes, got %d",
				ErrTypeMismatch, dataType, dataType.Width(), size)
		}
	}

	charge := uint64(size) + MetadataOverhead
	if h.capacity > 0 && h.totalLiveBytes+charge > h.capacity {
		return 0, fmt.Errorf("%w: need %d bytes, %d of %d in use",
			ErrAllocationFailure, charge, h.totalLiveBytes, h.capacity)
	}

	varType := VarScalar
	if dataType.IsComposite() {
		varType = VarComposite
	}

	handle := h.next
	h.next++
	obj := &Object{
		handle:      handle,
		varType:     varType,
		allocType:   AllocHeapOnly,
		dataType:    dataType,
		data:        make([]byte, size),
		payloadSize: size,
	}
	h.objs[handle] = obj
	h.live = append(h.live, handle)
	h.totalLiveBytes += charge

	if h.collector != nil {
		h.collector.stats.Allocations++
	}
	h.maybeCollect(handle)
	return handle, nil
}

// Get returns the live Object for handle, or ErrInvalidReference if the
// handle is unknown or the object has been freed.
func (h *Heap) Get(handle Handle) (*Object, error) {
	obj, ok := h.objs[handle]
	if !ok || obj == nil {
		return nil, fmt.Errorf("%w: no object with handle %d", ErrInvalidReference, handle)
	}
	if obj.freed {
		return nil, fmt.Errorf("%w: object %d was freed", ErrInvalidReference, handle)
	}
	return obj, nil
}

// AddChild links child into the next free slot of the composite parent and
// retains it. Fails with ErrTypeMismatch if parent is not composite and
// ErrCapacityExceeded if every slot implied by the parent's size is taken.
func (h *Heap) AddChild(parent, child Handle) error {
	parentObj, err := h.Get(parent)
	if err != nil {
		return err
	}
	childObj, err := h.Get(child)
	if err != nil {
		return err
	}
	if parentObj.varType != VarComposite {
		return fmt.Errorf("%w: object %d (%s) cannot hold children",
			ErrTypeMismatch, parent, parentObj.dataType)
	}
	slot := len(parentObj.children)
	if slot >= parentObj.ChildCapacity() {
		return fmt.Errorf("%w: object %d holds %d of %d children",
			ErrCapacityExceeded, parent, slot, parentObj.ChildCapacity())
	}

	childObj.refCount++
	if h.collector != nil {
		h.collector.stats.Retains++
	}
	parentObj.children = append(parentObj.children, child)
	// Child slots mirror into the payload so a raw dump of the buffer
	// shows the handles, little-endian like every other payload.
	encodeUint(parentObj.data[slot*referenceWidth:(slot+1)*referenceWidth], uint64(child))
	return nil
}

// SetThreshold replaces the soft collection threshold in bytes.
func (h *Heap) SetThreshold(bytes uint64) {
	h.threshold = bytes
}

// Threshold returns the current soft collection threshold in bytes.
func (h *Heap) Threshold() uint64 { return h.threshold }

// TotalLiveBytes returns payload plus metadata bytes of all live objects.
func (h *Heap) TotalLiveBytes() uint64 { return h.totalLiveBytes }

// LiveCount returns the number of live objects.
func (h *Heap) LiveCount() int { return len(h.live) }

// maybeCollect runs a sweep when live bytes exceed the soft threshold.
// The triggering allocation's own object is still unrooted at this point,
// so it is exempt from the sweep: Allocate never hands back a freed handle.
func (h *Heap) maybeCollect(fresh Handle) {
	if h.collector == nil || h.threshold == 0 {
		return
	}
	if h.totalLiveBytes > h.threshold {
		h.collector.stats.ThresholdTriggers++
		h.collect(fresh)
	}
}

// Collect sweeps the live set and frees any object whose reference count
// is zero but was not yet reclaimed. Eager release already frees on the
// zero transition, so the sweep's usual harvest is objects that were
// allocated and never rooted. Safe to call at any time; already-freed
// objects are skipped. Returns the number of objects reclaimed.
func (h *Heap) Collect() int {
	return h.collect(0)
}

func (h *Heap) collect(exempt Handle) int {
	if h.collector == nil {
		return 0
	}
	h.collector.stats.SweepRuns++

	// Snapshot: freeing cascades into children, mutating h.live.
	snapshot := make([]Handle, len(h.live))
	copy(snapshot, h.live)

	freed := 0
	for _, handle := range snapshot {
		if handle == exempt {
			continue
		}
		obj, ok := h.objs[handle]
		if !ok || obj.freed {
			continue
		}
		if obj.refCount == 0 {
			h.collector.free(obj)
			freed++
		}
	}
	h.collector.stats.SweepFreed += uint64(freed)
	return freed
}

// remove drops a freed object from the live set and accounting.
// Called by the collector exactly once per object.
func (h *Heap) remove(obj *Object) {
	for i, handle := range h.live {
		if handle == obj.handle {
			h.live = append(h.live[:i], h.live[i+1:]...)
			break
		}
	}
	h.totalLiveBytes -= uint64(obj.payloadSize) + MetadataOverhead
}
