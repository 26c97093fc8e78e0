package memory

import (
	"errors"
	"testing"
)

func TestHeap_AllocateValidation(t *testing.T) {
	ctx := newTestContext()

	// Primitive size must equal the tag's canonical width.
	if _, err := ctx.Allocate(TypeInt32, 2); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Expected ErrTypeMismatch for int32/size 2, got %v", err)
	}
	if _, err := ctx.Allocate(TypeInt8, 8); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Expected ErrTypeMismatch for int8/size 8, got %v", err)
	}
	// Composite size must be whole handle slots.
	if _, err := ctx.Allocate(TypeArray, 12); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Expected ErrTypeMismatch for ragged composite size, got %v", err)
	}

	if _, err := ctx.Allocate(TypeInt32, 4); err != nil {
		t.Errorf("valid allocation failed: %v", err)
	}
}

func TestHeap_LiveByteAccounting(t *testing.T) {
	ctx := newTestContext()

	if ctx.Heap.TotalLiveBytes() != 0 {
		t.Fatalf("fresh heap should be empty, got %d bytes", ctx.Heap.TotalLiveBytes())
	}

	h, _ := ctx.AllocatePrimitive(TypeInt32)
	want := uint64(4 + MetadataOverhead)
	if got := ctx.Heap.TotalLiveBytes(); got != want {
		t.Errorf("Expected %d live bytes, got %d", want, got)
	}

	frame, _ := ctx.OpenFrame()
	frame.AddLocal(h)
	frame.Close()

	if got := ctx.Heap.TotalLiveBytes(); got != 0 {
		t.Errorf("Expected 0 live bytes after free, got %d", got)
	}
	if ctx.Heap.LiveCount() != 0 {
		t.Errorf("Expected empty live set, got %d", ctx.Heap.LiveCount())
	}
}

func TestHeap_HardCapacity(t *testing.T) {
	// Hard capacity bounds allocation independent of the soft threshold.
	ctx := NewContext(Options{
		StackCapacity: 4096,
		HeapCapacity:  2 * (8 + MetadataOverhead),
	})

	if _, err := ctx.AllocatePrimitive(TypeInt64); err != nil {
		t.Fatalf("first allocation: %v", err)
	}
	if _, err := ctx.AllocatePrimitive(TypeInt64); err != nil {
		t.Fatalf("second allocation: %v", err)
	}
	if _, err := ctx.AllocatePrimitive(TypeInt64); !errors.Is(err, ErrAllocationFailure) {
		t.Errorf("Expected ErrAllocationFailure, got %v", err)
	}
}

func TestHeap_ThresholdTrigger(t *testing.T) {
	// Exceeding the soft threshold after an allocation runs a sweep that
	// reclaims zero-count objects automatically.
	ctx := newTestContext()
	ctx.Heap.SetThreshold(100)

	frame, _ := ctx.OpenFrame()
	rooted, _ := ctx.AllocatePrimitive(TypeInt64)
	frame.AddLocal(rooted)

	// Unrooted garbage until live bytes pass the threshold.
	for i := 0; i < 10; i++ {
		if _, err := ctx.AllocatePrimitive(TypeInt64); err != nil {
			t.Fatalf("allocate: %v", err)
		}
	}

	stats := ctx.Stats()
	if stats.ThresholdTriggers == 0 {
		t.Error("Expected at least one automatic threshold trigger")
	}
	if stats.SweepFreed == 0 {
		t.Error("Expected the automatic sweep to reclaim unrooted objects")
	}

	// After a manual sweep only the rooted object remains.
	ctx.Collect()
	if got := ctx.Heap.LiveCount(); got != 1 {
		t.Errorf("Expected 1 live object, got %d", got)
	}
	want := uint64(8 + MetadataOverhead)
	if got := ctx.Heap.TotalLiveBytes(); got != want {
		t.Errorf("Expected %d live bytes, got %d", want, got)
	}

	frame.Close()
}

func TestHeap_AllocateNeverReturnsFreedHandle(t *testing.T) {
	// The sweep triggered by an allocation must not reclaim the object
	// it is about to hand back, even though it is still unrooted.
	ctx := newTestContext()
	ctx.Heap.SetThreshold(1)

	for i := 0; i < 5; i++ {
		h, err := ctx.AllocatePrimitive(TypeInt32)
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		if _, err := ctx.Get(h); err != nil {
			t.Fatalf("fresh handle %d already dead: %v", h, err)
		}
	}
}

func TestHeap_AddChild(t *testing.T) {
	ctx := newTestContext()

	frame, _ := ctx.OpenFrame()
	arr, _ := ctx.AllocateArray(2)
	frame.AddLocal(arr)

	c1, _ := ctx.AllocatePrimitive(TypeInt8)
	c2, _ := ctx.AllocatePrimitive(TypeInt16)

	if err := ctx.Heap.AddChild(arr, c1); err != nil {
		t.Fatalf("add child: %v", err)
	}
	if err := ctx.Heap.AddChild(arr, c2); err != nil {
		t.Fatalf("add child: %v", err)
	}

	arrObj, _ := ctx.Get(arr)
	if arrObj.ChildCount() != 2 {
		t.Errorf("Expected 2 children, got %d", arrObj.ChildCount())
	}

	// Children are retained by the parent edge.
	c1Obj, _ := ctx.Get(c1)
	if c1Obj.refCount != 1 {
		t.Errorf("Expected child rc=1, got %d", c1Obj.refCount)
	}

	// Child slots mirror into the payload, little-endian.
	payload := arrObj.PayloadBytes()
	if got := Handle(decodeUint(payload[0:8])); got != c1 {
		t.Errorf("slot 0: expected handle %d, got %d", c1, got)
	}
	if got := Handle(decodeUint(payload[8:16])); got != c2 {
		t.Errorf("slot 1: expected handle %d, got %d", c2, got)
	}

	frame.Close()
}

func TestHeap_AddChildErrors(t *testing.T) {
	ctx := newTestContext()

	frame, _ := ctx.OpenFrame()
	scalar, _ := ctx.AllocatePrimitive(TypeInt32)
	arr, _ := ctx.AllocateArray(1)
	frame.AddLocal(scalar)
	frame.AddLocal(arr)

	child, _ := ctx.AllocatePrimitive(TypeInt8)

	// Scalars cannot hold children.
	if err := ctx.Heap.AddChild(scalar, child); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Expected ErrTypeMismatch, got %v", err)
	}

	// One slot only.
	if err := ctx.Heap.AddChild(arr, child); err != nil {
		t.Fatalf("add child: %v", err)
	}
	extra, _ := ctx.AllocatePrimitive(TypeInt8)
	if err := ctx.Heap.AddChild(arr, extra); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("Expected ErrCapacityExceeded, got %v", err)
	}

	// Stale child handle.
	stale, _ := ctx.AllocatePrimitive(TypeInt8)
	staleObj, _ := ctx.Get(stale)
	ctx.Collect()
	if !staleObj.Freed() {
		t.Fatal("unrooted extra object should have been swept")
	}
	arr2, _ := ctx.AllocateArray(1)
	frame.AddLocal(arr2)
	if err := ctx.Heap.AddChild(arr2, stale); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("Expected ErrInvalidReference, got %v", err)
	}

	frame.Close()
}

func TestHeap_CollectIsIdempotent(t *testing.T) {
	ctx := newTestContext()

	for i := 0; i < 4; i++ {
		ctx.AllocatePrimitive(TypeInt32)
	}

	if freed := ctx.Collect(); freed != 4 {
		t.Errorf("Expected 4 freed, got %d", freed)
	}
	if freed := ctx.Collect(); freed != 0 {
		t.Errorf("second sweep should free nothing, got %d", freed)
	}
}

func TestHeap_LiveObjectsOrdered(t *testing.T) {
	// Introspection iterates in ascending handle order so dumps are
	// deterministic.
	ctx := newTestContext()

	frame, _ := ctx.OpenFrame()
	for i := 0; i < 5; i++ {
		h, _ := ctx.AllocatePrimitive(TypeInt32)
		frame.AddLocal(h)
	}

	infos := ctx.Heap.LiveObjects()
	if len(infos) != 5 {
		t.Fatalf("Expected 5 live objects, got %d", len(infos))
	}
	for i := 1; i < len(infos); i++ {
		if infos[i].Handle <= infos[i-1].Handle {
			t.Errorf("handles out of order: %d after %d", infos[i].Handle, infos[i-1].Handle)
		}
	}

	frame.Close()
}
