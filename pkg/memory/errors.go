package memory

import "errors"

// Error taxonomy for the runtime core.
//
// Every public operation returns one of these kinds (wrapped with context)
// or succeeds. They are recoverable result values, never control flow.
// Structural invariant violations that no caller can recover from
// (non-LIFO frame close, double free, negative refcount) are not errors:
// they panic with a diagnostic naming the violated invariant.
var (
	// ErrDataIsNull - operation on an Object whose payload buffer is absent.
	ErrDataIsNull = errors.New("data is null")

	// ErrTypeMismatch - payload size/tag does not match the requested
	// primitive width or operation.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrAllocationFailure - the Heap cannot satisfy a size request
	// within its hard capacity.
	ErrAllocationFailure = errors.New("allocation failure")

	// ErrStackOverflow - Stack byte capacity or frame local capacity
	// exceeded.
	ErrStackOverflow = errors.New("stack overflow")

	// ErrInvalidReference - operation on a freed or nonexistent Object.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrCapacityExceeded - composite object child-slot capacity exceeded.
	ErrCapacityExceeded = errors.New("capacity exceeded")
)
