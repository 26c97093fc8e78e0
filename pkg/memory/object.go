package memory

import "fmt"

// Object model - typed, self-describing heap cells.
//
// An Object is a raw byte payload plus classification metadata. Identity is
// a Handle into the Heap's object table, never a raw pointer: dereferencing
// a stale handle is a checked lookup failure, not undefined behavior.
//
// Lifecycle: Unallocated -> Live (on allocate) -> Freed (refcount hits 0).
// There is no transition out of Freed; freed entries stay in the table as
// tombstones so late accesses fail with ErrInvalidReference.

// Handle identifies an Object in its Heap's table.
// Handles are 1-based, monotonically increasing and never reused within a
// run; 0 is never a valid handle.
type Handle uint64

// referenceWidth is the payload size of one child handle slot in a
// composite object.
const referenceWidth = 8

// VarType classifies the storage kind of an Object.
type VarType int

const (
	VarScalar    VarType = iota // raw primitive payload, no children
	VarComposite                // holds child object references
)

func (v VarType) String() string {
	switch v {
	case VarScalar:
		return "scalar"
	case VarComposite:
		return "composite"
	}
	return fmt.Sprintf("VarType(%d)", int(v))
}

// AllocationType classifies the current lifetime class of an Object.
type AllocationType int

const (
	// AllocHeapOnly - unrooted: pending collection or held only as a
	// child of another object.
	AllocHeapOnly AllocationType = iota
	// AllocStackRooted - currently referenced by at least one open frame.
	AllocStackRooted
)

func (a AllocationType) String() string {
	switch a {
	case AllocHeapOnly:
		return "heap"
	case AllocStackRooted:
		return "stack"
	}
	return fmt.Sprintf("AllocationType(%d)", int(a))
}

// DataType is the concrete payload tag of an Object.
type DataType int

const (
	TypeInt8 DataType = iota
	TypeInt16
	TypeInt32
	TypeInt64
	TypeBool
	TypeChar
	TypeArray // composite: payload is child handle slots
)

// Width returns the canonical payload width in bytes for a primitive tag,
// or 0 for composite tags whose size is childCount * referenceWidth.
func (d DataType) Width() int {
	switch d {
	case TypeInt8, TypeBool, TypeChar:
		return 1
	case TypeInt16:
		return 2
	case TypeInt32:
		return 4
	case TypeInt64:
		return 8
	}
	return 0
}

// IsComposite reports whether the tag denotes a child-bearing object.
func (d DataType) IsComposite() bool {
	return d == TypeArray
}

func (d DataType) String() string {
	switch d {
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeBool:
		return "bool"
	case TypeChar:
		return "char"
	case TypeArray:
		return "array"
	}
	return fmt.Sprintf("DataType(%d)", int(d))
}

// Object is the unit of heap storage.
// The payload buffer is exclusively owned by the Object and released
// exactly once, when the Object is freed.
type Object struct {
	handle    Handle
	varType   VarType
	allocType AllocationType
	dataType  DataType
	data      []byte
	children  []Handle

	// payloadSize survives the payload release so tombstones still
	// report the size they occupied.
	payloadSize int

	// Collector-maintained. refCount is the authoritative liveness
	// signal; stackRefs caches how many open frames currently root the
	// object.
	refCount  int
	stackRefs int
	freed     bool
}

// Handle returns the object's heap handle.
func (o *Object) Handle() Handle { return o.handle }

// VarType returns the storage-kind classification.
func (o *Object) VarType() VarType { return o.varType }

// AllocationType returns the current lifetime class.
func (o *Object) AllocationType() AllocationType { return o.allocType }

// DataType returns the concrete payload tag.
func (o *Object) DataType() DataType { return o.dataType }

// SizeInBytes returns the payload buffer length.
func (o *Object) SizeInBytes() int { return o.payloadSize }

// ChildCount returns the number of child references currently held.
func (o *Object) ChildCount() int { return len(o.children) }

// ChildCapacity returns the number of child slots the payload can hold.
func (o *Object) ChildCapacity() int {
	if o.varType != VarComposite {
		return 0
	}
	return o.payloadSize / referenceWidth
}

// HasStackReference reports whether at least one open frame currently
// lists this object as a local. This is a cached root flag; the reference
// count is the source of truth for liveness.
func (o *Object) HasStackReference() bool { return o.stackRefs > 0 }

// Freed reports whether the object has been reclaimed.
func (o *Object) Freed() bool { return o.freed }

// readPrim validates preconditions and decodes a width-byte payload.
func (o *Object) readPrim(width int) (uint64, error) {
	if o.freed {
		return 0, fmt.Errorf("%w: read on freed object %d", ErrInvalidReference, o.handle)
	}
	if o.data == nil {
		return 0, fmt.Errorf("%w: object %d has no payload", ErrDataIsNull, o.handle)
	}
	if len(o.data) != width {
		return 0, fmt.Errorf("%w: object %d holds %d bytes, want %d",
			ErrTypeMismatch, o.handle, len(o.data), width)
	}
	return decodeUint(o.data), nil
}

// writePrim validates preconditions and encodes v into the payload.
func (o *Object) writePrim(width int, v uint64) error {
	if o.freed {
		return fmt.Errorf("%w: write on freed object %d", ErrInvalidReference, o.handle)
	}
	if o.data == nil {
		return fmt.Errorf("%w: object %d has no payload", ErrDataIsNull, o.handle)
	}
	if len(o.data) != width {
		return fmt.Errorf("%w: object %d holds %d bytes, want %d",
			ErrTypeMismatch, o.handle, len(o.data), width)
	}
	encodeUint(o.data, v)
	return nil
}

// ReadInt8 decodes a 1-byte payload.
func (o *Object) ReadInt8() (int8, error) {
	v, err := o.readPrim(1)
	return int8(v), err
}

// ReadInt16 decodes a 2-byte payload.
func (o *Object) ReadInt16() (int16, error) {
	v, err := o.readPrim(2)
	return int16(v), err
}

// ReadInt32 decodes a 4-byte payload.
func (o *Object) ReadInt32() (int32, error) {
	v, err := o.readPrim(4)
	return int32(v), err
}

// ReadInt64 decodes an 8-byte payload.
func (o *Object) ReadInt64() (int64, error) {
	v, err := o.readPrim(8)
	return int64(v), err
}

// WriteInt8 encodes v into a 1-byte payload.
func (o *Object) WriteInt8(v int8) error {
	return o.writePrim(1, uint64(uint8(v)))
}

// WriteInt16 encodes v into a 2-byte payload.
func (o *Object) WriteInt16(v int16) error {
	return o.writePrim(2, uint64(uint16(v)))
}

// WriteInt32 encodes v into a 4-byte payload.
func (o *Object) WriteInt32(v int32) error {
	return o.writePrim(4, uint64(uint32(v)))
}

// WriteInt64 encodes v into an 8-byte payload.
func (o *Object) WriteInt64(v int64) error {
	return o.writePrim(8, uint64(v))
}

// ReadBool decodes a 1-byte payload as a boolean (0 = false).
func (o *Object) ReadBool() (bool, error) {
	v, err := o.readPrim(1)
	return v != 0, err
}

// WriteBool encodes b into a 1-byte payload.
func (o *Object) WriteBool(b bool) error {
	var v uint64
	if b {
		v = 1
	}
	return o.writePrim(1, v)
}

// ReadChar decodes a 1-byte payload as a raw character byte.
func (o *Object) ReadChar() (byte, error) {
	v, err := o.readPrim(1)
	return byte(v), err
}

// WriteChar encodes c into a 1-byte payload.
func (o *Object) WriteChar(c byte) error {
	return o.writePrim(1, uint64(c))
}
