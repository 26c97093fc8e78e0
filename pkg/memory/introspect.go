package memory

// Read-only introspection for diagnostic drivers. Nothing here mutates
// heap or stack state; dumps and stress reporting are built on these.

// ObjectInfo is a snapshot of one live object's metadata.
type ObjectInfo struct {
	Handle            Handle
	VarType           VarType
	AllocationType    AllocationType
	DataType          DataType
	SizeInBytes       int
	ChildCount        int
	RefCount          int
	HasStackReference bool
}

// LiveObjects returns a snapshot of every live object's metadata in
// ascending handle order.
func (h *Heap) LiveObjects() []ObjectInfo {
	out := make([]ObjectInfo, 0, len(h.live))
	for _, handle := range h.live {
		obj := h.objs[handle]
		out = append(out, ObjectInfo{
			Handle:            obj.handle,
			VarType:           obj.varType,
			AllocationType:    obj.allocType,
			DataType:          obj.dataType,
			SizeInBytes:       obj.payloadSize,
			ChildCount:        len(obj.children),
			RefCount:          obj.refCount,
			HasStackReference: obj.stackRefs > 0,
		})
	}
	return out
}

// Children returns a copy of a composite object's child handles in slot
// order.
func (o *Object) Children() []Handle {
	out := make([]Handle, len(o.children))
	copy(out, o.children)
	return out
}

// PayloadBytes returns a copy of the raw payload buffer, or nil if the
// payload has been released.
func (o *Object) PayloadBytes() []byte {
	if o.data == nil {
		return nil
	}
	out := make([]byte, len(o.data))
	copy(out, o.data)
	return out
}
