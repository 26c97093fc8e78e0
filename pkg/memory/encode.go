package memory

// Manual little-endian packing for primitive payloads.
//
// The byte layout is the observable contract for state dumps: byte i of an
// N-byte value is (v >> (8*i)) & 0xFF, reassembled by OR-ing shifted bytes
// in the same order. Implemented by hand rather than with encoding/binary
// so the layout is explicit in the code, not delegated.

// encodeUint packs the low len(buf) bytes of v into buf, little-endian.
func encodeUint(buf []byte, v uint64) {
	for i := range buf {
		buf[i] = byte((v >> (8 * uint(i))) & 0xFF)
	}
}

// decodeUint reassembles a little-endian value from buf.
// Bytes beyond the 8th are ignored; buffers here are at most 8 bytes.
func decodeUint(buf []byte) uint64 {
	var v uint64
	for i := range buf {
		v |= uint64(buf[i]) << (8 * uint(i))
	}
	return v
}
