package gcarray

import "unsafe"

// AppendX grows s by nElems uninitialized elements and returns the new
// slice header; the caller is responsible for filling the new elements in
// (this is the primitive Append and the UTF encoders build on).
func (rt *Runtime) AppendX(ti *TypeDesc, s Slice, nElems uintptr) Slice {
	if nElems == 0 {
		return s
	}
	newLength := s.Length + nElems
	if newLength < s.Length {
		return rt.fail() // length overflow
	}
	return rt.grow(ti, s, newLength, true, false)
}

// Append grows s by rhs.Length elements and copies rhs's contents into the
// new tail.
func (rt *Runtime) Append(ti *TypeDesc, s Slice, rhs Slice) Slice {
	if rhs.Length == 0 {
		return s
	}
	grown := rt.AppendX(ti, s, rhs.Length)
	if grown.IsNil() {
		return grown
	}
	tail := grown.Data + s.Length*ti.ElemSize
	memcpyBytes(tail, rhs.Data, rhs.Length*ti.ElemSize)
	return grown
}

// byteType and wcharType are the element descriptors AppendChar and
// AppendWChar grow through. Character arrays are the paradigm example of a
// concurrently-readable shared element type, so both are marked Shared:
// appends serialize through the global used-length lock and bypass the
// per-thread block cache.
var (
	byteType  = &TypeDesc{ElemSize: 1, ContainsPointers: false, Shared: true}
	wcharType = &TypeDesc{ElemSize: 2, ContainsPointers: false, Shared: true}
)

// AppendChar encodes a Unicode code point as 1-4 UTF-8 bytes and appends it
// to a byte slice.
func (rt *Runtime) AppendChar(s Slice, dchar rune) Slice {
	var buf [4]byte
	n := encodeUTF8(buf[:], dchar)
	grown := rt.AppendX(byteType, s, uintptr(n))
	if grown.IsNil() {
		return grown
	}
	tail := unsafe.Slice((*byte)(unsafe.Pointer(grown.Data+s.Length)), n)
	copy(tail, buf[:n])
	return grown
}

// AppendWChar encodes a Unicode code point as one or two UTF-16 code units
// (a surrogate pair above U+FFFF) and appends it to a uint16 slice.
func (rt *Runtime) AppendWChar(s Slice, dchar rune) Slice {
	var buf [2]uint16
	n := encodeUTF16(buf[:], dchar)
	grown := rt.AppendX(wcharType, s, uintptr(n))
	if grown.IsNil() {
		return grown
	}
	tail := unsafe.Slice((*uint16)(unsafe.Pointer(grown.Data+s.Length*2)), n)
	copy(tail, buf[:n])
	return grown
}

// encodeUTF8 writes the standard 1-4 byte UTF-8 encoding of r into buf
// (which must have room for 4 bytes) and returns the number of bytes used.
// Thresholds match the classic UTF-8 table: 0x7F, 0x7FF, 0xFFFF.
func encodeUTF8(buf []byte, r rune) int {
	switch {
	case r <= 0x7F:
		buf[0] = byte(r)
		return 1
	case r <= 0x7FF:
		buf[0] = 0xC0 | byte(r>>6)
		buf[1] = 0x80 | byte(r&0x3F)
		return 2
	case r <= 0xFFFF:
		buf[0] = 0xE0 | byte(r>>12)
		buf[1] = 0x80 | byte((r>>6)&0x3F)
		buf[2] = 0x80 | byte(r&0x3F)
		return 3
	default:
		buf[0] = 0xF0 | byte(r>>18)
		buf[1] = 0x80 | byte((r>>12)&0x3F)
		buf[2] = 0x80 | byte((r>>6)&0x3F)
		buf[3] = 0x80 | byte(r&0x3F)
		return 4
	}
}

// encodeUTF16 writes the UTF-16 encoding of r into buf (room for 2 code
// units) and returns how many units were used: one below U+10000, a
// surrogate pair above it.
func encodeUTF16(buf []uint16, r rune) int {
	if r <= 0xFFFF {
		buf[0] = uint16(r)
		return 1
	}
	r -= 0x10000
	buf[0] = 0xD800 + uint16(r>>10)
	buf[1] = 0xDC00 + uint16(r&0x3FF)
	return 2
}
