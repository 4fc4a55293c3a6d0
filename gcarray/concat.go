package gcarray

import "github.com/tinygo-org/gcarray/internal/blocklayout"

// Concat allocates a fresh block sized exactly |x|+|y|, copies both
// operands into it in order, and returns the result. Concat(x, empty) and
// Concat(empty, y) both round-trip to a copy of the non-empty operand's
// contents.
func (rt *Runtime) Concat(ti *TypeDesc, x, y Slice) Slice {
	return rt.ConcatN(ti, []Slice{x, y})
}

// ConcatN generalizes Concat to N operands, allocating one block sized to
// the sum of all their lengths and copying each into place in order.
func (rt *Runtime) ConcatN(ti *TypeDesc, slices []Slice) Slice {
	var total uintptr
	for _, s := range slices {
		next := total + s.Length
		if next < total {
			return rt.fail()
		}
		total = next
	}
	if total == 0 || ti.ElemSize == 0 {
		return Slice{}
	}
	payload, ok := mustNotOverflow(total, ti.ElemSize)
	if !ok {
		return rt.fail()
	}
	bd, ok := rt.allocateBlock(ti, payload)
	if !ok {
		return rt.fail()
	}
	start := blocklayout.ArrayStart(bd.Base, bd.Size)
	offset := uintptr(0)
	for _, s := range slices {
		n := s.Length * ti.ElemSize
		memcpyBytes(start+offset, s.Data, n)
		offset += n
	}
	setInitialUsed(ti, bd, payload)
	rt.rememberBlock(ti, bd, -1)
	return Slice{Length: total, Data: start}
}

// Dup returns an independent copy of s: a fresh block, contents memcpy'd,
// so that mutating the duplicate can never affect the original (property
// L6) and vice versa.
func (rt *Runtime) Dup(ti *TypeDesc, s Slice) Slice {
	if s.Length == 0 || ti.ElemSize == 0 {
		return Slice{}
	}
	payload, ok := mustNotOverflow(s.Length, ti.ElemSize)
	if !ok {
		return rt.fail()
	}
	bd, ok := rt.allocateBlock(ti, payload)
	if !ok {
		return rt.fail()
	}
	start := blocklayout.ArrayStart(bd.Base, bd.Size)
	memcpyBytes(start, s.Data, payload)
	setInitialUsed(ti, bd, payload)
	rt.rememberBlock(ti, bd, -1)
	return Slice{Length: s.Length, Data: start}
}
