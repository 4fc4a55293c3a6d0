package gcarray

import (
	"unsafe"

	"github.com/tinygo-org/gcarray/internal/blocklayout"
	"github.com/tinygo-org/gcarray/internal/capacity"
	"github.com/tinygo-org/gcarray/internal/heap"
	"github.com/tinygo-org/gcarray/internal/lengthmeta"
)

// allocateBlock asks the collector for a fresh block big enough to hold
// payloadBytes of array data plus the size-class pad its length-metadata
// field needs, and always sets APPENDABLE. NO_SCAN propagates from the
// element type's pointer-freeness.
func (rt *Runtime) allocateBlock(ti *TypeDesc, payloadBytes uintptr) (heap.BlockDescriptor, bool) {
	pad := blocklayout.PadFor(payloadBytes)
	total := payloadBytes + pad
	if total < payloadBytes {
		return heap.BlockDescriptor{}, false
	}
	attrs := heap.APPENDABLE
	if !ti.ContainsPointers {
		attrs |= heap.NO_SCAN
	}
	return rt.gc.Qalloc(total, attrs)
}

func setInitialUsed(ti *TypeDesc, bd heap.BlockDescriptor, usedBytes uintptr) {
	lengthmeta.TrySetUsed(bd.Base, bd.Size, usedBytes, ti.Shared, false, 0)
	lengthmeta.InitSentinel(bd.Base, bd.Size)
}

// NewArray allocates a fresh, zero-filled array of n elements. n == 0 or
// ElemSize == 0 both yield the null slice rather than an allocation.
func (rt *Runtime) NewArray(ti *TypeDesc, n uintptr) Slice {
	return rt.newArray(ti, n, false)
}

// NewArrayInit is NewArray, but the payload is initialized by repeating
// ti.Init instead of zero-filled.
func (rt *Runtime) NewArrayInit(ti *TypeDesc, n uintptr) Slice {
	return rt.newArray(ti, n, true)
}

func (rt *Runtime) newArray(ti *TypeDesc, n uintptr, useInit bool) Slice {
	if n == 0 || ti.ElemSize == 0 {
		return Slice{}
	}
	payload, ok := mustNotOverflow(n, ti.ElemSize)
	if !ok {
		return rt.fail()
	}
	bd, ok := rt.allocateBlock(ti, payload)
	if !ok {
		return rt.fail()
	}
	start := blocklayout.ArrayStart(bd.Base, bd.Size)
	if useInit {
		fillInit(ti, start, payload)
	} else {
		memzero(start, payload)
	}
	setInitialUsed(ti, bd, payload)
	rt.rememberBlock(ti, bd, -1)
	return Slice{Length: n, Data: start}
}

// sliceHeaderType describes an array-of-slices element for NewArrayMulti's
// inner dimensions: two machine words, and it does contain pointers (the
// Data field of each nested header).
var sliceHeaderType = &TypeDesc{ElemSize: unsafe.Sizeof(Slice{}), ContainsPointers: true}

// NewArrayMulti builds a nested array of the given shape. The leaf
// dimension uses NewArray or NewArrayInit (useInit selects which); every
// other level allocates an array of slice headers and recurses. An empty
// dims returns the null slice.
func (rt *Runtime) NewArrayMulti(ti *TypeDesc, useInit bool, dims ...uintptr) Slice {
	if len(dims) == 0 {
		return Slice{}
	}
	return rt.buildDim(ti, useInit, dims, 0)
}

func (rt *Runtime) buildDim(ti *TypeDesc, useInit bool, dims []uintptr, level int) Slice {
	n := dims[level]
	if level == len(dims)-1 {
		if useInit {
			return rt.NewArrayInit(ti, n)
		}
		return rt.NewArray(ti, n)
	}
	outer := rt.NewArray(sliceHeaderType, n)
	if outer.IsNil() {
		return outer
	}
	headers := unsafe.Slice((*Slice)(unsafe.Pointer(outer.Data)), n)
	for i := range headers {
		headers[i] = rt.buildDim(ti, useInit, dims, level+1)
	}
	return outer
}

// ArrayLiteralAlloc allocates a fresh block sized exactly for n elements,
// marks its full length used, and leaves the payload for the caller to
// fill in (array-literal construction knows it is about to overwrite every
// element, so there is no point zeroing first).
func (rt *Runtime) ArrayLiteralAlloc(ti *TypeDesc, n uintptr) Slice {
	if n == 0 || ti.ElemSize == 0 {
		return Slice{}
	}
	payload, ok := mustNotOverflow(n, ti.ElemSize)
	if !ok {
		return rt.fail()
	}
	bd, ok := rt.allocateBlock(ti, payload)
	if !ok {
		return rt.fail()
	}
	start := blocklayout.ArrayStart(bd.Base, bd.Size)
	setInitialUsed(ti, bd, payload)
	rt.rememberBlock(ti, bd, -1)
	return Slice{Length: n, Data: start}
}

// grow implements the four-step skeleton shared by SetLength's growth path
// and AppendX: resolve the backing block, check tail ownership, try to grow
// in place (extending large blocks if needed), and fall back to a fresh
// allocation plus copy otherwise.
//
// When usePolicy is true the reallocation fallback sizes the new block
// using the capacity policy (over-allocating for amortized O(1) append);
// otherwise it allocates exactly newLength elements. When fill is true the
// newly exposed tail is zero- or pattern-initialized; otherwise it is left
// as whatever bytes are already there, for callers who are about to
// overwrite it themselves.
func (rt *Runtime) grow(ti *TypeDesc, s Slice, newLength uintptr, usePolicy, fill bool) Slice {
	elemSize := ti.ElemSize
	if elemSize == 0 {
		return Slice{}
	}
	newBytes, ok := mustNotOverflow(newLength, elemSize)
	if !ok {
		return rt.fail()
	}

	if s.Data == 0 {
		return rt.allocateGrown(ti, newLength, newBytes, usePolicy, fill)
	}

	bd, hitIdx, ok := rt.resolveBlock(ti, s.Data)
	appendable := ok && bd.Attrs&heap.APPENDABLE != 0

	if appendable && ownsTail(bd, s, elemSize) {
		class := blocklayout.ClassOfBlockSize(bd.Size)
		arrayStart := blocklayout.ArrayStart(bd.Base, bd.Size)
		offset := s.Data - arrayStart
		oldUsed := offset + s.Length*elemSize
		newUsed := offset + newBytes

		if newUsed+class.Pad() <= bd.Size {
			if lengthmeta.TrySetUsed(bd.Base, bd.Size, newUsed, ti.Shared, true, oldUsed) {
				if fill {
					fillInit(ti, s.Data+s.Length*elemSize, newBytes-s.Length*elemSize)
				}
				rt.rememberBlock(ti, bd, hitIdx)
				return Slice{Length: newLength, Data: s.Data}
			}
			// CAS lost the race for the tail; someone else grew first.
			// Fall through to reallocation.
		} else if class == blocklayout.Large {
			extra := (newUsed + class.Pad()) - bd.Size
			if newSize, ok := rt.gc.Extend(bd.Base, extra, extra); ok {
				bd.Size = newSize
				if lengthmeta.TrySetUsed(bd.Base, bd.Size, newUsed, ti.Shared, true, oldUsed) {
					if fill {
						fillInit(ti, s.Data+s.Length*elemSize, newBytes-s.Length*elemSize)
					}
					rt.rememberBlock(ti, bd, hitIdx)
					return Slice{Length: newLength, Data: s.Data}
				}
			}
		}
	}

	// Fallback: reallocate and copy. Any slice sharing the old block keeps
	// pointing at its old, unmodified contents: only the tail owner is
	// allowed to grow in place, which is exactly what makes this safe.
	grown := rt.allocateGrown(ti, newLength, newBytes, usePolicy, fill)
	if grown.IsNil() && newLength != 0 {
		return grown
	}
	// allocateGrown already zero/pattern-filled the whole allocation (when
	// fill is set); overwrite its prefix with the real old contents.
	oldBytes := s.Length * elemSize
	memcpyBytes(grown.Data, s.Data, oldBytes)
	return grown
}

// allocateGrown allocates a fresh block for newLength elements (using the
// capacity policy if usePolicy is set) and optionally fills the payload,
// without copying anything in — callers that are growing an existing slice
// must memcpy the old contents over the front of the result themselves.
func (rt *Runtime) allocateGrown(ti *TypeDesc, newLength, newBytes uintptr, usePolicy, fill bool) Slice {
	allocBytes := newBytes
	if usePolicy {
		if c := capacity.NewCapacity(newLength, ti.ElemSize); c > allocBytes {
			allocBytes = c
		}
	}
	bd, ok := rt.allocateBlock(ti, allocBytes)
	if !ok {
		return rt.fail()
	}
	start := blocklayout.ArrayStart(bd.Base, bd.Size)
	if fill {
		fillInit(ti, start, newBytes)
	}
	setInitialUsed(ti, bd, newBytes)
	rt.rememberBlock(ti, bd, -1)
	return Slice{Length: newLength, Data: start}
}

// SetLength adjusts a slice's length. Shrinking only rewrites the slice
// header (block metadata is untouched, so the trimmed tail can still be
// reclaimed by a later ShrinkFit or reused by another owner). Growing runs
// the full four-step skeleton, zero- or pattern-filling the new tail.
func (rt *Runtime) SetLength(ti *TypeDesc, newLen uintptr, s Slice) Slice {
	if newLen <= s.Length {
		return Slice{Length: newLen, Data: s.Data}
	}
	return rt.grow(ti, s, newLen, false, true)
}

// currentCapacity returns how many elements past s.Data the backing block
// bd can hold without growing, based purely on the block's total size and
// the slice's offset into it — capacity is independent of used-length.
func currentCapacity(bd heap.BlockDescriptor, s Slice, elemSize uintptr) uintptr {
	class := blocklayout.ClassOfBlockSize(bd.Size)
	arrayStart := blocklayout.ArrayStart(bd.Base, bd.Size)
	offset := s.Data - arrayStart
	avail := bd.Size - class.Pad() - offset
	return avail / elemSize
}

// SetCapacity ensures the block backing *s has room for at least newCap
// elements past s.Data, growing or reallocating if needed, and returns the
// capacity actually achieved. It never changes s.Length or the slice's
// visible contents. Passing newCap == 0 just queries the current capacity.
//
// Calling SetCapacity twice with the same newCap performs no second
// allocation: once the block is big enough the first call satisfies it, the
// second is a pure read.
func (rt *Runtime) SetCapacity(ti *TypeDesc, newCap uintptr, s *Slice) uintptr {
	elemSize := ti.ElemSize
	if elemSize == 0 {
		return 0
	}

	bd, hitIdx, ok := rt.resolveBlock(ti, s.Data)
	appendable := ok && bd.Attrs&heap.APPENDABLE != 0

	if appendable {
		cur := currentCapacity(bd, *s, elemSize)
		if cur >= newCap {
			return cur
		}
		class := blocklayout.ClassOfBlockSize(bd.Size)
		arrayStart := blocklayout.ArrayStart(bd.Base, bd.Size)
		offset := s.Data - arrayStart
		needBytes, ok := mustNotOverflow(newCap, elemSize)
		if ok && class == blocklayout.Large {
			needed := offset + needBytes + class.Pad()
			if needed > bd.Size {
				if newSize, ok := rt.gc.Extend(bd.Base, needed-bd.Size, needed-bd.Size); ok {
					bd.Size = newSize
					rt.rememberBlock(ti, bd, hitIdx)
					return currentCapacity(bd, *s, elemSize)
				}
			}
		}
	}

	if newCap == 0 {
		return 0
	}
	payload, ok := mustNotOverflow(newCap, elemSize)
	if !ok {
		rt.fail()
		return 0
	}
	newBD, ok := rt.allocateBlock(ti, payload)
	if !ok {
		rt.fail()
		return 0
	}
	newStart := blocklayout.ArrayStart(newBD.Base, newBD.Size)
	memcpyBytes(newStart, s.Data, s.Length*elemSize)
	setInitialUsed(ti, newBD, s.Length*elemSize)
	rt.rememberBlock(ti, newBD, -1)
	s.Data = newStart
	return currentCapacity(newBD, *s, elemSize)
}

// ShrinkFit sets the backing block's used-length to exactly match the
// slice's own length, with no CAS: the caller is asserting there is no
// concurrent tail owner to race with (this is meant to be called right
// after a shrink, before handing the slice to anyone else). The slice's
// block must already be APPENDABLE.
func (rt *Runtime) ShrinkFit(ti *TypeDesc, s Slice) error {
	if s.Data == 0 {
		return nil
	}
	bd, hitIdx, ok := rt.resolveBlock(ti, s.Data)
	if !ok || bd.Attrs&heap.APPENDABLE == 0 {
		return ErrInvalidArgument
	}
	arrayStart := blocklayout.ArrayStart(bd.Base, bd.Size)
	offset := s.Data - arrayStart
	used := offset + s.Length*ti.ElemSize
	lengthmeta.TrySetUsed(bd.Base, bd.Size, used, ti.Shared, false, 0)
	rt.rememberBlock(ti, bd, hitIdx)
	return nil
}
