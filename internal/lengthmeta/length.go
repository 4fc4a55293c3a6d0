// Package lengthmeta implements the compare-and-set discipline on a block's
// in-band "used length" field: the single piece of state that lets two
// slices sharing a block safely agree on who, if anyone, may grow into the
// shared tail. Losing this discipline (an unconditional write instead of a
// CAS) breaks value semantics for every slice sharing the block, so this
// package is kept small and is the only place that ever writes the field.
package lengthmeta

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/tinygo-org/gcarray/internal/blocklayout"
)

// sharedLock is the single process-wide mutex that serializes used-length
// updates for shared-typed arrays: correctness first, since these updates
// are rare relative to element access, and a finer-grained scheme buys
// little here.
var sharedLock sync.Mutex

func large(base uintptr) *uint64 {
	return (*uint64)(unsafe.Pointer(base))
}

// ReadUsed returns the current used-length recorded for a block of the
// given base and total size.
func ReadUsed(base, size uintptr) uintptr {
	switch blocklayout.ClassOfBlockSize(size) {
	case blocklayout.Small:
		return uintptr(*(*uint8)(unsafe.Pointer(base + blocklayout.UsedLengthOffset(size))))
	case blocklayout.Medium:
		return uintptr(*(*uint16)(unsafe.Pointer(base + blocklayout.UsedLengthOffset(size))))
	default:
		return uintptr(atomic.LoadUint64(large(base)))
	}
}

// TrySetUsed writes newLen to the used-length field, gated by a
// compare-and-set against expectedOld when hasExpected is true. When
// hasExpected is false the write is unconditional and is only valid at
// block-creation time, when no other slice can possibly be contending for
// the field.
//
// isShared routes the whole read-compare-write sequence through the
// process-wide shared lock instead of a lock-free CAS: non-shared slices
// rely on the fact that no other thread may legitimately touch their tail,
// so a bare CAS is enough; shared slices cannot make that assumption.
func TrySetUsed(base, size uintptr, newLen uintptr, isShared bool, hasExpected bool, expectedOld uintptr) bool {
	class := blocklayout.ClassOfBlockSize(size)
	if newLen > class.MaxUsedLength() {
		// Programmer error: caller must ensure newLen fits the encoding.
		panic("lengthmeta: used-length exceeds field width for this size class")
	}
	if newLen+class.Pad() > size {
		return false
	}

	if isShared {
		sharedLock.Lock()
		defer sharedLock.Unlock()
		if hasExpected && ReadUsed(base, size) != expectedOld {
			return false
		}
		writeUsed(base, size, class, newLen)
		return true
	}

	if !hasExpected {
		writeUsed(base, size, class, newLen)
		return true
	}

	switch class {
	case blocklayout.Small, blocklayout.Medium:
		// Small/medium fields are sub-word; there is no native narrow CAS,
		// so non-shared updates (which by contract have no real contender)
		// still go through a compare-then-write. A shared-typed block of
		// this size always takes the isShared branch above instead.
		if ReadUsed(base, size) != expectedOld {
			return false
		}
		writeUsed(base, size, class, newLen)
		return true
	default:
		ptr := large(base)
		return atomic.CompareAndSwapUint64(ptr, uint64(expectedOld), uint64(newLen))
	}
}

func writeUsed(base, size uintptr, class blocklayout.Class, newLen uintptr) {
	off := blocklayout.UsedLengthOffset(size)
	switch class {
	case blocklayout.Small:
		*(*uint8)(unsafe.Pointer(base + off)) = uint8(newLen)
	case blocklayout.Medium:
		*(*uint16)(unsafe.Pointer(base + off)) = uint16(newLen)
	default:
		atomic.StoreUint64(large(base), uint64(newLen))
	}
}

// InitSentinel zeroes the trailing sentinel byte of a large block. That
// byte, at base+size-1, must read zero for as long as the block is live.
func InitSentinel(base, size uintptr) {
	if blocklayout.ClassOfBlockSize(size) != blocklayout.Large {
		return
	}
	*(*uint8)(unsafe.Pointer(base + blocklayout.SentinelOffset(size))) = 0
}
