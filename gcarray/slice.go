package gcarray

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/tinygo-org/gcarray/internal/blockcache"
	"github.com/tinygo-org/gcarray/internal/blocklayout"
	"github.com/tinygo-org/gcarray/internal/heap"
	"github.com/tinygo-org/gcarray/internal/lengthmeta"
)

// Slice is the wire-level array header: length first, then an interior data
// pointer into a collector block, a plain two-machine-word layout. The zero
// value is the null slice.
type Slice struct {
	Length uintptr
	Data   uintptr
}

// IsNil reports whether s is the null slice.
func (s Slice) IsNil() bool {
	return s.Data == 0
}

// ErrInvalidArgument is returned by ShrinkFit when the slice's backing block
// cannot be found or is not APPENDABLE. Other invalid arguments are not
// reported through it: a zero element size yields the null slice (or a zero
// capacity), and a nil data pointer paired with a non-zero length is not
// checked.
var ErrInvalidArgument = errors.New("gcarray: invalid argument")

// ErrOutOfMemory is surfaced to callers when an allocation cannot be
// satisfied; see Runtime.OnOutOfMemory for the host-runtime hook this wraps.
var ErrOutOfMemory = heap.ErrOutOfMemory

// Runtime is one thread's (goroutine's) handle onto a collector: the
// per-thread block-info cache is owned here, exactly one per Runtime, so
// that concurrent goroutines never share a cache. Multiple Runtimes may
// point at the same *heap.GC.
type Runtime struct {
	gc    *heap.GC
	cache *blockcache.Cache

	// OnOutOfMemory is called instead of returning an error whenever an
	// allocation cannot be satisfied. It defaults to panicking with
	// ErrOutOfMemory; a host can install its own sink instead, e.g. one
	// that logs and calls os.Exit.
	OnOutOfMemory func()

	mu sync.Mutex // not locked by any Runtime method
}

// NewRuntime creates a Runtime backed by gc, with its own freshly registered
// block-info cache. Call Close when the owning goroutine is finished with it.
func NewRuntime(gc *heap.GC) *Runtime {
	return &Runtime{
		gc:            gc,
		cache:         blockcache.NewCache(),
		OnOutOfMemory: func() { panic(ErrOutOfMemory) },
	}
}

// Close releases the Runtime's block-info cache. It does not close the
// underlying collector, which may be shared with other Runtimes.
func (rt *Runtime) Close() {
	rt.cache.Release()
}

func (rt *Runtime) fail() Slice {
	rt.OnOutOfMemory()
	// OnOutOfMemory is documented not to return; if a caller installs one
	// that does anyway, fail safe with the null slice rather than panic
	// again on nil dereference somewhere downstream.
	return Slice{}
}

// resolveBlock finds the collector block backing an interior pointer,
// consulting the per-thread cache first for non-shared types; shared types
// bypass the cache entirely and always query the collector directly.
func (rt *Runtime) resolveBlock(ti *TypeDesc, data uintptr) (heap.BlockDescriptor, int, bool) {
	if ti.Shared {
		bd, ok := rt.gc.Query(data)
		return bd, -1, ok
	}
	if bd, idx := rt.cache.FindIndex(data); idx >= 0 {
		return bd, idx, true
	}
	bd, ok := rt.gc.Query(data)
	if !ok {
		return heap.BlockDescriptor{}, -1, false
	}
	rt.cache.Insert(bd, -1)
	return bd, -1, true
}

func (rt *Runtime) rememberBlock(ti *TypeDesc, bd heap.BlockDescriptor, hitIndex int) {
	if ti.Shared {
		return
	}
	rt.cache.Insert(bd, hitIndex)
}

// ownsTail reports whether slice s, backed by block bd, currently owns the
// shared tail: its logical end coincides exactly with the block's recorded
// used-length. Only the owner of the tail may grow a block in place; every
// other slice aliasing the same block must reallocate instead.
func ownsTail(bd heap.BlockDescriptor, s Slice, elemSize uintptr) bool {
	arrayStart := blocklayout.ArrayStart(bd.Base, bd.Size)
	used := lengthmeta.ReadUsed(bd.Base, bd.Size)
	return (s.Data-arrayStart)+s.Length*elemSize == used
}

func mustNotOverflow(a, b uintptr) (uintptr, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/a != b {
		return 0, false
	}
	return p, true
}

func memzero(ptr uintptr, n uintptr) {
	if n == 0 {
		return
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n)
	for i := range b {
		b[i] = 0
	}
}

func memcpyBytes(dst, src uintptr, n uintptr) {
	if n == 0 {
		return
	}
	d := unsafe.Slice((*byte)(unsafe.Pointer(dst)), n)
	s := unsafe.Slice((*byte)(unsafe.Pointer(src)), n)
	copy(d, s)
}

// fillInit repeats ti.Init across n bytes starting at ptr, or zero-fills if
// the template is empty. 1-byte and 4-byte templates are special-cased since
// those are by far the most common element sizes for initialized arrays.
func fillInit(ti *TypeDesc, ptr uintptr, n uintptr) {
	if len(ti.Init) == 0 {
		memzero(ptr, n)
		return
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n)
	switch len(ti.Init) {
	case 1:
		v := ti.Init[0]
		for i := range dst {
			dst[i] = v
		}
	case 4:
		var v [4]byte
		copy(v[:], ti.Init)
		i := 0
		for ; i+4 <= len(dst); i += 4 {
			copy(dst[i:i+4], v[:])
		}
		copy(dst[i:], v[:len(dst)-i])
	default:
		tpl := ti.Init
		i := 0
		for i < len(dst) {
			i += copy(dst[i:], tpl)
		}
	}
}
