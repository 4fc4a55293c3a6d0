// Package classlifecycle implements allocation and finalization of class
// instances: the two operations that sit outside the array runtime proper
// (component F in the design) but share its collector. A class instance is
// modeled as a fixed-size byte payload plus a mutable "vtable" pointer
// (Class) that Finalize clears, and an inheritance chain expressed as a
// linked list of *ClassInfo (Base) rather than nominal Go inheritance, per
// the design notes' preference for a trait/interface-shaped capability set
// over compiler-level subclassing.
package classlifecycle

import (
	"errors"
	"sync/atomic"
	"unsafe"

	"github.com/tinygo-org/gcarray/internal/heap"
)

// ClassInfo flag bits.
const (
	// FlagCOM marks a COM-like class: instances are allocated with a plain
	// (non-GC) allocator and are reference-counted externally instead of
	// collected.
	FlagCOM uint32 = 1 << 0
	// FlagNoScan marks a class whose instances contain no pointers,
	// letting the collector skip scanning them.
	FlagNoScan uint32 = 1 << 1
)

// ClassInfo describes one class in an inheritance chain: how to initialize
// a fresh instance, its allocation flags, its destructor (if any), a
// pointer to the class it extends (nil at the root), and an optional
// custom deallocator that bypasses the collector's Free entirely.
type ClassInfo struct {
	Name string

	// InitBytes is copied into every freshly allocated instance and is
	// also what Finalize overwrites the instance with afterward, which is
	// what zeroes the vtable slot (InitBytes[0:ptrSize] is always the
	// null-vtable pattern for the class this InitBytes belongs to).
	InitBytes []byte

	Flags uint32

	// Destructor runs during Finalize's chain walk if non-nil. A panic
	// inside it is caught and routed to OnFinalizeError; it does not stop
	// the rest of the chain from running.
	Destructor func(inst *Instance)

	// Base is the class this one extends, or nil at the root.
	Base *ClassInfo

	// Deallocator, if set, is called instead of the collector's Free when
	// an instance of this class is explicitly deleted.
	Deallocator func(inst *Instance)
}

// Monitor is the opaque per-instance monitor delete primitive: out of scope
// to implement fully, but its lifecycle must be respected by Finalize.
type Monitor struct {
	deleted bool
}

// Delete releases the monitor. Safe to call at most once per instance,
// which Finalize guarantees.
func (m *Monitor) Delete() {
	m.deleted = true
}

// Instance is a live (or, after Finalize, dead) class instance.
type Instance struct {
	// Class is the vtable slot: non-nil while alive, nilled by Finalize.
	Class *ClassInfo
	// Monitor is slot 1: non-nil if this instance has ever needed one.
	Monitor *Monitor
	// Data is the instance's storage, aliasing either a collector block
	// (for GC-managed instances) or a plain heap allocation (COM-like).
	Data []byte

	concreteClass *ClassInfo // fixed at allocation; survives Class being nilled
	base          uintptr    // collector block base; zero for COM-like instances
	gc            *heap.GC
	comManaged    bool
	refCount      int32
}

var ErrInvalidArgument = errors.New("classlifecycle: invalid argument")

// Alloc allocates a new instance of ci. COM-like classes (FlagCOM) are
// allocated outside the collector and start with a reference count of 1;
// everything else is a GC block tagged FINALIZE (and NO_SCAN if the class
// says its instances hold no pointers).
func Alloc(gc *heap.GC, ci *ClassInfo) (*Instance, error) {
	if ci == nil || len(ci.InitBytes) == 0 {
		return nil, ErrInvalidArgument
	}

	if ci.Flags&FlagCOM != 0 {
		data := make([]byte, len(ci.InitBytes))
		copy(data, ci.InitBytes)
		return &Instance{
			Class:         ci,
			concreteClass: ci,
			Data:          data,
			comManaged:    true,
			refCount:      1,
		}, nil
	}

	attrs := heap.FINALIZE
	if ci.Flags&FlagNoScan != 0 {
		attrs |= heap.NO_SCAN
	}
	base, ok := gc.Malloc(uintptr(len(ci.InitBytes)), attrs)
	if !ok {
		return nil, heap.ErrOutOfMemory
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(base)), len(ci.InitBytes))
	copy(data, ci.InitBytes)
	return &Instance{
		Class:         ci,
		concreteClass: ci,
		Data:          data,
		base:          base,
		gc:            gc,
	}, nil
}

// AddRef increments a COM-like instance's external reference count. It is a
// no-op (and reports false) for GC-managed instances, which have no
// explicit refcount.
func (inst *Instance) AddRef() bool {
	if !inst.comManaged {
		return false
	}
	atomic.AddInt32(&inst.refCount, 1)
	return true
}

// Release decrements a COM-like instance's reference count and finalizes +
// frees it once the count reaches zero. It is a no-op for GC-managed
// instances.
func (inst *Instance) Release() {
	if !inst.comManaged {
		return
	}
	if atomic.AddInt32(&inst.refCount, -1) == 0 {
		Delete(inst)
	}
}
