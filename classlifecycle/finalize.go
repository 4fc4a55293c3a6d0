package classlifecycle

import "sync/atomic"

// CollectHandler may veto a non-deterministic finalization's destructor
// chain (it is never consulted for a deterministic delete). It returns true
// to let the chain run, false to skip straight to monitor cleanup and
// vtable clearing.
type CollectHandler func(inst *Instance) bool

var collectHandler atomic.Pointer[CollectHandler]

// SetCollectHandler installs the process-wide collect handler. Passing nil
// clears it. There is no handler installed at process start, and the last
// call to SetCollectHandler wins; readers always see a consistent value
// because it is stored behind a single atomic pointer.
func SetCollectHandler(h CollectHandler) {
	if h == nil {
		collectHandler.Store(nil)
		return
	}
	collectHandler.Store(&h)
}

// GetCollectHandler returns the currently installed handler, or nil.
func GetCollectHandler() CollectHandler {
	p := collectHandler.Load()
	if p == nil {
		return nil
	}
	return *p
}

// OnFinalizeError is called when a destructor panics during Finalize's
// chain walk. It defaults to discarding the panic value; a host runtime
// should install its own sink.
var OnFinalizeError = func(ci *ClassInfo, recovered any) {}

// Finalize runs an instance's destructor chain, deepest (most-derived)
// class first, walking Base pointers up to the root. det marks a
// deterministic delete (an explicit rt_finalize/delete call rather than a
// collector sweep); the collect handler is only consulted, and can only
// veto, when det is false.
//
// Finalize is idempotent: calling it on an already-finalized instance
// (Class == nil) does nothing.
func Finalize(inst *Instance, det bool) {
	if inst == nil || inst.Class == nil {
		return
	}
	concrete := inst.concreteClass

	// Guaranteed-run cleanup: whatever happens above, the instance is
	// overwritten with its initializer template (which zeroes the vtable
	// slot) and the vtable pointer is cleared.
	defer func() {
		copy(inst.Data, concrete.InitBytes)
		inst.Class = nil
	}()

	runChain := true
	if !det {
		if h := GetCollectHandler(); h != nil {
			runChain = h(inst)
		}
	}

	if runChain {
		for c := concrete; c != nil; c = c.Base {
			if c.Destructor == nil {
				continue
			}
			runDestructor(c, inst)
		}
	}

	if inst.Monitor != nil {
		inst.Monitor.Delete()
	}
}

func runDestructor(ci *ClassInfo, inst *Instance) {
	defer func() {
		if r := recover(); r != nil {
			OnFinalizeError(ci, r)
		}
	}()
	ci.Destructor(inst)
}

// Delete finalizes inst deterministically, then either calls its class's
// custom deallocator or frees the backing collector block. COM-like
// instances have no collector block to free; their storage is reclaimed by
// the Go garbage collector once Data is no longer referenced.
func Delete(inst *Instance) {
	if inst == nil {
		return
	}
	concrete := inst.concreteClass
	Finalize(inst, true)

	if concrete != nil && concrete.Deallocator != nil {
		concrete.Deallocator(inst)
		return
	}
	if inst.gc != nil && inst.base != 0 {
		inst.gc.Free(inst.base)
	}
}
