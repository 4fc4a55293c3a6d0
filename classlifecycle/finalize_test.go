package classlifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinygo-org/gcarray/internal/heap"
)

// TestFinalizeChainOrder builds class C extends B extends A, each with a
// logging destructor, and checks finalization runs C, B, A in that order,
// deletes the monitor after the chain, and leaves the vtable slot nil.
func TestFinalizeChainOrder(t *testing.T) {
	var order []string

	a := &ClassInfo{Name: "A", InitBytes: make([]byte, 8), Destructor: func(inst *Instance) { order = append(order, "A") }}
	b := &ClassInfo{Name: "B", InitBytes: make([]byte, 8), Base: a, Destructor: func(inst *Instance) { order = append(order, "B") }}
	c := &ClassInfo{Name: "C", InitBytes: make([]byte, 8), Base: b, Destructor: func(inst *Instance) { order = append(order, "C") }}

	gc := heap.NewGC(1 << 16)
	inst, err := Alloc(gc, c)
	require.NoError(t, err)
	inst.Monitor = &Monitor{}

	Finalize(inst, true)

	require.Equal(t, []string{"C", "B", "A"}, order)
	require.True(t, inst.Monitor.deleted)
	require.Nil(t, inst.Class)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	calls := 0
	a := &ClassInfo{Name: "A", InitBytes: make([]byte, 4), Destructor: func(inst *Instance) { calls++ }}
	gc := heap.NewGC(1 << 16)
	inst, err := Alloc(gc, a)
	require.NoError(t, err)

	Finalize(inst, true)
	Finalize(inst, true)
	require.Equal(t, 1, calls)
}

func TestFinalizeOverwritesWithInitTemplate(t *testing.T) {
	init := []byte{1, 2, 3, 4}
	a := &ClassInfo{Name: "A", InitBytes: init}
	gc := heap.NewGC(1 << 16)
	inst, err := Alloc(gc, a)
	require.NoError(t, err)
	copy(inst.Data, []byte{9, 9, 9, 9})

	Finalize(inst, true)
	require.Equal(t, init, inst.Data)
}

func TestCollectHandlerCanVetoNonDeterministicFinalize(t *testing.T) {
	ran := false
	a := &ClassInfo{Name: "A", InitBytes: make([]byte, 4), Destructor: func(inst *Instance) { ran = true }}
	gc := heap.NewGC(1 << 16)
	inst, err := Alloc(gc, a)
	require.NoError(t, err)

	SetCollectHandler(func(inst *Instance) bool { return false })
	t.Cleanup(func() { SetCollectHandler(nil) })

	Finalize(inst, false)
	require.False(t, ran, "a handler returning false must veto the destructor chain")
	require.Nil(t, inst.Class, "vtable slot must still be cleared even when vetoed")
}

func TestCollectHandlerNotConsultedForDeterministicDelete(t *testing.T) {
	ran := false
	a := &ClassInfo{Name: "A", InitBytes: make([]byte, 4), Destructor: func(inst *Instance) { ran = true }}
	gc := heap.NewGC(1 << 16)
	inst, err := Alloc(gc, a)
	require.NoError(t, err)

	SetCollectHandler(func(inst *Instance) bool { return false })
	t.Cleanup(func() { SetCollectHandler(nil) })

	Finalize(inst, true)
	require.True(t, ran, "det=true must always run the chain regardless of the collect handler")
}

func TestPanickingDestructorReportedButChainContinues(t *testing.T) {
	var reported *ClassInfo
	OnFinalizeError = func(ci *ClassInfo, recovered any) { reported = ci }
	t.Cleanup(func() { OnFinalizeError = func(ci *ClassInfo, recovered any) {} })

	ranBase := false
	base := &ClassInfo{Name: "Base", InitBytes: make([]byte, 4), Destructor: func(inst *Instance) { ranBase = true }}
	derived := &ClassInfo{Name: "Derived", InitBytes: make([]byte, 4), Base: base, Destructor: func(inst *Instance) { panic("boom") }}

	gc := heap.NewGC(1 << 16)
	inst, err := Alloc(gc, derived)
	require.NoError(t, err)

	require.NotPanics(t, func() { Finalize(inst, true) })
	require.Equal(t, derived, reported)
	require.True(t, ranBase, "a panicking destructor must not stop the rest of the chain")
}

func TestComManagedRefCounting(t *testing.T) {
	ci := &ClassInfo{Name: "Com", InitBytes: make([]byte, 4), Flags: FlagCOM}
	inst, err := Alloc(nil, ci)
	require.NoError(t, err)

	require.True(t, inst.AddRef())
	inst.Release()
	require.NotNil(t, inst.Class, "refcount was 2 after AddRef, one Release must not yet finalize")

	inst.Release()
	require.Nil(t, inst.Class, "refcount reaching zero must finalize the instance")
}

func TestDeleteUsesCustomDeallocatorWhenPresent(t *testing.T) {
	deallocated := false
	ci := &ClassInfo{
		Name:        "Custom",
		InitBytes:   make([]byte, 4),
		Deallocator: func(inst *Instance) { deallocated = true },
	}
	gc := heap.NewGC(1 << 16)
	inst, err := Alloc(gc, ci)
	require.NoError(t, err)

	Delete(inst)
	require.True(t, deallocated)
}

func TestAllocRejectsEmptyInitBytes(t *testing.T) {
	gc := heap.NewGC(1 << 16)
	_, err := Alloc(gc, &ClassInfo{Name: "Bad"})
	require.ErrorIs(t, err, ErrInvalidArgument)
}
