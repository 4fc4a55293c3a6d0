package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMallocQueryRoundTrip(t *testing.T) {
	g := NewGC(1 << 20)

	base, ok := g.Malloc(64, APPENDABLE)
	require.True(t, ok)
	require.NotZero(t, base)

	bd, ok := g.Query(base)
	require.True(t, ok)
	require.Equal(t, base, bd.Base)
	require.GreaterOrEqual(t, bd.Size, uintptr(64))
	require.Equal(t, APPENDABLE, bd.Attrs)

	// An interior pointer should resolve to the same block.
	bd2, ok := g.Query(base + 10)
	require.True(t, ok)
	require.Equal(t, bd, bd2)
}

func TestQueryMissOutsideAnyBlock(t *testing.T) {
	g := NewGC(1 << 16)
	base, ok := g.Malloc(32, 0)
	require.True(t, ok)

	_, ok = g.Query(base + 1<<20)
	require.False(t, ok)
}

func TestFreeThenCollectingThenGone(t *testing.T) {
	g := NewGC(1 << 16)
	base, ok := g.Malloc(32, 0)
	require.True(t, ok)

	require.False(t, g.IsCollecting(base))
	g.Free(base)
	require.True(t, g.IsCollecting(base))

	_, ok = g.Query(base)
	require.False(t, ok, "a freed block must no longer be discoverable via Query")
}

func TestAttrBits(t *testing.T) {
	g := NewGC(1 << 16)
	base, _ := g.Malloc(16, APPENDABLE)

	require.Equal(t, APPENDABLE, g.GetAttr(base))
	g.SetAttr(base, NO_SCAN|FINALIZE)
	require.Equal(t, APPENDABLE|NO_SCAN|FINALIZE, g.GetAttr(base))
	g.ClrAttr(base, FINALIZE)
	require.Equal(t, APPENDABLE|NO_SCAN, g.GetAttr(base))
}

func TestExtendAtBumpFrontier(t *testing.T) {
	g := NewGC(1 << 16)
	bd, ok := g.Qalloc(64, APPENDABLE)
	require.True(t, ok)

	newSize, ok := g.Extend(bd.Base, 32, 32)
	require.True(t, ok)
	require.GreaterOrEqual(t, newSize, bd.Size+32)
}

func TestExtendFailsWhenNotAdjacentToFreeSpace(t *testing.T) {
	g := NewGC(1 << 16)
	bd, _ := g.Qalloc(64, APPENDABLE)
	// Allocate a second block right after the first so bd is no longer at
	// the bump frontier and has no free span after it.
	_, ok := g.Qalloc(64, 0)
	require.True(t, ok)

	_, ok = g.Extend(bd.Base, 8, 8)
	require.False(t, ok)
}

func TestCollectSweepsUnreachableBlocks(t *testing.T) {
	g := NewGC(1 << 16)
	keep, _ := g.Qalloc(32, 0)
	drop, _ := g.Qalloc(32, 0)

	freed := g.Collect([]Root{{Pointer: keep.Base}})
	require.Equal(t, drop.Size, freed)

	_, ok := g.Query(keep.Base)
	require.True(t, ok)
	_, ok = g.Query(drop.Base)
	require.False(t, ok)
}

func TestMallocOverflowFails(t *testing.T) {
	g := NewGC(1 << 12)
	_, ok := g.Malloc(^uintptr(0), 0)
	require.False(t, ok)
}
