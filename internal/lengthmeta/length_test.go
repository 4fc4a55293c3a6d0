package lengthmeta

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/tinygo-org/gcarray/internal/heap"
)

// alloc is a small test helper: allocate a real block through the collector
// so base is a valid, aligned address these unsafe-pointer field accesses
// can legally target.
func alloc(t *testing.T, size uintptr, attrs heap.Attr) heap.BlockDescriptor {
	t.Helper()
	g := heap.NewGC(1 << 16)
	bd, ok := g.Qalloc(size, attrs)
	require.True(t, ok)
	return bd
}

func TestSmallReadWriteRoundTrip(t *testing.T) {
	bd := alloc(t, 64, heap.APPENDABLE)
	require.True(t, TrySetUsed(bd.Base, bd.Size, 10, false, false, 0))
	require.Equal(t, uintptr(10), ReadUsed(bd.Base, bd.Size))

	require.True(t, TrySetUsed(bd.Base, bd.Size, 20, false, true, 10))
	require.Equal(t, uintptr(20), ReadUsed(bd.Base, bd.Size))
}

func TestCASFailsOnMismatch(t *testing.T) {
	bd := alloc(t, 64, heap.APPENDABLE)
	require.True(t, TrySetUsed(bd.Base, bd.Size, 10, false, false, 0))

	ok := TrySetUsed(bd.Base, bd.Size, 30, false, true, 999)
	require.False(t, ok)
	require.Equal(t, uintptr(10), ReadUsed(bd.Base, bd.Size))
}

func TestLargeBlockCAS(t *testing.T) {
	bd := alloc(t, 8192, heap.APPENDABLE)
	require.True(t, TrySetUsed(bd.Base, bd.Size, 100, false, false, 0))
	require.Equal(t, uintptr(100), ReadUsed(bd.Base, bd.Size))

	require.False(t, TrySetUsed(bd.Base, bd.Size, 200, false, true, 999))
	require.True(t, TrySetUsed(bd.Base, bd.Size, 200, false, true, 100))
	require.Equal(t, uintptr(200), ReadUsed(bd.Base, bd.Size))
}

func TestSharedUpdateSerializesThroughGlobalLock(t *testing.T) {
	bd := alloc(t, 64, heap.APPENDABLE)
	require.True(t, TrySetUsed(bd.Base, bd.Size, 5, true, false, 0))
	require.True(t, TrySetUsed(bd.Base, bd.Size, 8, true, true, 5))
	require.Equal(t, uintptr(8), ReadUsed(bd.Base, bd.Size))
}

func TestNoRoomFails(t *testing.T) {
	bd := alloc(t, 64, heap.APPENDABLE)
	ok := TrySetUsed(bd.Base, bd.Size, bd.Size, false, false, 0)
	require.False(t, ok, "newLen+pad must not exceed the block size")
}

func TestPanicsWhenEncodingOverflows(t *testing.T) {
	bd := alloc(t, 64, heap.APPENDABLE)
	require.Panics(t, func() {
		TrySetUsed(bd.Base, bd.Size, 300, false, false, 0)
	})
}

func TestInitSentinelOnlyTouchesLargeBlocks(t *testing.T) {
	small := alloc(t, 64, heap.APPENDABLE)
	require.True(t, TrySetUsed(small.Base, small.Size, 10, false, false, 0))
	before := ReadUsed(small.Base, small.Size)
	InitSentinel(small.Base, small.Size)
	require.Equal(t, before, ReadUsed(small.Base, small.Size))

	large := alloc(t, 8192, heap.APPENDABLE)
	InitSentinel(large.Base, large.Size)
	sentinel := *(*byte)(unsafe.Pointer(large.Base + large.Size - 1))
	require.Zero(t, sentinel)
}
