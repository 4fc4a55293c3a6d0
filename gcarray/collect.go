package gcarray

import (
	"github.com/tinygo-org/gcarray/internal/blockcache"
	"github.com/tinygo-org/gcarray/internal/heap"
)

// Collect runs one mark/sweep pass over rt's collector using roots, then
// runs the sweep hook against every registered block-info cache so any
// cached entry pointing into a block the pass just freed is invalidated.
// Callers must collect through this method rather than calling the
// collector's own Collect directly: skipping the hook leaves stale cache
// entries that can hand out a descriptor for memory the allocator has
// already reused.
func (rt *Runtime) Collect(roots []heap.Root) uintptr {
	freed := rt.gc.Collect(roots)
	blockcache.ProcessGCMarks(rt.gc)
	return freed
}
