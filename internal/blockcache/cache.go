// Package blockcache implements the per-thread, 8-way, MRU-biased cache
// mapping an interior pointer to the block it belongs to, plus the registry
// the collector's sweep hook uses to keep every live cache coherent.
//
// The design notes call out two ways to find a thread's cache during sweep:
// record the offset of the cache pointer inside each thread's TLS block and
// have the collector walk every thread's TLS, or have each thread
// self-register its cache with the collector on creation and unregister on
// teardown. Go has no implicit TLS layout to hang an offset off of, so this
// package takes the second, "strictly cleaner" option: NewCache registers
// the cache in a package-level registry and Release removes it, mirroring
// how a goroutine would `defer cache.Release()` the way a thread-exit hook
// would in the original design.
package blockcache

import (
	"sync"

	"github.com/tinygo-org/gcarray/internal/heap"
)

const nCacheBlocks = 8 // power of two: indexing uses mask arithmetic

// Cache is one thread's (goroutine's) view of recently touched blocks. The
// zero value is not usable; construct one with NewCache and Release it when
// the owning goroutine is done with it.
type Cache struct {
	mu      sync.Mutex // guards entries against the sweep hook running concurrently
	entries [nCacheBlocks]heap.BlockDescriptor
	head    int
}

var registry struct {
	mu     sync.Mutex
	caches map[*Cache]struct{}
}

func init() {
	registry.caches = make(map[*Cache]struct{})
}

// NewCache allocates a cache and registers it so that ProcessGCMarks (the
// collector's sweep hook) will visit it. Non-shared array operations should
// hold one Cache per goroutine; shared-typed slices bypass the cache
// entirely and never need one.
func NewCache() *Cache {
	c := &Cache{head: -1}
	registry.mu.Lock()
	registry.caches[c] = struct{}{}
	registry.mu.Unlock()
	return c
}

// Release unregisters the cache and drops its contents. Call this when the
// owning goroutine is about to exit, the same way TLS teardown frees the
// cache array on thread exit.
func (c *Cache) Release() {
	registry.mu.Lock()
	delete(registry.caches, c)
	registry.mu.Unlock()

	c.mu.Lock()
	c.entries = [nCacheBlocks]heap.BlockDescriptor{}
	c.head = -1
	c.mu.Unlock()
}

// Find scans the cache for an entry whose block contains interior, biasing
// the scan toward the most-recently-inserted slot first.
func (c *Cache) Find(interior uintptr) (heap.BlockDescriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.head < 0 {
		return heap.BlockDescriptor{}, false
	}
	// Scan from head down to zero, then from the top down to just above head,
	// so the most recently touched entries are checked first.
	for i := c.head; i >= 0; i-- {
		if e := c.entries[i]; e.Base != 0 && contains(e, interior) {
			return e, true
		}
	}
	for i := nCacheBlocks - 1; i > c.head; i-- {
		if e := c.entries[i]; e.Base != 0 && contains(e, interior) {
			return e, true
		}
	}
	return heap.BlockDescriptor{}, false
}

func contains(e heap.BlockDescriptor, interior uintptr) bool {
	return e.Base != 0 && interior >= e.Base && interior < e.Base+e.Size
}

// Insert records bi in the cache. If hit reports the slot bi was already
// found at (from a prior Find) and that slot is not head, the entry at head
// is moved into the hit slot, head advances by one, and bi is written at the
// new head, replacing the entry that was there. A hit at head is overwritten
// in place. Otherwise bi evicts the next slot past head (LRU-order eviction
// over 8 slots).
func (c *Cache) Insert(bi heap.BlockDescriptor, hitIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.head < 0 {
		c.head = 0
		c.entries[0] = bi
		return
	}

	if hitIndex >= 0 && hitIndex != c.head {
		c.entries[hitIndex] = c.entries[c.head]
		c.head = (c.head + 1) % nCacheBlocks
		c.entries[c.head] = bi
		return
	}
	if hitIndex == c.head {
		c.entries[c.head] = bi
		return
	}

	c.head = (c.head + 1) % nCacheBlocks
	c.entries[c.head] = bi
}

// FindIndex is like Find but also reports the slot index, for callers that
// intend to call Insert with hit semantics afterward.
func (c *Cache) FindIndex(interior uintptr) (heap.BlockDescriptor, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.head < 0 {
		return heap.BlockDescriptor{}, -1
	}
	for i := c.head; i >= 0; i-- {
		if e := c.entries[i]; contains(e, interior) {
			return e, i
		}
	}
	for i := nCacheBlocks - 1; i > c.head; i-- {
		if e := c.entries[i]; contains(e, interior) {
			return e, i
		}
	}
	return heap.BlockDescriptor{}, -1
}

// ProcessGCMarks is the sweep hook: for every registered cache, zero out any
// entry whose base the collector reports is being collected. Called by the
// collector after marking, before the swept memory is reused.
func ProcessGCMarks(g *heap.GC) {
	registry.mu.Lock()
	caches := make([]*Cache, 0, len(registry.caches))
	for c := range registry.caches {
		caches = append(caches, c)
	}
	registry.mu.Unlock()

	for _, c := range caches {
		c.mu.Lock()
		for i := range c.entries {
			base := c.entries[i].Base
			if base != 0 && g.IsCollecting(base) {
				c.entries[i] = heap.BlockDescriptor{}
			}
		}
		c.mu.Unlock()
	}
}
