package heap

// freeList tracks reclaimed spans of the arena, coalescing adjacent spans on
// insert so that Extend can find room after a block whose neighbour was
// freed. TinyGo's allocator keeps this as two nested intrusive linked lists
// threaded through the freed memory itself (see gc_blocks.go's freeRange /
// freeRangeMore) to avoid any metadata allocation on a microcontroller; a
// hosted process has no such constraint, so this is a plain sorted slice of
// spans instead.
type span struct {
	offset uintptr
	length uintptr
}

type freeList struct {
	spans []span // sorted by offset
}

func (f *freeList) insert(offset, length uintptr) {
	spans := f.spans
	i := 0
	for i < len(spans) && spans[i].offset < offset {
		i++
	}
	spans = append(spans, span{})
	copy(spans[i+1:], spans[i:])
	spans[i] = span{offset: offset, length: length}
	f.spans = spans
	f.coalesce()
}

func (f *freeList) coalesce() {
	out := f.spans[:0]
	for _, s := range f.spans {
		if n := len(out); n > 0 && out[n-1].offset+out[n-1].length == s.offset {
			out[n-1].length += s.length
			continue
		}
		out = append(out, s)
	}
	f.spans = out
}

// pop removes and returns the base of the smallest span that is at least
// size bytes long (best fit), or ok=false if none is large enough.
func (f *freeList) pop(size uintptr) (uintptr, bool) {
	best := -1
	for i, s := range f.spans {
		if s.length < size {
			continue
		}
		if best == -1 || s.length < f.spans[best].length {
			best = i
		}
	}
	if best == -1 {
		return 0, false
	}
	s := f.spans[best]
	if s.length == size {
		f.spans = append(f.spans[:best], f.spans[best+1:]...)
	} else {
		f.spans[best].offset += size
		f.spans[best].length -= size
	}
	return s.offset, true
}

// takeAdjacent removes between minExtra and maxExtra bytes from the free
// span starting exactly at offset, if one exists and is large enough.
func (f *freeList) takeAdjacent(offset, minExtra, maxExtra uintptr) (uintptr, bool) {
	for i, s := range f.spans {
		if s.offset != offset {
			continue
		}
		if s.length < minExtra {
			return 0, false
		}
		take := s.length
		if take > maxExtra {
			take = maxExtra
		}
		if take == s.length {
			f.spans = append(f.spans[:i], f.spans[i+1:]...)
		} else {
			f.spans[i].offset += take
			f.spans[i].length -= take
		}
		return take, true
	}
	return 0, false
}
