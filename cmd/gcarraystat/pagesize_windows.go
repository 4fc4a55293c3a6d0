//go:build windows

package main

// defaultArenaSize falls back to a fixed 64 MiB arena on platforms where
// querying the host page size isn't wired up.
func defaultArenaSize() int {
	return 64 << 20
}
