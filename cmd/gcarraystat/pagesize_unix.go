//go:build !windows

package main

import "golang.org/x/sys/unix"

// defaultArenaSize sizes the demo arena to a round number of host memory
// pages, the same unit the block-layout package's own PageSize constant is
// expressed in, rather than an arbitrary constant.
func defaultArenaSize() int {
	pages := 4096
	return unix.Getpagesize() * pages
}
