// File: pool/mapping_linux.go
// Package pool: host region backing via anonymous mmap.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build linux

package pool

import "golang.org/x/sys/unix"

// mapHostRegion reserves size bytes of anonymous memory outside the Go
// heap. Large buffer backings would otherwise distort GC pacing.
func mapHostRegion(size uint64) ([]byte, error) {
	data, err := unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// unmapHostRegion releases a region obtained from mapHostRegion.
func unmapHostRegion(data []byte) {
	if data == nil {
		return
	}
	_ = unix.Munmap(data)
}
