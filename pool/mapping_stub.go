// File: pool/mapping_stub.go
// Package pool: Go-heap fallback for host region backing.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build !linux

package pool

// mapHostRegion falls back to the Go heap on platforms without the
// mmap-based fast path.
func mapHostRegion(size uint64) ([]byte, error) {
	return make([]byte, size), nil
}

// unmapHostRegion is a no-op for heap-backed regions.
func unmapHostRegion(data []byte) {}
