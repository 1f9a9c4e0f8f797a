// File: pool/doc.go
// Package pool implements the memory pools backing buffer objects.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Two pools exist per device: a fixed-size VRAM pool driven by the
// core/mm range allocator over a simulated aperture window, and an
// unbounded system-memory pool used as eviction fallback. Host regions
// come from anonymous mmap on Linux and the Go heap elsewhere,
// following the platform split used by the buffer pools in hioload-ws.
package pool
