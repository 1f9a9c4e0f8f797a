// File: control/doc.go
// Package control provides runtime observability for hioload-vram.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The facade publishes pool accounting and wake transition counters
// into the metrics registry and registers debug probes, among them the
// "vram-mm" probe dumping the VRAM free-range list. Nothing here
// affects behavior; it is read-only introspection.
package control
