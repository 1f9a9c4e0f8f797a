// File: api/addr.go
// Package api provides the address helper for mappings.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "unsafe"

// bytesAddr returns the base address of a non-empty byte view.
func bytesAddr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}
