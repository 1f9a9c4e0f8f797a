// File: api/doc.go
// Package api defines the public contracts of hioload-vram.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// hioload-vram manages buffer objects that live either in dedicated
// device memory (VRAM) or in spilled-to-system-memory fallback. The api
// package carries only interfaces, value types and error definitions;
// implementations live in core/, pool/, device/, power/ and engine/.
//
// All placement, pin and mapping operations execute under a per-object
// reservation lock held by the implementation. Pool-level locks are
// always acquired inside the object lock, never the other way around.
package api
