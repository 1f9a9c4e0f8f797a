// File: facade/dumb.go
// Package facade: dumb-buffer creation helper.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Dumb buffers are the simple framebuffer path: the caller supplies
// geometry, the helper derives pitch and size and creates the backing
// buffer object with the default dual placement.

package facade

import (
	"github.com/cockroachdb/errors"

	"github.com/momentics/hioload-vram/api"
)

// DumbInfo describes a created dumb buffer.
type DumbInfo struct {
	Handle Handle
	Pitch  uint64
	Size   uint64 // page-rounded
}

// CreateDumb creates a buffer object sized for a width x height
// framebuffer at bpp bits per pixel.
func (v *VRAM) CreateDumb(width, height, bpp uint32) (DumbInfo, error) {
	pitch := uint64(width) * uint64((bpp+7)/8)
	size := pitch * uint64(height)
	if size == 0 {
		return DumbInfo{}, errors.Wrapf(api.ErrInvalidSize,
			"dumb buffer %dx%d at %d bpp", width, height, bpp)
	}

	obj, err := v.mgr.CreateBuffer(size, 0)
	if err != nil {
		return DumbInfo{}, err
	}
	return DumbInfo{
		Handle: v.handles.insert(obj),
		Pitch:  pitch,
		Size:   obj.Size(),
	}, nil
}
