// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for the power module.

package power

import "errors"

var (
	// ErrWorkerClosed indicates the deferred worker has been shut down
	ErrWorkerClosed = errors.New("deferred worker is closed")
)
