package gpu

import "errors"

var (
	// ErrUnavailable is returned when no usable compute device exists.
	ErrUnavailable = errors.New("gpu: compute backend unavailable")

	// ErrSurfaceTooLarge is returned when an image exceeds the largest
	// storage buffer a single binding may address.
	ErrSurfaceTooLarge = errors.New("gpu: image exceeds storage binding limit")

	// ErrClosed is returned when using a closed backend.
	ErrClosed = errors.New("gpu: backend closed")
)

// MaxSurfaceBytes is the largest packed image the backend accepts (128 MB,
// the default maxStorageBufferBindingSize).
const MaxSurfaceBytes = 128 << 20
