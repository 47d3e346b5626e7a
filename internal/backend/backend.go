// Package backend defines the compute strategy the pipeline drives and its
// portable CPU implementation.
//
// A Surface is an opaque image handle owned by one backend. Upload copies a
// CPU image into a new surface; Readback copies a surface into a new CPU
// image. Operations consume their input surface on success and return the
// result surface, which may be the input itself when the operation is an
// identity. On failure the input surface stays valid and owned by the caller.
package backend

import (
	"errors"

	"github.com/gogpu/darkroom/internal/kernel"
)

// Kind names a backend implementation.
type Kind string

// Backend kinds.
const (
	KindGPU Kind = "gpu"
	KindCPU Kind = "cpu"
)

// ErrForeignSurface is returned when a surface is passed to a backend that
// did not create it.
var ErrForeignSurface = errors.New("backend: surface belongs to another backend")

// Surface is an image resident on a backend.
type Surface interface {
	Size() (width, height int)
}

// ComputeBackend executes the fixed set of photographic kernels.
type ComputeBackend interface {
	Kind() Kind

	Upload(img *kernel.Image) (Surface, error)
	Readback(s Surface) (*kernel.Image, error)
	Release(s Surface)

	Rotate(s Surface, degrees float64, q kernel.Quality) (Surface, error)
	Adjust(s Surface, a kernel.Adjust) (Surface, error)
	ApplyLUT(s Surface, lut *[256]uint8) (Surface, error)
	ApplyMask(s Surface, m kernel.Mask) (Surface, error)
	Histogram(s Surface) (kernel.Histogram, error)
}
