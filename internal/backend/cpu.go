package backend

import "github.com/gogpu/darkroom/internal/kernel"

// CPU runs the reference kernels in process memory.
type CPU struct{}

// NewCPU returns the CPU backend.
func NewCPU() *CPU { return &CPU{} }

type cpuSurface struct {
	img *kernel.Image
}

func (s *cpuSurface) Size() (int, int) { return s.img.Width, s.img.Height }

// Kind returns KindCPU.
func (*CPU) Kind() Kind { return KindCPU }

// Upload copies img so later edits to the caller's buffer cannot leak in.
func (*CPU) Upload(img *kernel.Image) (Surface, error) {
	return &cpuSurface{img: img.Clone()}, nil
}

// Readback returns a copy of the surface pixels.
func (*CPU) Readback(s Surface) (*kernel.Image, error) {
	cs, err := asCPU(s)
	if err != nil {
		return nil, err
	}
	return cs.img.Clone(), nil
}

// Release drops the surface.
func (*CPU) Release(s Surface) {
	if cs, ok := s.(*cpuSurface); ok {
		cs.img = nil
	}
}

// Rotate implements ComputeBackend.
func (*CPU) Rotate(s Surface, degrees float64, q kernel.Quality) (Surface, error) {
	return mapSurface(s, func(im *kernel.Image) *kernel.Image {
		return kernel.Rotate(im, degrees, q)
	})
}

// Adjust implements ComputeBackend.
func (*CPU) Adjust(s Surface, a kernel.Adjust) (Surface, error) {
	return mapSurface(s, func(im *kernel.Image) *kernel.Image {
		return kernel.Adjustments(im, a)
	})
}

// ApplyLUT implements ComputeBackend.
func (*CPU) ApplyLUT(s Surface, lut *[256]uint8) (Surface, error) {
	return mapSurface(s, func(im *kernel.Image) *kernel.Image {
		return kernel.ApplyLUT(im, lut)
	})
}

// ApplyMask implements ComputeBackend.
func (*CPU) ApplyMask(s Surface, m kernel.Mask) (Surface, error) {
	return mapSurface(s, func(im *kernel.Image) *kernel.Image {
		return kernel.ApplyMask(im, m)
	})
}

// Histogram implements ComputeBackend.
func (*CPU) Histogram(s Surface) (kernel.Histogram, error) {
	cs, err := asCPU(s)
	if err != nil {
		return kernel.Histogram{}, err
	}
	return kernel.ComputeHistogram(cs.img), nil
}

// mapSurface replaces the surface image in place. The kernels never modify
// their input, so a returned identity image is safe to keep.
func mapSurface(s Surface, fn func(*kernel.Image) *kernel.Image) (Surface, error) {
	cs, err := asCPU(s)
	if err != nil {
		return nil, err
	}
	cs.img = fn(cs.img)
	return cs, nil
}

func asCPU(s Surface) (*cpuSurface, error) {
	cs, ok := s.(*cpuSurface)
	if !ok || cs.img == nil {
		return nil, ErrForeignSurface
	}
	return cs, nil
}
