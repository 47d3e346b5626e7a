package darkroom

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/gogpu/darkroom/internal/backend"
	"github.com/gogpu/darkroom/internal/kernel"
)

var errInjected = errors.New("injected device error")

// fakeGPU reports itself as a GPU but runs the CPU kernels, so its output
// is exactly the CPU reference. Operations named in fail return the mapped
// error; newFakeGPU maps them to errInjected.
type fakeGPU struct {
	*backend.CPU

	mu        sync.Mutex
	fail      map[string]error
	uploads   int
	readbacks int
	trims     int
	closes    int
}

func newFakeGPU(failing ...string) *fakeGPU {
	f := &fakeGPU{CPU: backend.NewCPU(), fail: make(map[string]error)}
	for _, op := range failing {
		f.fail[op] = errInjected
	}
	return f
}

func (f *fakeGPU) Kind() backend.Kind { return backend.KindGPU }

func (f *fakeGPU) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[op]; err != nil {
		return err
	}
	switch op {
	case "upload":
		f.uploads++
	case "readback":
		f.readbacks++
	}
	return nil
}

func (f *fakeGPU) counts() (uploads, readbacks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads, f.readbacks
}

func (f *fakeGPU) Upload(img *kernel.Image) (backend.Surface, error) {
	if err := f.check("upload"); err != nil {
		return nil, err
	}
	return f.CPU.Upload(img)
}

func (f *fakeGPU) Readback(s backend.Surface) (*kernel.Image, error) {
	if err := f.check("readback"); err != nil {
		return nil, err
	}
	return f.CPU.Readback(s)
}

func (f *fakeGPU) Rotate(s backend.Surface, deg float64, q kernel.Quality) (backend.Surface, error) {
	if err := f.check("rotate"); err != nil {
		return nil, err
	}
	return f.CPU.Rotate(s, deg, q)
}

func (f *fakeGPU) Adjust(s backend.Surface, a kernel.Adjust) (backend.Surface, error) {
	if err := f.check("adjust"); err != nil {
		return nil, err
	}
	return f.CPU.Adjust(s, a)
}

func (f *fakeGPU) ApplyLUT(s backend.Surface, lut *[256]uint8) (backend.Surface, error) {
	if err := f.check("lut"); err != nil {
		return nil, err
	}
	return f.CPU.ApplyLUT(s, lut)
}

func (f *fakeGPU) ApplyMask(s backend.Surface, m kernel.Mask) (backend.Surface, error) {
	if err := f.check("mask"); err != nil {
		return nil, err
	}
	return f.CPU.ApplyMask(s, m)
}

func (f *fakeGPU) Histogram(s backend.Surface) (kernel.Histogram, error) {
	if err := f.check("histogram"); err != nil {
		return kernel.Histogram{}, err
	}
	return f.CPU.Histogram(s)
}

// newFakeService returns a service whose probe yields f.
func newFakeService(t *testing.T, f *fakeGPU, opts ...ServiceOption) *Service {
	t.Helper()
	probe := withProbe(func() (*gpuSession, error) {
		return &gpuSession{
			backend: f,
			adapter: "fake",
			trim: func() {
				f.mu.Lock()
				f.trims++
				f.mu.Unlock()
			},
			close: func() {
				f.mu.Lock()
				f.closes++
				f.mu.Unlock()
			},
		}, nil
	})
	svc := NewService(append([]ServiceOption{probe}, opts...)...)
	t.Cleanup(svc.Teardown)
	return svc
}

func randomRaster(w, h int, seed int64) *RasterImage {
	img := NewRasterImage(w, h)
	rand.New(rand.NewSource(seed)).Read(img.Pixels)
	return img
}

func solidRaster(w, h int, r, g, b uint8) *RasterImage {
	img := NewRasterImage(w, h)
	for i := 0; i < len(img.Pixels); i += 3 {
		img.Pixels[i], img.Pixels[i+1], img.Pixels[i+2] = r, g, b
	}
	return img
}
