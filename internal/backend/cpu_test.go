package backend

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/darkroom/internal/kernel"
)

type otherSurface struct{}

func (otherSurface) Size() (int, int) { return 1, 1 }

func testImage(w, h int) *kernel.Image {
	im := kernel.NewImage(w, h)
	for i := range im.Pix {
		im.Pix[i] = uint8(i * 31)
	}
	return im
}

func TestCPUUploadReadbackCopies(t *testing.T) {
	b := NewCPU()
	src := testImage(5, 3)
	s, err := b.Upload(src)
	if err != nil {
		t.Fatal(err)
	}
	src.Pix[0] ^= 0xFF

	out, err := b.Readback(s)
	if err != nil {
		t.Fatal(err)
	}
	if out.Pix[0] == src.Pix[0] {
		t.Error("surface aliases the uploaded buffer")
	}
	if w, h := s.Size(); w != 5 || h != 3 {
		t.Errorf("Size = %dx%d", w, h)
	}
}

func TestCPUChainMatchesKernels(t *testing.T) {
	b := NewCPU()
	src := testImage(16, 9)
	a := kernel.Adjust{Exposure: 0.5, Contrast: 0.2}
	var lut [256]uint8
	for i := range lut {
		lut[i] = uint8(255 - i)
	}
	m := kernel.Mask{Kind: kernel.MaskRadial, CenterX: 0.5, CenterY: 0.5, RadiusX: 0.3, RadiusY: 0.3, Adjust: kernel.Adjust{Saturation: -1}}

	s, _ := b.Upload(src)
	var err error
	if s, err = b.Rotate(s, 90, kernel.QualityBilinear); err != nil {
		t.Fatal(err)
	}
	if s, err = b.Adjust(s, a); err != nil {
		t.Fatal(err)
	}
	if s, err = b.ApplyLUT(s, &lut); err != nil {
		t.Fatal(err)
	}
	if s, err = b.ApplyMask(s, m); err != nil {
		t.Fatal(err)
	}
	got, err := b.Readback(s)
	if err != nil {
		t.Fatal(err)
	}

	want := kernel.ApplyMask(kernel.ApplyLUT(kernel.Adjustments(kernel.Rotate(src, 90, kernel.QualityBilinear), a), &lut), m)
	if !bytes.Equal(got.Pix, want.Pix) {
		t.Error("backend chain differs from direct kernel calls")
	}
}

func TestCPUForeignSurface(t *testing.T) {
	b := NewCPU()
	if _, err := b.Readback(otherSurface{}); !errors.Is(err, ErrForeignSurface) {
		t.Errorf("Readback: err = %v", err)
	}
	if _, err := b.Adjust(otherSurface{}, kernel.Adjust{}); !errors.Is(err, ErrForeignSurface) {
		t.Errorf("Adjust: err = %v", err)
	}

	s, _ := b.Upload(testImage(2, 2))
	b.Release(s)
	if _, err := b.Readback(s); !errors.Is(err, ErrForeignSurface) {
		t.Errorf("Readback after Release: err = %v", err)
	}
}

func TestCPUHistogram(t *testing.T) {
	b := NewCPU()
	s, _ := b.Upload(kernel.NewImage(4, 4))
	h, err := b.Histogram(s)
	if err != nil {
		t.Fatal(err)
	}
	if h.R[0] != 16 || h.L[0] != 16 {
		t.Errorf("black image bins = %d,%d, want 16", h.R[0], h.L[0])
	}
}
