package resource

import (
	"errors"
	"fmt"
)

// CopyRowAlignment is the row pitch alignment required by buffer↔texture
// and strided buffer copies.
const CopyRowAlignment = 256

// ErrMisaligned is returned when a padded row pitch does not satisfy the
// copy alignment, or a buffer does not match the layout it claims.
var ErrMisaligned = errors.New("resource: row pitch misaligned")

// RowLayout describes a Width×Height image whose rows are copied into a
// buffer with each row starting on an Alignment boundary.
type RowLayout struct {
	Width         int
	Height        int
	BytesPerPixel int
	Alignment     int
}

// NewRowLayout returns the layout for a w×h image at bpp bytes per pixel
// using CopyRowAlignment.
func NewRowLayout(w, h, bpp int) RowLayout {
	return RowLayout{Width: w, Height: h, BytesPerPixel: bpp, Alignment: CopyRowAlignment}
}

// BytesPerRow is the unpadded row length.
func (l RowLayout) BytesPerRow() int {
	return l.Width * l.BytesPerPixel
}

// PaddedBytesPerRow rounds BytesPerRow up to the alignment.
func (l RowLayout) PaddedBytesPerRow() int {
	a := l.Alignment
	if a <= 1 {
		return l.BytesPerRow()
	}
	return (l.BytesPerRow() + a - 1) / a * a
}

// PaddedSize is the buffer size holding every padded row.
func (l RowLayout) PaddedSize() int {
	return l.PaddedBytesPerRow() * l.Height
}

// TightSize is the size of the image without padding.
func (l RowLayout) TightSize() int {
	return l.BytesPerRow() * l.Height
}

// Validate checks that the layout is usable for a strided copy.
func (l RowLayout) Validate() error {
	if l.Width <= 0 || l.Height <= 0 || l.BytesPerPixel <= 0 {
		return fmt.Errorf("%w: invalid layout %dx%d@%d", ErrMisaligned, l.Width, l.Height, l.BytesPerPixel)
	}
	if l.Alignment > 0 && l.PaddedBytesPerRow()%l.Alignment != 0 {
		return fmt.Errorf("%w: pitch %d not a multiple of %d", ErrMisaligned, l.PaddedBytesPerRow(), l.Alignment)
	}
	return nil
}

// Pad copies tightly packed rows into a freshly allocated padded buffer.
func (l RowLayout) Pad(tight []byte) ([]byte, error) {
	if len(tight) != l.TightSize() {
		return nil, fmt.Errorf("%w: got %d bytes, layout needs %d", ErrMisaligned, len(tight), l.TightSize())
	}
	bpr, pitch := l.BytesPerRow(), l.PaddedBytesPerRow()
	if bpr == pitch {
		out := make([]byte, len(tight))
		copy(out, tight)
		return out, nil
	}
	out := make([]byte, l.PaddedSize())
	for y := 0; y < l.Height; y++ {
		copy(out[y*pitch:y*pitch+bpr], tight[y*bpr:(y+1)*bpr])
	}
	return out, nil
}

// Strip removes row padding, returning a freshly allocated tight buffer.
func (l RowLayout) Strip(padded []byte) ([]byte, error) {
	if len(padded) != l.PaddedSize() {
		return nil, fmt.Errorf("%w: got %d bytes, layout needs %d", ErrMisaligned, len(padded), l.PaddedSize())
	}
	bpr, pitch := l.BytesPerRow(), l.PaddedBytesPerRow()
	out := make([]byte, l.TightSize())
	for y := 0; y < l.Height; y++ {
		copy(out[y*bpr:(y+1)*bpr], padded[y*pitch:y*pitch+bpr])
	}
	return out, nil
}

// CopyRegion is one contiguous buffer-to-buffer copy.
type CopyRegion struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// CopyRegions returns the per-row copies that move a tightly packed source
// buffer into a padded destination. Each destination offset is aligned.
func (l RowLayout) CopyRegions() []CopyRegion {
	bpr, pitch := uint64(l.BytesPerRow()), uint64(l.PaddedBytesPerRow())
	regions := make([]CopyRegion, l.Height)
	for y := range regions {
		regions[y] = CopyRegion{
			SrcOffset: uint64(y) * bpr,
			DstOffset: uint64(y) * pitch,
			Size:      bpr,
		}
	}
	return regions
}
