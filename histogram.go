package darkroom

import (
	"image"
	"image/color"

	"github.com/gogpu/darkroom/internal/kernel"
)

// Clipping reports whether a channel has pixels at the ends of its range.
type Clipping struct {
	Shadows    bool // bin 0 is nonzero
	Highlights bool // bin 255 is nonzero
}

// HistogramResult holds 256-bin counts for each channel and BT.709
// luminance.
type HistogramResult struct {
	Red, Green, Blue, Luminance [256]uint32

	// MaxValue is the largest bin across all four channels.
	MaxValue uint32

	RedClipping, GreenClipping, BlueClipping, LuminanceClipping Clipping
}

func newHistogramResult(h kernel.Histogram) HistogramResult {
	res := HistogramResult{Red: h.R, Green: h.G, Blue: h.B, Luminance: h.L}
	for _, bins := range []*[256]uint32{&h.R, &h.G, &h.B, &h.L} {
		for _, n := range bins {
			res.MaxValue = max(res.MaxValue, n)
		}
	}
	res.RedClipping = clippingOf(&h.R)
	res.GreenClipping = clippingOf(&h.G)
	res.BlueClipping = clippingOf(&h.B)
	res.LuminanceClipping = clippingOf(&h.L)
	return res
}

func clippingOf(bins *[256]uint32) Clipping {
	return Clipping{Shadows: bins[0] > 0, Highlights: bins[255] > 0}
}

// ShadowMask returns the channels that are shadow-clipped.
func (r HistogramResult) ShadowMask() ClipMask {
	return clipMask(r.RedClipping.Shadows, r.GreenClipping.Shadows, r.BlueClipping.Shadows)
}

// HighlightMask returns the channels that are highlight-clipped.
func (r HistogramResult) HighlightMask() ClipMask {
	return clipMask(r.RedClipping.Highlights, r.GreenClipping.Highlights, r.BlueClipping.Highlights)
}

// ComputeHistogram computes the histogram of img on the CPU.
func ComputeHistogram(img *RasterImage) (HistogramResult, error) {
	if err := img.Validate(); err != nil {
		return HistogramResult{}, err
	}
	k := &kernel.Image{Width: img.Width, Height: img.Height, Pix: img.Pixels}
	return newHistogramResult(kernel.ComputeHistogram(k)), nil
}

// ClipMask is a set of clipped color channels.
type ClipMask uint8

// Channel bits.
const (
	ClipRed ClipMask = 1 << iota
	ClipGreen
	ClipBlue

	ClipAll = ClipRed | ClipGreen | ClipBlue
)

func clipMask(r, g, b bool) ClipMask {
	var m ClipMask
	if r {
		m |= ClipRed
	}
	if g {
		m |= ClipGreen
	}
	if b {
		m |= ClipBlue
	}
	return m
}

// ClipColor returns the overlay color for a set of clipped channels: white
// when all three clip, the channel's primary when one clips and the
// secondary between them when two clip. ok is false for an empty mask.
func ClipColor(m ClipMask) (c color.RGBA, ok bool) {
	m &= ClipAll
	if m == 0 {
		return color.RGBA{}, false
	}
	c.A = 0xFF
	if m&ClipRed != 0 {
		c.R = 0xFF
	}
	if m&ClipGreen != 0 {
		c.G = 0xFF
	}
	if m&ClipBlue != 0 {
		c.B = 0xFF
	}
	return c, true
}

// ClippingOverlay marks clipped pixels of img. Highlight-clipped pixels get
// ClipColor of their clipped channels; shadow-clipped pixels get its
// complement. All other pixels are transparent. Highlights win when a pixel
// clips both ways.
func ClippingOverlay(img *RasterImage) (*image.NRGBA, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	for i, j := 0, 0; i < len(img.Pixels); i, j = i+3, j+4 {
		r, g, b := img.Pixels[i], img.Pixels[i+1], img.Pixels[i+2]
		if c, ok := ClipColor(clipMask(r == 0xFF, g == 0xFF, b == 0xFF)); ok {
			out.Pix[j], out.Pix[j+1], out.Pix[j+2], out.Pix[j+3] = c.R, c.G, c.B, 0xFF
			continue
		}
		if c, ok := ClipColor(clipMask(r == 0, g == 0, b == 0)); ok {
			out.Pix[j], out.Pix[j+1], out.Pix[j+2], out.Pix[j+3] = ^c.R, ^c.G, ^c.B, 0xFF
		}
	}
	return out, nil
}
