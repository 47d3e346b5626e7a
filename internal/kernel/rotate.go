package kernel

import (
	"math"

	"golang.org/x/image/math/f64"
)

// Quality selects the resampling filter for arbitrary-angle rotation.
type Quality uint8

const (
	// QualityBilinear interpolates the 4 nearest pixels. Used for previews.
	QualityBilinear Quality = iota

	// QualityLanczos weights a 6×6 neighborhood with a Lanczos-3 window.
	// Used for export renders.
	QualityLanczos
)

// String returns the filter name.
func (q Quality) String() string {
	switch q {
	case QualityBilinear:
		return "Bilinear"
	case QualityLanczos:
		return "Lanczos3"
	default:
		return "Unknown"
	}
}

// NormalizeAngle maps an angle in degrees into (-180, 180].
func NormalizeAngle(deg float64) float64 {
	a := math.Mod(deg, 360)
	if a <= -180 {
		a += 360
	} else if a > 180 {
		a -= 360
	}
	return a
}

// RotatedBounds returns the canvas size that contains a w×h image rotated by
// deg degrees. Quarter turns swap the dimensions exactly.
func RotatedBounds(w, h int, deg float64) (int, int) {
	switch NormalizeAngle(deg) {
	case 0, 180:
		return w, h
	case 90, -90:
		return h, w
	}
	rad := deg * math.Pi / 180
	c, s := math.Abs(math.Cos(rad)), math.Abs(math.Sin(rad))
	fw, fh := float64(w), float64(h)
	ow := int(math.Ceil(fw*c + fh*s - 1e-6))
	oh := int(math.Ceil(fw*s + fh*c - 1e-6))
	return max(ow, 1), max(oh, 1)
}

// InverseTransform maps a point of the (ow×oh) rotated canvas back into the
// (w×h) source. Positive angles rotate counter-clockwise as displayed, with
// the y axis pointing down. Both spaces use continuous pixel coordinates in
// which pixel i covers [i, i+1).
func InverseTransform(w, h, ow, oh int, deg float64) f64.Aff3 {
	rad := deg * math.Pi / 180
	c, s := math.Cos(rad), math.Sin(rad)
	hw, hh := float64(w)/2, float64(h)/2
	ohw, ohh := float64(ow)/2, float64(oh)/2
	return f64.Aff3{
		c, -s, hw - c*ohw + s*ohh,
		s, c, hh - s*ohw - c*ohh,
	}
}

// Rotate rotates src by deg degrees onto an expanded canvas. Multiples of
// 90° are exact index remaps; other angles resample with q and fill
// uncovered canvas with black.
func Rotate(src *Image, deg float64, q Quality) *Image {
	switch NormalizeAngle(deg) {
	case 0:
		return src
	case 90:
		return rotate90(src)
	case 180:
		return rotate180(src)
	case -90:
		return rotate270(src)
	}

	ow, oh := RotatedBounds(src.Width, src.Height, deg)
	m := InverseTransform(src.Width, src.Height, ow, oh, deg)
	dst := NewImage(ow, oh)

	sample := sampleBilinear
	if q == QualityLanczos {
		sample = sampleLanczos
	}

	forEachBand(oh, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			cy := float64(y) + 0.5
			for x := 0; x < ow; x++ {
				cx := float64(x) + 0.5
				sx := m[0]*cx + m[1]*cy + m[2]
				sy := m[3]*cx + m[4]*cy + m[5]
				if sx < 0 || sy < 0 || sx >= float64(src.Width) || sy >= float64(src.Height) {
					continue
				}
				i := (y*ow + x) * 3
				dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2] = sample(src, sx-0.5, sy-0.5)
			}
		}
	})
	return dst
}

// rotate90 turns counter-clockwise: source (x,y) lands on (y, W-1-x).
func rotate90(src *Image) *Image {
	w, h := src.Width, src.Height
	dst := NewImage(h, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			si := (y*w + x) * 3
			di := ((w-1-x)*h + y) * 3
			copy(dst.Pix[di:di+3], src.Pix[si:si+3])
		}
	}
	return dst
}

func rotate180(src *Image) *Image {
	w, h := src.Width, src.Height
	dst := NewImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			si := (y*w + x) * 3
			di := ((h-1-y)*w + (w - 1 - x)) * 3
			copy(dst.Pix[di:di+3], src.Pix[si:si+3])
		}
	}
	return dst
}

// rotate270 turns clockwise: source (x,y) lands on (H-1-y, x).
func rotate270(src *Image) *Image {
	w, h := src.Width, src.Height
	dst := NewImage(h, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			si := (y*w + x) * 3
			di := (x*h + (h - 1 - y)) * 3
			copy(dst.Pix[di:di+3], src.Pix[si:si+3])
		}
	}
	return dst
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func pixelAt(src *Image, x, y int) (float64, float64, float64) {
	i := (clampIndex(y, src.Height)*src.Width + clampIndex(x, src.Width)) * 3
	return float64(src.Pix[i]), float64(src.Pix[i+1]), float64(src.Pix[i+2])
}

func quantize255(v float64) uint8 {
	q := math.Floor(v + 0.5)
	if q <= 0 {
		return 0
	}
	if q >= 255 {
		return 255
	}
	return uint8(q)
}

// sampleBilinear interpolates the 2×2 neighborhood around (fx,fy), where
// integer coordinates are pixel centers.
func sampleBilinear(src *Image, fx, fy float64) (uint8, uint8, uint8) {
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	r00, g00, b00 := pixelAt(src, x0, y0)
	r10, g10, b10 := pixelAt(src, x0+1, y0)
	r01, g01, b01 := pixelAt(src, x0, y0+1)
	r11, g11, b11 := pixelAt(src, x0+1, y0+1)

	return quantize255(lerp2D(r00, r10, r01, r11, tx, ty)),
		quantize255(lerp2D(g00, g10, g01, g11, tx, ty)),
		quantize255(lerp2D(b00, b10, b01, b11, tx, ty))
}

func lerp2D(v00, v10, v01, v11, tx, ty float64) float64 {
	v0 := v00 + (v10-v00)*tx
	v1 := v01 + (v11-v01)*tx
	return v0 + (v1-v0)*ty
}

// lanczos3 is sinc(x)·sinc(x/3) on |x| < 3.
func lanczos3(x float64) float64 {
	if x == 0 {
		return 1
	}
	if x <= -3 || x >= 3 {
		return 0
	}
	px := math.Pi * x
	return 3 * math.Sin(px) * math.Sin(px/3) / (px * px)
}

// sampleLanczos convolves the 6×6 neighborhood around (fx,fy) with a
// separable Lanczos-3 kernel normalized to unit weight.
func sampleLanczos(src *Image, fx, fy float64) (uint8, uint8, uint8) {
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))

	var wx, wy [6]float64
	for k := 0; k < 6; k++ {
		wx[k] = lanczos3(fx - float64(x0-2+k))
		wy[k] = lanczos3(fy - float64(y0-2+k))
	}

	var r, g, b, sum float64
	for j := 0; j < 6; j++ {
		for k := 0; k < 6; k++ {
			w := wx[k] * wy[j]
			pr, pg, pb := pixelAt(src, x0-2+k, y0-2+j)
			r += pr * w
			g += pg * w
			b += pb * w
			sum += w
		}
	}
	if sum != 0 {
		r, g, b = r/sum, g/sum, b/sum
	}
	return quantize255(r), quantize255(g), quantize255(b)
}
