package kernel

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Unit converts an 8-bit channel to [0,1].
func Unit(b uint8) float32 {
	return float32(b) / 255
}

// Quantize converts a [0,1] value to an 8-bit channel, rounding half up and
// clamping to [0,255].
func Quantize(v float32) uint8 {
	q := math.Floor(float64(v)*255 + 0.5)
	if q <= 0 {
		return 0
	}
	if q >= 255 {
		return 255
	}
	return uint8(q)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// smoothstep is the cubic Hermite step between e0 and e1.
func smoothstep(e0, e1, x float32) float32 {
	t := clamp01((x - e0) / (e1 - e0))
	return t * t * (3 - 2*t)
}

// Smootherstep is 6t⁵−15t⁴+10t³ on t clamped to [0,1]. Its first and second
// derivatives vanish at both ends.
func Smootherstep(t float32) float32 {
	t = clamp01(t)
	return t * t * t * (t*(t*6-15) + 10)
}

// luminance is the ITU-R BT.709 luma of a normalized color.
func luminance(r, g, b float32) float32 {
	return 0.2126*r + 0.7152*g + 0.0722*b
}

// toHSL returns hue in degrees [0,360), saturation and lightness in [0,1].
func toHSL(r, g, b float32) (h, s, l float32) {
	hh, ss, ll := colorful.Color{R: float64(r), G: float64(g), B: float64(b)}.Hsl()
	return float32(hh), float32(ss), float32(ll)
}

func fromHSL(h, s, l float32) (r, g, b float32) {
	c := colorful.Hsl(float64(h), float64(s), float64(l))
	return clamp01(float32(c.R)), clamp01(float32(c.G)), clamp01(float32(c.B))
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}
