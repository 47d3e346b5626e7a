package kernel

import "math"

// Adjust holds the ten global adjustment parameters in kernel units:
// Exposure is in stops, every other field is the user value divided by 100
// and so lies in [-1,1]. The zero value is the identity.
type Adjust struct {
	Exposure    float32
	Contrast    float32
	Temperature float32
	Tint        float32
	Highlights  float32
	Shadows     float32
	Whites      float32
	Blacks      float32
	Saturation  float32
	Vibrance    float32
}

// IsIdentity reports whether a leaves every pixel unchanged.
func (a Adjust) IsIdentity() bool {
	return a == Adjust{}
}

// AdjustPixel applies a to one normalized color. The stage order is fixed:
// exposure, contrast, temperature/tint, highlights/shadows, whites/blacks,
// saturation, vibrance. Each stage clamps its result to [0,1] and is skipped
// when its parameters are zero.
func AdjustPixel(a Adjust, r, g, b float32) (float32, float32, float32) {
	if a.Exposure != 0 {
		m := float32(math.Exp2(float64(a.Exposure)))
		r, g, b = clamp01(r*m), clamp01(g*m), clamp01(b*m)
	}

	if a.Contrast != 0 {
		k := 1 + a.Contrast
		r = clamp01((r-0.5)*k + 0.5)
		g = clamp01((g-0.5)*k + 0.5)
		b = clamp01((b-0.5)*k + 0.5)
	}

	if a.Temperature != 0 || a.Tint != 0 {
		r = clamp01(r * (1 + 0.2*a.Temperature))
		b = clamp01(b * (1 - 0.2*a.Temperature))
		g = clamp01(g - 0.1*a.Tint)
	}

	if a.Highlights != 0 || a.Shadows != 0 {
		l := luminance(r, g, b)
		shift := 0.25 * (a.Highlights*smoothstep(0.5, 1, l) + a.Shadows*(1-smoothstep(0, 0.5, l)))
		r, g, b = clamp01(r+shift), clamp01(g+shift), clamp01(b+shift)
	}

	if a.Whites != 0 {
		mx := max(r, g, b)
		f := 1 + 0.2*a.Whites*clamp01((mx-0.9)/0.1)
		r, g, b = clamp01(r*f), clamp01(g*f), clamp01(b*f)
	}

	if a.Blacks != 0 {
		mn := min(r, g, b)
		f := 1 + 0.5*a.Blacks*clamp01((0.1-mn)/0.1)
		r, g, b = clamp01(r*f), clamp01(g*f), clamp01(b*f)
	}

	if a.Saturation != 0 {
		h, s, l := toHSL(r, g, b)
		r, g, b = fromHSL(h, clamp01(s*(1+a.Saturation)), l)
	}

	if a.Vibrance != 0 {
		h, s, l := toHSL(r, g, b)
		amount := a.Vibrance * (1 - s)
		if a.Vibrance > 0 {
			amount *= 1 - 0.5*skinWeight(h)
		}
		r, g, b = fromHSL(h, clamp01(s*(1+amount)), l)
	}

	return r, g, b
}

// skinWeight is 1 at a hue of 25° and falls smoothly to 0 at 0° and 50°,
// the band where most skin tones sit.
func skinWeight(hue float32) float32 {
	d := hue - 25
	if d < 0 {
		d = -d
	}
	return 1 - smoothstep(0, 1, d/25)
}

// Adjustments applies a to every pixel of src. The identity returns src.
func Adjustments(src *Image, a Adjust) *Image {
	if a.IsIdentity() {
		return src
	}
	dst := NewImage(src.Width, src.Height)
	forEachBand(src.Height, func(y0, y1 int) {
		end := y1 * src.Width * 3
		for i := y0 * src.Width * 3; i < end; i += 3 {
			r, g, b := AdjustPixel(a, Unit(src.Pix[i]), Unit(src.Pix[i+1]), Unit(src.Pix[i+2]))
			dst.Pix[i] = Quantize(r)
			dst.Pix[i+1] = Quantize(g)
			dst.Pix[i+2] = Quantize(b)
		}
	})
	return dst
}
