package kernel

import "math"

// MaskKind selects the mask geometry.
type MaskKind uint8

const (
	// MaskLinear is a gradient along the segment Start→End.
	MaskLinear MaskKind = iota

	// MaskRadial is an elliptical gradient around Center.
	MaskRadial
)

// Mask is a lowered gradient mask. Coordinates are normalized to [0,1]
// image space; Rotation is in degrees. Fields that do not apply to Kind are
// ignored.
type Mask struct {
	Kind MaskKind

	StartX, StartY float32
	EndX, EndY     float32

	CenterX, CenterY float32
	RadiusX, RadiusY float32
	Rotation         float32

	Feather float32
	Invert  bool
	Adjust  Adjust
}

// maskEval caches the per-mask constants used for every pixel.
type maskEval struct {
	m        Mask
	dx, dy   float32
	invLen2  float32
	floor    float32
	cos, sin float32
}

func newMaskEval(m Mask) maskEval {
	e := maskEval{m: m}
	switch m.Kind {
	case MaskLinear:
		e.dx = m.EndX - m.StartX
		e.dy = m.EndY - m.StartY
		if l2 := e.dx*e.dx + e.dy*e.dy; l2 > 0 {
			e.invLen2 = 1 / l2
		}
		e.floor = LinearFeatherFloor(m.Feather)
	case MaskRadial:
		rad := float64(m.Rotation) * math.Pi / 180
		e.cos = float32(math.Cos(rad))
		e.sin = float32(math.Sin(rad))
	}
	return e
}

func (e *maskEval) strength(u, v float32) float32 {
	var s float32
	switch e.m.Kind {
	case MaskLinear:
		s = e.linear(u, v)
	case MaskRadial:
		s = e.radial(u, v)
	}
	if e.m.Invert {
		s = 1 - s
	}
	return s
}

// LinearFeatherFloor is the value the feathered linear curve takes at t=0
// before renormalization. Feather widens the smootherstep window from
// [0,1] to [-f/2, 1+f/2]; only the [0,1] slice is used, rescaled so the
// mask still reaches exactly 0 at Start and 1 at End.
func LinearFeatherFloor(feather float32) float32 {
	hw := 0.5 + 0.5*feather
	return Smootherstep((hw - 0.5) / (2 * hw))
}

// linear projects (u,v) onto the mask axis. The strength is 0 at and before
// Start, 1 at and past End, and 0.5 at the midpoint for every Feather.
func (e *maskEval) linear(u, v float32) float32 {
	t := ((u-e.m.StartX)*e.dx + (v-e.m.StartY)*e.dy) * e.invLen2
	switch {
	case t <= 0:
		return 0
	case t >= 1:
		return 1
	}
	hw := 0.5 + 0.5*e.m.Feather
	s := Smootherstep((t - (0.5 - hw)) / (2 * hw))
	return clamp01((s - e.floor) / (1 - 2*e.floor))
}

// radial is 1 inside the inner ellipse, 0 outside the outer one, with a
// smootherstep falloff between them. Feather is the falloff fraction of the
// radius.
func (e *maskEval) radial(u, v float32) float32 {
	px := u - e.m.CenterX
	py := v - e.m.CenterY
	lx := (px*e.cos + py*e.sin) / e.m.RadiusX
	ly := (py*e.cos - px*e.sin) / e.m.RadiusY
	d := float32(math.Sqrt(float64(lx*lx + ly*ly)))

	inner := 1 - e.m.Feather
	switch {
	case d <= inner:
		return 1
	case d >= 1:
		return 0
	}
	return 1 - Smootherstep((d-inner)/(1-inner))
}

// Strength evaluates the mask at normalized point (u,v), including Invert.
func (m Mask) Strength(u, v float32) float32 {
	e := newMaskEval(m)
	return e.strength(u, v)
}

// ApplyMask blends src toward its adjusted version by the mask strength at
// each pixel center.
func ApplyMask(src *Image, m Mask) *Image {
	e := newMaskEval(m)
	w, h := src.Width, src.Height
	dst := NewImage(w, h)
	invW, invH := 1/float32(w), 1/float32(h)

	forEachBand(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			v := (float32(y) + 0.5) * invH
			for x := 0; x < w; x++ {
				i := (y*w + x) * 3
				s := e.strength((float32(x)+0.5)*invW, v)
				if s <= 0 {
					copy(dst.Pix[i:i+3], src.Pix[i:i+3])
					continue
				}
				r, g, b := Unit(src.Pix[i]), Unit(src.Pix[i+1]), Unit(src.Pix[i+2])
				ar, ag, ab := AdjustPixel(m.Adjust, r, g, b)
				dst.Pix[i] = Quantize(lerp(r, ar, s))
				dst.Pix[i+1] = Quantize(lerp(g, ag, s))
				dst.Pix[i+2] = Quantize(lerp(b, ab, s))
			}
		}
	})
	return dst
}
