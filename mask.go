package darkroom

import (
	"strconv"

	"github.com/gogpu/darkroom/internal/kernel"
)

// Point is a position in normalized image coordinates; (0,0) is the top-left
// corner and (1,1) the bottom-right.
type Point struct {
	X, Y float64
}

// Mask is a local adjustment limited by a gradient. Implementations are
// LinearMask and RadialMask.
type Mask interface {
	// Evaluate returns the mask strength in [0,1] at p, including Invert.
	Evaluate(p Point) float64

	// Active reports whether the mask takes part in rendering.
	Active() bool

	validate(field string) error
	lower() kernel.Mask
}

// LinearMask ramps from 0 at Start to 1 at End and is 0.5 halfway. Feather
// flattens the S-curve toward a straight ramp; it never moves the 0 and 1
// points.
type LinearMask struct {
	Start, End  Point
	Feather     float64
	Enabled     bool
	Invert      bool
	Adjustments Adjustments
}

// Evaluate implements Mask.
func (m LinearMask) Evaluate(p Point) float64 {
	return float64(m.lower().Strength(float32(p.X), float32(p.Y)))
}

// Active implements Mask.
func (m LinearMask) Active() bool { return m.Enabled }

func (m LinearMask) validate(field string) error {
	if !finite(m.Start.X) || !finite(m.Start.Y) || !finite(m.End.X) || !finite(m.End.Y) {
		return invalid(ErrInvalidParameter, field, "endpoints not finite")
	}
	if m.Start == m.End {
		return invalid(ErrInvalidParameter, field, "start and end coincide")
	}
	if err := checkFeather(field, m.Feather); err != nil {
		return err
	}
	return m.Adjustments.validate(field + ".adjustments")
}

func (m LinearMask) lower() kernel.Mask {
	return kernel.Mask{
		Kind:    kernel.MaskLinear,
		StartX:  float32(m.Start.X),
		StartY:  float32(m.Start.Y),
		EndX:    float32(m.End.X),
		EndY:    float32(m.End.Y),
		Feather: float32(m.Feather),
		Invert:  m.Invert,
		Adjust:  m.Adjustments.lower(),
	}
}

// RadialMask is 1 inside an ellipse and falls to 0 at its edge. Feather is
// the fraction of the radius used for the falloff. Rotation is in degrees.
type RadialMask struct {
	Center           Point
	RadiusX, RadiusY float64
	Rotation         float64
	Feather          float64
	Enabled          bool
	Invert           bool
	Adjustments      Adjustments
}

// Evaluate implements Mask.
func (m RadialMask) Evaluate(p Point) float64 {
	return float64(m.lower().Strength(float32(p.X), float32(p.Y)))
}

// Active implements Mask.
func (m RadialMask) Active() bool { return m.Enabled }

func (m RadialMask) validate(field string) error {
	if !finite(m.Center.X) || !finite(m.Center.Y) || !finite(m.Rotation) {
		return invalid(ErrInvalidParameter, field, "geometry not finite")
	}
	if !finite(m.RadiusX) || !finite(m.RadiusY) || m.RadiusX <= 0 || m.RadiusY <= 0 {
		return invalid(ErrInvalidParameter, field, "radii must be positive, have %g, %g", m.RadiusX, m.RadiusY)
	}
	if err := checkFeather(field, m.Feather); err != nil {
		return err
	}
	return m.Adjustments.validate(field + ".adjustments")
}

func (m RadialMask) lower() kernel.Mask {
	return kernel.Mask{
		Kind:     kernel.MaskRadial,
		CenterX:  float32(m.Center.X),
		CenterY:  float32(m.Center.Y),
		RadiusX:  float32(m.RadiusX),
		RadiusY:  float32(m.RadiusY),
		Rotation: float32(m.Rotation),
		Feather:  float32(m.Feather),
		Invert:   m.Invert,
		Adjust:   m.Adjustments.lower(),
	}
}

func checkFeather(field string, f float64) error {
	if !finite(f) || f < 0 || f > 1 {
		return invalid(ErrInvalidParameter, field+".feather", "%g outside [0, 1]", f)
	}
	return nil
}

// MaskStack is applied in order; each mask blends over the output of the
// previous one.
type MaskStack []Mask

// Validate checks every mask, including disabled ones.
func (s MaskStack) Validate() error {
	for i, m := range s {
		field := "masks[" + strconv.Itoa(i) + "]"
		if m == nil {
			return invalid(ErrInvalidParameter, field, "nil")
		}
		if err := m.validate(field); err != nil {
			return err
		}
	}
	return nil
}

// active returns the lowered masks that change pixels.
func (s MaskStack) active() []kernel.Mask {
	var out []kernel.Mask
	for _, m := range s {
		if !m.Active() {
			continue
		}
		if km := m.lower(); !km.Adjust.IsIdentity() {
			out = append(out, km)
		}
	}
	return out
}
