package darkroom

import (
	"math"
	"strconv"

	"github.com/gogpu/darkroom/internal/curve"
)

// CurvePoint is a normalized tone curve control point.
type CurvePoint struct {
	X, Y float64
}

// ToneCurve maps input levels through a monotone cubic spline. Points must
// be strictly increasing in X, start at X=0 and end at X=1.
type ToneCurve struct {
	Points []CurvePoint
}

// IdentityCurve returns the straight line (0,0)-(1,1).
func IdentityCurve() ToneCurve {
	return ToneCurve{Points: []CurvePoint{{0, 0}, {1, 1}}}
}

// Validate checks the control points.
func (c ToneCurve) Validate() error {
	if len(c.Points) < 2 {
		return invalid(ErrInvalidCurve, "points", "need at least 2, have %d", len(c.Points))
	}
	for i, p := range c.Points {
		if !finite(p.X) || !finite(p.Y) {
			return invalid(ErrInvalidCurve, pointField(i), "not finite")
		}
		if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
			return invalid(ErrInvalidCurve, pointField(i), "(%g, %g) outside the unit square", p.X, p.Y)
		}
		if i > 0 && p.X <= c.Points[i-1].X {
			return invalid(ErrInvalidCurve, pointField(i), "x %g not greater than %g", p.X, c.Points[i-1].X)
		}
	}
	if c.Points[0].X != 0 {
		return invalid(ErrInvalidCurve, pointField(0), "first point must have x=0")
	}
	if last := len(c.Points) - 1; c.Points[last].X != 1 {
		return invalid(ErrInvalidCurve, pointField(last), "last point must have x=1")
	}
	return nil
}

// IsIdentity reports whether c is exactly (0,0)-(1,1).
func (c ToneCurve) IsIdentity() bool {
	return curve.IsIdentity(c.points())
}

// LUT validates c and returns its 256-entry lookup table.
func (c ToneCurve) LUT() ([256]uint8, error) {
	if err := c.Validate(); err != nil {
		return [256]uint8{}, err
	}
	return curve.LUT(c.points()), nil
}

func (c ToneCurve) points() []curve.Point {
	pts := make([]curve.Point, len(c.Points))
	for i, p := range c.Points {
		pts[i] = curve.Point{X: p.X, Y: p.Y}
	}
	return pts
}

// key identifies the curve exactly for LUT caching.
func (c ToneCurve) key() string {
	b := make([]byte, 0, len(c.Points)*34)
	for _, p := range c.Points {
		b = strconv.AppendUint(b, math.Float64bits(p.X), 16)
		b = append(b, ',')
		b = strconv.AppendUint(b, math.Float64bits(p.Y), 16)
		b = append(b, ';')
	}
	return string(b)
}

func pointField(i int) string { return "toneCurve.points[" + strconv.Itoa(i) + "]" }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
