// Package curve builds 256-entry tone lookup tables from control points
// using monotone cubic (Fritsch–Carlson) interpolation.
package curve

import "math"

// Point is a normalized control point in [0,1]².
type Point struct {
	X, Y float64
}

// Identity returns the table that maps every level to itself.
func Identity() [256]uint8 {
	var lut [256]uint8
	for i := range lut {
		lut[i] = uint8(i)
	}
	return lut
}

// IsIdentity reports whether pts is exactly the straight line (0,0)-(1,1).
func IsIdentity(pts []Point) bool {
	return len(pts) == 2 &&
		pts[0] == Point{0, 0} &&
		pts[1] == Point{1, 1}
}

// Tangents returns the Fritsch–Carlson tangent at every control point.
// The points must have strictly increasing X.
//
// The first pass computes the secant slope of each segment. The second pass
// takes the weighted harmonic mean of neighbouring secants at interior points
// (zero where they change sign) and then limits every tangent to three times
// its segment's secant, which keeps each Hermite segment monotone.
func Tangents(pts []Point) []float64 {
	n := len(pts)
	m := make([]float64, n)
	if n < 2 {
		return m
	}

	h := make([]float64, n-1)
	d := make([]float64, n-1)
	for k := 0; k < n-1; k++ {
		h[k] = pts[k+1].X - pts[k].X
		d[k] = (pts[k+1].Y - pts[k].Y) / h[k]
	}

	m[0] = d[0]
	m[n-1] = d[n-2]
	for k := 1; k < n-1; k++ {
		if d[k-1]*d[k] <= 0 {
			continue
		}
		w1 := 2*h[k] + h[k-1]
		w2 := h[k] + 2*h[k-1]
		m[k] = (w1 + w2) / (w1/d[k-1] + w2/d[k])
	}

	for k := 0; k < n-1; k++ {
		if d[k] == 0 {
			m[k], m[k+1] = 0, 0
			continue
		}
		if m[k]/d[k] > 3 {
			m[k] = 3 * d[k]
		}
		if m[k+1]/d[k] > 3 {
			m[k+1] = 3 * d[k]
		}
	}
	return m
}

// Eval evaluates the Hermite spline through pts with tangents m at x.
// Inputs outside the first and last X hold the end values.
func Eval(pts []Point, m []float64, x float64) float64 {
	n := len(pts)
	if x <= pts[0].X {
		return pts[0].Y
	}
	if x >= pts[n-1].X {
		return pts[n-1].Y
	}

	k := 0
	for k < n-2 && x >= pts[k+1].X {
		k++
	}

	p0, p1 := pts[k], pts[k+1]
	h := p1.X - p0.X
	t := (x - p0.X) / h
	t2 := t * t
	t3 := t2 * t

	h00 := 2*t3 - 3*t2 + 1
	h10 := t3 - 2*t2 + t
	h01 := -2*t3 + 3*t2
	h11 := t3 - t2
	return h00*p0.Y + h10*h*m[k] + h01*p1.Y + h11*h*m[k+1]
}

// LUT evaluates the curve at the 256 levels i/255 and quantizes the result.
// The identity curve short-circuits to Identity.
func LUT(pts []Point) [256]uint8 {
	if IsIdentity(pts) {
		return Identity()
	}

	m := Tangents(pts)
	var lut [256]uint8
	for i := range lut {
		lut[i] = quantize(Eval(pts, m, float64(i)/255))
	}
	return lut
}

func quantize(v float64) uint8 {
	q := math.Floor(v*255 + 0.5)
	if q <= 0 {
		return 0
	}
	if q >= 255 {
		return 255
	}
	return uint8(q)
}
