package darkroom

import (
	"math"

	"github.com/gogpu/darkroom/internal/kernel"
)

// Rotation is a counter-clockwise rotation in degrees. Straighten is the
// fine adjustment added on top of Angle.
type Rotation struct {
	Angle      float64
	Straighten float64
}

// Effective returns Angle+Straighten normalized to (−180, 180].
func (r Rotation) Effective() float64 {
	return kernel.NormalizeAngle(r.Angle + r.Straighten)
}

// Validate rejects non-finite angles.
func (r Rotation) Validate() error {
	if !finite(r.Angle) {
		return invalid(ErrInvalidParameter, "rotation.angle", "not finite")
	}
	if !finite(r.Straighten) {
		return invalid(ErrInvalidParameter, "rotation.straighten", "not finite")
	}
	return nil
}

// Crop is a rectangle in normalized image coordinates. It is applied after
// rotation, relative to the rotated canvas.
type Crop struct {
	X, Y          float64
	Width, Height float64
}

// cropSlack absorbs float error in editor-produced rectangles such as
// X=0.1, Width=0.9.
const cropSlack = 1e-9

// Validate checks that the rectangle lies inside the unit square.
func (c Crop) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"crop.x", c.X}, {"crop.y", c.Y}, {"crop.width", c.Width}, {"crop.height", c.Height}} {
		if !finite(f.v) {
			return invalid(ErrInvalidCrop, f.name, "not finite")
		}
	}
	if c.X < 0 || c.Y < 0 {
		return invalid(ErrInvalidCrop, "crop", "origin (%g, %g) is negative", c.X, c.Y)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return invalid(ErrInvalidCrop, "crop", "size %gx%g is empty", c.Width, c.Height)
	}
	if c.X+c.Width > 1+cropSlack || c.Y+c.Height > 1+cropSlack {
		return invalid(ErrInvalidCrop, "crop", "extends past the image edge")
	}
	return nil
}

// pixelRect rounds the rectangle to pixel edges of a w×h canvas.
func (c Crop) pixelRect(w, h int) (x0, y0, x1, y1 int, err error) {
	x0 = int(math.Round(c.X * float64(w)))
	y0 = int(math.Round(c.Y * float64(h)))
	x1 = min(int(math.Round((c.X+c.Width)*float64(w))), w)
	y1 = min(int(math.Round((c.Y+c.Height)*float64(h))), h)
	if x1 <= x0 || y1 <= y0 {
		return 0, 0, 0, 0, invalid(ErrInvalidCrop, "crop", "selects no pixels of a %dx%d canvas", w, h)
	}
	return x0, y0, x1, y1, nil
}

// Quality selects the resampling filter for arbitrary-angle rotations.
type Quality uint8

const (
	// QualityDefault defers to the pipeline's configured quality.
	QualityDefault Quality = iota

	// QualityPreview uses bilinear sampling.
	QualityPreview

	// QualityExport uses a 6×6 Lanczos-3 filter.
	QualityExport
)

// String returns the quality name.
func (q Quality) String() string {
	switch q {
	case QualityDefault:
		return "default"
	case QualityPreview:
		return "preview"
	case QualityExport:
		return "export"
	default:
		return "unknown"
	}
}

func (q Quality) filter() kernel.Quality {
	if q == QualityExport {
		return kernel.QualityLanczos
	}
	return kernel.QualityBilinear
}
