package darkroom

import (
	"math"

	"github.com/gogpu/darkroom/internal/kernel"
)

// Adjustments are global tonal and color edits. The zero value is the
// identity.
//
// Exposure is in stops (−5..+5). Every other field is a percentage in
// −100..+100.
type Adjustments struct {
	Exposure    float64
	Contrast    float64
	Temperature float64
	Tint        float64
	Highlights  float64
	Shadows     float64
	Whites      float64
	Blacks      float64
	Saturation  float64
	Vibrance    float64
}

// Adjustment ranges.
const (
	MaxExposure = 5.0
	MaxPercent  = 100.0
)

// IsIdentity reports whether a leaves every pixel unchanged.
func (a Adjustments) IsIdentity() bool {
	return a == Adjustments{}
}

// Validate checks every field against its range.
func (a Adjustments) Validate() error {
	return a.validate("adjustments")
}

func (a Adjustments) validate(prefix string) error {
	if err := checkRange(prefix+".exposure", a.Exposure, MaxExposure); err != nil {
		return err
	}
	fields := []struct {
		name string
		v    float64
	}{
		{"contrast", a.Contrast},
		{"temperature", a.Temperature},
		{"tint", a.Tint},
		{"highlights", a.Highlights},
		{"shadows", a.Shadows},
		{"whites", a.Whites},
		{"blacks", a.Blacks},
		{"saturation", a.Saturation},
		{"vibrance", a.Vibrance},
	}
	for _, f := range fields {
		if err := checkRange(prefix+"."+f.name, f.v, MaxPercent); err != nil {
			return err
		}
	}
	return nil
}

func checkRange(field string, v, limit float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid(ErrInvalidParameter, field, "not finite")
	}
	if v < -limit || v > limit {
		return invalid(ErrInvalidParameter, field, "%g outside [%g, %g]", v, -limit, limit)
	}
	return nil
}

// lower converts percentages to the unit scale the kernels use.
func (a Adjustments) lower() kernel.Adjust {
	return kernel.Adjust{
		Exposure:    float32(a.Exposure),
		Contrast:    float32(a.Contrast / 100),
		Temperature: float32(a.Temperature / 100),
		Tint:        float32(a.Tint / 100),
		Highlights:  float32(a.Highlights / 100),
		Shadows:     float32(a.Shadows / 100),
		Whites:      float32(a.Whites / 100),
		Blacks:      float32(a.Blacks / 100),
		Saturation:  float32(a.Saturation / 100),
		Vibrance:    float32(a.Vibrance / 100),
	}
}
