package darkroom

import (
	"errors"
	"fmt"
)

// Validation sentinels. Every validation failure is a *ValidationError that
// unwraps to one of these.
var (
	// ErrInvalidImage reports malformed dimensions or a pixel buffer whose
	// length does not match them.
	ErrInvalidImage = errors.New("darkroom: invalid image")

	// ErrInvalidParameter reports an adjustment, rotation or mask parameter
	// outside its range.
	ErrInvalidParameter = errors.New("darkroom: invalid parameter")

	// ErrInvalidCurve reports tone curve control points that are not strictly
	// increasing in x or do not span [0,1].
	ErrInvalidCurve = errors.New("darkroom: invalid tone curve")

	// ErrInvalidCrop reports a crop rectangle outside the unit square or one
	// that selects no pixels.
	ErrInvalidCrop = errors.New("darkroom: invalid crop")
)

// ErrFallbackToCPU is logged when a GPU segment fails and the pipeline
// re-runs it on the CPU. It never reaches the caller of Process.
var ErrFallbackToCPU = errors.New("darkroom: falling back to CPU")

// ValidationError describes a rejected input.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s: %s", e.Err, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(sentinel error, field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...), Err: sentinel}
}
