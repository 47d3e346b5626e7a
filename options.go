package darkroom

import (
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/darkroom/internal/resource"
)

// Service and pipeline defaults.
const (
	DefaultFailureThreshold = 3
	DefaultLUTCacheSize     = 32
)

// ServiceOption configures a Service during creation.
//
// Example:
//
//	// Share the host application's device and allow 512 MB of pooled buffers.
//	svc := darkroom.NewService(
//	    darkroom.WithDeviceProvider(app),
//	    darkroom.WithPoolBudgetMB(512),
//	)
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	failureThreshold int
	provider         gpucontext.DeviceProvider
	budgetMB         int
	forceCPU         bool
	probe            probeFunc
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		failureThreshold: DefaultFailureThreshold,
		budgetMB:         resource.DefaultBudgetMB,
	}
}

// WithFailureThreshold sets how many consecutive GPU failures disable the
// GPU for the rest of the service's life. Values below 1 are ignored.
func WithFailureThreshold(n int) ServiceOption {
	return func(o *serviceOptions) {
		if n >= 1 {
			o.failureThreshold = n
		}
	}
}

// WithDeviceProvider makes the service use a device owned by the host
// application instead of opening its own. The provider must also expose
// HalDevice() and HalQueue(); Teardown leaves the shared device alive.
func WithDeviceProvider(p gpucontext.DeviceProvider) ServiceOption {
	return func(o *serviceOptions) {
		o.provider = p
	}
}

// WithPoolBudgetMB caps the bytes of idle GPU buffers kept for reuse.
func WithPoolBudgetMB(mb int) ServiceOption {
	return func(o *serviceOptions) {
		o.budgetMB = mb
	}
}

// WithForceCPU skips GPU detection; every render uses the CPU backend.
func WithForceCPU() ServiceOption {
	return func(o *serviceOptions) {
		o.forceCPU = true
	}
}

// withProbe replaces GPU detection. Used by tests.
func withProbe(p probeFunc) ServiceOption {
	return func(o *serviceOptions) {
		o.probe = p
	}
}

// PipelineOption configures a Pipeline during creation.
type PipelineOption func(*pipelineOptions)

type pipelineOptions struct {
	quality      Quality
	lutCacheSize int
}

func defaultPipelineOptions() pipelineOptions {
	return pipelineOptions{
		quality:      QualityPreview,
		lutCacheSize: DefaultLUTCacheSize,
	}
}

// WithQuality sets the rotation filter used when Operations.Quality is
// QualityDefault.
func WithQuality(q Quality) PipelineOption {
	return func(o *pipelineOptions) {
		if q != QualityDefault {
			o.quality = q
		}
	}
}

// WithLUTCacheSize sets how many tone curve LUTs the pipeline keeps.
func WithLUTCacheSize(n int) PipelineOption {
	return func(o *pipelineOptions) {
		o.lutCacheSize = n
	}
}
