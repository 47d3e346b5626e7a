package darkroom

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gogpu/darkroom/internal/backend"
	"github.com/gogpu/darkroom/internal/cache"
	"github.com/gogpu/darkroom/internal/curve"
	"github.com/gogpu/darkroom/internal/gpu"
	"github.com/gogpu/darkroom/internal/kernel"
	"github.com/gogpu/darkroom/internal/resource"
)

// Stage names a timed step of Process.
type Stage string

// Stages in execution order. StageTotal is the wall time of the whole call.
const (
	StageUpload      Stage = "upload"
	StageRotate      Stage = "rotate"
	StageCrop        Stage = "crop"
	StageAdjustments Stage = "adjustments"
	StageToneCurve   Stage = "toneCurve"
	StageMasks       Stage = "masks"
	StageReadback    Stage = "readback"
	StageTotal       Stage = "total"
)

// BackendKind names the backend that produced a result.
type BackendKind string

// Backend kinds.
const (
	BackendGPU BackendKind = "gpu"
	BackendCPU BackendKind = "cpu"
)

// BackendHint lets the caller steer backend selection.
type BackendHint uint8

const (
	// HintAuto uses the GPU when the service allows it.
	HintAuto BackendHint = iota

	// HintCPU runs every stage on the CPU.
	HintCPU

	// HintGPU requests the GPU. It behaves like HintAuto, so the render still
	// falls back to the CPU when the service disallows the GPU.
	HintGPU
)

// Operations is the edit applied by Process. Nil fields are skipped.
type Operations struct {
	Rotation    *Rotation
	Crop        *Crop
	Adjustments *Adjustments
	ToneCurve   *ToneCurve
	Masks       MaskStack

	// Quality overrides the pipeline's rotation filter.
	Quality Quality
}

// Validate checks every operation.
func (o Operations) Validate() error {
	if o.Rotation != nil {
		if err := o.Rotation.Validate(); err != nil {
			return err
		}
	}
	if o.Crop != nil {
		if err := o.Crop.Validate(); err != nil {
			return err
		}
	}
	if o.Adjustments != nil {
		if err := o.Adjustments.Validate(); err != nil {
			return err
		}
	}
	if o.ToneCurve != nil {
		if err := o.ToneCurve.Validate(); err != nil {
			return err
		}
	}
	if o.Quality > QualityExport {
		return invalid(ErrInvalidParameter, "quality", "unknown value %d", o.Quality)
	}
	return o.Masks.Validate()
}

// Result is the output of Process.
type Result struct {
	Image   *RasterImage
	Backend BackendKind

	// Timing holds the milliseconds spent per stage. Stages that did not
	// run are absent.
	Timing map[Stage]float64
}

// Stats are cumulative pipeline counters. Uploads and Readbacks count GPU
// transfers only.
type Stats struct {
	Renders        uint64
	Uploads        uint64
	Readbacks      uint64
	GPUFailures    uint64
	Fallbacks      uint64
	LUTCacheHits   uint64
	LUTCacheMisses uint64
}

// Pipeline renders edits through the backend chosen by its Service.
// A Pipeline is safe for concurrent use.
type Pipeline struct {
	svc  *Service
	cpu  *backend.CPU
	opts pipelineOptions
	luts *cache.Cache[string, [256]uint8]

	renders     atomic.Uint64
	uploads     atomic.Uint64
	readbacks   atomic.Uint64
	gpuFailures atomic.Uint64
	fallbacks   atomic.Uint64
}

// NewPipeline creates a pipeline bound to svc. A nil svc renders on the CPU
// only.
func NewPipeline(svc *Service, opts ...PipelineOption) *Pipeline {
	o := defaultPipelineOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if svc == nil {
		svc = NewService(WithForceCPU())
	}
	return &Pipeline{
		svc:  svc,
		cpu:  backend.NewCPU(),
		opts: o,
		luts: cache.New[string, [256]uint8](o.lutCacheSize),
	}
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	cs := p.luts.Stats()
	return Stats{
		Renders:        p.renders.Load(),
		Uploads:        p.uploads.Load(),
		Readbacks:      p.readbacks.Load(),
		GPUFailures:    p.gpuFailures.Load(),
		Fallbacks:      p.fallbacks.Load(),
		LUTCacheHits:   cs.Hits,
		LUTCacheMisses: cs.Misses,
	}
}

// step is one kernel invocation. On error the input surface is still owned
// by the caller.
type step struct {
	stage Stage
	apply func(b backend.ComputeBackend, s backend.Surface) (backend.Surface, error)
}

// plan lowers ops into the steps before the crop and the steps after it.
// Identity operations produce no steps.
func (p *Pipeline) plan(ops Operations) (pre, post []step) {
	if ops.Rotation != nil {
		if deg := ops.Rotation.Effective(); deg != 0 {
			q := ops.Quality
			if q == QualityDefault {
				q = p.opts.quality
			}
			filter := q.filter()
			pre = append(pre, step{StageRotate, func(b backend.ComputeBackend, s backend.Surface) (backend.Surface, error) {
				return b.Rotate(s, deg, filter)
			}})
		}
	}
	if ops.Adjustments != nil && !ops.Adjustments.IsIdentity() {
		a := ops.Adjustments.lower()
		post = append(post, step{StageAdjustments, func(b backend.ComputeBackend, s backend.Surface) (backend.Surface, error) {
			return b.Adjust(s, a)
		}})
	}
	if ops.ToneCurve != nil && !ops.ToneCurve.IsIdentity() {
		lut := p.lut(*ops.ToneCurve)
		if !kernel.IsIdentityLUT(&lut) {
			post = append(post, step{StageToneCurve, func(b backend.ComputeBackend, s backend.Surface) (backend.Surface, error) {
				return b.ApplyLUT(s, &lut)
			}})
		}
	}
	for _, m := range ops.Masks.active() {
		post = append(post, step{StageMasks, func(b backend.ComputeBackend, s backend.Surface) (backend.Surface, error) {
			return b.ApplyMask(s, m)
		}})
	}
	return pre, post
}

func (p *Pipeline) lut(c ToneCurve) [256]uint8 {
	return p.luts.GetOrCreate(c.key(), func() [256]uint8 {
		return curve.LUT(c.points())
	})
}

// Process renders ops over img. img is not modified and the result never
// shares memory with it.
//
// Only invalid input produces an error. GPU failures are reported to the
// service and the failed segment is re-run on the CPU.
func (p *Pipeline) Process(img *RasterImage, ops Operations, hint BackendHint) (*Result, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if err := ops.Validate(); err != nil {
		return nil, err
	}
	rect, err := cropRect(img, ops)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	p.renders.Add(1)

	res := &Result{Backend: BackendCPU, Timing: make(map[Stage]float64)}
	pre, post := p.plan(ops)
	if ops.Crop == nil {
		pre, post = append(pre, post...), nil
	}

	var gpuB backend.ComputeBackend
	if hint != HintCPU && len(pre)+len(post) > 0 {
		gpuB = p.svc.acquire()
	}

	cur := &kernel.Image{Width: img.Width, Height: img.Height, Pix: img.Pixels}
	owned := false
	segments, onGPU := 0, 0
	for i, steps := range [][]step{pre, post} {
		if i == 1 && ops.Crop != nil {
			t := time.Now()
			cur = kernel.Crop(cur, rect[0], rect[1], rect[2], rect[3])
			owned = true
			addTiming(res.Timing, StageCrop, t)
		}
		if len(steps) == 0 {
			continue
		}
		out, kind, err := p.runSegment(gpuB, cur, steps, res.Timing)
		if err != nil {
			return nil, err
		}
		if kind != BackendGPU {
			gpuB = nil
		} else {
			onGPU++
		}
		segments++
		cur, owned = out, true
	}

	if !owned {
		cur = cur.Clone()
	}
	if segments > 0 && onGPU == segments {
		res.Backend = BackendGPU
	}
	res.Image = fromKernel(cur)
	addTiming(res.Timing, StageTotal, start)
	Logger().Debug("darkroom: processed",
		"size", fmt.Sprintf("%dx%d", res.Image.Width, res.Image.Height),
		"backend", res.Backend, "segments", segments, "ms", res.Timing[StageTotal])
	return res, nil
}

// cropRect resolves the crop against the canvas the rotation produces, so
// a crop that selects no pixels fails before any backend work.
func cropRect(img *RasterImage, ops Operations) ([4]int, error) {
	if ops.Crop == nil {
		return [4]int{}, nil
	}
	w, h := img.Width, img.Height
	if ops.Rotation != nil {
		w, h = kernel.RotatedBounds(w, h, ops.Rotation.Effective())
	}
	x0, y0, x1, y1, err := ops.Crop.pixelRect(w, h)
	if err != nil {
		return [4]int{}, err
	}
	return [4]int{x0, y0, x1, y1}, nil
}

// capacityLimited reports whether err is a deterministic size limit of the
// GPU path rather than a device fault.
func capacityLimited(err error) bool {
	return errors.Is(err, gpu.ErrSurfaceTooLarge) || errors.Is(err, resource.ErrBudgetExceeded)
}

// gpuFallback accounts for a failed GPU attempt. Capacity limits fall back
// without counting against the breaker.
func (p *Pipeline) gpuFallback(what string, err error) {
	p.fallbacks.Add(1)
	if capacityLimited(err) {
		Logger().Info("darkroom: image exceeds GPU limits, using CPU", "op", what, "err", err)
		return
	}
	p.gpuFailures.Add(1)
	p.svc.RecordFailure(err)
	Logger().Warn("darkroom: GPU "+what+" failed", "err", fmt.Errorf("%w: %w", ErrFallbackToCPU, err))
}

// runSegment runs steps between one upload and one readback, preferring
// gpuB. A GPU failure re-runs the whole segment on the CPU from img.
func (p *Pipeline) runSegment(gpuB backend.ComputeBackend, img *kernel.Image, steps []step, timing map[Stage]float64) (*kernel.Image, BackendKind, error) {
	if gpuB != nil {
		local := make(map[Stage]float64)
		out, err := p.runOn(gpuB, img, steps, local)
		if err == nil {
			p.svc.RecordSuccess()
			mergeTiming(timing, local)
			return out, BackendGPU, nil
		}
		p.gpuFallback("segment", err)
	}
	out, err := p.runOn(p.cpu, img, steps, timing)
	if err != nil {
		return nil, BackendCPU, fmt.Errorf("darkroom: cpu backend: %w", err)
	}
	return out, BackendCPU, nil
}

func (p *Pipeline) runOn(b backend.ComputeBackend, img *kernel.Image, steps []step, timing map[Stage]float64) (*kernel.Image, error) {
	onGPU := b.Kind() == backend.KindGPU

	t := time.Now()
	s, err := b.Upload(img)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	if onGPU {
		p.uploads.Add(1)
	}
	addTiming(timing, StageUpload, t)

	for _, st := range steps {
		t = time.Now()
		next, err := st.apply(b, s)
		if err != nil {
			b.Release(s)
			return nil, fmt.Errorf("%s: %w", st.stage, err)
		}
		s = next
		addTiming(timing, st.stage, t)
	}

	t = time.Now()
	out, err := b.Readback(s)
	b.Release(s)
	if err != nil {
		return nil, fmt.Errorf("readback: %w", err)
	}
	if onGPU {
		p.readbacks.Add(1)
	}
	addTiming(timing, StageReadback, t)
	return out, nil
}

// ComputeHistogram computes the histogram of img, on the GPU when the
// service allows it.
func (p *Pipeline) ComputeHistogram(img *RasterImage) (HistogramResult, error) {
	if err := img.Validate(); err != nil {
		return HistogramResult{}, err
	}
	k := &kernel.Image{Width: img.Width, Height: img.Height, Pix: img.Pixels}
	if gpuB := p.svc.acquire(); gpuB != nil {
		h, err := p.histogramOn(gpuB, k)
		if err == nil {
			p.svc.RecordSuccess()
			return newHistogramResult(h), nil
		}
		p.gpuFallback("histogram", err)
	}
	return newHistogramResult(kernel.ComputeHistogram(k)), nil
}

func (p *Pipeline) histogramOn(b backend.ComputeBackend, img *kernel.Image) (kernel.Histogram, error) {
	s, err := b.Upload(img)
	if err != nil {
		return kernel.Histogram{}, fmt.Errorf("upload: %w", err)
	}
	defer b.Release(s)
	p.uploads.Add(1)
	h, err := b.Histogram(s)
	if err != nil {
		return kernel.Histogram{}, fmt.Errorf("histogram: %w", err)
	}
	return h, nil
}

func addTiming(timing map[Stage]float64, stage Stage, since time.Time) {
	timing[stage] += float64(time.Since(since).Microseconds()) / 1000
}

func mergeTiming(dst, src map[Stage]float64) {
	for k, v := range src {
		dst[k] += v
	}
}
