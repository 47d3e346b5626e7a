package darkroom

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/gogpu/darkroom/internal/gpu"
	"github.com/gogpu/darkroom/internal/kernel"
)

func fullOps() Operations {
	return Operations{
		Rotation:    &Rotation{Angle: 90},
		Adjustments: &Adjustments{Exposure: 0.3, Contrast: 20, Saturation: -15, Vibrance: 25},
		ToneCurve:   &ToneCurve{Points: []CurvePoint{{0, 0.05}, {0.4, 0.35}, {1, 0.95}}},
		Masks: MaskStack{
			LinearMask{Start: Point{0, 0}, End: Point{1, 1}, Feather: 0.3, Enabled: true,
				Adjustments: Adjustments{Exposure: -0.5}},
			RadialMask{Center: Point{0.5, 0.5}, RadiusX: 0.3, RadiusY: 0.2, Rotation: 15, Feather: 0.5,
				Enabled: true, Invert: true, Adjustments: Adjustments{Shadows: 40}},
		},
	}
}

func TestProcessIdentityAdjustments(t *testing.T) {
	f := newFakeGPU()
	p := NewPipeline(newFakeService(t, f))
	img := randomRaster(17, 9, 1)

	res, err := p.Process(img, Operations{Adjustments: &Adjustments{}}, HintAuto)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(res.Image.Pixels, img.Pixels) {
		t.Error("identity adjustments changed pixels")
	}
	if &res.Image.Pixels[0] == &img.Pixels[0] {
		t.Error("result aliases the input buffer")
	}
	if up, rb := f.counts(); up != 0 || rb != 0 {
		t.Errorf("identity render transferred %d/%d buffers", up, rb)
	}
}

func TestProcessExposureClamps(t *testing.T) {
	for _, hint := range []BackendHint{HintCPU, HintGPU} {
		p := NewPipeline(newFakeService(t, newFakeGPU()))
		res, err := p.Process(solidRaster(3, 2, 128, 128, 128), Operations{
			Adjustments: &Adjustments{Exposure: 1},
		}, hint)
		if err != nil {
			t.Fatal(err)
		}
		for i, v := range res.Image.Pixels {
			if v != 255 {
				t.Fatalf("hint %d: pixel byte %d = %d, want 255", hint, i, v)
			}
		}
	}
}

func TestProcessContrastScenario(t *testing.T) {
	// (v/255 - 0.5) * 1.5 + 0.5, rounded half up.
	tests := []struct {
		in, want uint8
	}{
		{128, 128},
		{64, 32},
		{192, 224},
	}
	for _, tt := range tests {
		for _, hint := range []BackendHint{HintCPU, HintGPU} {
			f := newFakeGPU()
			p := NewPipeline(newFakeService(t, f))
			res, err := p.Process(solidRaster(2, 2, tt.in, tt.in, tt.in), Operations{
				Adjustments: &Adjustments{Contrast: 50},
			}, hint)
			if err != nil {
				t.Fatal(err)
			}
			for i, v := range res.Image.Pixels {
				if v != tt.want {
					t.Fatalf("contrast +50 on %d, hint %d: byte %d = %d, want %d", tt.in, hint, i, v, tt.want)
				}
			}
			wantBackend := BackendGPU
			if hint == HintCPU {
				wantBackend = BackendCPU
			}
			if res.Backend != wantBackend {
				t.Errorf("Backend = %q, want %q", res.Backend, wantBackend)
			}
		}
	}
}

func TestProcessNoCropSingleRoundTrip(t *testing.T) {
	f := newFakeGPU()
	p := NewPipeline(newFakeService(t, f))
	img := randomRaster(23, 11, 2)

	res, err := p.Process(img, fullOps(), HintAuto)
	if err != nil {
		t.Fatal(err)
	}
	if res.Backend != BackendGPU {
		t.Errorf("Backend = %q, want gpu", res.Backend)
	}
	if up, rb := f.counts(); up != 1 || rb != 1 {
		t.Errorf("uploads/readbacks = %d/%d, want 1/1", up, rb)
	}
	if res.Image.Width != 11 || res.Image.Height != 23 {
		t.Errorf("size = %dx%d, want 11x23", res.Image.Width, res.Image.Height)
	}

	ref, err := NewPipeline(nil).Process(img, fullOps(), HintAuto)
	if err != nil {
		t.Fatal(err)
	}
	if ref.Backend != BackendCPU {
		t.Errorf("nil service Backend = %q, want cpu", ref.Backend)
	}
	if !bytes.Equal(res.Image.Pixels, ref.Image.Pixels) {
		t.Error("GPU path and CPU path differ")
	}

	for _, st := range []Stage{StageUpload, StageRotate, StageAdjustments, StageToneCurve, StageMasks, StageReadback, StageTotal} {
		if _, ok := res.Timing[st]; !ok {
			t.Errorf("Timing missing %q", st)
		}
	}
	if _, ok := res.Timing[StageCrop]; ok {
		t.Error("Timing has crop without a crop")
	}
}

func TestProcessCropRoundTrips(t *testing.T) {
	crop := &Crop{X: 0.25, Y: 0.1, Width: 0.5, Height: 0.6}
	tests := []struct {
		name          string
		ops           Operations
		wantTransfers int
	}{
		{"rotate and adjust", Operations{Rotation: &Rotation{Angle: 90}, Crop: crop, Adjustments: &Adjustments{Tint: 30}}, 2},
		{"adjust only", Operations{Crop: crop, Adjustments: &Adjustments{Tint: 30}}, 1},
		{"rotate only", Operations{Rotation: &Rotation{Angle: 90}, Crop: crop}, 1},
		{"crop only", Operations{Crop: crop}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeGPU()
			p := NewPipeline(newFakeService(t, f))
			img := randomRaster(40, 20, 3)

			res, err := p.Process(img, tt.ops, HintAuto)
			if err != nil {
				t.Fatal(err)
			}
			if up, rb := f.counts(); up != tt.wantTransfers || rb != tt.wantTransfers {
				t.Errorf("uploads/readbacks = %d/%d, want %d", up, rb, tt.wantTransfers)
			}
			if _, ok := res.Timing[StageCrop]; !ok {
				t.Error("Timing missing crop")
			}

			ref, err := p.Process(img, tt.ops, HintCPU)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(res.Image.Pixels, ref.Image.Pixels) {
				t.Error("GPU crop path differs from CPU path")
			}
		})
	}
}

func TestProcessRotateCropMatchesImaging(t *testing.T) {
	img := randomRaster(40, 20, 4)
	p := NewPipeline(nil)
	res, err := p.Process(img, Operations{
		Rotation: &Rotation{Angle: 80, Straighten: 10},
		Crop:     &Crop{X: 0.25, Y: 0.5, Width: 0.5, Height: 0.25},
	}, HintAuto)
	if err != nil {
		t.Fatal(err)
	}

	// Rotated canvas is 20x40: x in [5,15), y in [20,30).
	want := imaging.Crop(imaging.Rotate90(img.ToNRGBA()), image.Rect(5, 20, 15, 30))
	got := res.Image.ToNRGBA()
	if !got.Rect.Eq(want.Rect) {
		t.Fatalf("bounds = %v, want %v", got.Rect, want.Rect)
	}
	if !bytes.Equal(got.Pix, want.Pix) {
		t.Error("rotate+crop differs from imaging oracle")
	}
}

func TestProcessLosslessRotations(t *testing.T) {
	img := randomRaster(13, 7, 5)
	p := NewPipeline(nil)
	for _, deg := range []float64{0, 360, -360, 720} {
		res, err := p.Process(img, Operations{Rotation: &Rotation{Angle: deg}}, HintAuto)
		if err != nil {
			t.Fatal(err)
		}
		if res.Image.Width != 13 || !bytes.Equal(res.Image.Pixels, img.Pixels) {
			t.Errorf("rotation %v° is not the identity", deg)
		}
	}

	res, err := p.Process(img, Operations{Rotation: &Rotation{Angle: 90}}, HintAuto)
	if err != nil {
		t.Fatal(err)
	}
	if res.Image.Width != 7 || res.Image.Height != 13 {
		t.Fatalf("90° size = %dx%d, want 7x13", res.Image.Width, res.Image.Height)
	}
	const w = 13
	for y := 0; y < 7; y++ {
		for x := 0; x < w; x++ {
			src := (y*w + x) * 3
			dx, dy := y, w-1-x
			dst := (dy*res.Image.Width + dx) * 3
			if !bytes.Equal(img.Pixels[src:src+3], res.Image.Pixels[dst:dst+3]) {
				t.Fatalf("pixel (%d,%d) did not land on (%d,%d)", x, y, dx, dy)
			}
		}
	}
}

func TestProcessFallsBackOnGPUFailure(t *testing.T) {
	for _, op := range []string{"upload", "rotate", "adjust", "lut", "mask", "readback"} {
		t.Run(op, func(t *testing.T) {
			f := newFakeGPU(op)
			svc := newFakeService(t, f)
			p := NewPipeline(svc)
			img := randomRaster(19, 8, 6)

			res, err := p.Process(img, fullOps(), HintAuto)
			if err != nil {
				t.Fatalf("GPU failure surfaced to caller: %v", err)
			}
			if res.Backend != BackendCPU {
				t.Errorf("Backend = %q, want cpu", res.Backend)
			}
			ref, err := p.Process(img, fullOps(), HintCPU)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(res.Image.Pixels, ref.Image.Pixels) {
				t.Error("fallback output differs from CPU path")
			}
			if st := p.Stats(); st.GPUFailures != 1 || st.Fallbacks != 1 {
				t.Errorf("Stats = %+v, want one failure and one fallback", st)
			}
		})
	}
}

func TestProcessFallbackAfterCropStaysOnCPU(t *testing.T) {
	f := newFakeGPU("rotate")
	p := NewPipeline(newFakeService(t, f))
	_, err := p.Process(randomRaster(16, 16, 7), Operations{
		Rotation:    &Rotation{Angle: 30},
		Crop:        &Crop{X: 0.1, Y: 0.1, Width: 0.8, Height: 0.8},
		Adjustments: &Adjustments{Blacks: -20},
	}, HintAuto)
	if err != nil {
		t.Fatal(err)
	}
	if up, _ := f.counts(); up != 1 {
		t.Errorf("uploads = %d, want 1 (second segment must not retry the GPU)", up)
	}
}

func TestProcessBreakerDisablesGPU(t *testing.T) {
	f := newFakeGPU("adjust")
	svc := newFakeService(t, f, WithFailureThreshold(3))
	p := NewPipeline(svc)
	ops := Operations{Adjustments: &Adjustments{Whites: 30}}

	for range 3 {
		if _, err := p.Process(randomRaster(8, 8, 8), ops, HintAuto); err != nil {
			t.Fatal(err)
		}
	}
	if svc.ShouldUseGPU() {
		t.Fatal("GPU still enabled after 3 consecutive failures")
	}

	before, _ := f.counts()
	res, err := p.Process(randomRaster(8, 8, 9), ops, HintAuto)
	if err != nil {
		t.Fatal(err)
	}
	after, _ := f.counts()
	if res.Backend != BackendCPU || after != before {
		t.Error("render used the GPU after the breaker tripped")
	}
	if st := p.Stats(); st.Renders != 4 || st.GPUFailures != 3 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestProcessOversizedImageKeepsGPUEnabled(t *testing.T) {
	f := newFakeGPU()
	f.fail["upload"] = fmt.Errorf("%w: 9000x9000", gpu.ErrSurfaceTooLarge)
	svc := newFakeService(t, f, WithFailureThreshold(3))
	p := NewPipeline(svc)
	ops := Operations{Adjustments: &Adjustments{Exposure: 0.5}}

	for i := range 5 {
		res, err := p.Process(randomRaster(8, 8, int64(20+i)), ops, HintAuto)
		if err != nil {
			t.Fatal(err)
		}
		if res.Backend != BackendCPU {
			t.Errorf("Backend = %q, want cpu", res.Backend)
		}
	}
	if _, err := p.ComputeHistogram(randomRaster(8, 8, 30)); err != nil {
		t.Fatal(err)
	}
	if !svc.ShouldUseGPU() {
		t.Error("size-limited renders tripped the breaker")
	}
	if st := p.Stats(); st.Fallbacks != 6 || st.GPUFailures != 0 {
		t.Errorf("Stats = %+v, want 6 fallbacks and no failures", st)
	}
}

func TestProcessEmptyCropAfterRotateFailsBeforeUpload(t *testing.T) {
	f := newFakeGPU()
	p := NewPipeline(newFakeService(t, f))
	// 4x2 rotated 90° is 2x4, where this crop rounds to zero columns. On
	// the unrotated 4x2 input it would select one.
	_, err := p.Process(randomRaster(4, 2, 31), Operations{
		Rotation:    &Rotation{Angle: 90},
		Crop:        &Crop{X: 0.3, Y: 0, Width: 0.1, Height: 1},
		Adjustments: &Adjustments{Exposure: 0.2},
	}, HintAuto)
	if !errors.Is(err, ErrInvalidCrop) {
		t.Fatalf("err = %v, want ErrInvalidCrop", err)
	}
	if up, rb := f.counts(); up != 0 || rb != 0 {
		t.Errorf("invalid crop transferred %d/%d buffers", up, rb)
	}
	if st := p.Stats(); st.Renders != 0 {
		t.Errorf("Renders = %d, want 0", st.Renders)
	}
}

func TestProcessHintCPUSkipsProbe(t *testing.T) {
	probed := false
	svc := NewService(withProbe(func() (*gpuSession, error) {
		probed = true
		return nil, errors.New("unexpected probe")
	}))
	p := NewPipeline(svc)
	if _, err := p.Process(randomRaster(4, 4, 10), Operations{Adjustments: &Adjustments{Contrast: 10}}, HintCPU); err != nil {
		t.Fatal(err)
	}
	if probed {
		t.Error("HintCPU probed the GPU")
	}
}

func TestProcessValidation(t *testing.T) {
	good := randomRaster(4, 4, 11)
	tests := []struct {
		name string
		img  *RasterImage
		ops  Operations
		want error
	}{
		{"nil image", nil, Operations{}, ErrInvalidImage},
		{"empty image", &RasterImage{}, Operations{}, ErrInvalidImage},
		{"short buffer", &RasterImage{Width: 4, Height: 4, Pixels: make([]uint8, 47)}, Operations{}, ErrInvalidImage},
		{"exposure", good, Operations{Adjustments: &Adjustments{Exposure: 5.5}}, ErrInvalidParameter},
		{"contrast NaN", good, Operations{Adjustments: &Adjustments{Contrast: nan()}}, ErrInvalidParameter},
		{"vibrance", good, Operations{Adjustments: &Adjustments{Vibrance: -101}}, ErrInvalidParameter},
		{"curve unsorted", good, Operations{ToneCurve: &ToneCurve{Points: []CurvePoint{{0, 0}, {0.6, 0.5}, {0.5, 0.7}, {1, 1}}}}, ErrInvalidCurve},
		{"curve short", good, Operations{ToneCurve: &ToneCurve{Points: []CurvePoint{{0, 0}}}}, ErrInvalidCurve},
		{"curve no end", good, Operations{ToneCurve: &ToneCurve{Points: []CurvePoint{{0, 0}, {0.9, 1}}}}, ErrInvalidCurve},
		{"crop outside", good, Operations{Crop: &Crop{X: 0.5, Width: 0.6, Height: 1}}, ErrInvalidCrop},
		{"crop empty", good, Operations{Crop: &Crop{Width: 0, Height: 1}}, ErrInvalidCrop},
		{"crop sub-pixel", good, Operations{Crop: &Crop{X: 0.5, Width: 0.01, Height: 1}}, ErrInvalidCrop},
		{"rotation", good, Operations{Rotation: &Rotation{Angle: inf()}}, ErrInvalidParameter},
		{"mask feather", good, Operations{Masks: MaskStack{LinearMask{End: Point{1, 0}, Feather: 2}}}, ErrInvalidParameter},
		{"mask radius", good, Operations{Masks: MaskStack{RadialMask{RadiusX: 0, RadiusY: 1}}}, ErrInvalidParameter},
		{"mask degenerate", good, Operations{Masks: MaskStack{LinearMask{Start: Point{0.5, 0.5}, End: Point{0.5, 0.5}}}}, ErrInvalidParameter},
		{"mask nil", good, Operations{Masks: MaskStack{nil}}, ErrInvalidParameter},
		{"mask adjustments", good, Operations{Masks: MaskStack{RadialMask{RadiusX: 1, RadiusY: 1, Adjustments: Adjustments{Tint: 200}}}}, ErrInvalidParameter},
		{"quality", good, Operations{Quality: Quality(9)}, ErrInvalidParameter},
	}
	p := NewPipeline(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Process(tt.img, tt.ops, HintAuto)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field == "" {
				t.Errorf("err %v is not a *ValidationError with a field", err)
			}
		})
	}
}

func TestProcessDisabledMasksAreNoOp(t *testing.T) {
	img := randomRaster(9, 9, 12)
	f := newFakeGPU()
	p := NewPipeline(newFakeService(t, f))
	res, err := p.Process(img, Operations{Masks: MaskStack{
		LinearMask{End: Point{1, 1}, Adjustments: Adjustments{Exposure: 2}},
		RadialMask{RadiusX: 1, RadiusY: 1, Enabled: true},
	}}, HintAuto)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(res.Image.Pixels, img.Pixels) {
		t.Error("disabled masks changed pixels")
	}
	if up, _ := f.counts(); up != 0 {
		t.Error("no-op mask stack uploaded to the GPU")
	}
}

func TestProcessMasksComposeSequentially(t *testing.T) {
	img := solidRaster(8, 8, 100, 100, 100)
	m := LinearMask{Start: Point{0, 0}, End: Point{1, 0}, Enabled: true, Adjustments: Adjustments{Exposure: 1}}
	p := NewPipeline(nil)
	res, err := p.Process(img, Operations{
		Adjustments: &Adjustments{Exposure: -1},
		Masks:       MaskStack{m, m},
	}, HintAuto)
	if err != nil {
		t.Fatal(err)
	}

	want := kernel.Adjustments(img.toKernel(), Adjustments{Exposure: -1}.lower())
	want = kernel.ApplyMask(want, m.lower())
	want = kernel.ApplyMask(want, m.lower())
	if !bytes.Equal(res.Image.Pixels, want.Pix) {
		t.Error("masks did not compose over prior stages in order")
	}
}

func TestLUTCache(t *testing.T) {
	p := NewPipeline(nil, WithLUTCacheSize(4))
	curve := &ToneCurve{Points: []CurvePoint{{0, 0}, {0.5, 0.7}, {1, 1}}}
	for range 3 {
		if _, err := p.Process(randomRaster(4, 4, 13), Operations{ToneCurve: curve}, HintAuto); err != nil {
			t.Fatal(err)
		}
	}
	st := p.Stats()
	if st.LUTCacheMisses != 1 || st.LUTCacheHits != 2 {
		t.Errorf("LUT cache hits/misses = %d/%d, want 2/1", st.LUTCacheHits, st.LUTCacheMisses)
	}
}

func TestPipelineHistogram(t *testing.T) {
	img := randomRaster(33, 17, 14)
	want, err := ComputeHistogram(img)
	if err != nil {
		t.Fatal(err)
	}

	f := newFakeGPU()
	p := NewPipeline(newFakeService(t, f))
	got, err := p.ComputeHistogram(img)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Error("GPU histogram differs from CPU histogram")
	}
	if up, _ := f.counts(); up != 1 {
		t.Errorf("uploads = %d, want 1", up)
	}

	failing := NewPipeline(newFakeService(t, newFakeGPU("histogram")))
	got, err = failing.ComputeHistogram(img)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Error("histogram fallback differs from CPU histogram")
	}
	if st := failing.Stats(); st.Fallbacks != 1 {
		t.Errorf("Fallbacks = %d, want 1", st.Fallbacks)
	}
}

func TestRealGPUMatchesCPU(t *testing.T) {
	svc := NewService()
	t.Cleanup(svc.Teardown)
	if !svc.ShouldUseGPU() {
		t.Skipf("no GPU: %s", svc.Detect(t.Context()).Reason)
	}
	p := NewPipeline(svc)
	img := randomRaster(101, 57, 15)
	ops := fullOps()

	gpuRes, err := p.Process(img, ops, HintGPU)
	if err != nil {
		t.Fatal(err)
	}
	if gpuRes.Backend != BackendGPU {
		t.Skip("GPU segment fell back to CPU")
	}
	cpuRes, err := p.Process(img, ops, HintCPU)
	if err != nil {
		t.Fatal(err)
	}
	for i := range cpuRes.Image.Pixels {
		if d := absDiff(gpuRes.Image.Pixels[i], cpuRes.Image.Pixels[i]); d > 2 {
			t.Fatalf("byte %d: gpu %d cpu %d", i, gpuRes.Image.Pixels[i], cpuRes.Image.Pixels[i])
		}
	}
}

func BenchmarkProcessCPU(b *testing.B) {
	p := NewPipeline(nil)
	img := randomRaster(512, 512, 16)
	ops := fullOps()
	b.ReportAllocs()
	for b.Loop() {
		if _, err := p.Process(img, ops, HintCPU); err != nil {
			b.Fatal(err)
		}
	}
}
