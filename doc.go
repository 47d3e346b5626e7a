// Package darkroom renders photographic edits on a GPU compute backend with
// a portable CPU fallback.
//
// A Pipeline applies a fixed operation order to a RasterImage:
//
//	rotate → crop → adjustments → tone curve → masks
//
// Every kernel has a CPU reference implementation and a WGSL compute shader
// that agree to within 2 of 255 per channel. Lossless rotations (multiples of
// 90°) and the histogram are bit-exact on both backends.
//
// # Backends
//
// A Service is created once per process and passed to every Pipeline. It
// probes for a Vulkan device on first use, counts consecutive GPU failures
// and disables the GPU for the rest of its life once the failure threshold
// is reached. Rendering never fails because of the GPU: a failing GPU segment
// is re-run on the CPU from the last CPU checkpoint.
//
//	svc := darkroom.NewService()
//	defer svc.Teardown()
//
//	p := darkroom.NewPipeline(svc)
//	res, err := p.Process(img, darkroom.Operations{
//	    Adjustments: &darkroom.Adjustments{Exposure: 0.5, Contrast: 20},
//	}, darkroom.HintAuto)
//
// # Round trips
//
// Without a crop the whole chain runs on GPU-resident buffers with a single
// upload and a single readback. A crop splits the chain: the rotation is read
// back, cropped on the CPU, and the remaining stages run after a second
// upload.
//
// # Logging
//
// darkroom is silent by default. Call SetLogger to receive structured logs.
package darkroom
