// Package gpu runs the darkroom kernels as WebGPU compute shaders through
// the wgpu HAL.
//
// Images live on the device as storage buffers of packed RGBA8 words, one
// u32 per pixel. Every operation records one compute pass, submits it, and
// waits on a fence before returning, so a Backend never has work in flight
// between calls. Buffers are recycled through a size-classed pool.
//
// Building with the nogpu tag replaces the package with a stub whose Open
// always fails with ErrUnavailable.
package gpu
