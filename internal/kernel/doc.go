// Package kernel holds the CPU reference implementations of the photographic
// edit operations: adjustments, tone-curve lookup, gradient masks, rotation,
// crop and histogram.
//
// Every function here defines the numeric behavior that the GPU shaders in
// internal/gpu reproduce. Pixel math runs in normalized [0,1] float32 and is
// quantized once per operation with [Quantize], so a CPU result and a GPU
// result for the same input differ only by floating-point rounding.
//
// Kernels never modify their input image. Operations whose parameters are the
// identity return the input unchanged.
package kernel
