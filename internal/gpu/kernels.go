//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// computeKernel owns the pipeline objects of one compute shader. Binding 0
// is always the uniform parameter block; storage buffers follow in order.
type computeKernel struct {
	label      string
	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

func newComputeKernel(device hal.Device, label, wgsl string, storage ...gputypes.BufferBindingType) (*computeKernel, error) {
	k := &computeKernel{label: label}

	shader, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: shaderSource(label, wgsl),
	})
	if err != nil {
		return nil, fmt.Errorf("compile %s shader: %w", label, err)
	}
	k.shader = shader

	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(storage)+1)
	entries = append(entries, gputypes.BindGroupLayoutEntry{
		Binding: 0, Visibility: gputypes.ShaderStageCompute,
		Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	})
	for i, typ := range storage {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding: uint32(i + 1), Visibility: gputypes.ShaderStageCompute, //nolint:gosec // binding index is tiny
			Buffer: &gputypes.BufferBindingLayout{Type: typ},
		})
	}

	bindLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: label + "_bind_layout", Entries: entries,
	})
	if err != nil {
		k.destroy(device)
		return nil, fmt.Errorf("create %s bind group layout: %w", label, err)
	}
	k.bindLayout = bindLayout

	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: label + "_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		k.destroy(device)
		return nil, fmt.Errorf("create %s pipeline layout: %w", label, err)
	}
	k.pipeLayout = pipeLayout

	pipeline, err := device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: label + "_pipeline", Layout: pipeLayout,
		Compute: hal.ComputeState{Module: shader, EntryPoint: "main"},
	})
	if err != nil {
		k.destroy(device)
		return nil, fmt.Errorf("create %s compute pipeline: %w", label, err)
	}
	k.pipeline = pipeline
	return k, nil
}

func (k *computeKernel) destroy(device hal.Device) {
	if k == nil || device == nil {
		return
	}
	if k.pipeline != nil {
		device.DestroyComputePipeline(k.pipeline)
		k.pipeline = nil
	}
	if k.pipeLayout != nil {
		device.DestroyPipelineLayout(k.pipeLayout)
		k.pipeLayout = nil
	}
	if k.bindLayout != nil {
		device.DestroyBindGroupLayout(k.bindLayout)
		k.bindLayout = nil
	}
	if k.shader != nil {
		device.DestroyShaderModule(k.shader)
		k.shader = nil
	}
}

// kernelSet holds every darkroom pipeline.
type kernelSet struct {
	adjust    *computeKernel
	curve     *computeKernel
	mask      *computeKernel
	rotate    *computeKernel
	histogram *computeKernel
}

func newKernelSet(device hal.Device) (*kernelSet, error) {
	ro := gputypes.BufferBindingTypeReadOnlyStorage
	rw := gputypes.BufferBindingTypeStorage

	ks := &kernelSet{}
	var err error
	if ks.adjust, err = newComputeKernel(device, "darkroom_adjust", adjustShaderSource, ro, rw); err != nil {
		ks.destroy(device)
		return nil, err
	}
	if ks.curve, err = newComputeKernel(device, "darkroom_curve", curveShaderSource, ro, ro, rw); err != nil {
		ks.destroy(device)
		return nil, err
	}
	if ks.mask, err = newComputeKernel(device, "darkroom_mask", maskShaderSource, ro, rw); err != nil {
		ks.destroy(device)
		return nil, err
	}
	if ks.rotate, err = newComputeKernel(device, "darkroom_rotate", rotateShaderSource, ro, rw); err != nil {
		ks.destroy(device)
		return nil, err
	}
	if ks.histogram, err = newComputeKernel(device, "darkroom_histogram", histogramShaderSource, ro, rw); err != nil {
		ks.destroy(device)
		return nil, err
	}
	return ks, nil
}

func (ks *kernelSet) destroy(device hal.Device) {
	ks.adjust.destroy(device)
	ks.curve.destroy(device)
	ks.mask.destroy(device)
	ks.rotate.destroy(device)
	ks.histogram.destroy(device)
}
