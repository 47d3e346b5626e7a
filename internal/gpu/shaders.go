//go:build !nogpu

package gpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/common.wgsl
var commonShaderSource string

//go:embed shaders/adjust.wgsl
var adjustShaderBody string

//go:embed shaders/curve.wgsl
var curveShaderBody string

//go:embed shaders/mask.wgsl
var maskShaderBody string

//go:embed shaders/rotate.wgsl
var rotateShaderBody string

//go:embed shaders/histogram.wgsl
var histogramShaderBody string

// withCommon prepends the shared pixel helpers to a kernel body.
func withCommon(body string) string {
	return commonShaderSource + "\n" + body
}

// Complete kernel sources as handed to the device.
var (
	adjustShaderSource    = withCommon(adjustShaderBody)
	curveShaderSource     = withCommon(curveShaderBody)
	maskShaderSource      = withCommon(maskShaderBody)
	rotateShaderSource    = withCommon(rotateShaderBody)
	histogramShaderSource = withCommon(histogramShaderBody)
)

// compileSPIRV compiles WGSL to SPIR-V words with naga.
func compileSPIRV(wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}

	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// shaderSource prefers precompiled SPIR-V and falls back to WGSL, which the
// HAL compiles itself, when naga cannot lower the module.
func shaderSource(label, wgsl string) hal.ShaderSource {
	words, err := compileSPIRV(wgsl)
	if err != nil {
		slogger().Debug("gpu: naga compile failed, passing WGSL", "shader", label, "err", err)
		return hal.ShaderSource{WGSL: wgsl}
	}
	return hal.ShaderSource{SPIRV: words}
}
