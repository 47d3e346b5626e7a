//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/darkroom/internal/kernel"
)

// Uniform block sizes. Every block is a whole number of vec4s.
const (
	adjustParamsSize    = 64
	curveParamsSize     = 16
	maskParamsSize      = 96
	rotateParamsSize    = 64
	histogramParamsSize = 16
)

// Rotation modes understood by rotate.wgsl.
const (
	rotateBilinear    = 0
	rotateLanczos     = 1
	rotateQuarterTurn = 2
)

// paramWriter appends little-endian scalars to a uniform block.
type paramWriter struct {
	buf []byte
}

func newParamWriter(size int) *paramWriter {
	return &paramWriter{buf: make([]byte, 0, size)}
}

func (w *paramWriter) f32(vs ...float32) *paramWriter {
	for _, v := range vs {
		w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
	}
	return w
}

func (w *paramWriter) u32(vs ...uint32) *paramWriter {
	for _, v := range vs {
		w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	}
	return w
}

func (w *paramWriter) adjust(a kernel.Adjust) *paramWriter {
	return w.
		f32(a.Exposure, a.Contrast, a.Temperature, a.Tint).
		f32(a.Highlights, a.Shadows, a.Whites, a.Blacks).
		f32(a.Saturation, a.Vibrance, 0, 0)
}

func (w *paramWriter) bytes() []byte { return w.buf }

func dims(width, height int) []uint32 {
	return []uint32{uint32(width), uint32(height), 0, 0} //nolint:gosec // dimensions bounded by MaxSurfaceBytes
}

func adjustParams(a kernel.Adjust, width, height int) []byte {
	return newParamWriter(adjustParamsSize).adjust(a).u32(dims(width, height)...).bytes()
}

func curveParams(width, height int) []byte {
	return newParamWriter(curveParamsSize).u32(dims(width, height)...).bytes()
}

func histogramParams(width, height int) []byte {
	return newParamWriter(histogramParamsSize).u32(dims(width, height)...).bytes()
}

func maskParams(m kernel.Mask, width, height int) []byte {
	var kind, invert uint32
	if m.Kind == kernel.MaskRadial {
		kind = 1
	}
	if m.Invert {
		invert = 1
	}

	w := newParamWriter(maskParamsSize).adjust(m.Adjust).
		u32(uint32(width), uint32(height), kind, invert) //nolint:gosec // dimensions bounded by MaxSurfaceBytes

	switch m.Kind {
	case kernel.MaskRadial:
		rad := float64(m.Rotation) * math.Pi / 180
		w.f32(m.CenterX, m.CenterY, m.RadiusX, m.RadiusY).
			f32(float32(math.Cos(rad)), float32(math.Sin(rad)), m.Feather, 0)
	default:
		dx, dy := m.EndX-m.StartX, m.EndY-m.StartY
		var invLen2 float32
		if l2 := dx*dx + dy*dy; l2 > 0 {
			invLen2 = 1 / l2
		}
		w.f32(m.StartX, m.StartY, m.EndX, m.EndY).
			f32(kernel.LinearFeatherFloor(m.Feather), 0, m.Feather, invLen2)
	}
	return w.bytes()
}

// rotateParams encodes the inverse mapping for an arbitrary angle or, when
// turns is nonzero, an exact quarter-turn remap.
func rotateParams(sw, sh, dw, dh int, deg float64, q kernel.Quality, turns uint32) []byte {
	mode := uint32(rotateBilinear)
	if q == kernel.QualityLanczos {
		mode = rotateLanczos
	}
	var m [6]float32
	if turns != 0 {
		mode = rotateQuarterTurn
	} else {
		aff := kernel.InverseTransform(sw, sh, dw, dh, deg)
		for i, v := range aff {
			m[i] = float32(v)
		}
	}
	return newParamWriter(rotateParamsSize).
		f32(m[0], m[1], m[2], m[3]).
		f32(m[4], m[5], 0, 0).
		u32(uint32(sw), uint32(sh), uint32(dw), uint32(dh)). //nolint:gosec // dimensions bounded by MaxSurfaceBytes
		u32(mode, turns, 0, 0).
		bytes()
}
