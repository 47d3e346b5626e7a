package resource

import "fmt"

// PackedBytesPerPixel is the size of one packed pixel word.
const PackedBytesPerPixel = 4

// PackRGB expands interleaved RGB8 into little-endian u32 words laid out as
// r | g<<8 | b<<16 | 0xFF<<24, the format the compute shaders read.
func PackRGB(rgb []byte) ([]byte, error) {
	if len(rgb)%3 != 0 {
		return nil, fmt.Errorf("resource: RGB length %d not a multiple of 3", len(rgb))
	}
	n := len(rgb) / 3
	out := make([]byte, n*PackedBytesPerPixel)
	for i := 0; i < n; i++ {
		out[i*4] = rgb[i*3]
		out[i*4+1] = rgb[i*3+1]
		out[i*4+2] = rgb[i*3+2]
		out[i*4+3] = 0xFF
	}
	return out, nil
}

// UnpackRGB drops the fourth byte of every packed word.
func UnpackRGB(packed []byte) ([]byte, error) {
	if len(packed)%PackedBytesPerPixel != 0 {
		return nil, fmt.Errorf("resource: packed length %d not a multiple of 4", len(packed))
	}
	n := len(packed) / PackedBytesPerPixel
	out := make([]byte, n*3)
	for i := 0; i < n; i++ {
		out[i*3] = packed[i*4]
		out[i*3+1] = packed[i*4+1]
		out[i*3+2] = packed[i*4+2]
	}
	return out, nil
}
