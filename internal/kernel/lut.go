package kernel

// IsIdentityLUT reports whether lut maps every level to itself.
func IsIdentityLUT(lut *[256]uint8) bool {
	for i, v := range lut {
		if int(v) != i {
			return false
		}
	}
	return true
}

// ApplyLUT replaces each channel value v with lut[v]. An identity table
// returns src.
func ApplyLUT(src *Image, lut *[256]uint8) *Image {
	if IsIdentityLUT(lut) {
		return src
	}
	dst := NewImage(src.Width, src.Height)
	forEachBand(src.Height, func(y0, y1 int) {
		end := y1 * src.Width * 3
		for i := y0 * src.Width * 3; i < end; i++ {
			dst.Pix[i] = lut[src.Pix[i]]
		}
	})
	return dst
}
