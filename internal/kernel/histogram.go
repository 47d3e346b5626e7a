package kernel

// Histogram holds 256-bin counts for red, green, blue and BT.709 luma.
type Histogram struct {
	R, G, B, L [256]uint32
}

// Luma returns the BT.709 luma bin of an RGB8 pixel using integer weights,
// so every backend computes the same bin.
func Luma(r, g, b uint8) uint8 {
	return uint8((2126*uint32(r) + 7152*uint32(g) + 722*uint32(b) + 5000) / 10000)
}

// ComputeHistogram accumulates src in a single pass.
func ComputeHistogram(src *Image) Histogram {
	var h Histogram
	for i := 0; i+2 < len(src.Pix); i += 3 {
		r, g, b := src.Pix[i], src.Pix[i+1], src.Pix[i+2]
		h.R[r]++
		h.G[g]++
		h.B[b]++
		h.L[Luma(r, g, b)]++
	}
	return h
}
