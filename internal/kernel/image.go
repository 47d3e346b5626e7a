package kernel

// Image is a tightly packed RGB8 raster: 3 bytes per pixel, row-major, no
// row padding.
type Image struct {
	Width, Height int
	Pix           []uint8
}

// NewImage allocates a black image.
func NewImage(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*3),
	}
}

// Clone returns a deep copy of im.
func (im *Image) Clone() *Image {
	pix := make([]uint8, len(im.Pix))
	copy(pix, im.Pix)
	return &Image{Width: im.Width, Height: im.Height, Pix: pix}
}

// Crop extracts the pixel rectangle [x0,x1)×[y0,y1) by copying rows.
// The rectangle must lie inside the image.
func Crop(src *Image, x0, y0, x1, y1 int) *Image {
	w, h := x1-x0, y1-y0
	dst := NewImage(w, h)
	rowBytes := w * 3
	for y := 0; y < h; y++ {
		srcOff := ((y0+y)*src.Width + x0) * 3
		copy(dst.Pix[y*rowBytes:(y+1)*rowBytes], src.Pix[srcOff:srcOff+rowBytes])
	}
	return dst
}
