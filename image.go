package darkroom

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/gogpu/darkroom/internal/kernel"
)

// RasterImage is an 8-bit interleaved RGB image without alpha.
// len(Pixels) must equal Width*Height*3.
type RasterImage struct {
	Width  int
	Height int
	Pixels []uint8
}

// NewRasterImage allocates a black image.
func NewRasterImage(width, height int) *RasterImage {
	return &RasterImage{Width: width, Height: height, Pixels: make([]uint8, width*height*3)}
}

// Validate checks the dimensions against the pixel buffer.
func (img *RasterImage) Validate() error {
	if img == nil {
		return invalid(ErrInvalidImage, "image", "nil")
	}
	if img.Width <= 0 || img.Height <= 0 {
		return invalid(ErrInvalidImage, "size", "%dx%d is empty", img.Width, img.Height)
	}
	if img.Width > math.MaxInt32/img.Height/3 {
		return invalid(ErrInvalidImage, "size", "%dx%d is too large", img.Width, img.Height)
	}
	if want := img.Width * img.Height * 3; len(img.Pixels) != want {
		return invalid(ErrInvalidImage, "pixels", "have %d bytes, want %d", len(img.Pixels), want)
	}
	return nil
}

// Clone returns a deep copy.
func (img *RasterImage) Clone() *RasterImage {
	out := &RasterImage{Width: img.Width, Height: img.Height, Pixels: make([]uint8, len(img.Pixels))}
	copy(out.Pixels, img.Pixels)
	return out
}

// FromImage converts any image.Image to RGB. Alpha is discarded.
func FromImage(src image.Image) *RasterImage {
	nrgba := imaging.Clone(src)
	b := nrgba.Bounds()
	out := NewRasterImage(b.Dx(), b.Dy())
	for y := 0; y < out.Height; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+out.Width*4]
		dst := out.Pixels[y*out.Width*3 : (y+1)*out.Width*3]
		for x := 0; x < out.Width; x++ {
			dst[x*3+0] = row[x*4+0]
			dst[x*3+1] = row[x*4+1]
			dst[x*3+2] = row[x*4+2]
		}
	}
	return out
}

// ToNRGBA converts the image to an opaque *image.NRGBA.
func (img *RasterImage) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	for i, j := 0, 0; i < len(img.Pixels); i, j = i+3, j+4 {
		out.Pix[j+0] = img.Pixels[i+0]
		out.Pix[j+1] = img.Pixels[i+1]
		out.Pix[j+2] = img.Pixels[i+2]
		out.Pix[j+3] = 0xFF
	}
	return out
}

// toKernel copies img into a kernel image.
func (img *RasterImage) toKernel() *kernel.Image {
	k := kernel.NewImage(img.Width, img.Height)
	copy(k.Pix, img.Pixels)
	return k
}

// fromKernel takes ownership of k's pixels.
func fromKernel(k *kernel.Image) *RasterImage {
	return &RasterImage{Width: k.Width, Height: k.Height, Pixels: k.Pix}
}
