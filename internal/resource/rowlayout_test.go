package resource

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func TestPaddedBytesPerRow(t *testing.T) {
	tests := []struct {
		width, bpp int
		want       int
	}{
		{64, 4, 256},
		{65, 4, 512},
		{101, 4, 512},
		{257, 4, 1280},
		{101, 3, 512},
		{1, 4, 256},
	}
	for _, tt := range tests {
		l := NewRowLayout(tt.width, 2, tt.bpp)
		if got := l.PaddedBytesPerRow(); got != tt.want {
			t.Errorf("width %d bpp %d: pitch = %d, want %d", tt.width, tt.bpp, got, tt.want)
		}
		if err := l.Validate(); err != nil {
			t.Errorf("width %d: Validate: %v", tt.width, err)
		}
	}
}

// Widths that are not a multiple of the alignment must survive a pad/strip
// round trip byte for byte.
func TestPadStripRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, width := range []int{1, 63, 64, 101, 257, 1000} {
		for _, bpp := range []int{3, 4} {
			l := NewRowLayout(width, 7, bpp)
			tight := make([]byte, l.TightSize())
			rng.Read(tight)

			padded, err := l.Pad(tight)
			if err != nil {
				t.Fatalf("Pad: %v", err)
			}
			if len(padded) != l.PaddedSize() {
				t.Fatalf("padded len = %d, want %d", len(padded), l.PaddedSize())
			}
			back, err := l.Strip(padded)
			if err != nil {
				t.Fatalf("Strip: %v", err)
			}
			if !bytes.Equal(back, tight) {
				t.Fatalf("width %d bpp %d: round trip mismatch", width, bpp)
			}
		}
	}
}

func TestCopyRegionsReassemble(t *testing.T) {
	for _, width := range []int{101, 257} {
		l := NewRowLayout(width, 5, 4)
		src := make([]byte, l.TightSize())
		for i := range src {
			src[i] = byte(i * 7)
		}

		dst := make([]byte, l.PaddedSize())
		for _, r := range l.CopyRegions() {
			if r.DstOffset%CopyRowAlignment != 0 {
				t.Fatalf("destination offset %d not aligned", r.DstOffset)
			}
			copy(dst[r.DstOffset:r.DstOffset+r.Size], src[r.SrcOffset:r.SrcOffset+r.Size])
		}

		back, err := l.Strip(dst)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(back, src) {
			t.Errorf("width %d: per-row copies lost data", width)
		}
	}
}

func TestLayoutSizeMismatch(t *testing.T) {
	l := NewRowLayout(101, 3, 4)
	if _, err := l.Pad(make([]byte, 10)); !errors.Is(err, ErrMisaligned) {
		t.Errorf("Pad short buffer: err = %v, want ErrMisaligned", err)
	}
	if _, err := l.Strip(make([]byte, l.TightSize())); !errors.Is(err, ErrMisaligned) {
		t.Errorf("Strip tight buffer: err = %v, want ErrMisaligned", err)
	}
	if err := (RowLayout{Width: 0, Height: 1, BytesPerPixel: 4}).Validate(); !errors.Is(err, ErrMisaligned) {
		t.Errorf("zero width Validate: err = %v", err)
	}
}

func TestPackRoundTrip(t *testing.T) {
	rgb := make([]byte, 3*101)
	rand.New(rand.NewSource(3)).Read(rgb)

	packed, err := PackRGB(rgb)
	if err != nil {
		t.Fatal(err)
	}
	for i := 3; i < len(packed); i += 4 {
		if packed[i] != 0xFF {
			t.Fatalf("alpha byte %d = %d", i, packed[i])
		}
	}
	back, err := UnpackRGB(packed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back, rgb) {
		t.Error("pack/unpack changed pixels")
	}

	if _, err := PackRGB(make([]byte, 4)); err == nil {
		t.Error("PackRGB accepted a partial pixel")
	}
}
