package hash

import (
	"image"
	"image/color"
	"testing"
)

func solidImage(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func gradientImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.Gray{Y: uint8(x * 4)})
		}
	}
	return img
}

func TestComputePHash_Deterministic(t *testing.T) {
	ph := NewPerceptualHasher()

	img := gradientImage()
	h1, err := ph.ComputePHash(img)
	if err != nil {
		t.Fatalf("ComputePHash failed: %v", err)
	}
	h2, err := ph.ComputePHash(img)
	if err != nil {
		t.Fatalf("ComputePHash failed: %v", err)
	}

	if h1.Hash != h2.Hash {
		t.Errorf("pHash not deterministic: %016x != %016x", h1.Hash, h2.Hash)
	}
	if h1.Width != 64 || h1.Height != 64 {
		t.Errorf("unexpected dimensions: %dx%d", h1.Width, h1.Height)
	}
}

func TestComputePHash_SimilarImagesClose(t *testing.T) {
	ph := NewPerceptualHasher()

	a, err := ph.ComputePHash(solidImage(color.Gray{Y: 100}))
	if err != nil {
		t.Fatalf("ComputePHash failed: %v", err)
	}
	b, err := ph.ComputePHash(solidImage(color.Gray{Y: 104}))
	if err != nil {
		t.Fatalf("ComputePHash failed: %v", err)
	}

	if d := Distance(a.Hash, b.Hash); d > 10 {
		t.Errorf("expected near-identical images to have small distance, got %d", d)
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b uint64
		want int
	}{
		{0, 0, 0},
		{0, 1, 1},
		{0xFF, 0x00, 8},
		{0xFFFFFFFFFFFFFFFF, 0, 64},
	}
	for _, tt := range tests {
		if got := Distance(tt.a, tt.b); got != tt.want {
			t.Errorf("Distance(%x, %x) = %d; want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestComputePHashFromBytes_InvalidData(t *testing.T) {
	ph := NewPerceptualHasher()
	if _, err := ph.ComputePHashFromBytes([]byte("not an image")); err == nil {
		t.Error("expected error for invalid image data")
	}
}
