package hash

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/corona10/goimagehash"
)

// ImageHash is a computed DCT-based perceptual hash.
type ImageHash struct {
	Hash   uint64
	Width  int
	Height int
}

// PerceptualHasher computes perceptual hashes for images, optionally
// fetching them over HTTP first.
type PerceptualHasher struct {
	httpClient *http.Client
}

// NewPerceptualHasher creates a new PerceptualHasher.
func NewPerceptualHasher() *PerceptualHasher {
	return &PerceptualHasher{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ComputePHash computes the perceptual hash of a decoded image.
func (ph *PerceptualHasher) ComputePHash(img image.Image) (*ImageHash, error) {
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, fmt.Errorf("failed to compute pHash: %w", err)
	}
	return &ImageHash{
		Hash:   h.GetHash(),
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}

// ComputePHashFromBytes decodes data as an image and computes its pHash.
func (ph *PerceptualHasher) ComputePHashFromBytes(data []byte) (*ImageHash, error) {
	return ph.ComputePHashFromReader(bytes.NewReader(data))
}

// ComputePHashFromReader decodes an image from r and computes its pHash.
func (ph *PerceptualHasher) ComputePHashFromReader(r io.Reader) (*ImageHash, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return ph.ComputePHash(img)
}

// ComputePHashFromURL fetches an image and computes its pHash.
func (ph *PerceptualHasher) ComputePHashFromURL(ctx context.Context, url string) (*ImageHash, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := ph.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return ph.ComputePHashFromReader(resp.Body)
}

// Distance returns the Hamming distance between two pHashes.
func Distance(a, b uint64) int {
	x := a ^ b
	count := 0
	for x != 0 {
		x &= x - 1
		count++
	}
	return count
}
