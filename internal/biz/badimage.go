package biz

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"forumguard/internal/conf"
	"forumguard/internal/pkg/bloom"
	"forumguard/internal/pkg/hash"
	"forumguard/internal/pkg/redis"

	"github.com/go-kratos/kratos/v2/log"
)

// BadImage is a known-bad image fingerprint. PHash is the 64-bit DCT
// perceptual hash stored as a signed integer so it fits a BIGINT column.
type BadImage struct {
	PHash     int64     `json:"phash"`
	Category  string    `json:"category"`
	NSFWScore float64   `json:"nsfw_score"`
	SourceURL string    `json:"source_url"`
	AddedBy   string    `json:"added_by"`
	CreatedAt time.Time `json:"created_at"`
}

// BadImageRepo persists bad-image fingerprints.
type BadImageRepo interface {
	Save(ctx context.Context, img *BadImage) error
	// FindSimilar returns the closest fingerprint within maxDistance
	// Hamming bits of phash, or nil when none qualifies.
	FindSimilar(ctx context.Context, phash int64, maxDistance int32) (*BadImage, error)
	ListPHashes(ctx context.Context) ([]int64, error)
}

// BadImageUsecase short-circuits moderation for images perceptually close
// to ones already classified unsafe, saving a paid classifier call. A
// Redis Bloom filter fronts the registry so unknown images cost one bit
// check instead of a table scan.
type BadImageUsecase struct {
	enabled     bool
	maxDistance int32
	repo        BadImageRepo
	filter      *bloom.Filter
	hasher      *hash.PerceptualHasher
	log         *log.Helper
}

// NewBadImageUsecase creates the registry. When disabled in config every
// method is a no-op.
func NewBadImageUsecase(repo BadImageRepo, store redis.Cache, mc *conf.Moderation, logger log.Logger) *BadImageUsecase {
	bi := mc.BadImage
	return &BadImageUsecase{
		enabled:     bi.Enabled,
		maxDistance: bi.MaxDistance,
		repo:        repo,
		filter:      bloom.NewBloomFilter(store, bi.BloomKey, bi.BloomBits, bi.BloomHashes),
		hasher:      hash.NewPerceptualHasher(),
		log:         log.NewHelper(logger),
	}
}

// Enabled reports whether the registry participates in moderation.
func (uc *BadImageUsecase) Enabled() bool {
	return uc.enabled
}

func phashKey(phash int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(phash))
	return buf[:]
}

// Check fetches the image, computes its pHash, and looks for a known-bad
// fingerprint within the configured Hamming distance. Any failure along
// the way degrades to "no match": the paid classifier stays the
// authority and this path only ever saves calls.
func (uc *BadImageUsecase) Check(ctx context.Context, imageURL string) (*BadImage, int64) {
	if !uc.enabled {
		return nil, 0
	}

	ih, err := uc.hasher.ComputePHashFromURL(ctx, imageURL)
	if err != nil {
		uc.log.Warnf("failed to compute pHash for %s: %v", imageURL, err)
		return nil, 0
	}
	phash := int64(ih.Hash)

	exists, err := uc.filter.Exists(ctx, phashKey(phash))
	if err != nil {
		uc.log.Warnf("bloom check failed for %s: %v", imageURL, err)
	} else if !exists {
		return nil, phash
	}

	match, err := uc.repo.FindSimilar(ctx, phash, uc.maxDistance)
	if err != nil {
		uc.log.Warnf("bad-image lookup failed for %s: %v", imageURL, err)
		return nil, phash
	}
	return match, phash
}

// Record registers an unsafe image's fingerprint. Errors are logged, not
// returned: the verdict that triggered the record already stands.
func (uc *BadImageUsecase) Record(ctx context.Context, phash int64, category string, score float64, sourceURL, addedBy string) {
	if !uc.enabled || phash == 0 {
		return
	}
	img := &BadImage{
		PHash:     phash,
		Category:  category,
		NSFWScore: score,
		SourceURL: sourceURL,
		AddedBy:   addedBy,
	}
	if err := uc.repo.Save(ctx, img); err != nil {
		uc.log.Errorf("failed to save bad-image fingerprint %d: %v", phash, err)
		return
	}
	if err := uc.filter.Add(ctx, phashKey(phash)); err != nil {
		uc.log.Warnf("failed to add fingerprint %d to bloom filter: %v", phash, err)
	}
}

// RebuildBloom resets the Bloom filter and re-adds every persisted
// fingerprint. Run after bulk deletions, since a Bloom filter cannot
// forget individual entries.
func (uc *BadImageUsecase) RebuildBloom(ctx context.Context) (int, error) {
	if !uc.enabled {
		return 0, nil
	}
	if err := uc.filter.Reset(ctx); err != nil {
		return 0, fmt.Errorf("failed to reset bloom filter: %w", err)
	}
	phashes, err := uc.repo.ListPHashes(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list fingerprints: %w", err)
	}
	for _, p := range phashes {
		if err := uc.filter.Add(ctx, phashKey(p)); err != nil {
			return 0, fmt.Errorf("failed to re-add fingerprint %d: %w", p, err)
		}
	}
	uc.log.Infof("bloom filter rebuilt with %d fingerprints", len(phashes))
	return len(phashes), nil
}
