package data

import (
	"context"
	"errors"

	"forumguard/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jackc/pgx/v5"
)

type badImageRepo struct {
	data *Data
	log  *log.Helper
}

// NewBadImageRepo creates a Postgres-backed bad-image fingerprint
// repository.
func NewBadImageRepo(data *Data, logger log.Logger) biz.BadImageRepo {
	return &badImageRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// Save implements biz.BadImageRepo.
func (r *badImageRepo) Save(ctx context.Context, img *biz.BadImage) error {
	_, err := r.data.Pool.Exec(ctx, `
		INSERT INTO bad_images (phash, category, nsfw_score, source_url, added_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (phash) DO UPDATE SET
			category   = EXCLUDED.category,
			nsfw_score = EXCLUDED.nsfw_score`,
		img.PHash, img.Category, img.NSFWScore, img.SourceURL, img.AddedBy,
	)
	return err
}

// FindSimilar implements biz.BadImageRepo. Hamming distance over the
// 64-bit fingerprints is computed in SQL via XOR plus bit_count, so the
// closest match comes back in one round trip.
func (r *badImageRepo) FindSimilar(ctx context.Context, phash int64, maxDistance int32) (*biz.BadImage, error) {
	img := &biz.BadImage{}
	err := r.data.Pool.QueryRow(ctx, `
		SELECT phash, category, nsfw_score, source_url, added_by, created_at
		FROM bad_images
		WHERE bit_count((phash # $1)::bit(64)) <= $2
		ORDER BY bit_count((phash # $1)::bit(64))
		LIMIT 1`,
		phash, maxDistance,
	).Scan(&img.PHash, &img.Category, &img.NSFWScore, &img.SourceURL, &img.AddedBy, &img.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

// ListPHashes implements biz.BadImageRepo.
func (r *badImageRepo) ListPHashes(ctx context.Context) ([]int64, error) {
	rows, err := r.data.Pool.Query(ctx, `SELECT phash FROM bad_images`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var phashes []int64
	for rows.Next() {
		var p int64
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		phashes = append(phashes, p)
	}
	return phashes, rows.Err()
}
