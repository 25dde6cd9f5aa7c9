package data

import (
	"context"

	"forumguard/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

type termRepo struct {
	data *Data
	log  *log.Helper
}

// NewTermRepo creates a Postgres-backed term rule repository.
func NewTermRepo(data *Data, logger log.Logger) biz.TermRepo {
	return &termRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

const termColumns = `id, term, category, kind, added_by, created_at, updated_at`

// Create implements biz.TermRepo. Re-adding an existing (term, kind)
// pair updates it in place.
func (r *termRepo) Create(ctx context.Context, rule *biz.TermRule) (*biz.TermRule, error) {
	out := &biz.TermRule{}
	err := r.data.Pool.QueryRow(ctx, `
		INSERT INTO term_rules (term, category, kind, added_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (term, kind) DO UPDATE SET
			category   = EXCLUDED.category,
			added_by   = EXCLUDED.added_by,
			updated_at = now()
		RETURNING `+termColumns,
		rule.Term, rule.Category, string(rule.Kind), rule.AddedBy,
	).Scan(&out.ID, &out.Term, &out.Category, &out.Kind, &out.AddedBy, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete implements biz.TermRepo.
func (r *termRepo) Delete(ctx context.Context, term string, kind biz.TermKind) error {
	_, err := r.data.Pool.Exec(ctx,
		`DELETE FROM term_rules WHERE term = $1 AND kind = $2`,
		term, string(kind),
	)
	return err
}

// List implements biz.TermRepo. Empty kind or category means no filter.
func (r *termRepo) List(ctx context.Context, kind biz.TermKind, category string, limit, offset int32) ([]*biz.TermRule, error) {
	rows, err := r.data.Pool.Query(ctx, `
		SELECT `+termColumns+`
		FROM term_rules
		WHERE ($1 = '' OR kind = $1)
		  AND ($2 = '' OR category = $2)
		ORDER BY id DESC
		LIMIT $3 OFFSET $4`,
		string(kind), category, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*biz.TermRule
	for rows.Next() {
		rule := &biz.TermRule{}
		if err := rows.Scan(&rule.ID, &rule.Term, &rule.Category, &rule.Kind, &rule.AddedBy, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ListAll implements biz.TermRepo.
func (r *termRepo) ListAll(ctx context.Context) ([]*biz.TermRule, error) {
	rows, err := r.data.Pool.Query(ctx,
		`SELECT `+termColumns+` FROM term_rules ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*biz.TermRule
	for rows.Next() {
		rule := &biz.TermRule{}
		if err := rows.Scan(&rule.ID, &rule.Term, &rule.Category, &rule.Kind, &rule.AddedBy, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Count implements biz.TermRepo.
func (r *termRepo) Count(ctx context.Context, kind biz.TermKind, category string) (int64, error) {
	var total int64
	err := r.data.Pool.QueryRow(ctx, `
		SELECT count(*)
		FROM term_rules
		WHERE ($1 = '' OR kind = $1)
		  AND ($2 = '' OR category = $2)`,
		string(kind), category,
	).Scan(&total)
	return total, err
}
