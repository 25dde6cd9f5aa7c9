package data

import (
	"context"
	"errors"

	"forumguard/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jackc/pgx/v5"
)

type quotaRepo struct {
	data *Data
	log  *log.Helper
}

// NewQuotaRepo creates a Postgres-backed quota repository.
func NewQuotaRepo(data *Data, logger log.Logger) biz.QuotaRepo {
	return &quotaRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetPeriod implements biz.QuotaRepo.
func (r *quotaRepo) GetPeriod(ctx context.Context, apiName, periodKey string) (*biz.QuotaPeriod, error) {
	p := &biz.QuotaPeriod{APIName: apiName, PeriodKey: periodKey}
	err := r.data.Pool.QueryRow(ctx, `
		SELECT usage_count, quota_limit, enabled, updated_at
		FROM quota_periods
		WHERE api_name = $1 AND period_key = $2`,
		apiName, periodKey,
	).Scan(&p.UsageCount, &p.Limit, &p.Enabled, &p.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// IncrementUsage implements biz.QuotaRepo. The whole read-modify-write,
// including the auto-disable decision, happens in one statement so that
// concurrent increments serialize on the row and none is lost.
func (r *quotaRepo) IncrementUsage(ctx context.Context, apiName, periodKey string, count, limit int64) (*biz.QuotaIncrement, error) {
	inc := &biz.QuotaIncrement{}
	err := r.data.Pool.QueryRow(ctx, `
		INSERT INTO quota_periods (api_name, period_key, usage_count, quota_limit, enabled)
		VALUES ($1, $2, $3, $4, $3 < $4)
		ON CONFLICT (api_name, period_key) DO UPDATE SET
			usage_count = quota_periods.usage_count + EXCLUDED.usage_count,
			quota_limit = EXCLUDED.quota_limit,
			enabled     = quota_periods.enabled
				AND (quota_periods.usage_count + EXCLUDED.usage_count < EXCLUDED.quota_limit),
			updated_at  = now()
		RETURNING usage_count, quota_limit, enabled`,
		apiName, periodKey, count, limit,
	).Scan(&inc.UsageCount, &inc.Limit, &inc.Enabled)
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// ResetPeriod implements biz.QuotaRepo.
func (r *quotaRepo) ResetPeriod(ctx context.Context, apiName, periodKey string, limit int64) error {
	_, err := r.data.Pool.Exec(ctx, `
		INSERT INTO quota_periods (api_name, period_key, usage_count, quota_limit, enabled)
		VALUES ($1, $2, 0, $3, TRUE)
		ON CONFLICT (api_name, period_key) DO UPDATE SET
			usage_count = 0,
			quota_limit = EXCLUDED.quota_limit,
			enabled     = TRUE,
			updated_at  = now()`,
		apiName, periodKey, limit,
	)
	return err
}

// GetSettings implements biz.QuotaRepo.
func (r *quotaRepo) GetSettings(ctx context.Context, apiName string) (*biz.QuotaSettings, error) {
	st := &biz.QuotaSettings{APIName: apiName}
	err := r.data.Pool.QueryRow(ctx, `
		SELECT monthly_limit, enabled, fallback
		FROM quota_settings
		WHERE api_name = $1`,
		apiName,
	).Scan(&st.MonthlyLimit, &st.Enabled, &st.Fallback)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// SaveSettings implements biz.QuotaRepo.
func (r *quotaRepo) SaveSettings(ctx context.Context, settings *biz.QuotaSettings) error {
	_, err := r.data.Pool.Exec(ctx, `
		INSERT INTO quota_settings (api_name, monthly_limit, enabled, fallback)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (api_name) DO UPDATE SET
			monthly_limit = EXCLUDED.monthly_limit,
			enabled       = EXCLUDED.enabled,
			fallback      = EXCLUDED.fallback,
			updated_at    = now()`,
		settings.APIName, settings.MonthlyLimit, settings.Enabled, string(settings.Fallback),
	)
	return err
}
