package biz

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"forumguard/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
)

// ErrUnknownAPI is returned for an API name with no configured quota.
var ErrUnknownAPI = errors.New("unknown paid API")

// ErrInvalidUsageCount is returned for a non-positive usage increment.
var ErrInvalidUsageCount = errors.New("usage count must be positive")

// FallbackStrategy is the policy applied when quota status cannot be read.
type FallbackStrategy string

const (
	FallbackDeny  FallbackStrategy = "deny"
	FallbackAllow FallbackStrategy = "allow"
	FallbackWarn  FallbackStrategy = "warn"
)

// ParseFallbackStrategy validates a strategy string.
func ParseFallbackStrategy(s string) (FallbackStrategy, error) {
	switch FallbackStrategy(s) {
	case FallbackDeny, FallbackAllow, FallbackWarn:
		return FallbackStrategy(s), nil
	}
	return "", fmt.Errorf("invalid fallback strategy %q", s)
}

// Admission reasons.
const (
	AdmissionOK            = "OK"
	AdmissionDisabled      = "DISABLED"
	AdmissionQuotaExceeded = "QUOTA_EXCEEDED"
	AdmissionFallbackDeny  = "FALLBACK_DENY"
	AdmissionFallbackAllow = "FALLBACK_ALLOW"
	AdmissionFallbackWarn  = "FALLBACK_WARN"
)

// QuotaPeriod is one calendar-month accounting window for one paid API.
// Enabled flips false the instant usage reaches the limit and only an
// administrative reset flips it back.
type QuotaPeriod struct {
	APIName     string
	PeriodKey   string
	UsageCount  int64
	Limit       int64
	Enabled     bool
	LastUpdated time.Time
}

// QuotaSettings is the per-API configuration: the master switch, the
// monthly limit and the fallback strategy. Persisted so admin changes
// survive restarts.
type QuotaSettings struct {
	APIName      string
	MonthlyLimit int64
	Enabled      bool
	Fallback     FallbackStrategy
}

// Admission is the outcome of an admission check.
type Admission struct {
	Allowed   bool
	Reason    string
	Remaining int64
}

// QuotaIncrement is the post-increment state returned by the repo.
type QuotaIncrement struct {
	UsageCount int64
	Limit      int64
	Enabled    bool
}

// QuotaStatus is the read-only reporting view for the admin console.
// The projections are advisory and never gate admission.
type QuotaStatus struct {
	APIName              string
	PeriodKey            string
	Usage                int64
	Limit                int64
	Remaining            int64
	PercentUsed          float64
	Enabled              bool
	Fallback             FallbackStrategy
	ProjectedUsage       int64
	ProjectedOverage     int64
	ProjectedOverageCost float64
}

// QuotaRepo is the persistence interface for periods and settings.
// IncrementUsage must be a single atomic read-modify-write: concurrent
// increments for the same (api, period) must all be reflected, and the
// auto-disable decision must observe the post-increment value.
type QuotaRepo interface {
	GetPeriod(ctx context.Context, apiName, periodKey string) (*QuotaPeriod, error)
	IncrementUsage(ctx context.Context, apiName, periodKey string, count, limit int64) (*QuotaIncrement, error)
	ResetPeriod(ctx context.Context, apiName, periodKey string, limit int64) error
	GetSettings(ctx context.Context, apiName string) (*QuotaSettings, error)
	SaveSettings(ctx context.Context, settings *QuotaSettings) error
}

// Alert kinds emitted by the ledger.
const (
	AlertAutoDisabled   = "auto_disabled"
	AlertUsageThreshold = "usage_threshold"
)

// QuotaAlert is a fire-and-forget event for the alerting pipeline.
type QuotaAlert struct {
	APIName   string    `json:"api_name"`
	PeriodKey string    `json:"period_key"`
	Kind      string    `json:"kind"`
	Usage     int64     `json:"usage"`
	Limit     int64     `json:"limit"`
	Threshold float64   `json:"threshold,omitempty"`
	At        time.Time `json:"at"`
}

// AlertSink delivers quota alerts. Delivery is best-effort: a failing
// sink must never fail or delay the quota update that triggered it.
type AlertSink interface {
	Emit(ctx context.Context, alert QuotaAlert) error
}

// QuotaUsecase gates access to costed external APIs on a per-calendar-month
// basis. Period boundaries follow UTC dates.
type QuotaUsecase struct {
	repo QuotaRepo
	sink AlertSink
	conf *conf.Quota
	log  *log.Helper

	mu       sync.RWMutex
	settings map[string]*QuotaSettings // in-memory mirror of persisted settings

	now func() time.Time
}

// NewQuotaUsecase creates a QuotaUsecase.
func NewQuotaUsecase(repo QuotaRepo, sink AlertSink, qc *conf.Quota, logger log.Logger) *QuotaUsecase {
	return &QuotaUsecase{
		repo:     repo,
		sink:     sink,
		conf:     qc,
		log:      log.NewHelper(logger),
		settings: make(map[string]*QuotaSettings),
		now:      time.Now,
	}
}

// PeriodKey returns the YYYY-MM accounting key for t at the UTC date level.
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// CurrentPeriodKey returns the accounting key for the current wall clock.
func (uc *QuotaUsecase) CurrentPeriodKey() string {
	return PeriodKey(uc.now())
}

// settingsFor resolves the effective settings for apiName: the in-memory
// mirror first, then the persisted copy, then the configured defaults.
// A storage read error degrades to the configured defaults.
func (uc *QuotaUsecase) settingsFor(ctx context.Context, apiName string) (*QuotaSettings, error) {
	uc.mu.RLock()
	if st, ok := uc.settings[apiName]; ok {
		cp := *st
		uc.mu.RUnlock()
		return &cp, nil
	}
	uc.mu.RUnlock()

	apiConf, ok := uc.conf.APIs[apiName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAPI, apiName)
	}

	st, err := uc.repo.GetSettings(ctx, apiName)
	if err != nil {
		uc.log.Warnf("failed to read persisted quota settings for %s, using configured defaults: %v", apiName, err)
		st = nil
	}
	if st == nil {
		st = &QuotaSettings{
			APIName:      apiName,
			MonthlyLimit: apiConf.MonthlyLimit,
			Enabled:      apiConf.EnabledOrDefault(),
			Fallback:     FallbackStrategy(apiConf.Fallback),
		}
	}

	uc.mu.Lock()
	uc.settings[apiName] = st
	uc.mu.Unlock()

	cp := *st
	return &cp, nil
}

// CheckAdmission decides whether one more paid call to apiName may be made
// in the current period. Storage read failures fall through the configured
// fallback strategy; a warn fallback is logged distinctly from a clean
// allow.
func (uc *QuotaUsecase) CheckAdmission(ctx context.Context, apiName string) (*Admission, error) {
	st, err := uc.settingsFor(ctx, apiName)
	if err != nil {
		return nil, err
	}

	if !st.Enabled {
		return &Admission{Allowed: false, Reason: AdmissionDisabled}, nil
	}

	periodKey := uc.CurrentPeriodKey()
	period, err := uc.repo.GetPeriod(ctx, apiName, periodKey)
	if err != nil {
		return uc.fallbackAdmission(apiName, st.Fallback, err), nil
	}

	if period == nil {
		// Lazily created on first recorded usage.
		return &Admission{Allowed: true, Reason: AdmissionOK, Remaining: st.MonthlyLimit}, nil
	}
	if period.UsageCount >= st.MonthlyLimit {
		return &Admission{Allowed: false, Reason: AdmissionQuotaExceeded}, nil
	}
	if !period.Enabled {
		return &Admission{Allowed: false, Reason: AdmissionDisabled}, nil
	}
	return &Admission{Allowed: true, Reason: AdmissionOK, Remaining: st.MonthlyLimit - period.UsageCount}, nil
}

func (uc *QuotaUsecase) fallbackAdmission(apiName string, strategy FallbackStrategy, cause error) *Admission {
	switch strategy {
	case FallbackAllow:
		uc.log.Warnf("quota ledger unreadable for %s, fallback=allow: %v", apiName, cause)
		return &Admission{Allowed: true, Reason: AdmissionFallbackAllow}
	case FallbackWarn:
		uc.log.Errorf("quota ledger unreadable for %s, admitting with warning: %v", apiName, cause)
		return &Admission{Allowed: true, Reason: AdmissionFallbackWarn}
	default:
		uc.log.Warnf("quota ledger unreadable for %s, fallback=deny: %v", apiName, cause)
		return &Admission{Allowed: false, Reason: AdmissionFallbackDeny}
	}
}

// RecordUsage atomically adds count paid calls to the current period.
// Crossing an alert step or the limit emits alerts after the increment
// committed; alert failures are logged and never propagated.
func (uc *QuotaUsecase) RecordUsage(ctx context.Context, apiName string, count int64) error {
	if count <= 0 {
		return ErrInvalidUsageCount
	}
	st, err := uc.settingsFor(ctx, apiName)
	if err != nil {
		return err
	}

	periodKey := uc.CurrentPeriodKey()
	inc, err := uc.repo.IncrementUsage(ctx, apiName, periodKey, count, st.MonthlyLimit)
	if err != nil {
		uc.log.Errorf("failed to record usage for %s/%s (count=%d): %v", apiName, periodKey, count, err)
		return fmt.Errorf("failed to record usage: %w", err)
	}

	prev := inc.UsageCount - count
	if prev < st.MonthlyLimit && inc.UsageCount >= st.MonthlyLimit {
		uc.emit(ctx, QuotaAlert{
			APIName:   apiName,
			PeriodKey: periodKey,
			Kind:      AlertAutoDisabled,
			Usage:     inc.UsageCount,
			Limit:     st.MonthlyLimit,
			At:        uc.now().UTC(),
		})
	}
	for _, step := range uc.conf.AlertSteps {
		mark := step * float64(st.MonthlyLimit)
		if float64(prev) < mark && float64(inc.UsageCount) >= mark {
			uc.emit(ctx, QuotaAlert{
				APIName:   apiName,
				PeriodKey: periodKey,
				Kind:      AlertUsageThreshold,
				Usage:     inc.UsageCount,
				Limit:     st.MonthlyLimit,
				Threshold: step,
				At:        uc.now().UTC(),
			})
		}
	}
	return nil
}

func (uc *QuotaUsecase) emit(ctx context.Context, alert QuotaAlert) {
	if uc.sink == nil {
		return
	}
	if err := uc.sink.Emit(ctx, alert); err != nil {
		uc.log.Errorf("failed to emit quota alert %s for %s: %v", alert.Kind, alert.APIName, err)
	}
}

// ResetPeriod zeroes the usage counter and re-enables the given period.
// Idempotent.
func (uc *QuotaUsecase) ResetPeriod(ctx context.Context, apiName, periodKey string) error {
	if _, err := time.Parse("2006-01", periodKey); err != nil {
		return fmt.Errorf("invalid period key %q: %w", periodKey, err)
	}
	st, err := uc.settingsFor(ctx, apiName)
	if err != nil {
		return err
	}
	uc.log.Infof("resetting quota period %s/%s", apiName, periodKey)
	return uc.repo.ResetPeriod(ctx, apiName, periodKey, st.MonthlyLimit)
}

// SetEnabled flips the master switch for apiName, persisting the change and
// updating the in-memory mirror.
func (uc *QuotaUsecase) SetEnabled(ctx context.Context, apiName string, enabled bool) error {
	st, err := uc.settingsFor(ctx, apiName)
	if err != nil {
		return err
	}
	st.Enabled = enabled
	return uc.saveSettings(ctx, st)
}

// SetFallbackStrategy changes the ledger-unreadable policy for apiName.
func (uc *QuotaUsecase) SetFallbackStrategy(ctx context.Context, apiName string, strategy string) error {
	fs, err := ParseFallbackStrategy(strategy)
	if err != nil {
		return err
	}
	st, err := uc.settingsFor(ctx, apiName)
	if err != nil {
		return err
	}
	st.Fallback = fs
	return uc.saveSettings(ctx, st)
}

func (uc *QuotaUsecase) saveSettings(ctx context.Context, st *QuotaSettings) error {
	if err := uc.repo.SaveSettings(ctx, st); err != nil {
		return fmt.Errorf("failed to persist quota settings: %w", err)
	}
	uc.mu.Lock()
	uc.settings[st.APIName] = st
	uc.mu.Unlock()
	return nil
}

// Status reports the current period for the admin console, including the
// advisory month-end projection.
func (uc *QuotaUsecase) Status(ctx context.Context, apiName string) (*QuotaStatus, error) {
	st, err := uc.settingsFor(ctx, apiName)
	if err != nil {
		return nil, err
	}

	periodKey := uc.CurrentPeriodKey()
	period, err := uc.repo.GetPeriod(ctx, apiName, periodKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read quota period: %w", err)
	}

	status := &QuotaStatus{
		APIName:   apiName,
		PeriodKey: periodKey,
		Limit:     st.MonthlyLimit,
		Enabled:   st.Enabled,
		Fallback:  st.Fallback,
	}
	if period != nil {
		status.Usage = period.UsageCount
		status.Enabled = st.Enabled && period.Enabled
	}
	status.Remaining = st.MonthlyLimit - status.Usage
	if status.Remaining < 0 {
		status.Remaining = 0
	}
	if st.MonthlyLimit > 0 {
		status.PercentUsed = float64(status.Usage) / float64(st.MonthlyLimit) * 100
	}

	now := uc.now().UTC()
	daysElapsed := now.Day()
	daysInMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	status.ProjectedUsage = int64(math.Round(float64(status.Usage) / float64(daysElapsed) * float64(daysInMonth)))
	if status.ProjectedUsage > st.MonthlyLimit {
		status.ProjectedOverage = status.ProjectedUsage - st.MonthlyLimit
		if apiConf, ok := uc.conf.APIs[apiName]; ok {
			status.ProjectedOverageCost = float64(status.ProjectedOverage) / 1000 * apiConf.CostPer1000
		}
	}
	return status, nil
}
