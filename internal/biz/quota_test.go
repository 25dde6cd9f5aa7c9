package biz

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"forumguard/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
)

type fakeQuotaRepo struct {
	mu       sync.Mutex
	periods  map[string]*QuotaPeriod
	settings map[string]*QuotaSettings
	getErr   error
	incErr   error
}

func newFakeQuotaRepo() *fakeQuotaRepo {
	return &fakeQuotaRepo{
		periods:  make(map[string]*QuotaPeriod),
		settings: make(map[string]*QuotaSettings),
	}
}

func periodID(apiName, periodKey string) string {
	return apiName + "/" + periodKey
}

func (r *fakeQuotaRepo) GetPeriod(ctx context.Context, apiName, periodKey string) (*QuotaPeriod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	p, ok := r.periods[periodID(apiName, periodKey)]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakeQuotaRepo) IncrementUsage(ctx context.Context, apiName, periodKey string, count, limit int64) (*QuotaIncrement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.incErr != nil {
		return nil, r.incErr
	}
	id := periodID(apiName, periodKey)
	p, ok := r.periods[id]
	if !ok {
		p = &QuotaPeriod{APIName: apiName, PeriodKey: periodKey, Enabled: true}
		r.periods[id] = p
	}
	p.UsageCount += count
	p.Limit = limit
	p.Enabled = p.Enabled && p.UsageCount < limit
	return &QuotaIncrement{UsageCount: p.UsageCount, Limit: p.Limit, Enabled: p.Enabled}, nil
}

func (r *fakeQuotaRepo) ResetPeriod(ctx context.Context, apiName, periodKey string, limit int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.periods[periodID(apiName, periodKey)] = &QuotaPeriod{
		APIName:   apiName,
		PeriodKey: periodKey,
		Limit:     limit,
		Enabled:   true,
	}
	return nil
}

func (r *fakeQuotaRepo) GetSettings(ctx context.Context, apiName string) (*QuotaSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.settings[apiName]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (r *fakeQuotaRepo) SaveSettings(ctx context.Context, settings *QuotaSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *settings
	r.settings[settings.APIName] = &cp
	return nil
}

type fakeAlertSink struct {
	mu     sync.Mutex
	alerts []QuotaAlert
}

func (s *fakeAlertSink) Emit(ctx context.Context, alert QuotaAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *fakeAlertSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, a := range s.alerts {
		out = append(out, a.Kind)
	}
	return out
}

var testClock = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestQuota(t *testing.T, repo QuotaRepo, sink AlertSink, limit int64) *QuotaUsecase {
	t.Helper()
	qc := &conf.Quota{
		AlertSteps: []float64{0.8, 0.95, 1.0},
		APIs: map[string]*conf.QuotaAPI{
			"vision": {MonthlyLimit: limit, Fallback: "deny", CostPer1000: 1.5},
		},
	}
	uc := NewQuotaUsecase(repo, sink, qc, log.NewStdLogger(io.Discard))
	uc.now = func() time.Time { return testClock }
	return uc
}

func TestPeriodKey_UTCBoundary(t *testing.T) {
	ist := time.FixedZone("+03", 3*3600)

	// Local April 1st that is still March 31st in UTC stays in March.
	if got := PeriodKey(time.Date(2026, 4, 1, 1, 0, 0, 0, ist)); got != "2026-03" {
		t.Errorf("PeriodKey = %q; want 2026-03", got)
	}
	if got := PeriodKey(time.Date(2026, 4, 1, 4, 0, 0, 0, ist)); got != "2026-04" {
		t.Errorf("PeriodKey = %q; want 2026-04", got)
	}
}

func TestQuotaUsecase_CheckAdmission_UnknownAPI(t *testing.T) {
	uc := newTestQuota(t, newFakeQuotaRepo(), &fakeAlertSink{}, 100)
	if _, err := uc.CheckAdmission(context.Background(), "nosuch"); !errors.Is(err, ErrUnknownAPI) {
		t.Errorf("expected ErrUnknownAPI, got %v", err)
	}
}

func TestQuotaUsecase_CheckAdmission_FreshPeriod(t *testing.T) {
	uc := newTestQuota(t, newFakeQuotaRepo(), &fakeAlertSink{}, 100)

	adm, err := uc.CheckAdmission(context.Background(), "vision")
	if err != nil {
		t.Fatalf("CheckAdmission failed: %v", err)
	}
	if !adm.Allowed || adm.Reason != AdmissionOK || adm.Remaining != 100 {
		t.Errorf("admission = %+v; want allowed OK remaining=100", adm)
	}
}

func TestQuotaUsecase_ExhaustionDeniesWithQuotaExceeded(t *testing.T) {
	ctx := context.Background()
	sink := &fakeAlertSink{}
	uc := newTestQuota(t, newFakeQuotaRepo(), sink, 100)

	if err := uc.RecordUsage(ctx, "vision", 100); err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}

	adm, err := uc.CheckAdmission(ctx, "vision")
	if err != nil {
		t.Fatalf("CheckAdmission failed: %v", err)
	}
	if adm.Allowed {
		t.Error("expected denial after limit reached")
	}
	// The exhausted state must report as exceeded quota, not as an
	// administrative disable, even though the period auto-disabled.
	if adm.Reason != AdmissionQuotaExceeded {
		t.Errorf("reason = %q; want %q", adm.Reason, AdmissionQuotaExceeded)
	}

	kinds := sink.kinds()
	var autoDisabled, thresholds int
	for _, k := range kinds {
		switch k {
		case AlertAutoDisabled:
			autoDisabled++
		case AlertUsageThreshold:
			thresholds++
		}
	}
	if autoDisabled != 1 {
		t.Errorf("auto_disabled alerts = %d; want 1", autoDisabled)
	}
	if thresholds != 3 {
		t.Errorf("threshold alerts = %d; want 3 (0.8, 0.95, 1.0 all crossed)", thresholds)
	}
}

func TestQuotaUsecase_AlertStepsFireOnceOnCrossing(t *testing.T) {
	ctx := context.Background()
	sink := &fakeAlertSink{}
	uc := newTestQuota(t, newFakeQuotaRepo(), sink, 100)

	if err := uc.RecordUsage(ctx, "vision", 79); err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}
	if got := len(sink.kinds()); got != 0 {
		t.Fatalf("expected no alerts at 79%%, got %d", got)
	}

	if err := uc.RecordUsage(ctx, "vision", 1); err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}
	sink.mu.Lock()
	alerts := append([]QuotaAlert(nil), sink.alerts...)
	sink.mu.Unlock()
	if len(alerts) != 1 || alerts[0].Kind != AlertUsageThreshold || alerts[0].Threshold != 0.8 {
		t.Fatalf("alerts after crossing 80%% = %+v; want single 0.8 threshold", alerts)
	}

	// Staying above a step without crossing a new one stays silent.
	if err := uc.RecordUsage(ctx, "vision", 5); err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}
	if got := len(sink.kinds()); got != 1 {
		t.Errorf("expected no new alerts at 85%%, got %d total", got)
	}
}

func TestQuotaUsecase_RecordUsage_Validation(t *testing.T) {
	uc := newTestQuota(t, newFakeQuotaRepo(), &fakeAlertSink{}, 100)
	if err := uc.RecordUsage(context.Background(), "vision", 0); !errors.Is(err, ErrInvalidUsageCount) {
		t.Errorf("expected ErrInvalidUsageCount, got %v", err)
	}
	if err := uc.RecordUsage(context.Background(), "vision", -3); !errors.Is(err, ErrInvalidUsageCount) {
		t.Errorf("expected ErrInvalidUsageCount, got %v", err)
	}
}

func TestQuotaUsecase_ConcurrentRecordLosesNothing(t *testing.T) {
	ctx := context.Background()
	repo := newFakeQuotaRepo()
	uc := newTestQuota(t, repo, &fakeAlertSink{}, 1000)

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := uc.RecordUsage(ctx, "vision", 1); err != nil {
				t.Errorf("RecordUsage failed: %v", err)
			}
		}()
	}
	wg.Wait()

	status, err := uc.Status(ctx, "vision")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Usage != workers {
		t.Errorf("usage = %d; want %d", status.Usage, workers)
	}
}

func TestQuotaUsecase_MasterSwitch(t *testing.T) {
	ctx := context.Background()
	repo := newFakeQuotaRepo()
	uc := newTestQuota(t, repo, &fakeAlertSink{}, 100)

	if err := uc.SetEnabled(ctx, "vision", false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}
	adm, err := uc.CheckAdmission(ctx, "vision")
	if err != nil {
		t.Fatalf("CheckAdmission failed: %v", err)
	}
	if adm.Allowed || adm.Reason != AdmissionDisabled {
		t.Errorf("admission = %+v; want denied DISABLED", adm)
	}
	if repo.settings["vision"] == nil || repo.settings["vision"].Enabled {
		t.Error("expected disabled settings to be persisted")
	}

	if err := uc.SetEnabled(ctx, "vision", true); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}
	adm, _ = uc.CheckAdmission(ctx, "vision")
	if !adm.Allowed {
		t.Errorf("expected admission after re-enable, got %+v", adm)
	}
}

func TestQuotaUsecase_FallbackStrategies(t *testing.T) {
	tests := []struct {
		strategy    string
		wantAllowed bool
		wantReason  string
	}{
		{"deny", false, AdmissionFallbackDeny},
		{"allow", true, AdmissionFallbackAllow},
		{"warn", true, AdmissionFallbackWarn},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			ctx := context.Background()
			repo := newFakeQuotaRepo()
			uc := newTestQuota(t, repo, &fakeAlertSink{}, 100)

			if err := uc.SetFallbackStrategy(ctx, "vision", tt.strategy); err != nil {
				t.Fatalf("SetFallbackStrategy failed: %v", err)
			}
			repo.mu.Lock()
			repo.getErr = errors.New("connection refused")
			repo.mu.Unlock()

			adm, err := uc.CheckAdmission(ctx, "vision")
			if err != nil {
				t.Fatalf("CheckAdmission failed: %v", err)
			}
			if adm.Allowed != tt.wantAllowed || adm.Reason != tt.wantReason {
				t.Errorf("admission = %+v; want allowed=%v reason=%s", adm, tt.wantAllowed, tt.wantReason)
			}
		})
	}
}

func TestQuotaUsecase_SetFallbackStrategy_Invalid(t *testing.T) {
	uc := newTestQuota(t, newFakeQuotaRepo(), &fakeAlertSink{}, 100)
	if err := uc.SetFallbackStrategy(context.Background(), "vision", "explode"); err == nil {
		t.Error("expected error for invalid strategy")
	}
}

func TestQuotaUsecase_ResetPeriod(t *testing.T) {
	ctx := context.Background()
	uc := newTestQuota(t, newFakeQuotaRepo(), &fakeAlertSink{}, 100)

	if err := uc.RecordUsage(ctx, "vision", 100); err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}
	if adm, _ := uc.CheckAdmission(ctx, "vision"); adm.Allowed {
		t.Fatal("expected denial before reset")
	}

	if err := uc.ResetPeriod(ctx, "vision", uc.CurrentPeriodKey()); err != nil {
		t.Fatalf("ResetPeriod failed: %v", err)
	}
	adm, _ := uc.CheckAdmission(ctx, "vision")
	if !adm.Allowed || adm.Remaining != 100 {
		t.Errorf("admission after reset = %+v; want allowed remaining=100", adm)
	}

	// Resetting an already-clean period is fine.
	if err := uc.ResetPeriod(ctx, "vision", uc.CurrentPeriodKey()); err != nil {
		t.Errorf("second reset failed: %v", err)
	}

	if err := uc.ResetPeriod(ctx, "vision", "march-2026"); err == nil {
		t.Error("expected error for malformed period key")
	}
}

func TestQuotaUsecase_Status_Projection(t *testing.T) {
	ctx := context.Background()
	uc := newTestQuota(t, newFakeQuotaRepo(), &fakeAlertSink{}, 1000)

	if err := uc.RecordUsage(ctx, "vision", 500); err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}

	status, err := uc.Status(ctx, "vision")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Usage != 500 || status.Remaining != 500 {
		t.Errorf("usage/remaining = %d/%d; want 500/500", status.Usage, status.Remaining)
	}
	if status.PercentUsed != 50 {
		t.Errorf("percent used = %v; want 50", status.PercentUsed)
	}
	// Clock is fixed at March 10th: 500 calls over 10 of 31 days
	// projects to 1550 for the month, 550 over the limit.
	if status.ProjectedUsage != 1550 {
		t.Errorf("projected usage = %d; want 1550", status.ProjectedUsage)
	}
	if status.ProjectedOverage != 550 {
		t.Errorf("projected overage = %d; want 550", status.ProjectedOverage)
	}
	if math.Abs(status.ProjectedOverageCost-0.825) > 1e-9 {
		t.Errorf("projected overage cost = %v; want 0.825", status.ProjectedOverageCost)
	}
}
