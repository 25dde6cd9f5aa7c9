package service

import (
	"strconv"

	"forumguard/internal/biz"
	"forumguard/internal/pkg/pagination"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// AdminUIDHeader carries the caller identity set by the auth gateway.
const AdminUIDHeader = "X-Admin-UID"

// AdminService is the administrative HTTP surface: the quota console,
// the term registry, and filter rebuilds.
type AdminService struct {
	quota     *biz.QuotaUsecase
	registry  *biz.RegistryUsecase
	badImages *biz.BadImageUsecase
	log       *log.Helper
}

// NewAdminService creates a new AdminService.
func NewAdminService(
	quota *biz.QuotaUsecase,
	registry *biz.RegistryUsecase,
	badImages *biz.BadImageUsecase,
	logger log.Logger,
) *AdminService {
	return &AdminService{
		quota:     quota,
		registry:  registry,
		badImages: badImages,
		log:       log.NewHelper(logger),
	}
}

// RegisterRoutes registers the admin routes. The router is expected to
// already enforce admin authorization.
func (s *AdminService) RegisterRoutes(r *khttp.Router) {
	r.GET("/v1/quota/{api}", s.handleQuotaStatus)
	r.POST("/v1/quota/{api}/reset", s.handleQuotaReset)
	r.POST("/v1/quota/{api}/enabled", s.handleQuotaEnabled)
	r.POST("/v1/quota/{api}/fallback", s.handleQuotaFallback)

	r.GET("/v1/terms", s.handleListTerms)
	r.POST("/v1/terms", s.handleAddTerm)
	r.DELETE("/v1/terms/{term}", s.handleRemoveTerm)

	r.POST("/v1/filters/rebuild", s.handleRebuildFilters)
}

func (s *AdminService) handleQuotaStatus(ctx khttp.Context) error {
	status, err := s.quota.Status(ctx, ctx.Vars().Get("api"))
	if err != nil {
		if errors.Is(err, biz.ErrUnknownAPI) {
			return errors.NotFound("UNKNOWN_API", err.Error())
		}
		return err
	}
	return ctx.Result(200, status)
}

type quotaResetRequest struct {
	// PeriodKey defaults to the current period when empty.
	PeriodKey string `json:"period_key"`
}

func (s *AdminService) handleQuotaReset(ctx khttp.Context) error {
	apiName := ctx.Vars().Get("api")

	var req quotaResetRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.BadRequest("INVALID_REQUEST", err.Error())
	}
	if req.PeriodKey == "" {
		req.PeriodKey = s.quota.CurrentPeriodKey()
	}

	if err := s.quota.ResetPeriod(ctx, apiName, req.PeriodKey); err != nil {
		if errors.Is(err, biz.ErrUnknownAPI) {
			return errors.NotFound("UNKNOWN_API", err.Error())
		}
		return errors.BadRequest("INVALID_REQUEST", err.Error())
	}
	s.log.WithContext(ctx).Infof("quota %s/%s reset by %s", apiName, req.PeriodKey, adminUID(ctx))
	return ctx.Result(200, map[string]string{"api_name": apiName, "period_key": req.PeriodKey, "status": "reset"})
}

type quotaEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *AdminService) handleQuotaEnabled(ctx khttp.Context) error {
	apiName := ctx.Vars().Get("api")

	var req quotaEnabledRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.BadRequest("INVALID_REQUEST", err.Error())
	}
	if err := s.quota.SetEnabled(ctx, apiName, req.Enabled); err != nil {
		if errors.Is(err, biz.ErrUnknownAPI) {
			return errors.NotFound("UNKNOWN_API", err.Error())
		}
		return err
	}
	s.log.WithContext(ctx).Infof("quota %s enabled=%v by %s", apiName, req.Enabled, adminUID(ctx))
	return ctx.Result(200, map[string]any{"api_name": apiName, "enabled": req.Enabled})
}

type quotaFallbackRequest struct {
	Strategy string `json:"strategy"` // deny | allow | warn
}

func (s *AdminService) handleQuotaFallback(ctx khttp.Context) error {
	apiName := ctx.Vars().Get("api")

	var req quotaFallbackRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.BadRequest("INVALID_REQUEST", err.Error())
	}
	if err := s.quota.SetFallbackStrategy(ctx, apiName, req.Strategy); err != nil {
		if errors.Is(err, biz.ErrUnknownAPI) {
			return errors.NotFound("UNKNOWN_API", err.Error())
		}
		return errors.BadRequest("INVALID_REQUEST", err.Error())
	}
	s.log.WithContext(ctx).Infof("quota %s fallback=%s by %s", apiName, req.Strategy, adminUID(ctx))
	return ctx.Result(200, map[string]string{"api_name": apiName, "fallback": req.Strategy})
}

func (s *AdminService) handleListTerms(ctx khttp.Context) error {
	q := ctx.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	req := pagination.NewOffsetRequest(page, pageSize)

	kind := biz.TermKind(q.Get("kind"))
	if kind != "" {
		if _, err := biz.ParseTermKind(string(kind)); err != nil {
			return errors.BadRequest("INVALID_REQUEST", err.Error())
		}
	}

	rules, total, err := s.registry.ListTerms(ctx, kind, q.Get("category"),
		int32(req.GetPageSize()), int32(req.GetOffset()))
	if err != nil {
		return err
	}
	return ctx.Result(200, pagination.BuildOffsetResponse(rules, req, total))
}

type addTermRequest struct {
	Term     string `json:"term"`
	Category string `json:"category"`
	Kind     string `json:"kind"` // block | flag
}

func (s *AdminService) handleAddTerm(ctx khttp.Context) error {
	var req addTermRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.BadRequest("INVALID_REQUEST", err.Error())
	}
	kind, err := biz.ParseTermKind(req.Kind)
	if err != nil {
		return errors.BadRequest("INVALID_REQUEST", err.Error())
	}

	rule, err := s.registry.AddTerm(ctx, req.Term, req.Category, kind, adminUID(ctx))
	if err != nil {
		if errors.Is(err, biz.ErrEmptyTerm) {
			return errors.BadRequest("INVALID_REQUEST", err.Error())
		}
		return err
	}
	return ctx.Result(201, rule)
}

func (s *AdminService) handleRemoveTerm(ctx khttp.Context) error {
	term := ctx.Vars().Get("term")
	kind, err := biz.ParseTermKind(ctx.Query().Get("kind"))
	if err != nil {
		return errors.BadRequest("INVALID_REQUEST", err.Error())
	}

	if err := s.registry.RemoveTerm(ctx, term, kind); err != nil {
		return err
	}
	s.log.WithContext(ctx).Infof("term %q (%s) removed by %s", term, kind, adminUID(ctx))
	return ctx.Result(200, map[string]string{"term": term, "status": "deleted"})
}

// handleRebuildFilters recompiles the term matchers from storage and
// rebuilds the bad-image bloom filter.
func (s *AdminService) handleRebuildFilters(ctx khttp.Context) error {
	terms, err := s.registry.Rebuild(ctx)
	if err != nil {
		return err
	}
	fingerprints, err := s.badImages.RebuildBloom(ctx)
	if err != nil {
		return err
	}
	s.log.WithContext(ctx).Infof("filters rebuilt by %s: %d terms, %d fingerprints", adminUID(ctx), terms, fingerprints)
	return ctx.Result(200, map[string]int{"terms": terms, "fingerprints": fingerprints})
}

func adminUID(ctx khttp.Context) string {
	return ctx.Request().Header.Get(AdminUIDHeader)
}
