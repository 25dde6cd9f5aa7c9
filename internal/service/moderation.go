package service

import (
	"forumguard/internal/biz"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/uuid"
)

// ModerationService is the public moderation HTTP surface.
type ModerationService struct {
	uc  *biz.ModerationUsecase
	log *log.Helper
}

// NewModerationService creates a new ModerationService.
func NewModerationService(uc *biz.ModerationUsecase, logger log.Logger) *ModerationService {
	return &ModerationService{
		uc:  uc,
		log: log.NewHelper(logger),
	}
}

// RegisterRoutes registers the public moderation routes.
func (s *ModerationService) RegisterRoutes(r *khttp.Router) {
	r.POST("/v1/moderate/text", s.handleModerateText)
	r.POST("/v1/moderate/image", s.handleModerateImage)
}

type moderateTextRequest struct {
	RequestID string `json:"request_id"`
	Text      string `json:"text"`
}

type moderateImageRequest struct {
	RequestID string `json:"request_id"`
	ImageURL  string `json:"image_url"`
}

func (s *ModerationService) handleModerateText(ctx khttp.Context) error {
	var req moderateTextRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.BadRequest("INVALID_REQUEST", err.Error())
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	verdict, err := s.uc.ModerateText(ctx, req.RequestID, req.Text)
	if err != nil {
		return err
	}
	return ctx.Result(200, verdict)
}

func (s *ModerationService) handleModerateImage(ctx khttp.Context) error {
	var req moderateImageRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.BadRequest("INVALID_REQUEST", err.Error())
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	verdict, err := s.uc.ModerateImage(ctx, req.RequestID, req.ImageURL)
	if err != nil {
		if errors.Is(err, biz.ErrMissingImageURL) || errors.Is(err, biz.ErrUnknownAPI) {
			return errors.BadRequest("INVALID_REQUEST", err.Error())
		}
		return err
	}
	return ctx.Result(200, verdict)
}
