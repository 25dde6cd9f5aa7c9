package data

import (
	"time"

	"forumguard/internal/biz"
	"forumguard/internal/conf"
	"forumguard/internal/pkg/vision"

	"github.com/go-kratos/kratos/v2/log"
)

// NewImageAnnotator creates the safe-search client from configuration.
func NewImageAnnotator(vc *conf.Vision, logger log.Logger) biz.ImageAnnotator {
	helper := log.NewHelper(logger)
	helper.Infof("safe-search client configured for %s", vc.Endpoint)

	return vision.NewClient(vision.Config{
		Endpoint: vc.Endpoint,
		APIKey:   vc.APIKey,
		Timeout:  time.Duration(vc.TimeoutSeconds) * time.Second,
	})
}
