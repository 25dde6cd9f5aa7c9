package data

import (
	"context"
	"encoding/json"
	"time"

	"forumguard/internal/biz"
	"forumguard/internal/conf"
	pkgredis "forumguard/internal/pkg/redis"

	"github.com/go-kratos/kratos/v2/log"
)

type alertSink struct {
	cache   pkgredis.Cache
	channel string
	log     *log.Helper
}

// NewAlertSink creates a Redis pub/sub alert sink. Subscribers (ops
// bots, dashboards) pick quota alerts off the configured channel.
func NewAlertSink(cache pkgredis.Cache, qc *conf.Quota, logger log.Logger) biz.AlertSink {
	return &alertSink{
		cache:   cache,
		channel: qc.AlertChannel,
		log:     log.NewHelper(logger),
	}
}

// Emit implements biz.AlertSink. Bounded by its own short timeout so a
// slow Redis never stalls the quota write path.
func (s *alertSink) Emit(ctx context.Context, alert biz.QuotaAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return s.cache.Publish(pubCtx, s.channel, payload)
}
