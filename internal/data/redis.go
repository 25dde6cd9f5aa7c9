package data

import (
	"context"
	"fmt"
	"time"

	"forumguard/internal/conf"
	pkgredis "forumguard/internal/pkg/redis"

	"github.com/go-kratos/kratos/v2/log"
	redis "github.com/redis/go-redis/v9"
)

// NewRedisCache creates a new Redis cache from configuration.
func NewRedisCache(c *conf.Data, logger log.Logger) (pkgredis.Cache, func(), error) {
	helper := log.NewHelper(logger)

	opts := &redis.Options{
		Addr:    c.Redis.Addr,
		Network: c.Redis.Network,
	}
	if c.Redis.ReadTimeoutSeconds > 0 {
		opts.ReadTimeout = time.Duration(c.Redis.ReadTimeoutSeconds) * time.Second
	}
	if c.Redis.WriteTimeoutSeconds > 0 {
		opts.WriteTimeout = time.Duration(c.Redis.WriteTimeoutSeconds) * time.Second
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		helper.Errorf("failed to connect to Redis at %s: %v", c.Redis.Addr, err)
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	helper.Infof("connected to Redis at %s", c.Redis.Addr)

	cleanup := func() {
		helper.Info("closing Redis connection")
		client.Close()
	}

	return pkgredis.New(client), cleanup, nil
}
