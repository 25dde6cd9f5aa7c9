package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the subset of Redis operations the service depends on.
// The bloom filter needs scripted bitset access, the alert sink needs
// Publish, the rest is generic key plumbing.
type Cache interface {
	SetString(ctx context.Context, key, value string, exp time.Duration) error
	GetString(ctx context.Context, key string) (string, error)

	Exists(ctx context.Context, key string) (bool, error)

	ScriptRun(ctx context.Context, script *redis.Script, keys []string,
		args ...any) (any, error)

	Del(ctx context.Context, keys ...string) (int64, error)

	Expire(ctx context.Context, key string, seconds int) (bool, error)

	Publish(ctx context.Context, channel string, payload []byte) error
}
