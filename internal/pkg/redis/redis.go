package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Redis struct {
	client *redis.Client
}

const Nil = redis.Nil

// New wraps an existing client.
func New(client *redis.Client) Cache {
	return &Redis{client: client}
}

// NewScript wraps a Lua script for ScriptRun.
func NewScript(script string) *redis.Script {
	return redis.NewScript(script)
}

func (r *Redis) SetString(ctx context.Context, key, value string, exp time.Duration) error {
	return r.client.Set(ctx, key, value, exp).Err()
}

func (r *Redis) GetString(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	count, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ScriptRun implements Cache.
func (r *Redis) ScriptRun(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	conn := r.client.Conn()
	defer conn.Close()

	return script.Run(ctx, conn, keys, args...).Result()
}

// Del implements Cache.
func (r *Redis) Del(ctx context.Context, keys ...string) (int64, error) {
	return r.client.Del(ctx, keys...).Result()
}

// Expire implements Cache.
func (r *Redis) Expire(ctx context.Context, key string, seconds int) (bool, error) {
	return r.client.Expire(ctx, key, time.Duration(seconds)*time.Second).Result()
}

// Publish implements Cache.
func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}
