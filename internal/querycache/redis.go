package querycache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces cache entries in a shared redis database.
const KeyPrefix = "shl:enhance:"

// redisAPI is the subset of *redis.Client used here.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Redis stores enhanced queries in redis with a fixed expiration.
type Redis struct {
	client redisAPI
	ttl    time.Duration
}

var _ Cache = (*Redis)(nil)

// OpenRedis connects to redis and verifies the connection with PING.
func OpenRedis(ctx context.Context, cfg RedisConfig, ttl time.Duration) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}

	return NewRedis(client, ttl), nil
}

func NewRedis(client redisAPI, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, query string) (string, bool, error) {
	value, err := r.client.Get(ctx, KeyPrefix+Key(query)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, query, enhanced string) error {
	if err := r.client.Set(ctx, KeyPrefix+Key(query), enhanced, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
