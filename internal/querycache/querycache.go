// Package querycache stores enhanced queries keyed by the normalized raw query.
package querycache

import (
	"context"
	"fmt"
	"time"

	"github.com/spigell/shl-recommender/internal/utils"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	DefaultSize = 1024
	DefaultTTL  = 24 * time.Hour
)

// Cache maps raw queries to their enhanced form.
type Cache interface {
	Get(ctx context.Context, query string) (string, bool, error)
	Set(ctx context.Context, query, enhanced string) error
}

// Config selects and sizes the cache backend.
type Config struct {
	Enabled bool          `mapstructure:"enabled"`
	Backend string        `mapstructure:"backend"`
	Size    int           `mapstructure:"size"`
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// New builds the configured backend. A disabled cache returns nil.
func New(ctx context.Context, cfg Config) (Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemory(cfg.Size, cfg.TTL), nil
	case BackendRedis:
		cache, err := OpenRedis(ctx, cfg.Redis, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return cache, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// Key normalizes a raw query so that trivially different spellings share an entry.
func Key(query string) string {
	return utils.NormalizeQuery(query)
}
