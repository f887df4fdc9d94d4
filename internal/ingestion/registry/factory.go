package registry

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/zsiec/tsingest/internal/config"
	"github.com/zsiec/tsingest/internal/logger"
)

// New returns a Redis registry when enabled in cfg, otherwise an in-memory
// one. The Redis connection is checked with PING before returning. The
// returned client is nil for the in-memory registry.
func New(ctx context.Context, cfg *config.RegistryConfig, log logger.Logger) (Registry, *redis.Client, error) {
	if !cfg.Enabled {
		return NewMemoryRegistry(), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: cfg.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	return NewRedisRegistry(client, log, cfg.Prefix, cfg.TTL), client, nil
}
