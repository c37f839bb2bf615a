// ABOUTME: Builds the configured Cache from the cache config section
// ABOUTME: The redis driver gets its own client, owned and closed by the cache

package cache

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/2389/triage-chat/internal/config"
)

// Open returns the Cache selected by cfg.Driver.
func Open(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Driver {
	case "", config.CacheMemory:
		return NewMemory(), nil
	case config.CacheRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis cache: %w: redis_addr is required", ErrInvalidConfig)
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewCache(DriverRedis, WithRedisClient(client), WithTTL(cfg.TTL))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
