// ABOUTME: Fast local tier holding the latest message snapshot per room or session
// ABOUTME: Memory and Redis drivers behind one interface, selected by NewCache

package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/2389/triage-chat/internal/chat"
)

// Driver names a cache implementation.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
)

var (
	// ErrInvalidConfig is returned when a driver is missing a required option.
	ErrInvalidConfig = errors.New("invalid cache config")
	// ErrUnknownDriver is returned for an unrecognised driver name.
	ErrUnknownDriver = errors.New("unknown cache driver")
	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("cache closed")
)

// DefaultTTL bounds how long an untouched Redis entry survives.
const DefaultTTL = 24 * time.Hour

// Cache stores one message snapshot per key, last write wins.
type Cache interface {
	// Get returns the snapshot for key. ok is false when nothing is stored.
	Get(ctx context.Context, key string) (msgs []chat.Message, ok bool, err error)
	Set(ctx context.Context, key string, msgs []chat.Message) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Option configures NewCache.
type Option func(*options)

type options struct {
	redisClient *redis.Client
	ttl         time.Duration
	prefix      string
}

// WithRedisClient sets the client used by the redis driver. The cache takes
// ownership and closes it on Close.
func WithRedisClient(c *redis.Client) Option {
	return func(o *options) { o.redisClient = c }
}

// WithTTL sets the expiry for redis entries.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithKeyPrefix overrides the redis key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// NewCache builds the cache for driver. An empty driver means memory.
func NewCache(driver Driver, opts ...Option) (Cache, error) {
	o := &options{prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(o)
	}

	switch driver {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverRedis:
		if o.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedis(o.redisClient, o.ttl, o.prefix), nil
	default:
		return nil, ErrUnknownDriver
	}
}
