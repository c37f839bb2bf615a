// ABOUTME: Redis-backed snapshot cache storing each message list as one JSON string
// ABOUTME: Keys carry a prefix and a TTL that every read and write refreshes

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/2389/triage-chat/internal/chat"
)

const defaultKeyPrefix = "chat_messages:"

// Redis stores snapshots as JSON strings with a TTL that is refreshed on
// every read and write.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis wraps client. ttl <= 0 uses DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration, prefix string) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Redis{client: client, ttl: ttl, prefix: prefix}
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string) ([]chat.Message, bool, error) {
	k := r.key(key)
	val, err := r.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", k, err)
	}

	var msgs []chat.Message
	if err := json.Unmarshal(val, &msgs); err != nil {
		return nil, false, fmt.Errorf("decoding cached messages: %w", err)
	}

	// refresh TTL on read; a failure here only shortens the entry's life
	_ = r.client.Expire(ctx, k, r.ttl).Err()

	return msgs, true, nil
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, key string, msgs []chat.Message) error {
	val, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encoding messages: %w", err)
	}
	if err := r.client.Set(ctx, r.key(key), val, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements Cache.
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Close implements Cache.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(key string) string {
	return r.prefix + key
}
