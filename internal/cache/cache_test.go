// ABOUTME: Tests for the cache drivers and factory
// ABOUTME: Redis tests run only when TRIAGE_TEST_REDIS_ADDR is set

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/triage-chat/internal/chat"
	"github.com/2389/triage-chat/internal/config"
)

func sampleMessages() []chat.Message {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return []chat.Message{
		{ID: "h1", Type: chat.TypeHuman, Content: "I have a fever", Timestamp: ts},
		{
			ID:         "a1",
			Type:       chat.TypeAgent,
			Author:     "interview_agent",
			Content:    "How long? see guide.pdf, Chunk #2",
			References: []chat.Reference{{Filename: "guide.pdf", Chunks: []int{2}}},
			Timestamp:  ts.Add(time.Second),
		},
	}
}

func exerciseCache(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()
	key := "room-" + uuid.NewString()

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	msgs := sampleMessages()
	require.NoError(t, c.Set(ctx, key, msgs))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, msgs[1].Content, got[1].Content)
	assert.Equal(t, msgs[1].References, got[1].References)
	assert.True(t, msgs[0].Timestamp.Equal(got[0].Timestamp))

	// last write wins
	require.NoError(t, c.Set(ctx, key, msgs[:1]))
	got, _, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, c.Delete(ctx, key))
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	c := NewMemory()
	defer c.Close()
	exerciseCache(t, c)
}

func TestMemory_CopiesSnapshots(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	msgs := sampleMessages()
	require.NoError(t, c.Set(ctx, "k", msgs))

	msgs[1].References[0].Chunks[0] = 99
	got, _, _ := c.Get(ctx, "k")
	assert.Equal(t, 2, got[1].References[0].Chunks[0])
}

func TestMemory_SetAfterClose(t *testing.T) {
	c := NewMemory()
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Set(context.Background(), "k", nil), ErrClosed)
}

func TestNewCache(t *testing.T) {
	c, err := NewCache(DriverMemory)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)

	c, err = NewCache("")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)

	_, err = NewCache(DriverRedis)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewCache("memcached")
	assert.ErrorIs(t, err, ErrUnknownDriver)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	c, err = NewCache(DriverRedis, WithRedisClient(client), WithTTL(time.Minute), WithKeyPrefix("t:"))
	require.NoError(t, err)
	r, ok := c.(*Redis)
	require.True(t, ok)
	assert.Equal(t, time.Minute, r.ttl)
	assert.Equal(t, "t:room", r.key("room"))
	_ = c.Close()
}

func TestOpen(t *testing.T) {
	c, err := Open(config.CacheConfig{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)

	_, err = Open(config.CacheConfig{Driver: config.CacheRedis})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Open(config.CacheConfig{Driver: "memcached"})
	assert.ErrorIs(t, err, ErrUnknownDriver)

	c, err = Open(config.CacheConfig{Driver: config.CacheRedis, RedisAddr: "127.0.0.1:0", TTL: time.Hour})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, c)
	_ = c.Close()
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("TRIAGE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TRIAGE_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	c := NewRedis(client, time.Minute, "triage_test:")
	defer c.Close()

	exerciseCache(t, c)
}
