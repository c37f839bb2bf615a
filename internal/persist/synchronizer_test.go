// ABOUTME: Tests for the two-tier persistence synchronizer
// ABOUTME: Uses the in-memory cache and MockStore with short debounce windows

package persist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/triage-chat/internal/cache"
	"github.com/2389/triage-chat/internal/chat"
	"github.com/2389/triage-chat/internal/store"
)

func msgs(texts ...string) []chat.Message {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	out := make([]chat.Message, len(texts))
	for i, text := range texts {
		out[i] = chat.Message{ID: text, Type: chat.TypeAgent, Author: "triage", Content: text, Timestamp: now}
	}
	return out
}

func newTestSync(t *testing.T, st store.RoomStore) (*Synchronizer, *cache.Memory) {
	t.Helper()
	mem := cache.NewMemory()
	s := New(Options{Cache: mem, Store: st, Debounce: 20 * time.Millisecond, WriteTimeout: time.Second})
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, mem
}

func TestKey(t *testing.T) {
	assert.Equal(t, "room-1", Key{Room: "room-1", Session: "s"}.CacheKey())
	assert.Equal(t, "s", Key{Session: "s"}.CacheKey())
	assert.True(t, Key{Room: "room-1"}.Durable())
	assert.False(t, Key{Session: "s"}.Durable())
}

func TestObserveWritesCacheSynchronously(t *testing.T) {
	s, mem := newTestSync(t, nil)

	s.Observe(Key{Session: "s1"}, msgs("a", "b"))

	got, ok, err := mem.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, 2)
}

func TestObserveSkipsEmpty(t *testing.T) {
	st := store.NewMockStore()
	s, mem := newTestSync(t, st)

	s.Observe(Key{Room: "r"}, nil)
	require.NoError(t, s.Flush(context.Background()))

	_, ok, _ := mem.Get(context.Background(), "r")
	assert.False(t, ok)
	assert.Equal(t, 0, st.ReplaceCount("r"))
}

func TestDurableWritesAreDebounced(t *testing.T) {
	st := store.NewMockStore()
	s, _ := newTestSync(t, st)
	key := Key{Room: "r", Session: "s"}

	s.Observe(key, msgs("a"))
	s.Observe(key, msgs("a", "b"))
	s.Observe(key, msgs("a", "b", "c"))

	assert.Eventually(t, func() bool { return st.ReplaceCount("r") == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, st.ReplaceCount("r"))

	stored, err := st.Messages(context.Background(), "r")
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestNoDurableWriteWithoutRoom(t *testing.T) {
	st := store.NewMockStore()
	s, _ := newTestSync(t, st)

	s.Observe(Key{Session: "s"}, msgs("a"))
	require.NoError(t, s.Flush(context.Background()))

	rooms, err := st.ListRooms(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestDurableFailureIsNotRetried(t *testing.T) {
	st := store.NewMockStore()
	st.SetReplaceErr(errors.New("boom"))
	s, mem := newTestSync(t, st)

	s.Observe(Key{Room: "r"}, msgs("a"))
	require.NoError(t, s.Flush(context.Background()))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, st.ReplaceCount("r"))
	_, ok, _ := mem.Get(context.Background(), "r")
	assert.True(t, ok, "cache keeps the snapshot when the durable write fails")
}

func TestFlushWritesImmediately(t *testing.T) {
	st := store.NewMockStore()
	mem := cache.NewMemory()
	s := New(Options{Cache: mem, Store: st, Debounce: time.Hour})

	s.Observe(Key{Room: "r"}, msgs("a", "b"))
	require.NoError(t, s.Close(context.Background()))

	assert.Equal(t, 1, st.ReplaceCount("r"))
}

func TestObserveAfterCloseSkipsDurable(t *testing.T) {
	st := store.NewMockStore()
	mem := cache.NewMemory()
	s := New(Options{Cache: mem, Store: st, Debounce: time.Millisecond})
	require.NoError(t, s.Close(context.Background()))

	s.Observe(Key{Room: "r"}, msgs("a"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, st.ReplaceCount("r"))
}

func TestLoadPrefersDurable(t *testing.T) {
	st := store.NewMockStore()
	st.Seed("r", msgs("durable-1", "durable-2"))
	s, mem := newTestSync(t, st)
	require.NoError(t, mem.Set(context.Background(), "r", msgs("cached")))

	got, src := s.Load(context.Background(), Key{Room: "r"})
	assert.Equal(t, SourceDurable, src)
	require.Len(t, got, 2)
	assert.Equal(t, "durable-1", got[0].Content)
}

func TestLoadFallsBackToCache(t *testing.T) {
	st := store.NewMockStore()
	s, mem := newTestSync(t, st)
	require.NoError(t, mem.Set(context.Background(), "r", msgs("cached")))

	got, src := s.Load(context.Background(), Key{Room: "r"})
	assert.Equal(t, SourceCache, src)
	require.Len(t, got, 1)

	st.MessagesErr = errors.New("offline")
	got, src = s.Load(context.Background(), Key{Room: "r"})
	assert.Equal(t, SourceCache, src)
	assert.Len(t, got, 1)
}

func TestLoadNothing(t *testing.T) {
	s, _ := newTestSync(t, nil)

	got, src := s.Load(context.Background(), Key{Session: "fresh"})
	assert.Equal(t, SourceNone, src)
	assert.Empty(t, got)
	assert.Equal(t, "none", src.String())
}

func TestClearDropsCacheOnly(t *testing.T) {
	st := store.NewMockStore()
	st.Seed("r", msgs("keep"))
	s, mem := newTestSync(t, st)
	key := Key{Room: "r"}
	require.NoError(t, mem.Set(context.Background(), "r", msgs("cached")))

	s.Clear(context.Background(), key)

	_, ok, _ := mem.Get(context.Background(), "r")
	assert.False(t, ok)
	stored, _ := st.Messages(context.Background(), "r")
	assert.Len(t, stored, 1)
}

func TestClearCancelsPendingDurableWrite(t *testing.T) {
	st := store.NewMockStore()
	s, _ := newTestSync(t, st)
	key := Key{Room: "r"}

	s.Observe(key, msgs("a"))
	s.Clear(context.Background(), key)
	require.NoError(t, s.Flush(context.Background()))
	time.Sleep(40 * time.Millisecond)

	assert.Equal(t, 0, st.ReplaceCount("r"))
}
