// ABOUTME: Mirrors the session's message sequence into the local cache and the durable room store
// ABOUTME: Cache writes are synchronous; durable writes are debounced, best effort and never retried

package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/triage-chat/internal/cache"
	"github.com/2389/triage-chat/internal/chat"
	"github.com/2389/triage-chat/internal/store"
)

const (
	DefaultDebounce     = time.Second
	DefaultWriteTimeout = 10 * time.Second
	cacheWriteTimeout   = 2 * time.Second
)

// Key names where a session's history lives. The cache is keyed by the
// room, or by the session while no room exists; the durable store is only
// used with a room.
type Key struct {
	Room    string
	Session string
}

// CacheKey returns the local cache key.
func (k Key) CacheKey() string {
	if k.Room != "" {
		return k.Room
	}
	return k.Session
}

// Durable reports whether the durable store applies to k.
func (k Key) Durable() bool {
	return k.Room != ""
}

// Source reports where Load found history.
type Source int

const (
	SourceNone Source = iota
	SourceDurable
	SourceCache
)

func (s Source) String() string {
	switch s {
	case SourceDurable:
		return "durable"
	case SourceCache:
		return "cache"
	default:
		return "none"
	}
}

// Options configures a Synchronizer.
type Options struct {
	Cache        cache.Cache     // required
	Store        store.RoomStore // nil disables durable writes
	Debounce     time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

type pending struct {
	msgs  []chat.Message
	timer *time.Timer
}

// Synchronizer is safe for concurrent use. Observe never blocks on the
// durable store.
type Synchronizer struct {
	cache        cache.Cache
	store        store.RoomStore
	debounce     time.Duration
	writeTimeout time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	pending map[string]*pending // by room
	writes  sync.WaitGroup
	closed  bool
}

// New creates a Synchronizer.
func New(opts Options) *Synchronizer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	return &Synchronizer{
		cache:        opts.Cache,
		store:        opts.Store,
		debounce:     opts.Debounce,
		writeTimeout: opts.WriteTimeout,
		logger:       logger.With("component", "persist"),
		pending:      make(map[string]*pending),
	}
}

// Observe records a committed snapshot. The cache is written before
// Observe returns; the durable write is scheduled for after the debounce
// delay, replacing any snapshot still waiting for the same room. Empty
// snapshots are ignored.
func (s *Synchronizer) Observe(key Key, msgs []chat.Message) {
	if len(msgs) == 0 {
		return
	}
	snap := chat.Snapshot(msgs)

	ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	if err := s.cache.Set(ctx, key.CacheKey(), snap); err != nil {
		s.logger.Warn("cache write failed", "key", key.CacheKey(), "error", err)
	}
	cancel()

	if s.store == nil || !key.Durable() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	p, ok := s.pending[key.Room]
	if ok {
		p.msgs = snap
		p.timer.Reset(s.debounce)
		return
	}
	room := key.Room
	p = &pending{msgs: snap}
	p.timer = time.AfterFunc(s.debounce, func() { s.fire(room) })
	s.pending[room] = p
}

// fire hands the latest snapshot for room to a background write.
func (s *Synchronizer) fire(room string) {
	s.mu.Lock()
	p, ok := s.pending[room]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pending, room)
	s.writes.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.writes.Done()
		s.write(room, p.msgs)
	}()
}

func (s *Synchronizer) write(room string, msgs []chat.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	start := time.Now()
	if err := s.store.Replace(ctx, room, msgs); err != nil {
		s.logger.Error("durable write failed", "room", room, "count", len(msgs), "error", err)
		return
	}
	s.logger.Debug("durable write", "room", room, "count", len(msgs), "took", time.Since(start))
}

// Load returns the history for key: the durable store's when it has any,
// otherwise the cache's. Load never writes.
func (s *Synchronizer) Load(ctx context.Context, key Key) ([]chat.Message, Source) {
	if s.store != nil && key.Durable() {
		msgs, err := s.store.Messages(ctx, key.Room)
		switch {
		case err != nil:
			s.logger.Warn("durable load failed, falling back to cache", "room", key.Room, "error", err)
		case len(msgs) > 0:
			s.logger.Info("loaded history", "room", key.Room, "source", SourceDurable.String(), "count", len(msgs))
			return msgs, SourceDurable
		}
	}

	msgs, ok, err := s.cache.Get(ctx, key.CacheKey())
	if err != nil {
		s.logger.Warn("cache load failed", "key", key.CacheKey(), "error", err)
		return nil, SourceNone
	}
	if !ok || len(msgs) == 0 {
		return nil, SourceNone
	}
	s.logger.Info("loaded history", "key", key.CacheKey(), "source", SourceCache.String(), "count", len(msgs))
	return msgs, SourceCache
}

// Clear drops the cache entry for key and any durable write still waiting
// for its room. Durable history is left alone.
func (s *Synchronizer) Clear(ctx context.Context, key Key) {
	s.mu.Lock()
	if p, ok := s.pending[key.Room]; ok && key.Durable() {
		p.timer.Stop()
		delete(s.pending, key.Room)
	}
	s.mu.Unlock()

	if err := s.cache.Delete(ctx, key.CacheKey()); err != nil {
		s.logger.Warn("cache delete failed", "key", key.CacheKey(), "error", err)
	}
}

// Flush starts every pending durable write now and waits for all in-flight
// writes, or for ctx.
func (s *Synchronizer) Flush(ctx context.Context) error {
	s.mu.Lock()
	rooms := make([]string, 0, len(s.pending))
	for room, p := range s.pending {
		if p.timer.Stop() {
			rooms = append(rooms, room)
		}
	}
	s.mu.Unlock()

	for _, room := range rooms {
		s.fire(room)
	}

	done := make(chan struct{})
	go func() {
		s.writes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending writes and stops accepting new durable writes. The
// cache and store are owned by the caller.
func (s *Synchronizer) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}
