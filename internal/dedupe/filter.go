// ABOUTME: Replay filter that drops inbound text frames already applied to the session
// ABOUTME: Keys are event id plus a text hash, bounded by TTL and capacity with oldest-first eviction

package dedupe

import (
	"container/list"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const sweepInterval = time.Minute

type entry struct {
	markedAt time.Time
	element  *list.Element
}

// Filter remembers recently applied frame keys. A backend that replays a
// turn after a reconnect resends the same event ids; those frames are
// recognised and dropped. Safe for concurrent use.
type Filter struct {
	mu       sync.Mutex
	seen     map[string]*entry
	order    *list.List // oldest at front
	ttl      time.Duration
	capacity int
	now      func() time.Time
	done     chan struct{}
	closed   bool
}

// New creates a Filter and starts its expiry sweep. Call Close to stop it.
func New(ttl time.Duration, capacity int) *Filter {
	if capacity <= 0 {
		capacity = 1
	}
	f := &Filter{
		seen:     make(map[string]*entry),
		order:    list.New(),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go f.sweep()
	return f
}

// Key identifies one text frame. Streaming partials share an event id, so
// the text is part of the key. An empty event id yields an empty key,
// meaning the frame cannot be recognised as a replay.
func Key(eventID, text string) string {
	if eventID == "" {
		return ""
	}
	return eventID + ":" + strconv.FormatUint(xxhash.Sum64String(text), 16)
}

// CheckAndMark reports whether key was already seen within the TTL, and
// marks it otherwise. The empty key is never a duplicate and is not stored.
func (f *Filter) CheckAndMark(key string) bool {
	if key == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if e, ok := f.seen[key]; ok && now.Sub(e.markedAt) < f.ttl {
		return true
	}
	f.markLocked(key, now)
	return false
}

// contains reports whether key is present and unexpired without marking it.
func (f *Filter) contains(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.seen[key]
	return ok && f.now().Sub(e.markedAt) < f.ttl
}

func (f *Filter) markLocked(key string, now time.Time) {
	if e, ok := f.seen[key]; ok {
		e.markedAt = now
		f.order.MoveToBack(e.element)
		return
	}
	for len(f.seen) >= f.capacity {
		f.evictOldestLocked()
	}
	f.seen[key] = &entry{markedAt: now, element: f.order.PushBack(key)}
}

func (f *Filter) evictOldestLocked() {
	front := f.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	f.order.Remove(front)
	delete(f.seen, key)
}

// size returns the number of stored keys, including expired ones not yet swept.
func (f *Filter) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

// Reset forgets every key. Used when the session identity changes.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = make(map[string]*entry)
	f.order.Init()
}

func (f *Filter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.removeExpired()
		case <-f.done:
			return
		}
	}
}

func (f *Filter) removeExpired() {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	// entries are ordered by mark time, so stop at the first live one
	for e := f.order.Front(); e != nil; {
		key, _ := e.Value.(string)
		if now.Sub(f.seen[key].markedAt) < f.ttl {
			return
		}
		next := e.Next()
		f.order.Remove(e)
		delete(f.seen, key)
		e = next
	}
}

// Close stops the sweep goroutine. Safe to call more than once.
func (f *Filter) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		close(f.done)
		f.closed = true
	}
}
