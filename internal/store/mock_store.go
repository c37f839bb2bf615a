// ABOUTME: Mock RoomStore implementation for testing
// ABOUTME: In-memory rooms with call counters and injectable failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/2389/triage-chat/internal/chat"
)

// MockStore is an in-memory RoomStore for tests.
type MockStore struct {
	mu       sync.RWMutex
	rooms    map[string][]chat.Message
	replaces map[string]int
	appends  map[string]int

	// When set, the corresponding operation fails with this error.
	MessagesErr error
	AppendErr   error
	ReplaceErr  error

	// ReplaceDelay slows Replace down to simulate a slow remote store.
	ReplaceDelay time.Duration
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		rooms:    make(map[string][]chat.Message),
		replaces: make(map[string]int),
		appends:  make(map[string]int),
	}
}

// Seed sets room's history directly.
func (m *MockStore) Seed(room string, msgs []chat.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room] = chat.Snapshot(msgs)
}

// Messages implements RoomStore.
func (m *MockStore) Messages(ctx context.Context, room string) ([]chat.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.MessagesErr != nil {
		return nil, m.MessagesErr
	}
	msgs := chat.Snapshot(m.rooms[room])
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return msgs, nil
}

// Append implements RoomStore.
func (m *MockStore) Append(ctx context.Context, room string, msg chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.appends[room]++
	msgs := m.rooms[room]
	for i := range msgs {
		if msgs[i].ID == msg.ID {
			msgs[i] = msg.Clone()
			return nil
		}
	}
	m.rooms[room] = append(msgs, msg.Clone())
	return nil
}

// Replace implements RoomStore.
func (m *MockStore) Replace(ctx context.Context, room string, msgs []chat.Message) error {
	m.mu.RLock()
	delay, fail := m.ReplaceDelay, m.ReplaceErr
	m.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail != nil {
		m.mu.Lock()
		m.replaces[room]++
		m.mu.Unlock()
		return fail
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaces[room]++
	m.rooms[room] = chat.Snapshot(msgs)
	return nil
}

// ListRooms implements RoomLister.
func (m *MockStore) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RoomSummary
	for id, msgs := range m.rooms {
		r := RoomSummary{ID: id, MessageCount: len(msgs)}
		if n := len(msgs); n > 0 {
			r.LastMessageAt = msgs[n-1].Timestamp
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

// ReplaceCount returns how many Replace calls reached room.
func (m *MockStore) ReplaceCount(room string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.replaces[room]
}

// AppendCount returns how many Append calls succeeded for room.
func (m *MockStore) AppendCount(room string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.appends[room]
}

// SetReplaceErr changes the injected Replace failure under the lock.
func (m *MockStore) SetReplaceErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReplaceErr = err
}

// Close implements RoomStore.
func (m *MockStore) Close() error {
	return nil
}
