// ABOUTME: In-process snapshot cache used when no redis is configured and in tests
// ABOUTME: Entries are deep-copied on Set and Get so callers never share slices

package cache

import (
	"context"
	"sync"

	"github.com/2389/triage-chat/internal/chat"
)

// Memory is an in-process Cache. Snapshots are copied on the way in and out.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]chat.Message
}

// NewMemory creates an empty Memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]chat.Message)}
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string) ([]chat.Message, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return chat.Snapshot(msgs), true, nil
}

// Set implements Cache.
func (m *Memory) Set(_ context.Context, key string, msgs []chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		return ErrClosed
	}
	m.entries[key] = chat.Snapshot(msgs)
	return nil
}

// Delete implements Cache.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Close implements Cache.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	return nil
}
