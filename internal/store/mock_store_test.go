// ABOUTME: Tests for the MockStore used by persistence and session tests
// ABOUTME: Ensures it honours the RoomStore contract and failure injection

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/triage-chat/internal/chat"
	"github.com/2389/triage-chat/internal/config"
)

var _ RoomStore = (*MockStore)(nil)
var _ RoomStore = (*SQLiteStore)(nil)
var _ RoomStore = (*HTTPStore)(nil)
var _ RoomStore = (*SupabaseStore)(nil)
var _ RoomLister = (*SQLiteStore)(nil)

func TestMockStore_Contract(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	msgs, err := m.Messages(ctx, "r")
	require.NoError(t, err)
	assert.NotNil(t, msgs)

	require.NoError(t, m.Append(ctx, "r", chat.Message{ID: "1", Content: "a"}))
	require.NoError(t, m.Append(ctx, "r", chat.Message{ID: "2", Content: "b"}))
	require.NoError(t, m.Append(ctx, "r", chat.Message{ID: "1", Content: "a+"}))

	msgs, _ = m.Messages(ctx, "r")
	require.Len(t, msgs, 2)
	assert.Equal(t, "a+", msgs[0].Content)
	assert.Equal(t, 3, m.AppendCount("r"))

	require.NoError(t, m.Replace(ctx, "r", []chat.Message{{ID: "9"}}))
	msgs, _ = m.Messages(ctx, "r")
	assert.Len(t, msgs, 1)
	assert.Equal(t, 1, m.ReplaceCount("r"))
}

func TestMockStore_FailureInjection(t *testing.T) {
	m := NewMockStore()
	boom := errors.New("boom")
	m.SetReplaceErr(boom)

	err := m.Replace(context.Background(), "r", []chat.Message{{ID: "x"}})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, m.ReplaceCount("r"))

	msgs, _ := m.Messages(context.Background(), "r")
	assert.Empty(t, msgs)
}

func TestMockStore_ReplaceDelayHonoursContext(t *testing.T) {
	m := NewMockStore()
	m.ReplaceDelay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := m.Replace(ctx, "r", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOpen(t *testing.T) {
	s, err := Open(config.StoreConfig{Driver: config.StoreNone})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = Open(config.StoreConfig{Driver: config.StoreSQLite, Path: t.TempDir() + "/h.db"})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	s.Close()

	s, err = Open(config.StoreConfig{Driver: config.StoreHTTP, URL: "http://localhost:8000"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPStore{}, s)

	_, err = Open(config.StoreConfig{Driver: config.StoreSupabase})
	assert.Error(t, err, "supabase requires url and key")

	_, err = Open(config.StoreConfig{Driver: "mongo"})
	assert.Error(t, err)
}
