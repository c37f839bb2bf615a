// ABOUTME: RoomStore interface for the durable message history tier
// ABOUTME: Implementations: SQLite (modernc or mattn driver), chat-room REST API, Supabase, mock

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/triage-chat/internal/chat"
)

// ErrNotFound is returned when a requested room does not exist
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("store closed")

// RoomStore persists the full message history of chat rooms.
// Messages for a room are returned in conversation order.
type RoomStore interface {
	// Messages returns every message of room. A room with no history
	// returns an empty slice and no error.
	Messages(ctx context.Context, room string) ([]chat.Message, error)

	// Append adds one message at the end of room's history. A message
	// whose ID is already stored replaces that entry in place.
	Append(ctx context.Context, room string, msg chat.Message) error

	// Replace swaps room's history for msgs.
	Replace(ctx context.Context, room string, msgs []chat.Message) error

	// Close releases any resources held by the store
	Close() error
}

// RoomSummary describes one room with stored history.
type RoomSummary struct {
	ID            string
	MessageCount  int
	LastMessageAt time.Time
}

// RoomLister is implemented by stores that can enumerate their rooms.
type RoomLister interface {
	ListRooms(ctx context.Context) ([]RoomSummary, error)
}
