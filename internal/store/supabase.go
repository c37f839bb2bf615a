// ABOUTME: RoomStore backed by a Supabase (PostgREST) table
// ABOUTME: Rows carry the room id and position; Replace is delete-then-insert

package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/2389/triage-chat/internal/chat"
)

// DefaultSupabaseTable is the table used when none is configured.
const DefaultSupabaseTable = "chat_messages"

// supabaseRow is the table layout.
type supabaseRow struct {
	RoomID     string           `json:"room_id"`
	Position   int              `json:"position"`
	MessageID  string           `json:"message_id"`
	Type       string           `json:"type"`
	Author     string           `json:"author"`
	Content    string           `json:"content"`
	References []chat.Reference `json:"references"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  *time.Time       `json:"updated_at"`
}

func toRow(room string, position int, m chat.Message) supabaseRow {
	row := supabaseRow{
		RoomID:     room,
		Position:   position,
		MessageID:  m.ID,
		Type:       string(m.Type),
		Author:     m.Author,
		Content:    m.Content,
		References: m.References,
		CreatedAt:  m.Timestamp,
	}
	if !m.UpdatedAt.IsZero() {
		u := m.UpdatedAt
		row.UpdatedAt = &u
	}
	return row
}

func (r supabaseRow) message() chat.Message {
	m := chat.Message{
		ID:         r.MessageID,
		Type:       chat.MessageType(r.Type),
		Author:     r.Author,
		Content:    r.Content,
		References: r.References,
		Timestamp:  r.CreatedAt,
	}
	if r.UpdatedAt != nil {
		m.UpdatedAt = *r.UpdatedAt
	}
	return m
}

// SupabaseStore implements RoomStore using supabase-go.
type SupabaseStore struct {
	client *supabase.Client
	table  string
}

// NewSupabaseStore connects to the project at url with apiKey.
func NewSupabaseStore(url, apiKey, table string) (*SupabaseStore, error) {
	if url == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}
	if table == "" {
		table = DefaultSupabaseTable
	}

	client, err := supabase.NewClient(url, apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}
	return &SupabaseStore{client: client, table: table}, nil
}

func (s *SupabaseStore) rows(room string) ([]supabaseRow, error) {
	var rows []supabaseRow
	_, err := s.client.From(s.table).
		Select("*", "", false).
		Eq("room_id", room).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("selecting room %s: %w", room, err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })
	return rows, nil
}

// Messages implements RoomStore.
func (s *SupabaseStore) Messages(ctx context.Context, room string) ([]chat.Message, error) {
	rows, err := s.rows(room)
	if err != nil {
		return nil, err
	}
	msgs := make([]chat.Message, len(rows))
	for i, r := range rows {
		msgs[i] = r.message()
	}
	return msgs, nil
}

// Append implements RoomStore.
func (s *SupabaseStore) Append(ctx context.Context, room string, msg chat.Message) error {
	rows, err := s.rows(room)
	if err != nil {
		return err
	}
	position := len(rows)
	if n := len(rows); n > 0 {
		position = rows[n-1].Position + 1
	}
	for _, r := range rows {
		if r.MessageID == msg.ID {
			position = r.Position
			break
		}
	}

	_, _, err = s.client.From(s.table).
		Insert(toRow(room, position, msg), true, "room_id,position", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("upserting message %s: %w", msg.ID, err)
	}
	return nil
}

// Replace implements RoomStore.
func (s *SupabaseStore) Replace(ctx context.Context, room string, msgs []chat.Message) error {
	_, _, err := s.client.From(s.table).
		Delete("minimal", "").
		Eq("room_id", room).
		Execute()
	if err != nil {
		return fmt.Errorf("clearing room %s: %w", room, err)
	}
	if len(msgs) == 0 {
		return nil
	}

	rows := make([]supabaseRow, len(msgs))
	for i, m := range msgs {
		rows[i] = toRow(room, i, m)
	}
	_, _, err = s.client.From(s.table).
		Insert(rows, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("inserting %d messages: %w", len(rows), err)
	}
	return nil
}

// Close implements RoomStore. The PostgREST client holds no connections.
func (s *SupabaseStore) Close() error {
	return nil
}
