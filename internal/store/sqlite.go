// ABOUTME: SQLite implementation of RoomStore using modernc.org/sqlite or mattn/go-sqlite3
// ABOUTME: Messages live in one position-ordered table; Replace runs in a single transaction

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/2389/triage-chat/internal/chat"
)

// SQL driver names accepted by NewSQLiteStore.
const (
	DriverModernc = "sqlite"  // pure Go
	DriverMattn   = "sqlite3" // cgo
)

// SQLiteStore implements RoomStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path with the
// given SQL driver name. An empty driver uses DriverModernc.
func NewSQLiteStore(path, driver string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")
	if driver == "" {
		driver = DriverModernc
	}
	if driver != DriverModernc && driver != DriverMattn {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "driver", driver)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS room_messages (
			room_id         TEXT NOT NULL,
			position        INTEGER NOT NULL,
			message_id      TEXT NOT NULL,
			type            TEXT NOT NULL,
			author          TEXT NOT NULL DEFAULT '',
			content         TEXT NOT NULL,
			references_json TEXT,
			created_at      TEXT NOT NULL,

			PRIMARY KEY (room_id, position),
			CHECK (type IN ('human', 'agent'))
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_room_messages_id
			ON room_messages(room_id, message_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies idempotent column additions for databases created
// by older builds.
func (s *SQLiteStore) runMigrations() error {
	migrations := []struct {
		check  string
		apply  string
		column string
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('room_messages') WHERE name = 'updated_at'`,
			apply:  `ALTER TABLE room_messages ADD COLUMN updated_at TEXT`,
			column: "updated_at",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("checking column %s: %w", m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding column %s: %w", m.column, err)
		}
		s.logger.Info("applied migration", "column", m.column)
	}
	return nil
}

// Messages implements RoomStore.
func (s *SQLiteStore) Messages(ctx context.Context, room string) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, type, author, content, references_json, created_at, updated_at
		FROM room_messages
		WHERE room_id = ?
		ORDER BY position ASC
	`, room)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	msgs := []chat.Message{}
	for rows.Next() {
		var (
			m         chat.Message
			typ       string
			refs      sql.NullString
			createdAt string
			updatedAt sql.NullString
		)
		if err := rows.Scan(&m.ID, &typ, &m.Author, &m.Content, &refs, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Type = chat.MessageType(typ)
		if refs.Valid && refs.String != "" {
			if err := json.Unmarshal([]byte(refs.String), &m.References); err != nil {
				return nil, fmt.Errorf("decoding references of %s: %w", m.ID, err)
			}
		}
		m.Timestamp = parseTime(createdAt)
		if updatedAt.Valid {
			m.UpdatedAt = parseTime(updatedAt.String)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return msgs, nil
}

// Append implements RoomStore.
func (s *SQLiteStore) Append(ctx context.Context, room string, msg chat.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var position int64
	err = tx.QueryRowContext(ctx,
		`SELECT position FROM room_messages WHERE room_id = ? AND message_id = ?`,
		room, msg.ID,
	).Scan(&position)
	switch {
	case err == sql.ErrNoRows:
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM room_messages WHERE room_id = ?`,
			room,
		).Scan(&position); err != nil {
			return fmt.Errorf("reading next position: %w", err)
		}
	case err != nil:
		return fmt.Errorf("looking up message: %w", err)
	default:
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM room_messages WHERE room_id = ? AND position = ?`, room, position,
		); err != nil {
			return fmt.Errorf("removing previous version: %w", err)
		}
	}

	if err := insertMessage(ctx, tx, room, position, msg); err != nil {
		return err
	}
	return tx.Commit()
}

// Replace implements RoomStore.
func (s *SQLiteStore) Replace(ctx context.Context, room string, msgs []chat.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM room_messages WHERE room_id = ?`, room); err != nil {
		return fmt.Errorf("clearing room: %w", err)
	}
	for i, m := range msgs {
		if err := insertMessage(ctx, tx, room, int64(i), m); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing replace: %w", err)
	}

	s.logger.Debug("replaced room history", "room", room, "count", len(msgs))
	return nil
}

// ListRooms implements RoomLister, most recently active first.
func (s *SQLiteStore) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT room_id, COUNT(*), MAX(COALESCE(updated_at, created_at))
		FROM room_messages
		GROUP BY room_id
		ORDER BY 3 DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	defer rows.Close()

	var rooms []RoomSummary
	for rows.Next() {
		var (
			r    RoomSummary
			last string
		)
		if err := rows.Scan(&r.ID, &r.MessageCount, &last); err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		r.LastMessageAt = parseTime(last)
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func insertMessage(ctx context.Context, tx *sql.Tx, room string, position int64, m chat.Message) error {
	var refs sql.NullString
	if len(m.References) > 0 {
		b, err := json.Marshal(m.References)
		if err != nil {
			return fmt.Errorf("encoding references: %w", err)
		}
		refs = sql.NullString{String: string(b), Valid: true}
	}
	var updated sql.NullString
	if !m.UpdatedAt.IsZero() {
		updated = sql.NullString{String: formatTime(m.UpdatedAt), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO room_messages
			(room_id, position, message_id, type, author, content, references_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, room, position, m.ID, string(m.Type), m.Author, m.Content, refs, formatTime(m.Timestamp), updated)
	if err != nil {
		return fmt.Errorf("inserting message %s: %w", m.ID, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
