// Package store is the durable persistence tier for chat room history.
//
// # Interface
//
// RoomStore has read, append and replace semantics keyed by room id:
//
//	msgs, err := s.Messages(ctx, "room_1700000000000")
//	err = s.Append(ctx, room, msg)
//	err = s.Replace(ctx, room, msgs)
//
// # Implementations
//
//   - SQLiteStore: local database, driver "sqlite" (modernc.org/sqlite,
//     pure Go) or "sqlite3" (mattn/go-sqlite3, cgo). WAL mode, schema
//     created and migrated on open.
//   - HTTPStore: the backend's /api/chat-rooms/{room}/messages endpoints.
//   - SupabaseStore: a PostgREST table, one row per message.
//   - MockStore: in-memory, with failure injection for tests.
//
// Open builds the configured implementation from config.StoreConfig.
package store
