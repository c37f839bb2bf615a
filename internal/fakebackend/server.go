// ABOUTME: Local stand-in for the triage agent backend: session websocket plus chat-room REST API
// ABOUTME: Replies to each submission with a scripted multi-agent turn and exposes fault injection hooks

package fakebackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/2389/triage-chat/internal/chat"
	"github.com/2389/triage-chat/internal/protocol"
	"github.com/2389/triage-chat/internal/store"
	"github.com/2389/triage-chat/internal/transport"
)

// ErrNoClient is returned by the hooks when no connection exists for the identity.
var ErrNoClient = errors.New("no client connected")

const writeTimeout = 5 * time.Second

// Turn produces the frames answering one submission.
type Turn func(id transport.Identity, msg protocol.Outbound) []protocol.Frame

// Received is one outbound message the server read from a client.
type Received struct {
	Identity transport.Identity
	Message  protocol.Outbound
	At       time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithTurn replaces the scripted triage turn.
func WithTurn(t Turn) Option {
	return func(s *Server) { s.turn = t }
}

// WithFrameDelay spaces out the frames of a turn.
func WithFrameDelay(d time.Duration) Option {
	return func(s *Server) { s.frameDelay = d }
}

// WithReplayOnConnect makes a reconnecting client receive every frame
// already sent to its identity, the way a backend replays session events.
func WithReplayOnConnect(enabled bool) Option {
	return func(s *Server) { s.replay = enabled }
}

// WithRooms sets the store behind the chat-room endpoints.
func WithRooms(rs store.RoomStore) Option {
	return func(s *Server) { s.rooms = rs }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

type client struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
}

// Server is safe for concurrent use.
type Server struct {
	turn       Turn
	frameDelay time.Duration
	replay     bool
	rooms      store.RoomStore
	logger     *slog.Logger

	mu       sync.Mutex
	clients  map[transport.Identity]*client
	sent     map[transport.Identity][][]byte
	connects map[transport.Identity]int
	received []Received
}

// New creates a Server. Without options it answers with TriageTurn and keeps
// rooms in a MockStore.
func New(opts ...Option) *Server {
	s := &Server{
		turn:     TriageTurn,
		logger:   slog.Default(),
		clients:  make(map[transport.Identity]*client),
		sent:     make(map[transport.Identity][][]byte),
		connects: make(map[transport.Identity]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rooms == nil {
		s.rooms = store.NewMockStore()
	}
	s.logger = s.logger.With("component", "fakebackend")
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{user}/{session}", s.handleWebSocket)
	mux.HandleFunc("GET /api/chat-rooms", s.handleListRooms)
	mux.HandleFunc("GET /api/chat-rooms/{room}/messages", s.handleGetMessages)
	mux.HandleFunc("POST /api/chat-rooms/{room}/messages", s.handleAppendMessage)
	mux.HandleFunc("POST /api/chat-rooms/{room}/messages/batch", s.handleReplaceMessages)
	return mux
}

// Rooms returns the store behind the chat-room endpoints.
func (s *Server) Rooms() store.RoomStore {
	return s.rooms
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := transport.Identity{UserID: r.PathValue("user"), SessionID: r.PathValue("session")}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logger.Warn("accept failed", "identity", id.String(), "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{conn: conn, cancel: cancel}
	defer s.disconnect(id, c)

	s.mu.Lock()
	s.connects[id]++
	var backlog [][]byte
	if s.replay {
		backlog = append(backlog, s.sent[id]...)
	}
	s.mu.Unlock()

	// The client is only visible to the hooks once the backlog is written,
	// so pushed frames always follow replayed ones.
	for _, data := range backlog {
		if err := s.write(ctx, conn, data); err != nil {
			return
		}
	}

	s.mu.Lock()
	if old, ok := s.clients[id]; ok {
		old.cancel()
		_ = old.conn.CloseNow()
	}
	s.clients[id] = c
	s.mu.Unlock()
	s.logger.Info("client connected", "identity", id.String(), "replayed", len(backlog))

	for {
		var msg protocol.Outbound
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			s.logger.Debug("client gone", "identity", id.String(), "status", int(websocket.CloseStatus(err)))
			return
		}
		s.mu.Lock()
		s.received = append(s.received, Received{Identity: id, Message: msg, At: time.Now()})
		s.mu.Unlock()

		for _, f := range s.turn(id, msg) {
			if s.frameDelay > 0 {
				select {
				case <-time.After(s.frameDelay):
				case <-ctx.Done():
					return
				}
			}
			if err := s.send(ctx, id, conn, f); err != nil {
				s.logger.Debug("write failed", "identity", id.String(), "error", err)
				return
			}
		}
	}
}

func (s *Server) disconnect(id transport.Identity, c *client) {
	c.cancel()
	s.mu.Lock()
	if s.clients[id] == c {
		delete(s.clients, id)
	}
	s.mu.Unlock()
}

func (s *Server) send(ctx context.Context, id transport.Identity, conn *websocket.Conn, f protocol.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	s.mu.Lock()
	s.sent[id] = append(s.sent[id], data)
	s.mu.Unlock()
	return s.write(ctx, conn, data)
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) lookup(id transport.Identity) (*client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoClient, id)
	}
	return c, nil
}

// Push sends f to the client connected as id.
func (s *Server) Push(ctx context.Context, id transport.Identity, f protocol.Frame) error {
	c, err := s.lookup(id)
	if err != nil {
		return err
	}
	return s.send(ctx, id, c.conn, f)
}

// PushRaw sends data unmodified, for malformed frames.
func (s *Server) PushRaw(ctx context.Context, id transport.Identity, data []byte) error {
	c, err := s.lookup(id)
	if err != nil {
		return err
	}
	return s.write(ctx, c.conn, data)
}

// Drop cuts the connection for id without a close handshake, which the
// client sees as an abnormal closure.
func (s *Server) Drop(id transport.Identity) error {
	s.mu.Lock()
	c, ok := s.clients[id]
	delete(s.clients, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoClient, id)
	}
	err := c.conn.CloseNow()
	c.cancel()
	return err
}

// Disconnect closes the connection for id with a close frame.
func (s *Server) Disconnect(id transport.Identity, status websocket.StatusCode, reason string) error {
	c, err := s.lookup(id)
	if err != nil {
		return err
	}
	return c.conn.Close(status, reason)
}

// Connected reports whether a client is connected as id.
func (s *Server) Connected(id transport.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.clients[id]
	return ok
}

// Connects returns how many times a client connected as id.
func (s *Server) Connects(id transport.Identity) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects[id]
}

// Received returns a copy of every message read so far.
func (s *Server) Received() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Received, len(s.received))
	copy(out, s.received)
	return out
}

// Close drops every client.
func (s *Server) Close() {
	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[transport.Identity]*client)
	s.mu.Unlock()
	for _, c := range clients {
		c.cancel()
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutdown")
	}
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	lister, ok := s.rooms.(store.RoomLister)
	if !ok {
		http.Error(w, "listing not supported", http.StatusNotImplemented)
		return
	}
	rooms, err := lister.ListRooms(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rooms == nil {
		rooms = []store.RoomSummary{}
	}
	writeJSON(w, rooms)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.rooms.Messages(r.Context(), r.PathValue("room"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, msgs)
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var msg chat.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.rooms.Append(r.Context(), r.PathValue("room"), msg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"success": true, "messageId": msg.ID})
}

func (s *Server) handleReplaceMessages(w http.ResponseWriter, r *http.Request) {
	var msgs []chat.Message
	if err := json.NewDecoder(r.Body).Decode(&msgs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.rooms.Replace(r.Context(), r.PathValue("room"), msgs); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"success": true, "count": len(msgs)})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
