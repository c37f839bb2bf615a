// ABOUTME: Session is the reconciliation engine for one chat stream
// ABOUTME: Runs classify, extract and aggregate per frame, tracks loading and persists every change

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/2389/triage-chat/internal/chat"
	"github.com/2389/triage-chat/internal/citation"
	"github.com/2389/triage-chat/internal/config"
	"github.com/2389/triage-chat/internal/dedupe"
	"github.com/2389/triage-chat/internal/persist"
	"github.com/2389/triage-chat/internal/protocol"
	"github.com/2389/triage-chat/internal/transition"
	"github.com/2389/triage-chat/internal/transport"
)

var (
	// ErrEmptyMessage is returned by Submit for a blank message without attachments.
	ErrEmptyMessage = errors.New("message has no text and no attachments")
	// ErrNotConnected is returned by Submit when the stream is not open.
	ErrNotConnected = errors.New("not connected")
	// ErrBusy is returned by Submit while an agent turn is still loading.
	ErrBusy = errors.New("agent turn in progress")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)

const (
	defaultReplayWindow   = 10 * time.Minute
	defaultReplayCapacity = 4096

	// ReasonCleared is the close reason used when Clear starts a new session.
	ReasonCleared = "chat cleared"
)

// View is an immutable snapshot of the session for renderers.
type View struct {
	Identity   transport.Identity
	Room       string
	Messages   []chat.Message
	Connection transport.State
	Loading    bool
	Delegating bool // a tool or sub-agent call is in flight
	Hint       *transition.Hint
	Role       transition.Role // last detected agent role; outlives Hint
	Version    uint64
}

// Connected reports whether the stream is open.
func (v View) Connected() bool {
	return v.Connection == transport.StateOpen
}

// Options configures a Session.
type Options struct {
	BackendURL string
	Identity   transport.Identity
	Room       string

	Policy          chat.Policy
	ContinuationGap time.Duration
	// Text from a terminal author ends the turn.
	TerminalAuthors []string
	// Thought parts from these authors are never shown.
	ThoughtAuthors []string
	HintTTL        time.Duration
	ReplayWindow   time.Duration
	ReplayCapacity int

	TransportOptions []transport.Option
	// Sync persists the message sequence. Nil keeps history in memory only.
	// The caller owns it; Close only flushes it.
	Sync *persist.Synchronizer

	Logger *slog.Logger
	Now    func() time.Time
}

// Session owns the message sequence for one (user, session) stream. Frames
// are applied one at a time in arrival order; every method is safe for
// concurrent use.
type Session struct {
	mgr      *transport.Manager
	sync     *persist.Synchronizer
	agg      chat.Aggregator
	tracker  *transition.Tracker
	replay   *dedupe.Filter
	bc       *Broadcaster
	terminal map[string]bool
	thought  map[string]bool
	logger   *slog.Logger
	now      func() time.Time

	mu           sync.Mutex
	identity     transport.Identity
	room         string
	msgs         []chat.Message
	conn         transport.State
	loading      bool
	delegating   bool
	hint         *transition.Hint
	location     string
	locationSent bool
	version      uint64
	loadGen      uint64 // bumped whenever the history key changes
	closed       bool
	done         chan struct{}
}

// New creates a Session. Nothing is loaded or dialled until Start.
func New(opts Options) (*Session, error) {
	if opts.Identity.UserID == "" || opts.Identity.SessionID == "" {
		return nil, fmt.Errorf("identity requires user and session ids")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	window := opts.ReplayWindow
	if window <= 0 {
		window = defaultReplayWindow
	}
	capacity := opts.ReplayCapacity
	if capacity <= 0 {
		capacity = defaultReplayCapacity
	}

	s := &Session{
		sync:     opts.Sync,
		agg:      chat.Aggregator{Policy: opts.Policy, MaxGap: opts.ContinuationGap, Now: now},
		bc:       NewBroadcaster(logger),
		terminal: toSet(opts.TerminalAuthors),
		thought:  toSet(opts.ThoughtAuthors),
		logger:   logger.With("component", "session"),
		now:      now,
		identity: opts.Identity,
		room:     opts.Room,
		conn:     transport.StateIdle,
		done:     make(chan struct{}),
	}

	tOpts := append([]transport.Option{transport.WithLogger(logger)}, opts.TransportOptions...)
	tOpts = append(tOpts, transport.WithStateHandler(s.handleState))
	mgr, err := transport.NewManager(opts.BackendURL, tOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating transport: %w", err)
	}
	s.mgr = mgr
	s.tracker = transition.NewTracker(opts.HintTTL, s.hintExpired)
	s.replay = dedupe.New(window, capacity)
	return s, nil
}

// OptionsFromConfig maps loaded configuration onto session options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BackendURL:      cfg.Backend.URL,
		Identity:        transport.Identity{UserID: cfg.Session.UserID, SessionID: cfg.Session.SessionID},
		Room:            cfg.Session.RoomID,
		Policy:          chat.ParsePolicy(cfg.Reconcile.Continuation),
		ContinuationGap: cfg.Reconcile.ContinuationGap,
		TerminalAuthors: cfg.Reconcile.TerminalAuthors,
		ThoughtAuthors:  cfg.Reconcile.ThoughtAuthors,
		HintTTL:         cfg.Reconcile.HintTTL,
		ReplayWindow:    cfg.Reconcile.ReplayWindow,
		ReplayCapacity:  cfg.Reconcile.ReplayCapacity,
		TransportOptions: []transport.Option{
			transport.WithReconnectDelay(cfg.Reconcile.ReconnectDelay),
			transport.WithDialTimeout(cfg.Backend.DialTimeout),
		},
	}
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// Start loads the history for the current key and connects. A failed dial
// is returned, but the transport keeps retrying in the background.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	key, gen := s.beginLoadLocked()
	s.publishLocked()
	id := s.identity
	s.mu.Unlock()

	s.loadHistory(ctx, key, gen)
	return s.connect(ctx, id)
}

func (s *Session) connect(ctx context.Context, id transport.Identity) error {
	err := s.mgr.Connect(ctx, id)
	if err == nil || errors.Is(err, transport.ErrSuperseded) {
		return nil
	}
	return fmt.Errorf("connecting %s: %w", id, err)
}

// Run applies inbound frames until ctx is done or the session is closed.
func (s *Session) Run(ctx context.Context) error {
	frames := s.mgr.Frames()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case f := <-frames:
			s.handleTransportFrame(f)
		}
	}
}

// Subscribe returns a channel of views, starting with the current one.
func (s *Session) Subscribe(ctx context.Context) <-chan View {
	ch, _ := s.bc.Subscribe(ctx)
	s.mu.Lock()
	s.publishLocked()
	s.mu.Unlock()
	return ch
}

// Snapshot returns the current view.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) handleTransportFrame(f transport.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Identity != s.identity {
		s.logger.Debug("dropping frame from previous session", "identity", f.Identity.String())
		return
	}
	s.applyLocked(f.Data)
}

// HandleFrame runs one raw frame through the pipeline synchronously.
func (s *Session) HandleFrame(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(data)
}

func (s *Session) applyLocked(data []byte) {
	if s.closed {
		return
	}

	switch ev := protocol.Classify(data).(type) {
	case nil:
		return
	case protocol.ParseError:
		s.logger.Warn("dropping malformed frame", "error", ev.Err)
		s.loading = false
		s.delegating = false
	case protocol.DelegationSignal:
		s.logger.Debug("delegation in progress", "author", ev.Author, "call", ev.Call, "response", ev.Response)
		s.loading = true
		s.delegating = true
	case protocol.CompletionSignal:
		s.logger.Debug("turn complete", "reason", ev.Reason)
		s.loading = false
		s.delegating = false
	case protocol.TextDelta:
		if !s.applyTextLocked(ev) {
			return
		}
	}
	s.publishLocked()
}

// applyTextLocked folds d into the sequence. It reports false when the
// frame was dropped without touching any state.
func (s *Session) applyTextLocked(d protocol.TextDelta) bool {
	if d.Thought && s.thought[d.Author] {
		s.logger.Debug("skipping thought", "author", d.Author)
		return false
	}
	if s.replay.CheckAndMark(dedupe.Key(d.EventID, d.Text)) {
		s.logger.Debug("skipping replayed frame", "event_id", d.EventID)
		return false
	}

	if hint, changed := s.tracker.Observe(d.Text); changed {
		s.logger.Info("agent transition", "role", string(hint.Role), "name", hint.Name)
	}
	if hint, ok := s.tracker.ActiveHint(); ok {
		s.hint = hint
	}

	delta := chat.Delta{
		Text:       d.Text,
		Author:     d.Author,
		References: citation.Extract(d.Text),
		At:         s.now(),
	}
	msgs, out := s.agg.Apply(s.msgs, delta)
	switch {
	case out.Kind == chat.Discarded:
		s.logger.Debug("discarded duplicate delta", "author", d.Author, "rule", out.Rule.String())
	case out.Mutated():
		s.msgs = msgs
		s.persistLocked()
	}

	s.delegating = false
	s.loading = !(s.terminal[d.Author] || d.Final())
	return true
}

// Submit appends a human message and sends it to the backend. The
// location set with SetLocation rides along on the first message only.
func (s *Session) Submit(ctx context.Context, text string, attachments []protocol.Attachment) error {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.loading:
		s.mu.Unlock()
		return ErrBusy
	case s.conn != transport.StateOpen:
		s.mu.Unlock()
		return ErrNotConnected
	}

	msg := chat.NewHumanMessage(text, len(attachments) > 0, s.now())
	s.msgs = append(slices.Clip(s.msgs), msg)
	var location string
	if s.location != "" && !s.locationSent {
		location = s.location
		s.locationSent = true
	}
	s.loading = true
	s.persistLocked()
	s.publishLocked()
	s.mu.Unlock()

	err := s.mgr.Send(ctx, protocol.NewTextMessage(text, attachments, location))
	if err == nil {
		return nil
	}

	s.mu.Lock()
	s.loading = false
	if location != "" {
		s.locationSent = false
	}
	s.publishLocked()
	s.mu.Unlock()

	if errors.Is(err, transport.ErrNotOpen) {
		return ErrNotConnected
	}
	return fmt.Errorf("sending message: %w", err)
}

// SetLocation records the location to attach to the first submission.
func (s *Session) SetLocation(location string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location = location
}

// Clear empties the conversation, forgets the cached snapshot and reconnects
// under a fresh session id. Durable room history is kept.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.sync != nil {
		s.sync.Clear(ctx, s.key())
	}
	s.resetTurnLocked()
	s.msgs = nil
	s.loadGen++
	s.location = ""

	sessionID := config.NewSessionID(s.now())
	if sessionID == s.identity.SessionID {
		sessionID += "_1"
	}
	id := transport.Identity{UserID: s.identity.UserID, SessionID: sessionID}
	s.identity = id
	s.conn = transport.StateIdle
	s.publishLocked()
	s.mu.Unlock()

	s.logger.Info("chat cleared", "session", sessionID)
	s.mgr.Close(ReasonCleared)
	return s.connect(ctx, id)
}

// SwitchIdentity moves the session to another (user, session) stream. The
// old connection is closed normally and history for the new key is loaded.
func (s *Session) SwitchIdentity(ctx context.Context, id transport.Identity) error {
	if id.UserID == "" || id.SessionID == "" {
		return fmt.Errorf("identity requires user and session ids")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	var (
		key  persist.Key
		gen  uint64
		load bool
	)
	if id != s.identity {
		oldKey := s.key()
		s.identity = id
		s.resetTurnLocked()
		s.conn = transport.StateIdle
		if s.key() != oldKey {
			key, gen = s.beginLoadLocked()
			load = true
		}
		s.publishLocked()
	}
	s.mu.Unlock()

	if load {
		s.loadHistory(ctx, key, gen)
	}
	return s.connect(ctx, id)
}

// SwitchRoom points persistence at another room and adopts its history.
// The stream is not reconnected.
func (s *Session) SwitchRoom(ctx context.Context, room string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if room == s.room {
		s.mu.Unlock()
		return nil
	}
	s.room = room
	key, gen := s.beginLoadLocked()
	s.publishLocked()
	s.mu.Unlock()

	s.loadHistory(ctx, key, gen)
	return nil
}

// Close shuts the stream down, flushes pending durable writes and closes
// every subscriber channel.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.mgr.Shutdown()
	s.tracker.Reset()
	s.replay.Close()
	s.bc.Close()

	if s.sync == nil {
		return nil
	}
	if err := s.sync.Flush(ctx); err != nil {
		return fmt.Errorf("flushing history: %w", err)
	}
	return nil
}

// resetTurnLocked drops per-stream state that must not leak into another
// stream.
func (s *Session) resetTurnLocked() {
	s.loading = false
	s.delegating = false
	s.hint = nil
	s.locationSent = false
	s.tracker.Reset()
	s.replay.Reset()
}

func (s *Session) handleState(state transport.State, id transport.Identity, _ error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || id != s.identity {
		return
	}
	s.conn = state
	if state == transport.StateOpen || state == transport.StateClosed {
		s.loading = false
		s.delegating = false
	}
	s.publishLocked()
}

func (s *Session) hintExpired(role transition.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.hint == nil || s.hint.Role != role {
		return
	}
	s.hint = nil
	s.publishLocked()
}

func (s *Session) key() persist.Key {
	return persist.Key{Room: s.room, Session: s.identity.SessionID}
}

// beginLoadLocked empties the sequence for the current key and returns the
// key and generation to hand to loadHistory.
func (s *Session) beginLoadLocked() (persist.Key, uint64) {
	s.msgs = nil
	s.loadGen++
	return s.key(), s.loadGen
}

// loadHistory reads stored history without holding the session lock, so
// frames and snapshots are not held up by a slow store. The result is
// dropped if the key changed while reading. Messages applied during the
// read stay after the loaded history.
func (s *Session) loadHistory(ctx context.Context, key persist.Key, gen uint64) {
	if s.sync == nil {
		return
	}
	msgs, src := s.sync.Load(ctx, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.loadGen {
		s.logger.Debug("discarding stale history", "key", key.CacheKey(), "count", len(msgs))
		return
	}
	s.logger.Debug("history loaded", "key", key.CacheKey(), "source", src.String(), "count", len(msgs))
	if len(msgs) == 0 {
		return
	}
	arrived := len(s.msgs)
	s.msgs = append(slices.Clip(msgs), s.msgs...)
	if arrived > 0 {
		s.persistLocked()
	}
	s.publishLocked()
}

func (s *Session) persistLocked() {
	if s.sync != nil {
		s.sync.Observe(s.key(), s.msgs)
	}
}

func (s *Session) publishLocked() {
	if s.closed {
		return
	}
	s.version++
	s.bc.Publish(s.viewLocked())
}

func (s *Session) viewLocked() View {
	v := View{
		Identity:   s.identity,
		Room:       s.room,
		Messages:   chat.Snapshot(s.msgs),
		Connection: s.conn,
		Loading:    s.loading,
		Delegating: s.delegating,
		Role:       s.tracker.Current(),
		Version:    s.version,
	}
	if s.hint != nil {
		h := *s.hint
		v.Hint = &h
	}
	return v
}
