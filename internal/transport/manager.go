// ABOUTME: Owns the single websocket connection for a (user, session) identity
// ABOUTME: Idempotent connect, clean close on identity switch, single-shot reconnect after abnormal close

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// ErrNotOpen is returned by Send when there is no open connection.
var ErrNotOpen = errors.New("connection not open")

// ErrSuperseded is returned by Connect when a newer Connect or Close
// replaced the attempt before it completed.
var ErrSuperseded = errors.New("connect superseded")

// Close reasons sent with StatusNormalClosure.
const (
	ReasonSwitching = "switching session"
	ReasonShutdown  = "client shutdown"
)

const (
	defaultReconnectDelay = 3 * time.Second
	defaultDialTimeout    = 10 * time.Second
	defaultFrameBuffer    = 256
	defaultReadLimit      = 4 << 20
)

// Identity selects the backend session stream.
type Identity struct {
	UserID    string
	SessionID string
}

func (id Identity) String() string {
	return id.UserID + "/" + id.SessionID
}

// State is the connection lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Frame is one raw inbound message.
type Frame struct {
	Identity   Identity
	Data       []byte
	ReceivedAt time.Time
}

// StateHandler observes state changes. It is called without the manager's
// lock held, possibly from the reader or reconnect goroutines.
type StateHandler func(state State, id Identity, err error)

// Option configures a Manager.
type Option func(*Manager)

// WithReconnectDelay sets the delay before the reconnect that follows an
// abnormal close.
func WithReconnectDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.reconnectDelay = d
		}
	}
}

// WithDialTimeout bounds reconnect dials, which have no caller context.
func WithDialTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.dialTimeout = d
		}
	}
}

// WithHeader adds request headers to every dial.
func WithHeader(h http.Header) Option {
	return func(m *Manager) { m.header = h.Clone() }
}

// WithStateHandler registers a state change observer.
func WithStateHandler(fn StateHandler) Option {
	return func(m *Manager) { m.onState = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithFrameBuffer sets the capacity of the inbound frame channel.
func WithFrameBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.frameBuffer = n
		}
	}
}

// Manager maintains at most one live connection. Every Connect and Close
// bumps a generation counter; goroutines belonging to an older generation
// (readers, in-flight dials, reconnect timers) notice and stand down.
type Manager struct {
	baseURL        string
	reconnectDelay time.Duration
	dialTimeout    time.Duration
	header         http.Header
	frameBuffer    int
	onState        StateHandler
	logger         *slog.Logger

	frames chan Frame
	done   chan struct{}

	mu         sync.Mutex
	state      State
	identity   Identity
	conn       *websocket.Conn
	gen        uint64
	cancelDial context.CancelFunc
	reconnect  *time.Timer
	shutdown   bool
}

// NewManager creates a Manager for the backend at baseURL (ws, wss, http or
// https). No connection is made until Connect.
func NewManager(baseURL string, opts ...Option) (*Manager, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing backend url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported backend url scheme %q", u.Scheme)
	}

	m := &Manager{
		baseURL:        strings.TrimRight(u.String(), "/"),
		reconnectDelay: defaultReconnectDelay,
		dialTimeout:    defaultDialTimeout,
		frameBuffer:    defaultFrameBuffer,
		logger:         slog.Default(),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "transport")
	m.frames = make(chan Frame, m.frameBuffer)
	return m, nil
}

// Endpoint returns the websocket URL for id.
func (m *Manager) Endpoint(id Identity) string {
	return m.baseURL + "/ws/" + url.PathEscape(id.UserID) + "/" + url.PathEscape(id.SessionID)
}

// Frames delivers inbound frames in arrival order. It is never closed.
func (m *Manager) Frames() <-chan Frame {
	return m.frames
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens the connection for id and blocks until it is open or the
// dial fails. It is a no-op while connecting or open for the same id. A
// different id first closes the current connection normally with
// ReasonSwitching. A failed dial schedules a reconnect.
func (m *Manager) Connect(ctx context.Context, id Identity) error {
	return m.connect(ctx, id, true)
}

// connect dials id. When retry is false a failed dial leaves the manager
// closed; the reconnect timer uses this so one abnormal close yields at
// most one reconnect attempt.
func (m *Manager) connect(ctx context.Context, id Identity, retry bool) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return ErrNotOpen
	}
	if (m.state == StateConnecting || m.state == StateOpen) && m.identity == id {
		m.mu.Unlock()
		return nil
	}

	var notes []stateNote
	if m.state == StateConnecting || m.state == StateOpen {
		m.logger.Info("switching session", "from", m.identity.String(), "to", id.String())
		notes = append(notes, m.teardownLocked(ReasonSwitching)...)
	}
	m.stopReconnectLocked()

	m.gen++
	gen := m.gen
	m.identity = id
	m.state = StateConnecting
	dialCtx, cancel := context.WithCancel(ctx)
	m.cancelDial = cancel
	notes = append(notes, stateNote{StateConnecting, id, nil})
	m.mu.Unlock()
	m.notify(notes...)

	conn, _, err := websocket.Dial(dialCtx, m.Endpoint(id), &websocket.DialOptions{HTTPHeader: m.header})
	cancel()

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, ReasonSwitching)
		}
		return ErrSuperseded
	}
	m.cancelDial = nil
	if err != nil {
		m.state = StateClosed
		if retry {
			m.scheduleReconnectLocked(gen, id)
		}
		m.mu.Unlock()
		m.logger.Warn("dial failed", "identity", id.String(), "error", err, "retry", retry)
		m.notify(stateNote{StateClosed, id, err})
		return fmt.Errorf("dialing %s: %w", id, err)
	}

	conn.SetReadLimit(defaultReadLimit)
	m.conn = conn
	m.state = StateOpen
	m.mu.Unlock()

	m.logger.Info("connected", "identity", id.String())
	m.notify(stateNote{StateOpen, id, nil})
	go m.readLoop(conn, gen, id)
	return nil
}

// Send writes v as JSON on the open connection. There is no queueing.
func (m *Manager) Send(ctx context.Context, v any) error {
	m.mu.Lock()
	if m.state != StateOpen || m.conn == nil {
		m.mu.Unlock()
		return ErrNotOpen
	}
	conn := m.conn
	m.mu.Unlock()

	if err := wsjson.Write(ctx, conn, v); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// Close closes the connection normally with reason and cancels any pending
// reconnect. The manager can be connected again afterwards.
func (m *Manager) Close(reason string) {
	m.mu.Lock()
	m.stopReconnectLocked()
	notes := m.teardownLocked(reason)
	m.gen++
	m.mu.Unlock()
	m.notify(notes...)
}

// Shutdown closes the connection and permanently disables the manager.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.shutdown = true
	close(m.done)
	m.mu.Unlock()
	m.Close(ReasonShutdown)
}

type stateNote struct {
	state State
	id    Identity
	err   error
}

func (m *Manager) notify(notes ...stateNote) {
	if m.onState == nil {
		return
	}
	for _, n := range notes {
		m.onState(n.state, n.id, n.err)
	}
}

// teardownLocked closes any live or pending connection. Must be called
// with mu held. The generation is bumped by the caller.
func (m *Manager) teardownLocked(reason string) []stateNote {
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if m.state != StateConnecting && m.state != StateOpen {
		return nil
	}
	id := m.identity
	notes := []stateNote{{StateClosing, id, nil}}
	if m.conn != nil {
		conn := m.conn
		m.conn = nil
		// Close blocks for the close handshake; keep it off the lock.
		go func() {
			if err := conn.Close(websocket.StatusNormalClosure, reason); err != nil {
				m.logger.Debug("close handshake", "identity", id.String(), "error", err)
			}
		}()
	}
	m.state = StateClosed
	return append(notes, stateNote{StateClosed, id, nil})
}

func (m *Manager) stopReconnectLocked() {
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
}

// scheduleReconnectLocked arms the single reconnect for generation gen.
// Must be called with mu held.
func (m *Manager) scheduleReconnectLocked(gen uint64, id Identity) {
	m.stopReconnectLocked()
	m.logger.Info("scheduling reconnect", "identity", id.String(), "delay", m.reconnectDelay)
	m.reconnect = time.AfterFunc(m.reconnectDelay, func() {
		m.mu.Lock()
		if gen != m.gen || m.state != StateClosed || m.shutdown {
			m.mu.Unlock()
			return
		}
		m.reconnect = nil
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.dialTimeout)
		defer cancel()
		if err := m.connect(ctx, id, false); err != nil && !errors.Is(err, ErrSuperseded) {
			m.logger.Warn("reconnect failed, giving up", "identity", id.String(), "error", err)
		}
	})
}

func (m *Manager) readLoop(conn *websocket.Conn, gen uint64, id Identity) {
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			m.handleReadError(gen, id, err)
			return
		}
		select {
		case m.frames <- Frame{Identity: id, Data: data, ReceivedAt: time.Now()}:
		case <-m.done:
			return
		}
	}
}

func (m *Manager) handleReadError(gen uint64, id Identity, err error) {
	m.mu.Lock()
	if gen != m.gen {
		// closed on purpose by Close or an identity switch
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = StateClosed
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure {
		m.mu.Unlock()
		m.logger.Info("connection closed", "identity", id.String())
		m.notify(stateNote{StateClosed, id, nil})
		return
	}
	m.scheduleReconnectLocked(gen, id)
	m.mu.Unlock()

	m.logger.Warn("connection lost", "identity", id.String(), "status", int(status), "error", err)
	m.notify(stateNote{StateClosed, id, err})
}
