// ABOUTME: Detects which triage agent role a piece of agent text announces
// ABOUTME: Tracker turns role changes into short-lived UI hints that expire on a timer

package transition

import (
	"regexp"
	"sync"
	"time"
)

// DefaultTTL is how long a hint stays active unless re-triggered.
const DefaultTTL = 5 * time.Second

// Role is a logical agent role in the triage pipeline.
type Role string

const (
	RoleNone          Role = ""
	RoleInterview     Role = "interview"
	RoleReasoning     Role = "reasoning"
	RoleExecution     Role = "execution"
	RoleDocumentation Role = "documentation"
)

type rolePattern struct {
	role        Role
	name        string
	description string
	pattern     *regexp.Regexp
}

// Patterns are tried in order; the first match wins.
var patterns = []rolePattern{
	{
		role:        RoleInterview,
		name:        "Interview Agent",
		description: "Mengumpulkan gejala dari pasien",
		pattern:     regexp.MustCompile(`(?i)interview\s+agent|wawancara|mengumpulkan\s+gejala`),
	},
	{
		role:        RoleReasoning,
		name:        "Reasoning Agent",
		description: "Menganalisis dan mengklasifikasikan triage level",
		pattern:     regexp.MustCompile(`(?i)reasoning\s+agent|penalaran|menganalisis|klasifikasi`),
	},
	{
		role:        RoleExecution,
		name:        "Execution Agent",
		description: "Mengambil tindakan berdasarkan triage level",
		pattern:     regexp.MustCompile(`(?i)execution\s+agent|eksekusi|mengambil\s+tindakan`),
	},
	{
		role:        RoleDocumentation,
		name:        "Documentation Agent",
		description: "Membuat dokumentasi medis",
		pattern:     regexp.MustCompile(`(?i)documentation\s+agent|dokumentasi|soap`),
	},
}

// Hint is the transient UI state for an announced role.
type Hint struct {
	Role        Role      `json:"role"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Detect returns the first role whose phrases appear in text.
func Detect(text string) (Role, bool) {
	for _, p := range patterns {
		if p.pattern.MatchString(text) {
			return p.role, true
		}
	}
	return RoleNone, false
}

func describe(role Role) (name, description string) {
	for _, p := range patterns {
		if p.role == role {
			return p.name, p.description
		}
	}
	return string(role), ""
}

// Tracker remembers the current role and owns the hint expiry timer.
// The zero value is not usable; call NewTracker.
type Tracker struct {
	mu       sync.Mutex
	ttl      time.Duration
	current  Role
	hint     *Hint
	timer    *time.Timer
	gen      uint64
	onExpire func(Role)
	now      func() time.Time
}

// NewTracker creates a Tracker. ttl <= 0 uses DefaultTTL. onExpire, if
// non-nil, is called from the timer goroutine when a hint expires.
func NewTracker(ttl time.Duration, onExpire func(Role)) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		ttl:      ttl,
		onExpire: onExpire,
		now:      time.Now,
	}
}

// Observe runs detection on text. When a role different from the current
// one is found, it becomes current and a new hint is returned. Seeing the
// current role again while its hint is active only restarts the timer.
func (t *Tracker) Observe(text string) (*Hint, bool) {
	role, ok := Detect(text)
	if !ok {
		return nil, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if role == t.current {
		if t.hint != nil {
			t.armLocked()
		}
		return nil, false
	}

	name, desc := describe(role)
	t.current = role
	t.hint = &Hint{Role: role, Name: name, Description: desc}
	t.armLocked()

	out := *t.hint
	return &out, true
}

// armLocked restarts the expiry timer. Must be called with mu held.
func (t *Tracker) armLocked() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.hint.ExpiresAt = t.now().Add(t.ttl)
	t.timer = time.AfterFunc(t.ttl, func() { t.expire(gen) })
}

func (t *Tracker) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.hint == nil {
		t.mu.Unlock()
		return
	}
	role := t.hint.Role
	t.hint = nil
	t.timer = nil
	cb := t.onExpire
	t.mu.Unlock()

	if cb != nil {
		cb(role)
	}
}

// Current returns the last detected role, which outlives its hint.
func (t *Tracker) Current() Role {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// ActiveHint returns a copy of the unexpired hint, if any.
func (t *Tracker) ActiveHint() (*Hint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hint == nil {
		return nil, false
	}
	out := *t.hint
	return &out, true
}

// Reset forgets the current role and cancels any pending expiry without
// calling onExpire.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	t.current = RoleNone
	t.hint = nil
}
