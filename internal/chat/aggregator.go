// ABOUTME: Folds streamed agent text deltas into the ordered message sequence
// ABOUTME: Applies authorship run boundaries and duplicate suppression before appending

package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Policy decides when a delta continues the trailing agent message.
type Policy int

const (
	// PolicyAuthor continues only when the trailing agent message has the
	// same author as the delta.
	PolicyAuthor Policy = iota
	// PolicyLenient continues any trailing agent message regardless of author.
	PolicyLenient
)

// ParsePolicy maps a config value to a Policy. Unknown values fall back to
// PolicyAuthor.
func ParsePolicy(s string) Policy {
	if strings.EqualFold(s, "lenient") {
		return PolicyLenient
	}
	return PolicyAuthor
}

// Outcome describes what Apply did with a delta.
type Outcome struct {
	Kind OutcomeKind
	Rule Rule // set when Kind == Discarded
}

// OutcomeKind enumerates the results of Apply.
type OutcomeKind int

const (
	Created OutcomeKind = iota
	Appended
	Discarded
	Skipped
)

func (k OutcomeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Appended:
		return "appended"
	case Discarded:
		return "discarded"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Mutated reports whether the message sequence changed.
func (o Outcome) Mutated() bool {
	return o.Kind == Created || o.Kind == Appended
}

// Aggregator merges deltas into a message sequence. The zero value uses
// PolicyAuthor, no continuation gap, time.Now and random UUIDs.
type Aggregator struct {
	Policy Policy
	// MaxGap, when positive, stops a run from continuing once the trailing
	// message has not been extended for longer than MaxGap.
	MaxGap time.Duration
	Now    func() time.Time
	NewID  func() string
}

// Apply folds d into msgs and returns the resulting sequence. The returned
// slice may share its prefix with msgs, but the trailing message is never
// modified in place, so earlier snapshots stay valid.
func (a *Aggregator) Apply(msgs []Message, d Delta) ([]Message, Outcome) {
	at := d.At
	if at.IsZero() {
		at = a.now()
	}

	if a.continues(msgs, d, at) {
		last := msgs[len(msgs)-1]
		if drop, rule := ShouldDiscard(last.Content, d.Text); drop {
			return msgs, Outcome{Kind: Discarded, Rule: rule}
		}

		updated := last.Clone()
		updated.Content += d.Text
		updated.References = MergeReferences(updated.References, d.References)
		updated.UpdatedAt = at

		out := make([]Message, len(msgs))
		copy(out, msgs)
		out[len(out)-1] = updated
		return out, Outcome{Kind: Appended}
	}

	if strings.TrimSpace(d.Text) == "" {
		return msgs, Outcome{Kind: Skipped}
	}

	msg := Message{
		ID:         a.newID(),
		Type:       TypeAgent,
		Author:     d.Author,
		Content:    d.Text,
		References: MergeReferences(nil, d.References),
		Timestamp:  at,
		UpdatedAt:  at,
	}
	out := make([]Message, len(msgs), len(msgs)+1)
	copy(out, msgs)
	return append(out, msg), Outcome{Kind: Created}
}

// continues reports whether d extends the open run at the end of msgs.
func (a *Aggregator) continues(msgs []Message, d Delta, at time.Time) bool {
	if len(msgs) == 0 {
		return false
	}
	last := msgs[len(msgs)-1]
	if !last.IsAgent() {
		return false
	}
	if a.Policy == PolicyAuthor && last.Author != d.Author {
		return false
	}
	if a.MaxGap > 0 {
		ref := last.UpdatedAt
		if ref.IsZero() {
			ref = last.Timestamp
		}
		if at.Sub(ref) > a.MaxGap {
			return false
		}
	}
	return true
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}

func (a *Aggregator) newID() string {
	if a.NewID != nil {
		return a.NewID()
	}
	return uuid.New().String()
}
