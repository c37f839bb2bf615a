// ABOUTME: Conversation data model shared by the reconciliation pipeline and persistence tiers
// ABOUTME: Defines Message, Reference, Delta and snapshot helpers

package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageType distinguishes user turns from agent turns.
type MessageType string

const (
	TypeHuman MessageType = "human"
	TypeAgent MessageType = "agent"
)

// AttachmentPlaceholder is stored as the content of a human message that
// carried attachments but no text.
const AttachmentPlaceholder = "Mengirim lampiran"

// Message is one conversational turn. Content only ever grows once the
// message exists; References only gain filenames or chunks.
type Message struct {
	ID         string      `json:"id"`
	Type       MessageType `json:"type"`
	Author     string      `json:"author,omitempty"` // empty means unattributed/orchestrator
	Content    string      `json:"content"`
	References []Reference `json:"references,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	UpdatedAt  time.Time   `json:"updatedAt,omitempty"`
}

// IsAgent reports whether the message was produced by an agent.
func (m Message) IsAgent() bool {
	return m.Type == TypeAgent
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	out.References = cloneReferences(m.References)
	return out
}

// Delta is one incremental text fragment from an agent turn, with the
// references already extracted from its text.
type Delta struct {
	Text       string
	Author     string
	References []Reference
	At         time.Time
}

// NewHumanMessage builds a user message. An empty text with attachments is
// stored as AttachmentPlaceholder.
func NewHumanMessage(text string, hasAttachments bool, now time.Time) Message {
	content := text
	if strings.TrimSpace(content) == "" && hasAttachments {
		content = AttachmentPlaceholder
	}
	return Message{
		ID:        uuid.New().String(),
		Type:      TypeHuman,
		Content:   content,
		Timestamp: now,
		UpdatedAt: now,
	}
}

// Snapshot returns a deep copy of msgs that is safe to hand to another
// goroutine while the original keeps being extended.
func Snapshot(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
