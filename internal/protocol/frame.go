// ABOUTME: Inbound wire frames pushed by the agent backend over the session websocket
// ABOUTME: Classify decodes one frame into a closed set of event kinds

package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Finish reasons that mark an agent turn as complete.
const (
	FinishStop      = "STOP"
	FinishMaxTokens = "MAX_TOKENS"
)

// Frame is one inbound payload. Every field is optional.
type Frame struct {
	Type      string     `json:"type,omitempty"`
	Author    string     `json:"author,omitempty"`
	Text      string     `json:"text,omitempty"`
	Content   *Content   `json:"content,omitempty"`
	FullEvent *FullEvent `json:"full_event,omitempty"`
}

// Content holds the parts of a model or tool message.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// Part is one element of Content. Only the presence of FunctionCall and
// FunctionResponse matters to the client, so they stay raw.
type Part struct {
	Text             string          `json:"text,omitempty"`
	Thought          bool            `json:"thought,omitempty"`
	FunctionCall     json.RawMessage `json:"functionCall,omitempty"`
	FunctionResponse json.RawMessage `json:"functionResponse,omitempty"`
}

// FullEvent is the backend's structured event, serialized with camelCase
// aliases.
type FullEvent struct {
	ID           string   `json:"id,omitempty"`
	InvocationID string   `json:"invocationId,omitempty"`
	Author       string   `json:"author,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
	Partial      bool     `json:"partial,omitempty"`
	Content      *Content `json:"content,omitempty"`
}

// Event is the result of classifying a frame. It is one of TextDelta,
// DelegationSignal, CompletionSignal or ParseError.
type Event interface {
	event()
}

// TextDelta carries agent-visible text.
type TextDelta struct {
	Text         string
	Author       string
	Thought      bool
	FinishReason string
	EventID      string
}

// Final reports whether the delta also ends the turn.
func (d TextDelta) Final() bool {
	return isTerminal(d.FinishReason)
}

// DelegationSignal reports a tool or sub-agent invocation in progress.
type DelegationSignal struct {
	Call     bool
	Response bool
	Author   string
}

// CompletionSignal reports that the turn finished without further text.
type CompletionSignal struct {
	Reason string
}

// ParseError reports a payload that could not be decoded.
type ParseError struct {
	Err error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("decode frame: %v", e.Err)
}

func (e ParseError) Unwrap() error { return e.Err }

func (TextDelta) event()        {}
func (DelegationSignal) event() {}
func (CompletionSignal) event() {}
func (ParseError) event()       {}

// Classify decodes data and maps it to an Event. It returns nil for frames
// that carry nothing the client acts on.
func Classify(data []byte) Event {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return ParseError{Err: err}
	}
	return f.Classify()
}

// Classify maps an already decoded frame to an Event. Text always wins over
// delegation, which wins over completion.
func (f *Frame) Classify() Event {
	if text := f.TextContent(); text != "" {
		return TextDelta{
			Text:         text,
			Author:       f.AuthorName(),
			Thought:      f.hasPart(func(p Part) bool { return p.Thought }),
			FinishReason: f.finishReason(),
			EventID:      f.eventID(),
		}
	}

	call := f.hasPart(func(p Part) bool { return len(p.FunctionCall) > 0 && string(p.FunctionCall) != "null" })
	resp := f.hasPart(func(p Part) bool { return len(p.FunctionResponse) > 0 && string(p.FunctionResponse) != "null" })
	if call || resp {
		return DelegationSignal{Call: call, Response: resp, Author: f.AuthorName()}
	}

	if reason := f.finishReason(); isTerminal(reason) {
		return CompletionSignal{Reason: reason}
	}
	return nil
}

// TextContent returns the direct text, or the concatenated text parts of
// the frame's content when no direct text is present.
func (f *Frame) TextContent() string {
	if f.Text != "" {
		return f.Text
	}
	if f.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range f.Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// AuthorName returns the frame author, falling back to the full event's.
func (f *Frame) AuthorName() string {
	if f.Author != "" {
		return f.Author
	}
	if f.FullEvent != nil {
		return f.FullEvent.Author
	}
	return ""
}

func (f *Frame) finishReason() string {
	if f.FullEvent == nil {
		return ""
	}
	return f.FullEvent.FinishReason
}

func (f *Frame) eventID() string {
	if f.FullEvent == nil {
		return ""
	}
	return f.FullEvent.ID
}

// hasPart reports whether any part of the frame content or full event
// content satisfies match.
func (f *Frame) hasPart(match func(Part) bool) bool {
	for _, c := range []*Content{f.Content, f.fullContent()} {
		if c == nil {
			continue
		}
		for _, p := range c.Parts {
			if match(p) {
				return true
			}
		}
	}
	return false
}

func (f *Frame) fullContent() *Content {
	if f.FullEvent == nil {
		return nil
	}
	return f.FullEvent.Content
}

func isTerminal(reason string) bool {
	return reason == FinishStop || reason == FinishMaxTokens
}
