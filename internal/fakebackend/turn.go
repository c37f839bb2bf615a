// ABOUTME: Scripted agent turns emitted by the fake backend
// ABOUTME: TriageTurn walks the interview, reasoning and execution agents the way the real pipeline streams

package fakebackend

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/triage-chat/internal/protocol"
	"github.com/2389/triage-chat/internal/transport"
)

// Agent names used by the scripted turn.
const (
	AgentOrchestrator = "medical_triage_agent"
	AgentInterview    = "interview_agent"
	AgentReasoning    = "reasoning_agent"
	AgentExecution    = "execution_agent"
)

// TextFrame builds a text frame with a fresh event id.
func TextFrame(author, text string) protocol.Frame {
	return protocol.Frame{
		Author: author,
		Text:   text,
		FullEvent: &protocol.FullEvent{
			ID:      uuid.New().String(),
			Author:  author,
			Partial: true,
			Content: &protocol.Content{Role: "model", Parts: []protocol.Part{{Text: text}}},
		},
	}
}

// ThoughtFrame builds a frame whose only part is a model thought.
func ThoughtFrame(author, text string) protocol.Frame {
	content := &protocol.Content{Role: "model", Parts: []protocol.Part{{Text: text, Thought: true}}}
	return protocol.Frame{
		Author:  author,
		Content: content,
		FullEvent: &protocol.FullEvent{
			ID:      uuid.New().String(),
			Author:  author,
			Content: content,
		},
	}
}

// CallFrame builds a delegation frame carrying a function call.
func CallFrame(author, function string, args map[string]any) protocol.Frame {
	call, _ := json.Marshal(map[string]any{"name": function, "args": args})
	return protocol.Frame{
		Author: author,
		FullEvent: &protocol.FullEvent{
			ID:      uuid.New().String(),
			Author:  author,
			Content: &protocol.Content{Role: "model", Parts: []protocol.Part{{FunctionCall: call}}},
		},
	}
}

// ResponseFrame builds a delegation frame carrying a function response.
func ResponseFrame(author, function string) protocol.Frame {
	resp, _ := json.Marshal(map[string]any{"name": function, "response": map[string]any{"status": "ok"}})
	return protocol.Frame{
		Author: author,
		FullEvent: &protocol.FullEvent{
			ID:      uuid.New().String(),
			Author:  author,
			Content: &protocol.Content{Role: "user", Parts: []protocol.Part{{FunctionResponse: resp}}},
		},
	}
}

// StopFrame builds a completion frame.
func StopFrame(author string) protocol.Frame {
	return protocol.Frame{
		Author: author,
		FullEvent: &protocol.FullEvent{
			ID:           uuid.New().String(),
			Author:       author,
			FinishReason: protocol.FinishStop,
		},
	}
}

// TriageTurn answers a submission with one pass through the triage agents.
// The interview agent repeats its last sentence once, the way a retrying
// model re-emits a fragment.
func TriageTurn(_ transport.Identity, msg protocol.Outbound) []protocol.Frame {
	complaint := strings.TrimSpace(msg.Content)
	if complaint == "" {
		complaint = "the attachment you sent"
	}

	return []protocol.Frame{
		CallFrame(AgentOrchestrator, "transfer_to_agent", map[string]any{"agent_name": AgentInterview}),
		TextFrame(AgentInterview, "Interview agent here. You reported: "+complaint+"."),
		TextFrame(AgentInterview, " How long have you had these symptoms?"),
		TextFrame(AgentInterview, "How long have you had these symptoms?"),
		ResponseFrame(AgentOrchestrator, "transfer_to_agent"),
		ThoughtFrame(AgentReasoning, "Weighing fever against the urgency criteria."),
		TextFrame(AgentReasoning, "Reasoning agent: classifying as urgent per triage_guidelines.pdf, Chunk #3, #4"),
		TextFrame(AgentReasoning, " and fever_protocol.pdf Chunk #7"),
		TextFrame(AgentExecution, "Execution agent: please visit the nearest emergency department."),
		StopFrame(AgentOrchestrator),
	}
}
