// ABOUTME: Tests for HTML and Markdown transcript export
// ABOUTME: Checks markdown rendering, escaping, labels and reference lists

package transcript

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/triage-chat/internal/chat"
)

func sample() []chat.Message {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	return []chat.Message{
		{ID: "m1", Type: chat.TypeHuman, Content: "I have a **fever** <script>alert(1)</script>", Timestamp: at},
		{
			ID:         "m2",
			Type:       chat.TypeAgent,
			Author:     "reasoning_agent",
			Content:    "Urgent:\n\n- fever\n- headache",
			References: []chat.Reference{{Filename: "triage.pdf", Chunks: []int{3, 4}}},
			Timestamp:  at.Add(time.Minute),
		},
		{ID: "m3", Type: chat.TypeAgent, Content: "Done.", Timestamp: at.Add(2 * time.Minute)},
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "Room <1>", sample()))
	out := buf.String()

	assert.Contains(t, out, "<title>Room &lt;1&gt;</title>")
	assert.Contains(t, out, "<strong>fever</strong>")
	assert.NotContains(t, out, "<script>alert(1)</script>", "raw HTML in messages must not pass through")
	assert.Contains(t, out, "<li>fever</li>")
	assert.Contains(t, out, "triage.pdf: chunk #3, #4")
	assert.Contains(t, out, `id="m2"`)
	assert.Contains(t, out, "<strong>You</strong>")
	assert.Contains(t, out, "<strong>reasoning_agent</strong>")
	assert.Contains(t, out, "<strong>Agent</strong>")
	assert.Contains(t, out, "2026-03-01 09:31:00")
}

func TestRender_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "Empty", nil))
	assert.Contains(t, buf.String(), "0 messages")
}

func TestMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Markdown(&buf, "Room 1", sample()))
	out := buf.String()

	assert.Contains(t, out, "# Room 1\n")
	assert.Contains(t, out, "## You (2026-03-01 09:30:00)")
	assert.Contains(t, out, "## reasoning_agent (2026-03-01 09:31:00)")
	assert.Contains(t, out, "- triage.pdf: chunk #3, #4\n")
}
