// ABOUTME: Tests for the fake backend websocket and chat-room endpoints
// ABOUTME: Drives it with a raw websocket client and the HTTP room store

package fakebackend

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/triage-chat/internal/chat"
	"github.com/2389/triage-chat/internal/protocol"
	"github.com/2389/triage-chat/internal/store"
	"github.com/2389/triage-chat/internal/transport"
)

func startServer(t *testing.T, opts ...Option) (*Server, string) {
	t.Helper()
	fb := New(opts...)
	srv := httptest.NewServer(fb.Handler())
	t.Cleanup(func() {
		fb.Close()
		srv.Close()
	})
	return fb, srv.URL
}

func dial(t *testing.T, base string, id transport.Identity) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(base, "http") + "/ws/" + id.UserID + "/" + id.SessionID
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func readFrames(t *testing.T, conn *websocket.Conn, n int) []protocol.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	events := make([]protocol.Event, 0, n)
	for range n {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		events = append(events, protocol.Classify(data))
	}
	return events
}

func TestServer_TriageTurn(t *testing.T) {
	fb, base := startServer(t)
	id := transport.Identity{UserID: "patient", SessionID: "session_1"}
	conn := dial(t, base, id)

	require.Eventually(t, func() bool { return fb.Connected(id) }, time.Second, 5*time.Millisecond)
	out := protocol.NewTextMessage("fever since yesterday", nil, "Jakarta")
	require.NoError(t, wsjson.Write(context.Background(), conn, out))

	script := TriageTurn(id, out)
	events := readFrames(t, conn, len(script))

	assert.IsType(t, protocol.DelegationSignal{}, events[0])
	first, ok := events[1].(protocol.TextDelta)
	require.True(t, ok)
	assert.Equal(t, AgentInterview, first.Author)
	assert.Contains(t, first.Text, "fever since yesterday")
	assert.NotEmpty(t, first.EventID)

	thought, ok := events[5].(protocol.TextDelta)
	require.True(t, ok)
	assert.True(t, thought.Thought)
	assert.Equal(t, AgentReasoning, thought.Author)

	assert.Equal(t, protocol.CompletionSignal{Reason: protocol.FinishStop}, events[len(events)-1])

	received := fb.Received()
	require.Len(t, received, 1)
	assert.Equal(t, id, received[0].Identity)
	assert.Equal(t, "Jakarta", received[0].Message.Location)
	assert.Equal(t, 1, fb.Connects(id))
}

func TestServer_PushAndDrop(t *testing.T) {
	fb, base := startServer(t)
	id := transport.Identity{UserID: "u", SessionID: "s"}
	conn := dial(t, base, id)
	require.Eventually(t, func() bool { return fb.Connected(id) }, time.Second, 5*time.Millisecond)

	require.NoError(t, fb.Push(context.Background(), id, TextFrame("triage", "hello")))
	events := readFrames(t, conn, 1)
	assert.Equal(t, "hello", events[0].(protocol.TextDelta).Text)

	require.NoError(t, fb.Drop(id))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.NotEqual(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))

	assert.Eventually(t, func() bool { return !fb.Connected(id) }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, fb.Push(context.Background(), id, TextFrame("triage", "late")), ErrNoClient)
}

func TestServer_ReplayOnConnect(t *testing.T) {
	fb, base := startServer(t, WithReplayOnConnect(true), WithTurn(func(transport.Identity, protocol.Outbound) []protocol.Frame {
		return []protocol.Frame{TextFrame("triage", "one"), StopFrame("triage")}
	}))
	id := transport.Identity{UserID: "u", SessionID: "s"}

	conn := dial(t, base, id)
	require.NoError(t, wsjson.Write(context.Background(), conn, protocol.NewTextMessage("hi", nil, "")))
	firstRun := readFrames(t, conn, 2)
	require.NoError(t, fb.Drop(id))

	again := dial(t, base, id)
	replayed := readFrames(t, again, 2)
	assert.Equal(t, firstRun[0].(protocol.TextDelta).EventID, replayed[0].(protocol.TextDelta).EventID)
	assert.Equal(t, 2, fb.Connects(id))
}

func TestServer_ChatRoomEndpoints(t *testing.T) {
	fb, base := startServer(t)
	rooms, err := store.NewHTTPStore(base, "", nil)
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	msgs, err := rooms.Messages(ctx, "room-1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, rooms.Append(ctx, "room-1", chat.Message{ID: "m1", Type: chat.TypeHuman, Content: "hi", Timestamp: now}))
	require.NoError(t, rooms.Replace(ctx, "room-1", []chat.Message{
		{ID: "m1", Type: chat.TypeHuman, Content: "hi", Timestamp: now},
		{ID: "m2", Type: chat.TypeAgent, Author: AgentInterview, Content: "hello", Timestamp: now},
	}))

	msgs, err = rooms.Messages(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, AgentInterview, msgs[1].Author)

	direct, err := fb.Rooms().Messages(ctx, "room-1")
	require.NoError(t, err)
	assert.Len(t, direct, 2)
}
