// ABOUTME: RoomStore backed by the backend's chat-room REST endpoints
// ABOUTME: GET/POST /api/chat-rooms/{room}/messages and POST .../messages/batch

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/triage-chat/internal/chat"
)

// HTTPStore talks to the chat-room API served next to the agent websocket.
type HTTPStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPStore creates a store for the API at baseURL. apiKey, if set, is
// sent as a bearer token.
func NewHTTPStore(baseURL, apiKey string, client *http.Client) (*HTTPStore, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing store url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return nil, fmt.Errorf("unsupported store url scheme %q", u.Scheme)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(u.String(), "/"),
		apiKey:  apiKey,
		client:  client,
	}, nil
}

func (s *HTTPStore) messagesURL(room string) string {
	return s.baseURL + "/api/chat-rooms/" + url.PathEscape(room) + "/messages"
}

// Messages implements RoomStore.
func (s *HTTPStore) Messages(ctx context.Context, room string) ([]chat.Message, error) {
	var msgs []chat.Message
	if err := s.do(ctx, http.MethodGet, s.messagesURL(room), nil, &msgs); err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return msgs, nil
}

// Append implements RoomStore.
func (s *HTTPStore) Append(ctx context.Context, room string, msg chat.Message) error {
	return s.do(ctx, http.MethodPost, s.messagesURL(room), msg, nil)
}

// Replace implements RoomStore.
func (s *HTTPStore) Replace(ctx context.Context, room string, msgs []chat.Message) error {
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return s.do(ctx, http.MethodPost, s.messagesURL(room)+"/batch", msgs, nil)
}

// Close implements RoomStore.
func (s *HTTPStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *HTTPStore) do(ctx context.Context, method, target string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, target, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
