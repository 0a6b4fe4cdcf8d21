package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/astromechza/codeboard/pkg/protocol"
)

// WebsocketBackend talks to a relay over HTTP for snapshots and websockets for sync.
type WebsocketBackend struct {
	baseURL *url.URL
	client  *http.Client
	dialer  *websocket.Dialer
}

func NewWebsocketBackend(rawURL string) (*WebsocketBackend, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse relay url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported relay url scheme %q", u.Scheme)
	}
	return &WebsocketBackend{baseURL: u, client: http.DefaultClient, dialer: websocket.DefaultDialer}, nil
}

func (b *WebsocketBackend) Snapshot(ctx context.Context, boardID string) ([]byte, error) {
	if err := validBoardID(boardID); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL.JoinPath("boards", boardID, "latest").String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body from get: %w", err)
	}
	return raw, nil
}

func (b *WebsocketBackend) Dial(ctx context.Context, boardID, participantID string) (Conn, error) {
	if err := validBoardID(boardID); err != nil {
		return nil, err
	}
	u := b.baseURL.JoinPath("boards", boardID, "sync")
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("participant", participantID)
	u.RawQuery = q.Encode()

	conn, _, err := b.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	return protocol.NewWebsocketConn(conn), nil
}

func validBoardID(id string) error {
	if id == "" || strings.ContainsAny(id, "/?#") {
		return fmt.Errorf("invalid board id %q", id)
	}
	return nil
}
