// Package store persists board snapshots for the relay.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("board not found")

type Store interface {
	Load(ctx context.Context, boardID string) ([]byte, error)
	Save(ctx context.Context, boardID string, content []byte) error
	Close() error
}

// Open selects an implementation from the url scheme: sqlite://path, postgres://..., redis://...
// or memory://.
func Open(ctx context.Context, rawURL string) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse store url: %w", err)
	}
	switch u.Scheme {
	case "sqlite", "sqlite3":
		return OpenSQLite(ctx, strings.TrimPrefix(rawURL, u.Scheme+"://"))
	case "postgres", "postgresql":
		return OpenPostgres(ctx, rawURL)
	case "redis", "rediss":
		return OpenRedis(ctx, rawURL)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported store scheme %q", u.Scheme)
	}
}

type Memory struct {
	mu     sync.Mutex
	boards map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{boards: make(map[string][]byte)}
}

func (m *Memory) Load(_ context.Context, boardID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.boards[boardID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

func (m *Memory) Save(_ context.Context, boardID string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boards[boardID] = append([]byte(nil), content...)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
