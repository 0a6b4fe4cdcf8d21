package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite keeps one base64 encoded snapshot per board.
type SQLite struct {
	database *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS boards (
		id text not null primary key,
		content text not null
		)`,
	); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &SQLite{database: db}, nil
}

func (s *SQLite) Load(ctx context.Context, boardID string) ([]byte, error) {
	var rawContent string
	if err := s.database.QueryRowContext(ctx, `SELECT content FROM boards WHERE id = ?`, boardID).Scan(&rawContent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(rawContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode: %w", err)
	}
	return raw, nil
}

func (s *SQLite) Save(ctx context.Context, boardID string, content []byte) error {
	if _, err := s.database.ExecContext(ctx,
		`INSERT INTO boards (id, content) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content`,
		boardID, base64.StdEncoding.EncodeToString(content),
	); err != nil {
		return fmt.Errorf("failed to persist board: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.database.Close()
}
