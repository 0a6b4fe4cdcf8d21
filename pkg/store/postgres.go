package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS boards (
		id text primary key,
		content bytea not null,
		updated_at timestamptz not null default now()
		)`,
	); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Load(ctx context.Context, boardID string) ([]byte, error) {
	var content []byte
	if err := p.pool.QueryRow(ctx, `SELECT content FROM boards WHERE id = $1`, boardID).Scan(&content); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	return content, nil
}

func (p *Postgres) Save(ctx context.Context, boardID string, content []byte) error {
	if _, err := p.pool.Exec(ctx,
		`INSERT INTO boards (id, content) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET content = excluded.content, updated_at = now()`,
		boardID, content,
	); err != nil {
		return fmt.Errorf("failed to persist board: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
