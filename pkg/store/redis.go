package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "codeboard:board:"

type Redis struct {
	rdb *redis.Client
}

func OpenRedis(ctx context.Context, rawURL string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

func (r *Redis) Load(ctx context.Context, boardID string) ([]byte, error) {
	raw, err := r.rdb.Get(ctx, redisKeyPrefix+boardID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get board: %w", err)
	}
	return raw, nil
}

func (r *Redis) Save(ctx context.Context, boardID string, content []byte) error {
	if err := r.rdb.Set(ctx, redisKeyPrefix+boardID, content, 0).Err(); err != nil {
		return fmt.Errorf("failed to persist board: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
