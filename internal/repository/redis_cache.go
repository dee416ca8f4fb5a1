package repository

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/clinic-queueboard/internal/errors"
	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
)

type redisCacheStore struct {
	cli *redis.Client
	l   logger.Logger
}

// NewRedisCacheStore keeps records without expiry; they are the last known good state.
func NewRedisCacheStore(cli *redis.Client, l logger.Logger) CacheStore {
	return &redisCacheStore{
		cli: cli,
		l:   l,
	}
}

func (r *redisCacheStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.cli.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, errors.ErrCacheMiss
	}
	if err != nil {
		r.l.Errorf(ctx, "redisCacheStore.Get: %v", err)
		return nil, err
	}

	return data, nil
}

func (r *redisCacheStore) Put(ctx context.Context, key string, value []byte) error {
	if err := r.cli.Set(ctx, key, value, 0).Err(); err != nil {
		r.l.Errorf(ctx, "redisCacheStore.Put: %v", err)
		return err
	}

	r.l.Debugw(ctx, "Cache record stored",
		"key", key,
		"bytes", len(value),
	)

	return nil
}

func (r *redisCacheStore) Remove(ctx context.Context, key string) error {
	if err := r.cli.Del(ctx, key).Err(); err != nil {
		r.l.Errorf(ctx, "redisCacheStore.Remove: %v", err)
		return err
	}

	return nil
}
