package repository

import (
	"context"
	"fmt"

	"github.com/vogiaan1904/clinic-queueboard/internal/errors"
	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
)

type bestEffortCache struct {
	store CacheStore
	l     logger.Logger
}

// NewBestEffortCache never surfaces storage failures. Reads fail as a cache miss,
// writes and removals are logged and dropped. A nil store behaves as always empty.
func NewBestEffortCache(store CacheStore, l logger.Logger) CacheStore {
	return &bestEffortCache{store: store, l: l}
}

func (c *bestEffortCache) Get(ctx context.Context, key string) (data []byte, err error) {
	if c.store == nil {
		return nil, errors.ErrCacheMiss
	}
	defer c.recoverFailure(ctx, "Get", &err)

	data, err = c.store.Get(ctx, key)
	if err != nil {
		if err != errors.ErrCacheMiss {
			c.l.Warnf(ctx, "repository.bestEffortCache.Get: %s: %v", key, err)
		}
		return nil, errors.ErrCacheMiss
	}
	return data, nil
}

func (c *bestEffortCache) Put(ctx context.Context, key string, value []byte) (err error) {
	if c.store == nil {
		return nil
	}
	defer c.recoverFailure(ctx, "Put", &err)

	if err := c.store.Put(ctx, key, value); err != nil {
		c.l.Warnf(ctx, "repository.bestEffortCache.Put: %s: %v", key, err)
	}
	return nil
}

func (c *bestEffortCache) Remove(ctx context.Context, key string) (err error) {
	if c.store == nil {
		return nil
	}
	defer c.recoverFailure(ctx, "Remove", &err)

	if err := c.store.Remove(ctx, key); err != nil {
		c.l.Warnf(ctx, "repository.bestEffortCache.Remove: %s: %v", key, err)
	}
	return nil
}

// recoverFailure turns a panicking backend into a miss for reads and a no-op for writes.
func (c *bestEffortCache) recoverFailure(ctx context.Context, op string, err *error) {
	r := recover()
	if r == nil {
		return
	}
	c.l.Errorf(ctx, "repository.bestEffortCache.%s: %v", op, fmt.Sprint(r))
	if op == "Get" {
		*err = errors.ErrCacheMiss
		return
	}
	*err = nil
}
