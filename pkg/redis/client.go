package redis

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/clinic-queueboard/config"
)

// NewClient builds a client for the board cache. Timeouts stay short: a slow
// cache must not hold up the reducer loop that writes through it.
func NewClient(cfg config.RedisConfig, clientName string) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	opts := &redis.Options{
		Addr:         cfg.Addr,
		ClientName:   clientName,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.OpTimeout > 0 {
		opts.ReadTimeout = cfg.OpTimeout
		opts.WriteTimeout = cfg.OpTimeout
	}

	return redis.NewClient(opts), nil
}
