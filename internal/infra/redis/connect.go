package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/clinic-queueboard/config"
	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
	pkgRedis "github.com/vogiaan1904/clinic-queueboard/pkg/redis"
)

// Connect dials and pings Redis. clientName shows up in CLIENT LIST.
func Connect(ctx context.Context, cfg config.RedisConfig, clientName string, l logger.Logger) (*redis.Client, error) {
	cli, err := pkgRedis.NewClient(cfg, clientName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	l.Infof(ctx, "infra.redis.Connect: connected to %s db %d", cfg.Addr, cfg.DB)

	return cli, nil
}

func Disconnect(ctx context.Context, cli *redis.Client, l logger.Logger) {
	if cli == nil {
		return
	}

	if err := cli.Close(); err != nil {
		l.Warnf(ctx, "Closing Redis connection: %v", err)
		return
	}

	l.Info(ctx, "Connection to Redis closed.")
}
