package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vogiaan1904/clinic-queueboard/config"
	grpcSvc "github.com/vogiaan1904/clinic-queueboard/internal/delivery/grpc"
	"github.com/vogiaan1904/clinic-queueboard/internal/infra/redis"
	"github.com/vogiaan1904/clinic-queueboard/internal/repository"
	pkgGrpc "github.com/vogiaan1904/clinic-queueboard/pkg/grpc"
	pkgLog "github.com/vogiaan1904/clinic-queueboard/pkg/logger"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const usage = `Usage: boardctl <command> [flags]

Commands:
  health   check the board's gRPC health status
  cache    print a cached board resource from Redis
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "health":
		err = runHealth(os.Args[2:])
	case "cache":
		err = runCache(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runHealth(args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "localhost:50057", "Board gRPC address")
	service := fs.String("service", grpcSvc.BoardServiceName, "Service to check; empty checks the server")
	timeout := fs.Duration("timeout", 3*time.Second, "Request timeout")
	_ = fs.Parse(args)

	cli, closeCli, err := pkgGrpc.NewHealthClient(*addr)
	if err != nil {
		return err
	}
	defer closeCli()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := cli.Check(ctx, &healthpb.HealthCheckRequest{Service: *service})
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}

	fmt.Println(resp.Status)
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%q is not serving", *service)
	}
	return nil
}

func runCache(args []string) error {
	fs := flag.NewFlagSet("cache", flag.ExitOnError)
	topic := fs.String("topic", "", "Board topic key (department+date or board id); defaults to the configured board")
	resource := fs.String("resource", repository.ResourceBoard, "Resource: board, stats, state or windows")
	_ = fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *topic == "" {
		*topic = cfg.Board.TopicKey()
	}

	ctx := context.Background()
	l := pkgLog.InitializeZapLogger(pkgLog.ZapConfig{Level: "warn", Mode: "production", Encoding: "console"})

	cli, err := redis.Connect(ctx, cfg.Redis, "boardctl", l)
	if err != nil {
		return err
	}
	defer redis.Disconnect(ctx, cli, l)

	store := repository.NewRedisCacheStore(cli, l)
	key := repository.Key(cfg.Cache.Prefix, *topic, *resource)

	var data json.RawMessage
	storedAt, err := repository.GetJSON(ctx, store, key, &data)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	out, err := json.MarshalIndent(struct {
		Key      string          `json:"key"`
		StoredAt time.Time       `json:"stored_at"`
		Age      string          `json:"age"`
		Data     json.RawMessage `json:"data"`
	}{key, storedAt, time.Since(storedAt).Round(time.Second).String(), data}, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(out))
	return nil
}
