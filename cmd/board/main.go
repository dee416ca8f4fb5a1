package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vogiaan1904/clinic-queueboard/config"
	"github.com/vogiaan1904/clinic-queueboard/internal/clock"
	grpcSvc "github.com/vogiaan1904/clinic-queueboard/internal/delivery/grpc"
	httpSvc "github.com/vogiaan1904/clinic-queueboard/internal/delivery/http"
	"github.com/vogiaan1904/clinic-queueboard/internal/delivery/kafka/consumer"
	"github.com/vogiaan1904/clinic-queueboard/internal/delivery/kafka/producer"
	"github.com/vogiaan1904/clinic-queueboard/internal/display"
	"github.com/vogiaan1904/clinic-queueboard/internal/infra/redis"
	"github.com/vogiaan1904/clinic-queueboard/internal/playback"
	"github.com/vogiaan1904/clinic-queueboard/internal/poll"
	"github.com/vogiaan1904/clinic-queueboard/internal/queue"
	"github.com/vogiaan1904/clinic-queueboard/internal/repository"
	"github.com/vogiaan1904/clinic-queueboard/internal/service"
	"github.com/vogiaan1904/clinic-queueboard/internal/telemetry"
	"github.com/vogiaan1904/clinic-queueboard/internal/transport"
	pkgKafka "github.com/vogiaan1904/clinic-queueboard/pkg/kafka"
	pkgLog "github.com/vogiaan1904/clinic-queueboard/pkg/logger"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const (
	shutdownTimeout  = 10 * time.Second
	handshakeTimeout = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	l := pkgLog.InitializeZapLogger(pkgLog.ZapConfig{
		Level:    cfg.Log.Level,
		Mode:     cfg.Log.Mode,
		Encoding: cfg.Log.Encoding,
	})
	defer l.Sync()

	topic := cfg.Board.TopicKey()
	l = l.With("topic", topic, "client_id", cfg.ClientID)

	shutdownTracing := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.OTLPInsecure,
	}, l)

	// Cache
	var store repository.CacheStore
	switch cfg.Cache.Backend {
	case "redis":
		redisCli, err := redis.Connect(ctx, cfg.Redis, cfg.ClientID, l)
		if err != nil {
			// The board keeps working without a cache; it only loses cold-start hydration.
			l.Warnf(ctx, "Redis unavailable, falling back to in-memory cache: %v", err)
			store = repository.NewMemoryCacheStore()
		} else {
			defer redis.Disconnect(context.Background(), redisCli, l)
			store = repository.NewRedisCacheStore(redisCli, l)
		}
	default:
		store = repository.NewMemoryCacheStore()
	}
	store = repository.NewBestEffortCache(store, l)

	clk := clock.New()

	// Board state
	manager, err := queue.NewManager(topic, store, clk, queue.ManagerConfig{
		CachePrefix: cfg.Cache.Prefix,
		RingSize:    cfg.Notify.AnnouncementRing,
	}, l)
	if err != nil {
		l.Fatalf(ctx, "Failed to initialize board manager: %v", err)
	}

	policy := display.NamePolicy(cfg.Display.NamePolicy)
	presenter := display.NewPresenter(topic, policy, cfg.Notify.AnnouncementRing, clk)
	manager.Subscribe(presenter)

	dispatcher := service.NewDispatcher(
		playback.NewSoundPlayer(cfg.Notify.SoundProvider, cfg.Notify.SoundWebhookURL, l),
		playback.NewSpeaker(cfg.Notify.SpeechProvider, cfg.Notify.SpeechWebhookURL, l),
		clk,
		service.DispatcherConfig{
			SoundEnabled: cfg.Notify.SoundEnabled,
			VoiceEnabled: cfg.Notify.VoiceEnabled,
			Language:     cfg.Notify.Language,
			RepeatWindow: cfg.Notify.RepeatWindow,
			NamePolicy:   policy,
		},
		l,
	)
	manager.Subscribe(dispatcher)

	// Kafka mirror of committed changes
	var mirror *producer.Mirror
	if cfg.Kafka.Enabled {
		kSyncProd, err := pkgKafka.NewProducer(pkgKafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			ClientID:     cfg.ClientID,
			RetryMax:     cfg.Kafka.ProducerRetryMax,
			RequiredAcks: cfg.Kafka.ProducerRequiredAcks,
		}, l)
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka producer: %v", err)
		}
		prod := producer.NewProducer(kSyncProd, cfg.ClientID, l)
		defer prod.Close()

		mirror = producer.NewMirror(prod, cfg.Kafka.MirrorBuffer, l)
		manager.Subscribe(mirror)
	}

	// Transport
	channel := transport.NewChannel(transport.Config{
		Enabled:              cfg.Push.Enabled,
		BaseURL:              cfg.Push.BaseURL,
		MaxReconnectAttempts: cfg.Push.MaxReconnectAttempts,
		ReconnectDelay:       cfg.Push.ReconnectDelay,
		HeartbeatInterval:    cfg.Push.HeartbeatInterval,
		TokenSecret:          cfg.Push.TokenSecret,
		TokenTTL:             cfg.Push.TokenTTL,
		ClientID:             cfg.ClientID,
	}, transport.NewWebsocketDialer(handshakeTimeout), clk, l)

	healthSvc := grpcSvc.NewHealthService(l)

	boardSvc := service.NewBoardService(
		service.BoardScope{
			Topic:           topic,
			BoardID:         cfg.Board.BoardID,
			Department:      cfg.Board.Department,
			Date:            cfg.Board.Date,
			StatsInterval:   cfg.Poll.StatsInterval,
			BoardInterval:   cfg.Poll.BoardInterval,
			WindowsInterval: cfg.Poll.WindowsInterval,
		},
		manager,
		channel,
		poll.NewHTTPFetcher(cfg.Poll.BaseURL, cfg.Poll.RequestTimeout),
		poll.Options{
			Cache:          store,
			Clock:          clk,
			Floor:          cfg.Poll.IntervalFloor,
			CachePrefix:    cfg.Cache.Prefix,
			RequestTimeout: cfg.Poll.RequestTimeout,
		},
		l,
		presenter.SetConnection,
		healthSvc.OnConnection,
	)

	if err := boardSvc.Start(ctx); err != nil {
		l.Fatalf(ctx, "Failed to start board: %v", err)
	}

	// Kafka intake of queue events
	var cons *consumer.Consumer
	if cfg.Kafka.ConsumerEnabled {
		kConsGrCli, err := pkgKafka.NewConsumer(pkgKafka.ConsumerConfig{
			Brokers:    cfg.Kafka.Brokers,
			GroupID:    cfg.Kafka.ConsumerGroupID,
			ClientID:   cfg.ClientID,
			FromOldest: cfg.Kafka.ConsumerFromOldest,
		}, l)
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka consumer: %v", err)
		}

		cons = consumer.NewConsumer(kConsGrCli, boardSvc, l)
		if err := cons.Start(ctx); err != nil {
			l.Fatalf(ctx, "Failed to start Kafka consumer: %v", err)
		}
	}

	// Servers
	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      httpSvc.NewHTTPHandler(boardSvc, presenter, l).Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	lnr, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRpcPort))
	if err != nil {
		l.Fatalf(ctx, "gRPC server failed to listen: %v", err)
	}
	gRpcSrv := grpc.NewServer()
	healthSvc.Register(gRpcSrv)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l.Infof(ctx, "HTTP server is listening on port: %d", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		l.Infof(ctx, "gRPC server is listening on port: %d", cfg.Server.GRpcPort)
		if err := gRpcSrv.Serve(lnr); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		l.Info(ctx, "Server shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		healthSvc.Shutdown()
		if cons != nil {
			if err := cons.Close(); err != nil {
				l.Errorf(shutdownCtx, "Failed to close Kafka consumer: %v", err)
			}
		}
		boardSvc.Stop()
		if mirror != nil {
			mirror.Close()
		}
		dispatcher.Close()

		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			l.Errorf(shutdownCtx, "Failed to shut down HTTP server: %v", err)
		}
		gRpcSrv.GracefulStop()

		if err := shutdownTracing(shutdownCtx); err != nil {
			l.Errorf(shutdownCtx, "Failed to flush traces: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		l.Errorf(ctx, "Server exited with error: %v", err)
		return
	}

	l.Info(ctx, "Server exited")
}
