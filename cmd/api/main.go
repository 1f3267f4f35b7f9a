package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wysRocket/dao-copilot-sub005/internal/api"
	"github.com/wysRocket/dao-copilot-sub005/internal/detector"
	"github.com/wysRocket/dao-copilot-sub005/internal/events"
	eventsamqp "github.com/wysRocket/dao-copilot-sub005/internal/events/amqp"
	eventsredis "github.com/wysRocket/dao-copilot-sub005/internal/events/redis"
	"github.com/wysRocket/dao-copilot-sub005/internal/metrics"
	"github.com/wysRocket/dao-copilot-sub005/internal/middleware/ratelimit"
	"github.com/wysRocket/dao-copilot-sub005/internal/storage/sqlite"
	"github.com/wysRocket/dao-copilot-sub005/pkg/config"
	appLogger "github.com/wysRocket/dao-copilot-sub005/pkg/logger"
)

const (
	forwarderBuffer = 1024
	pruneInterval   = time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(appLogger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting question detection API server")

	metrics.Init()

	engine, err := detector.New(detector.FromSettings(cfg.Detector))
	if err != nil {
		appLogger.Fatal("Failed to create detector", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		sinks        []events.Sink
		history      *sqlite.Client
		redisPublish *eventsredis.Publisher
	)

	if cfg.SQLite.Enabled {
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				appLogger.Fatal("Failed to create data directory", zap.Error(err))
			}
		}
		history, err = sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
		}
		if err := history.InitSchema(); err != nil {
			appLogger.Fatal("Failed to initialize schema", zap.Error(err))
		}
		sinks = append(sinks, sqlite.NewSink(history))
	}

	if cfg.Redis.Enabled {
		redisPublish, err = eventsredis.NewPublisher(ctx, eventsredis.Options{
			Host:        cfg.Redis.Host,
			Port:        cfg.Redis.Port,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			Channel:     cfg.Redis.Channel,
			SnapshotKey: cfg.Redis.SnapshotKey,
			SnapshotTTL: 4 * cfg.Redis.SnapshotInterval,
		})
		if err != nil {
			appLogger.Warn("Redis unavailable, continuing without it", zap.Error(err))
		} else {
			sinks = append(sinks, redisPublish)
		}
	}

	if cfg.AMQP.Enabled {
		publisher, err := eventsamqp.NewPublisher(eventsamqp.Options{
			URL:        cfg.AMQP.URL,
			Exchange:   cfg.AMQP.Exchange,
			RoutingKey: cfg.AMQP.RoutingKey,
		})
		if err != nil {
			appLogger.Warn("AMQP unavailable, continuing without it", zap.Error(err))
		} else {
			sinks = append(sinks, publisher)
		}
	}

	fwdOpts := events.DefaultForwarderOptions()
	fwdOpts.Kinds = []events.Kind{events.AnalysisCompleted, events.AnalysisError, events.ConfigUpdated}
	fwdOpts.OnFailure = func(sink string, _ error) {
		metrics.SinkFailures.WithLabelValues(sink).Inc()
	}
	forwarder := events.NewForwarder(fwdOpts, sinks...)

	// the channel closes with the engine, so the forwarder drains what is
	// buffered before exiting
	eventCh, unsubscribe := engine.Subscribe(forwarderBuffer)
	defer unsubscribe()
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		forwarder.Run(ctx, eventCh)
	}()

	var background sync.WaitGroup

	if redisPublish != nil && cfg.Redis.SnapshotInterval > 0 {
		background.Add(1)
		go func() {
			defer background.Done()
			every(ctx, cfg.Redis.SnapshotInterval, func() {
				if err := redisPublish.StoreSnapshot(ctx, engine.Metrics()); err != nil {
					appLogger.Warn("Failed to store metrics snapshot", zap.Error(err))
				}
			})
		}()
	}

	if history != nil && cfg.SQLite.Retention > 0 {
		background.Add(1)
		go func() {
			defer background.Done()
			every(ctx, pruneInterval, func() {
				if _, err := history.Prune(ctx, time.Now().Add(-cfg.SQLite.Retention)); err != nil {
					appLogger.Warn("Failed to prune analysis log", zap.Error(err))
				}
			})
		}()
	}

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		Logger:            appLogger.Named("ratelimit"),
	})
	defer limiter.Stop()

	app := api.NewApp(api.Options{
		Server:      cfg.Server,
		Engine:      engine,
		History:     history,
		RateLimiter: limiter,
		AccessLog:   cfg.Server.IsDevelopment,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr), zap.Int("sinks", len(sinks)))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		appLogger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := engine.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Detector shutdown incomplete", zap.Error(err))
	}

	select {
	case <-forwarded:
	case <-shutdownCtx.Done():
		appLogger.Warn("Event forwarding did not drain before shutdown")
	}
	cancel()
	background.Wait()

	if err := forwarder.Close(); err != nil {
		appLogger.Warn("Failed to close event sinks", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
