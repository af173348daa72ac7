package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ttauveron/gcp-iam-watcher/internal/destination"
	"github.com/ttauveron/gcp-iam-watcher/internal/engine"
	"github.com/ttauveron/gcp-iam-watcher/internal/naming"
	"github.com/ttauveron/gcp-iam-watcher/internal/platform/config"
	"github.com/ttauveron/gcp-iam-watcher/internal/platform/httpserver"
	"github.com/ttauveron/gcp-iam-watcher/internal/platform/logger"
	"github.com/ttauveron/gcp-iam-watcher/internal/platform/metrics"
	"github.com/ttauveron/gcp-iam-watcher/internal/platform/redis"
	"github.com/ttauveron/gcp-iam-watcher/internal/transport/kafka"
	"github.com/ttauveron/gcp-iam-watcher/internal/transport/push"
)

// main wires high-level dependencies and keeps the process lifecycle small.
// Pipeline logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis setup failed", "error", err)
		os.Exit(1)
	}
	var cacheClient *goredis.Client
	if rdb != nil {
		defer rdb.Close()
		cacheClient = rdb.Client
	}

	resolver := naming.NewCachedResolver(naming.NewCRMResolver(), cfg.NamingCacheTTL, cacheClient, log, m)

	// Destination misconfiguration is fatal: a silently broken notification
	// path is worse than a crash loop.
	dest, err := destination.Build(cfg, log, m)
	if err != nil {
		log.Error("destination setup failed", "error", err)
		os.Exit(1)
	}

	processor := engine.NewProcessor(
		engine.NewAssetEngine(resolver, log, m),
		engine.NewAuditEngine(log),
		dest,
		log,
		m,
	)

	router := push.NewRouter(push.NewHandler(processor, log), cfg.Push, log)
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting gcp-iam-watcher", "addr", cfg.Addr, "destinations", cfg.DestTypes)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if len(cfg.Kafka.Brokers) > 0 {
		consumer, err := kafka.NewConsumer(cfg.Kafka, processor, log)
		if err != nil {
			log.Error("kafka setup failed", "error", err)
			os.Exit(1)
		}
		g.Go(func() error {
			defer consumer.Close()
			return consumer.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
}
