// Command prismetl downloads daily PRISM climate archives for a range of
// years, normalizes each day's raster, and consolidates the result into a
// single zarr store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/prism-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/prism-etl/internal/adapter/kafka"
	"github.com/couchcryptid/prism-etl/internal/config"
	"github.com/couchcryptid/prism-etl/internal/enumerate"
	"github.com/couchcryptid/prism-etl/internal/observability"
	"github.com/couchcryptid/prism-etl/internal/pipeline"
	"github.com/couchcryptid/prism-etl/internal/remote"
	"github.com/couchcryptid/prism-etl/internal/unpack"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "prismetl:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := remote.Open(ctx, cfg.RemoteConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("remote store close", "error", err)
		}
	}()

	// Event publishing is feature-flagged via KAFKA_BROKERS / EVENTS_ENABLED.
	var notifier pipeline.Notifier
	if cfg.EventsEnabled {
		emitter := kafkaadapter.NewEmitter(cfg, logger)
		defer func() {
			if err := emitter.Close(); err != nil {
				logger.Error("kafka emitter close", "error", err)
			}
		}()
		notifier = emitter
		logger.Info("event publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("event publishing disabled")
	}

	p := pipeline.New(
		enumerate.New(store),
		unpack.New(store, logger, metrics),
		notifier,
		logger,
		metrics,
		pipeline.Options{
			Years:          cfg.Years(),
			Variable:       cfg.Variable,
			Output:         cfg.Output,
			Scale:          cfg.Scale,
			Version:        cfg.Version,
			Stability:      cfg.Stability,
			Bounds:         cfg.ClipBox,
			TargetCRS:      cfg.TargetCRS,
			SkipFailedDays: cfg.SkipFailedDays,
			CombineWorkers: cfg.CombineWorkers,
		},
	)

	// The metrics server is optional; batch runs on a workstation usually
	// leave it off.
	var srv *httpadapter.Server
	if cfg.MetricsAddr != "" {
		srv = httpadapter.NewServer(cfg.MetricsAddr, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	runErr := p.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}
	return runErr
}
