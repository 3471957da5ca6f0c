package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/parcel-sensor-service/internal/adapter/feed"
	httpadapter "github.com/couchcryptid/parcel-sensor-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/parcel-sensor-service/internal/adapter/kafka"
	"github.com/couchcryptid/parcel-sensor-service/internal/adapter/lifecycle"
	"github.com/couchcryptid/parcel-sensor-service/internal/config"
	"github.com/couchcryptid/parcel-sensor-service/internal/db"
	"github.com/couchcryptid/parcel-sensor-service/internal/history"
	"github.com/couchcryptid/parcel-sensor-service/internal/observability"
	"github.com/couchcryptid/parcel-sensor-service/internal/pipeline"
	"github.com/couchcryptid/parcel-sensor-service/internal/store"
	sqlitestore "github.com/couchcryptid/parcel-sensor-service/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		logger.Error("failed to create data directory", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	conn, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	writer := db.NewWorker(conn)

	samples := history.New(sqlitestore.NewHistoryStore(conn, writer), history.Options{
		Retention: cfg.HistoryRetention,
		Clock:     clock,
	})
	if err := samples.Load(ctx); err != nil {
		logger.Error("failed to load sample histories", "error", err)
		os.Exit(1)
	}
	logger.Info("sample histories loaded", "shipments", len(samples.TrackingCodes()))

	artifacts := store.NewCachedArtifacts(sqlitestore.NewArtifactStore(conn, writer), cfg.ArtifactCacheSize)

	// Publication of persisted sensor logs is feature-flagged via KAFKA_ENABLED.
	var publisher pipeline.LogPublisher
	var kafkaWriter *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		kafkaWriter = kafkaadapter.NewWriter(cfg, logger)
		publisher = kafkaWriter
		logger.Info("sensor log publication enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("sensor log publication disabled")
	}

	feedClient := feed.NewClient(cfg.SensorFeedURL, cfg.LedgerFeedURL, cfg.FeedTimeout, logger)
	lifecycleClient := lifecycle.NewClient(cfg.LifecycleURL, cfg.FeedTimeout, logger)

	persister := pipeline.NewPersister(artifacts, samples, pipeline.PersisterConfig{
		Clock:     clock,
		Location:  cfg.FeedLocation,
		Publisher: publisher,
	}, logger, metrics)
	tracker := pipeline.NewTracker(lifecycleClient, persister, clock, pipeline.TrackerConfig{
		Interval:     cfg.ShipmentRefreshInterval,
		FetchTimeout: cfg.FeedTimeout,
	}, logger, metrics)
	poller := pipeline.NewPoller(feedClient, tracker, samples, clock, pipeline.PollerConfig{
		Interval:     cfg.PollInterval,
		FetchTimeout: cfg.FeedTimeout,
	}, logger, metrics)
	loader := pipeline.NewFirstViewLoader(feedClient, samples, cfg.FeedTimeout, logger)
	estimator := pipeline.NewEstimator(feedClient, artifacts, pipeline.EstimatorConfig{
		Clock:        clock,
		FetchTimeout: cfg.FeedTimeout,
		MinLatency:   cfg.ValidationMinLatency,
	}, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Dependencies{
		Ready:      httpadapter.AllReady(tracker, poller),
		Samples:    samples,
		Shipments:  tracker,
		Loader:     loader,
		Estimator:  estimator,
		SensorLogs: persister,
		Clock:      clock,
		Location:   cfg.FeedLocation,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return tracker.Run(gctx) })
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("service error", "error", err)
	}

	writer.Close()
	if err := conn.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}
	if kafkaWriter != nil {
		if err := kafkaWriter.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
