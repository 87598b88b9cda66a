// Command livesec-ingest runs the LiveSec anomaly detection service: the
// HTTP intake API, the detection pipeline, and the configured sinks.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livesec/internal/baseline"
	"livesec/internal/config"
	"livesec/internal/consumer"
	"livesec/internal/detection"
	"livesec/internal/explainer"
	"livesec/internal/ingest"
	"livesec/internal/kafka"
	"livesec/internal/logging"
	"livesec/internal/queue"
	"livesec/internal/schema"
	"livesec/internal/storage"
	"livesec/internal/storage/s3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting livesec-ingest",
		"http_port", cfg.Server.HTTPPort,
		"queue_size", cfg.Queue.Size,
		"workers", cfg.Consumer.Workers,
	)

	validator := schema.NewValidatorWithConfig(schema.ValidatorConfig{
		MaxAge:    cfg.Validation.MaxEntryAge,
		MaxFuture: cfg.Validation.MaxFuture,
	})
	entryQueue := queue.New(cfg.Queue.Size)
	recentLog := ingest.NewAnomalyLog(cfg.Ingest.RecentAnomalies)

	engine, err := detection.NewEngine(cfg.Detection, baseline.NewStore(), logger)
	if err != nil {
		logger.Error("failed to build detection engine", "error", err)
		os.Exit(1)
	}

	// Sinks run in registration order. The explainer must come first so
	// every downstream sink sees the annotated record.
	exp, err := explainer.FromConfig(cfg.Explainer, logger)
	if err != nil {
		logger.Error("failed to build explainer", "error", err)
		os.Exit(1)
	}
	defer exp.Close()
	engine.AddHandler(func(ctx context.Context, rec *schema.AnomalyRecord) error {
		rec.Explanation = exp.Explain(ctx, rec)
		return nil
	})
	engine.AddHandler(func(ctx context.Context, rec *schema.AnomalyRecord) error {
		recentLog.Add(*rec)
		return nil
	})

	var (
		chClient    *storage.ClickHouseClient
		batchWriter *storage.BatchWriter
	)
	if cfg.Storage.Enabled {
		chClient, err = storage.NewClickHouseClient(storage.ClickHouseConfig{
			Hosts:           cfg.Storage.ClickHouse.Hosts,
			Database:        cfg.Storage.ClickHouse.Database,
			Username:        cfg.Storage.ClickHouse.Username,
			Password:        cfg.Storage.ClickHouse.Password,
			MaxOpenConns:    cfg.Storage.ClickHouse.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.ClickHouse.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.ClickHouse.ConnMaxLifetime,
			TLSEnabled:      cfg.Storage.ClickHouse.TLSEnabled,
			DialTimeout:     cfg.Storage.ClickHouse.DialTimeout,
		})
		if err != nil {
			logger.Error("failed to connect to clickhouse", "error", err)
			os.Exit(1)
		}
		defer chClient.Close()

		setupCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := storage.NewMigrator(chClient).Run(setupCtx); err != nil {
			cancel()
			logger.Error("migrations failed", "error", err)
			os.Exit(1)
		}

		retention := storage.NewRetentionManager(chClient, storage.RetentionConfig{
			AnomaliesTTL: cfg.Storage.Retention.AnomaliesTTL,
			RollupTTL:    cfg.Storage.Retention.RollupTTL,
		})
		if err := retention.ApplyTTLs(setupCtx); err != nil {
			logger.Warn("failed to apply retention policies", "error", err)
		}
		cancel()

		batchWriter = storage.NewBatchWriter(chClient, storage.BatchWriterConfig{
			BatchSize:     cfg.Storage.BatchWriter.BatchSize,
			FlushInterval: cfg.Storage.BatchWriter.FlushInterval,
			MaxRetries:    cfg.Storage.BatchWriter.MaxRetries,
			RetryDelay:    cfg.Storage.BatchWriter.RetryDelay,
		})
		engine.AddHandler(func(ctx context.Context, rec *schema.AnomalyRecord) error {
			return batchWriter.Write(rec)
		})
		logger.Info("clickhouse storage enabled", "hosts", cfg.Storage.ClickHouse.Hosts)
	}

	var publisher *kafka.Publisher
	if cfg.Kafka.Enabled {
		kafkaCfg := kafka.DefaultConfig()
		kafkaCfg.Brokers = cfg.Kafka.Brokers
		if cfg.Kafka.Topic != "" {
			kafkaCfg.Topic = cfg.Kafka.Topic
		}

		admin, err := kafka.NewAdmin(kafkaCfg, logger)
		if err != nil {
			logger.Error("failed to build kafka admin", "error", err)
			os.Exit(1)
		}
		topicCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := admin.EnsureTopic(topicCtx); err != nil {
			logger.Warn("failed to ensure kafka topic, publishing anyway", "error", err)
		}
		cancel()

		publisher, err = kafka.NewPublisher(kafkaCfg, logger)
		if err != nil {
			logger.Error("failed to build kafka publisher", "error", err)
			os.Exit(1)
		}
		engine.AddHandler(func(ctx context.Context, rec *schema.AnomalyRecord) error {
			return publisher.Publish(ctx, rec)
		})
		logger.Info("kafka publishing enabled", "brokers", kafkaCfg.Brokers, "topic", kafkaCfg.Topic)
	}

	var archiver *s3.Archiver
	if cfg.Archive.Enabled {
		s3Cfg := s3.DefaultConfig()
		s3Cfg.Region = cfg.Archive.Region
		s3Cfg.Bucket = cfg.Archive.Bucket
		s3Cfg.Endpoint = cfg.Archive.Endpoint
		s3Cfg.AccessKeyID = cfg.Archive.AccessKeyID
		s3Cfg.SecretAccessKey = cfg.Archive.SecretAccessKey
		s3Cfg.UsePathStyle = cfg.Archive.UsePathStyle
		if cfg.Archive.Prefix != "" {
			s3Cfg.Prefix = cfg.Archive.Prefix
		}

		s3Client, err := s3.NewClient(context.Background(), s3Cfg, logger)
		if err != nil {
			logger.Error("failed to build s3 client", "error", err)
			os.Exit(1)
		}

		archiverCfg := s3.DefaultArchiverConfig()
		if cfg.Archive.MaxBatch > 0 {
			archiverCfg.BatchSize = cfg.Archive.MaxBatch
		}
		if cfg.Archive.FlushInterval > 0 {
			archiverCfg.FlushInterval = cfg.Archive.FlushInterval
		}
		archiver = s3.NewArchiver(s3Client, archiverCfg, logger)
		engine.AddHandler(func(ctx context.Context, rec *schema.AnomalyRecord) error {
			return archiver.Add(ctx, rec)
		})
		logger.Info("s3 archive enabled", "bucket", s3Cfg.Bucket, "prefix", s3Cfg.Prefix)
	}

	handler := ingest.NewHandler(validator, entryQueue, recentLog).
		WithMaxPayload(cfg.Ingest.MaxPayloadSize).
		WithMaxBatch(cfg.Ingest.MaxBatchSize).
		WithEngineMetrics(engine.Metrics)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/logs", handler.HandleLogs)
	mux.HandleFunc("GET /v1/anomalies", handler.HandleAnomalies)
	mux.HandleFunc("GET /health", handler.HealthCheck)
	mux.HandleFunc("GET /metrics", handler.Metrics)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      ingest.WithMiddleware(mux, cfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workers := consumer.New(entryQueue, engine, cfg.Consumer, logger)
	workers.Start(ctx)

	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	// Stop fills before drains: the consumer flushes the queue, then each
	// sink flushes its buffer.
	cancel()
	workers.Stop()

	if batchWriter != nil {
		if err := batchWriter.Close(); err != nil {
			logger.Error("batch writer close failed", "error", err)
		}
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close failed", "error", err)
		}
	}
	if archiver != nil {
		if err := archiver.Close(shutdownCtx); err != nil {
			logger.Error("archiver close failed", "error", err)
		}
	}
	entryQueue.Close()

	qm := entryQueue.Metrics()
	em := engine.Metrics()
	logger.Info("shutdown complete",
		"entries_pushed", qm.Pushed,
		"entries_dropped", qm.Dropped,
		"entries_processed", em.Processed,
		"anomalies_emitted", em.Emitted,
	)
}
