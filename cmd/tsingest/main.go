package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/tsingest/internal/config"
	"github.com/zsiec/tsingest/internal/health"
	"github.com/zsiec/tsingest/internal/ingestion/fetch"
	"github.com/zsiec/tsingest/internal/ingestion/frame"
	"github.com/zsiec/tsingest/internal/ingestion/pipeline"
	"github.com/zsiec/tsingest/internal/ingestion/registry"
	"github.com/zsiec/tsingest/internal/logger"
	"github.com/zsiec/tsingest/internal/server"
	"github.com/zsiec/tsingest/internal/sink"
	"github.com/zsiec/tsingest/internal/source"
	"github.com/zsiec/tsingest/pkg/version"
)

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Println(version.GetInfo().String())
		os.Exit(0)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	base, err := logger.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := logger.NewRunID()
	log := logger.ForRun(base, runID)
	if err := run(ctx, cfg, runID, log); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("Ingest failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, runID string, log logger.Logger) error {
	url, err := source.Resolve(&cfg.Source)
	if err != nil {
		return fmt.Errorf("failed to pick object: %w", err)
	}
	log = log.WithField("url", url)
	log.Info("Starting ingest")

	client, err := fetch.NewHTTPClient(&cfg.Transport)
	if err != nil {
		return fmt.Errorf("failed to build transport: %w", err)
	}
	fetcher := fetch.NewRangeFetcher(client, fetch.Options{
		MaxAttempts:    cfg.Ingest.MaxAttempts,
		RetryDelay:     cfg.Ingest.RetryDelay,
		RequestTimeout: cfg.Ingest.RequestTimeout,
	}, log)

	detector, err := frame.NewDetector(frame.ScanMode(cfg.Ingest.ScanMode))
	if err != nil {
		return err
	}

	fileSink, err := sink.NewFileSink(&cfg.Sink)
	if err != nil {
		return fmt.Errorf("failed to prepare sink: %w", err)
	}

	ledger, redisClient, err := registry.New(ctx, &cfg.Registry, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			log.WithError(err).Warn("Failed to close ledger")
		}
	}()

	p, err := pipeline.New(pipeline.Config{
		RunID:     runID,
		URL:       url,
		ChunkSize: cfg.Ingest.ChunkSize(),
		Window:    cfg.Ingest.ScanWindow(),
		Workers:   cfg.Ingest.Workers,
		Pacing:    cfg.Ingest.Pacing,
	}, fetcher, detector, fileSink, ledger, log)
	if err != nil {
		return err
	}

	// Side servers live until the pipeline returns.
	sideCtx, cancelSide := context.WithCancel(ctx)
	defer cancelSide()
	side, sideCtx := errgroup.WithContext(sideCtx)

	if cfg.Metrics.Enabled {
		side.Go(func() error { return serveMetrics(sideCtx, cfg.Metrics, log) })
	}
	if cfg.Server.Enabled {
		srv := server.New(&cfg.Server, log, p, ledger)
		srv.HealthManager().Register(health.NewOriginChecker(client, url))
		srv.HealthManager().Register(health.NewSinkChecker(cfg.Sink.Dir))
		if redisClient != nil {
			srv.HealthManager().Register(health.NewRedisChecker(redisClient))
		}
		side.Go(func() error { return srv.Start(sideCtx) })
	}

	runErr := p.Run(ctx)

	cancelSide()
	if err := side.Wait(); err != nil {
		log.WithError(err).Warn("Side server stopped with error")
	}

	progress := p.Progress()
	log.WithFields(map[string]interface{}{
		"status":           progress.Status,
		"chunks_persisted": progress.ChunksPersisted,
		"chunks_failed":    progress.ChunksFailed,
		"bytes_persisted":  progress.BytesPersisted,
		"elapsed":          progress.Elapsed,
	}).Info("Ingest finished")
	return runErr
}

func serveMetrics(ctx context.Context, cfg config.MetricsConfig, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}
	log.WithField("addr", srv.Addr).Info("Starting metrics server")

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
