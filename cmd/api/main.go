package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dvloznov/sheets-ledger/internal/api"
	"github.com/dvloznov/sheets-ledger/internal/api/handlers"
	"github.com/dvloznov/sheets-ledger/internal/api/middleware"
	"github.com/dvloznov/sheets-ledger/internal/auth"
	"github.com/dvloznov/sheets-ledger/internal/config"
	"github.com/dvloznov/sheets-ledger/internal/importer"
	"github.com/dvloznov/sheets-ledger/internal/ingest"
	"github.com/dvloznov/sheets-ledger/internal/jobs"
	"github.com/dvloznov/sheets-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/sheets-ledger/internal/locator"
	"github.com/dvloznov/sheets-ledger/internal/logger"
	"github.com/dvloznov/sheets-ledger/internal/mirror"
	"github.com/dvloznov/sheets-ledger/internal/sheets"
	"golang.org/x/time/rate"
)

func main() {
	configName := flag.String("config", "app", "config file base name, read from ./configs or . as <name>.env")
	flag.Parse()

	cfg, err := config.LoadConfig(*configName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithLevel(cfg.Logging.Level, cfg.Logging.Format)
	ctx := logger.WithContext(context.Background(), log)

	// Ledger access is per user: every request opens the caller's spreadsheet.
	loc := locator.New(cfg.Sheets.SpreadsheetTitle,
		locator.WithLedgerOptions(
			sheets.WithQueryBaseURL(cfg.Sheets.QueryBaseURL),
			sheets.WithMatchPolicy(cfg.Ledger.MatchPolicy),
		),
	)

	ingestOpts := []ingest.Option{ingest.WithSortAfterAppend(cfg.Ledger.SortAfterAppend)}
	if cfg.BigQuery.Enabled() {
		m, err := mirror.NewBigQueryMirror(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset, cfg.BigQuery.Table)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery mirror")
		}
		defer m.Close()
		ingestOpts = append(ingestOpts, ingest.WithMirror(m))
		log.Info().
			Str("project", cfg.BigQuery.Project).
			Str("table", cfg.BigQuery.Dataset+"."+cfg.BigQuery.Table).
			Msg("Mirroring appended rows to BigQuery")
	}
	ingestSvc := ingest.NewService(ingestOpts...)

	// Imports over HTTP only read from Cloud Storage, never the local disk.
	var (
		gcsSource importer.Source
		uploader  handlers.Uploader
	)
	if cfg.Storage.Bucket != "" {
		gcs, err := importer.NewGCSSource(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
		defer gcs.Close()
		gcsSource, uploader = gcs, gcs
	} else {
		log.Warn().Msg("No GCS bucket configured - CSV imports will be disabled")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Jobs.BufferSize, jobStore,
		inmemory.WithWorkers(cfg.Jobs.Workers),
		inmemory.WithMaxRetries(cfg.Jobs.MaxRetries),
	)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := jobs.NewImportHandler(importer.New(importer.Router{GCS: gcsSource}), loc, ingestSvc)
	if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	router := api.NewRouter(api.Config{
		Logger:         log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AddressLimiter: middleware.NewRateLimiter(rate.Limit(cfg.RateLimit.AddressRequestsPerSecond), cfg.RateLimit.AddressBurst),
		Credentials:    middleware.Credentials(auth.NewGoogleProvider()),
		RateLimiter:    middleware.NewRateLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst),
		Transactions:   handlers.NewTransactionsHandler(loc, ingestSvc, log),
		Lookups:        handlers.NewLookupsHandler(loc, log),
		Imports:        handlers.NewImportsHandler(jobQueue, uploader, cfg.Storage.Bucket, log),
		Jobs:           handlers.NewJobsHandler(jobStore, log),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("env", cfg.Application.Env).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
