package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/amazon-label-extractor/internal/api"
	"github.com/maltedev/amazon-label-extractor/internal/config"
	"github.com/maltedev/amazon-label-extractor/internal/database"
	"github.com/maltedev/amazon-label-extractor/internal/diagnostics"
	"github.com/maltedev/amazon-label-extractor/internal/ocr"
	"github.com/maltedev/amazon-label-extractor/internal/parser"
	"github.com/maltedev/amazon-label-extractor/internal/scraper"
	"github.com/maltedev/amazon-label-extractor/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logging.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink, closeSink, err := diagnostics.FromConfig(ctx, cfg.Diagnostics, cfg.Redis)
	if err != nil {
		logger.Error("failed to set up diagnostics", "error", err)
		os.Exit(1)
	}
	defer closeSink()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open product store", "error", err, "backend", cfg.Storage.Backend)
		os.Exit(1)
	}
	defer closeStore()

	service := scraper.NewFromConfig(cfg, logger, scraper.WithSink(sink))

	var enricher api.Enricher
	if cfg.OCR.Enabled {
		prices := parser.NewAmazonParser(parser.Options{
			PriceMin:        cfg.Extractor.PriceMin,
			PriceMax:        cfg.Extractor.PriceMax,
			DefaultCurrency: cfg.Extractor.DefaultCurrency,
		})
		enricher = ocr.NewEnricher(ocr.NewClient(cfg.OCR, logger), prices)
	}

	handlers := api.NewHandlers(service, store, enricher, logger)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers, cfg.Server),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting",
		"addr", server.Addr,
		"storage", cfg.Storage.Backend,
		"diagnostics", cfg.Diagnostics.Sink,
		"ocr_enabled", cfg.OCR.Enabled,
		"evasion_profiles", len(cfg.Evasion.Profiles))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.ProductStore, func(), error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemoryStore(), func() {}, nil
	case "file":
		fs, err := storage.NewFileStore(cfg.Storage.FilePath)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	case "postgres":
		db, err := database.New(ctx, database.ConfigFrom(cfg.Database))
		if err != nil {
			return nil, nil, err
		}
		repo := database.NewProductRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("connected to database", "host", cfg.Database.Host, "database", cfg.Database.DBName)
		return repo, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
