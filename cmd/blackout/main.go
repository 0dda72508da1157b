package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"blackout/api"
	"blackout/internal/auth"
	"blackout/internal/backend"
	"blackout/internal/cache"
	"blackout/internal/cli"
	apphttp "blackout/internal/http"
	"blackout/internal/ledger"
	"blackout/internal/log"
	"blackout/internal/metrics"
	"blackout/internal/middleware/ratelimit"
	"blackout/internal/services"
	"blackout/internal/worker"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	factory := backend.NewFactory(logger)
	bcfg := cli.BackendConfig(logger, cfg)

	store, err := factory.CreateStore(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to open record store", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	publisher, err := factory.CreatePublisher(ctx, bcfg)
	if err != nil {
		store.Close()
		logger.Error("Failed to open event publisher", log.FieldError, err, "events", cfg.EventsBackend)
		os.Exit(1)
	}

	tokens, err := auth.NewTokens([]byte(cfg.JWTSecret), cfg.JWTTTL)
	if err != nil {
		logger.Error("Invalid JWT configuration", log.FieldError, err)
		os.Exit(1)
	}

	m := metrics.New()
	finance := services.NewFinanceService(store, services.Options{
		Publisher:     publisher,
		Metrics:       m,
		Logger:        logger,
		CacheTTL:      cfg.CacheTTL,
		EngineOptions: []ledger.Option{ledger.WithMaxAttempts(cfg.LedgerMaxAttempts)},
	})
	defer func() {
		if err := finance.Close(); err != nil {
			logger.Error("Failed to close ledger resources", log.FieldError, err)
		}
	}()

	caches := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)
	caches.Register(finance.TotalsCache())
	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	limit := ratelimit.DefaultConfig()
	limit.RequestsPerWindow = cfg.RateLimitPerMinute

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Finance:   finance,
		Auth:      auth.NewService(store.Users(), tokens),
		Metrics:   m,
		Logger:    logger,
		RateLimit: limit,
		OpenAPI:   api.OpenAPI,
	})

	g, gctx := errgroup.WithContext(ctx)
	if bcfg.Events == backend.InProcEvents {
		consumer, err := factory.CreateConsumer(ctx, bcfg)
		if err != nil {
			logger.Error("Failed to open in-process consumer", log.FieldError, err)
			os.Exit(1)
		}
		mirror, err := factory.CreateMirror(ctx, bcfg)
		if err != nil {
			logger.Error("Failed to open spreadsheet mirror", log.FieldError, err)
			os.Exit(1)
		}
		mw := worker.NewMirrorWorker(consumer, mirror, m, logger)
		g.Go(func() error { return mw.Run(gctx) })
	}
	g.Go(func() error {
		logger.Info("Starting blackout server", "port", cfg.Port, "backend", cfg.DataBackend, "events", cfg.EventsBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
