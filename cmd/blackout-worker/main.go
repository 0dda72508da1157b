package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"blackout/internal/backend"
	"blackout/internal/cli"
	"blackout/internal/log"
	"blackout/internal/metrics"
	"blackout/internal/worker"

	"golang.org/x/sync/errgroup"
)

// metricsAddr is where the worker exposes /metrics; the API owns PORT.
const metricsAddr = ":9091"

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger)
	logger.Info("Starting blackout-worker", "events", cfg.EventsBackend)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	factory := backend.NewFactory(logger)
	bcfg := cli.BackendConfig(logger, cfg)

	consumer, err := factory.CreateConsumer(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to open event consumer", log.FieldError, err)
		os.Exit(1)
	}
	defer consumer.Close()

	mirror, err := factory.CreateMirror(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to open spreadsheet mirror", log.FieldError, err)
		os.Exit(1)
	}

	m := metrics.New()
	w := worker.NewMirrorWorker(consumer, mirror, m, logger)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", func(rw http.ResponseWriter, r *http.Request) {
		mirrored, failed := w.Stats()
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"status": "ok", "mirrored": mirrored, "failed": failed})
	})
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
