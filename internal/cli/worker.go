package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/servicemocker/internal/config"
	httpAdapter "github.com/aretw0/servicemocker/pkg/adapters/http"
	"github.com/aretw0/servicemocker/pkg/observability"
	"github.com/aretw0/servicemocker/pkg/worker"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 5 * time.Second

// RunWorker serves the worker endpoint and admin API until ctx ends.
func RunWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	w := worker.New(
		worker.WithLogger(logger),
		worker.WithTimeout(cfg.Timeout),
		worker.WithObserver(metrics),
	)

	srv := &http.Server{
		Addr:    cfg.Worker.Listen,
		Handler: httpAdapter.NewHandler(w, httpAdapter.WithLogger(logger), httpAdapter.WithMetrics(reg)),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("worker listening", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down worker")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown did not complete", "err", err)
		return srv.Close()
	}
	return nil
}
