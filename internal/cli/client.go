package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/servicemocker"
	"github.com/aretw0/servicemocker/internal/config"
	"github.com/aretw0/servicemocker/pkg/adapters/ws"
	"github.com/aretw0/servicemocker/pkg/container"
	"github.com/aretw0/servicemocker/pkg/message"
	"github.com/aretw0/servicemocker/pkg/observability"
	"github.com/aretw0/servicemocker/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunClient connects to the worker, serves storage from the configured
// backend and follows controller handoffs until unload is closed.
func RunClient(ctx context.Context, cfg *config.Config, unload <-chan struct{}, logger *slog.Logger) error {
	store, release, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			logger.Warn("failed to release store", "err", err)
		}
	}()

	metricsReg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(metricsReg)

	box := container.New(
		ws.Dialer{URL: cfg.Worker.URL, Logger: logger},
		container.WithLogger(logger),
		container.WithTimeout(cfg.Timeout),
		container.WithObserver(metrics),
	)
	defer box.Close()

	self := message.NewBus(message.WithOrigin(cfg.Protocol + "//" + cfg.Hostname))
	defer self.Close()

	session, err := servicemocker.New(ctx, cfg.Script, servicemocker.Host{
		Protocol:  cfg.Protocol,
		Hostname:  cfg.Hostname,
		Container: box,
		Self:      self,
		Unload:    unload,
	},
		servicemocker.WithLogger(logger),
		servicemocker.WithScope(cfg.Scope),
		servicemocker.WithStore(store),
		servicemocker.WithObserver(metrics),
	)
	if err != nil {
		return err
	}
	defer session.Close()

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "err", err)
			}
		}()
		defer srv.Close()
	}

	if _, err := session.OnUpdate(func(err error, reg ports.Registration) {
		if err != nil {
			return
		}
		logger.Info("now controlled by new worker", "registration", reg.ID())
	}); err != nil {
		return err
	}

	regCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-unload:
			cancel()
		case <-regCtx.Done():
		}
	}()
	registration, err := session.GetRegistration(regCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("waiting for registration: %w", err)
	}
	logger.Info("session ready", "mode", session.Mode(), "registration", registration.ID(), "scope", registration.Scope())

	<-unload
	logger.Info("unloading")
	return nil
}
