package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/checkin-gateway/internal/config"
	"github.com/sandeepkv93/checkin-gateway/internal/observability"
	"github.com/sandeepkv93/checkin-gateway/internal/store"
)

type App struct {
	Config        config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Store         store.KV

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration
	SweepInterval                time.Duration
}

func New(cfg config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, kv store.KV) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		Config:                       cfg,
		Logger:                       logger,
		Server:                       server,
		Observability:                runtime,
		Store:                        kv,
		ShutdownTimeout:              cfg.ShutdownTimeout,
		ShutdownHTTPDrainTimeout:     cfg.ShutdownHTTPDrainTimeout,
		ShutdownObservabilityTimeout: cfg.ShutdownObservabilityTimeout,
		SweepInterval:                cfg.StoreSweepInterval,
	}
}

// Run serves until ctx is cancelled or the listener fails, then drains the
// server and flushes telemetry.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", a.Server.Addr, "store", a.storeBackend())
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	if sweeper, ok := a.Store.(store.Sweeper); ok && a.SweepInterval > 0 {
		g.Go(func() error {
			a.sweepLoop(gctx, sweeper)
			return nil
		})
	}

	return g.Wait()
}

func (a *App) shutdown() error {
	total := a.ShutdownTimeout
	if total <= 0 {
		total = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), total)
	defer cancel()

	drain := a.ShutdownHTTPDrainTimeout
	if drain <= 0 || drain > total {
		drain = total
	}
	drainCtx, drainCancel := context.WithTimeout(ctx, drain)
	defer drainCancel()

	var errs []error
	if err := a.Server.Shutdown(drainCtx); err != nil {
		errs = append(errs, fmt.Errorf("drain http server: %w", err))
	}

	obsTimeout := a.ShutdownObservabilityTimeout
	if obsTimeout <= 0 {
		obsTimeout = 5 * time.Second
	}
	obsCtx, obsCancel := context.WithTimeout(ctx, obsTimeout)
	defer obsCancel()
	if err := a.Observability.Shutdown(obsCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown observability: %w", err))
	}
	a.Logger.Info("shutdown complete")
	return errors.Join(errs...)
}

// sweepLoop purges expired rows for backends without native key expiry.
func (a *App) sweepLoop(ctx context.Context, sweeper store.Sweeper) {
	ticker := time.NewTicker(a.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sweeper.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					a.Logger.Warn("store sweep failed", "backend", a.storeBackend(), "error", err)
				}
				continue
			}
			observability.RecordStoreSweep(ctx, a.storeBackend(), n)
			if n > 0 {
				a.Logger.Debug("store sweep removed expired entries", "backend", a.storeBackend(), "rows", n)
			}
		}
	}
}

func (a *App) storeBackend() string {
	if a.Store == nil {
		return "none"
	}
	return a.Store.Backend()
}
