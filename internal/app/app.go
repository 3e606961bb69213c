// Package app wires configuration, infrastructure clients and domain components into a
// runnable server.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/kgchat-backend/internal/config"
	httpx "github.com/yungbote/kgchat-backend/internal/http"
	"github.com/yungbote/kgchat-backend/internal/observability"
	"github.com/yungbote/kgchat-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      *config.Config
	Clients  Clients
	Services Services
	Metrics  *observability.Metrics
	Server   *httpx.Server

	shutdownOTel func(context.Context) error
}

// New connects every configured backend. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config required")
	}
	if log == nil {
		return nil, fmt.Errorf("app: logger required")
	}

	a := &App{Log: log, Cfg: cfg}
	a.shutdownOTel = observability.InitOTel(ctx, log, cfg.Env, cfg.Observability)
	if cfg.Observability.MetricsEnabled {
		a.Metrics = observability.NewMetrics()
	}

	clients, err := wireClients(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Clients = clients

	services, err := wireServices(cfg, log, clients, a.Metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Services = services

	a.Server = httpx.NewServer(cfg.HTTP, wireRouter(cfg, log, clients, services, a.Metrics))
	return a, nil
}

// Run warms the embedding index, starts the dependency collector and serves until ctx ends.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}

	go func() {
		if _, err := a.Services.Index.Get(ctx); err != nil {
			a.Log.Warn("embedding index warmup failed (will retry on demand)", "error", err)
		}
	}()

	a.Metrics.StartDependencyCollector(ctx, a.Log, 15*time.Second, a.Clients.pingers())
	return a.Server.Run(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.Clients.close(ctx, a.Log)
	if a.shutdownOTel != nil {
		if err := a.shutdownOTel(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}
