// cmd/didd/main.go
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RegistryAccord/registryaccord-did-go/internal/config"
	"github.com/RegistryAccord/registryaccord-did-go/internal/resolver"
	"github.com/RegistryAccord/registryaccord-did-go/internal/resolver/jwk"
	"github.com/RegistryAccord/registryaccord-did-go/internal/resolver/web"
	"github.com/RegistryAccord/registryaccord-did-go/internal/server"
	"github.com/RegistryAccord/registryaccord-did-go/internal/storage"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	var registry storage.Registry
	switch cfg.RegistryBackend {
	case "postgres":
		pg, err := storage.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			logger.Error("postgres init failed", "error", err)
			os.Exit(1)
		}
		registry = pg
	default:
		registry = storage.NewMemory()
	}

	webResolver := web.New(
		web.WithTimeout(cfg.WebTimeout),
		web.WithCacheTTL(cfg.WebCacheTTL),
	)
	dispatcher := resolver.NewDispatcher(registry)
	dispatcher.RegisterMethod("web", webResolver)
	dispatcher.RegisterMethod("jwk", jwk.New())

	handler := server.New(cfg, registry, dispatcher, webResolver, logger)

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           server.NewMetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("didd starting", "addr", srv.Addr, "backend", cfg.RegistryBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()
	go func() {
		logger.Info("metrics listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	} else {
		logger.Info("shutdown complete")
	}
}
