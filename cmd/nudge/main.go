// Package main boots the nudge service and wires application dependencies.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/easeaico/project-nudge/internal/app"
	"github.com/easeaico/project-nudge/internal/config"
	"github.com/easeaico/project-nudge/internal/server"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath, nil)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := run(cfg); err != nil {
		slog.Error("service stopped with error", "error", err.Error())
		os.Exit(1)
	}
	slog.Info("service shutdown complete")
}

func run(cfg *config.Config) error {
	slog.SetDefault(app.NewLogger(cfg.Log))
	slog.Info("configuration loaded",
		"storage", cfg.Storage.Driver,
		"lock", cfg.Lock.Driver,
		"llm_provider", cfg.LLM.Provider,
		"metrics", cfg.Metrics.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("failed to close services", "error", err.Error())
		}
	}()

	srv, err := server.New(server.Deps{
		Pipeline: a.Pipeline,
		Coach:    a.Coach,
		Metrics:  a.Metrics,
	}, server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RateLimit:       cfg.Server.RateLimit,
		RateBurst:       cfg.Server.RateBurst,
		MetricsPath:     cfg.Metrics.Path,
		Version:         version,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return a.WatchPatterns(gctx)
	})

	return g.Wait()
}
