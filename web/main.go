package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/df07/go-pbrt-scenegraph/pkg/config"
	"github.com/df07/go-pbrt-scenegraph/web/server"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Config file (default ~/.pbrt-scenegraph.toml)")
	addr := flag.String("addr", "", "Address to serve on (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Listen = *addr
	}
	if flag.NArg() > 0 {
		cfg.SearchPaths = flag.Args()
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	registry, err := cfg.Registry()
	if err != nil {
		logger.Error("failed to load schema", "err", err)
		os.Exit(1)
	}

	webServer, err := server.NewServer(server.Options{
		Addr:        cfg.Listen,
		SearchPaths: cfg.SearchPaths,
		Registry:    registry,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to create server", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := webServer.Start(ctx); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
