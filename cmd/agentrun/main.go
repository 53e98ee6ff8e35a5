package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/codefionn/agentrun/internal/config"
	"github.com/codefionn/agentrun/internal/engine"
	"github.com/codefionn/agentrun/internal/logger"
	"github.com/codefionn/agentrun/internal/registry"
	"github.com/codefionn/agentrun/internal/sink"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	configPath := flag.String("config", "agentrun.json", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Environment overrides for logging, handy when the config file is shared
	if envLevel := strings.TrimSpace(os.Getenv("AGENTRUN_LOG_LEVEL")); envLevel != "" {
		cfg.LogLevel = envLevel
	}
	if envPath := strings.TrimSpace(os.Getenv("AGENTRUN_LOG_PATH")); envPath != "" {
		cfg.LogPath = envPath
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		if err != nil {
			logger.Error("Fatal error: %v", err)
		}
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()
	log := logger.Global()

	agents, err := registry.Open(cfg.RegistryPath, log)
	if err != nil {
		return fmt.Errorf("failed to open agent registry: %w", err)
	}
	defer agents.Close()
	if err := agents.Watch(); err != nil {
		log.Warn("registry hot reload unavailable: %v", err)
	}
	log.Info("registry loaded with %d agents", agents.Len())

	sinks := []sink.EmitSink{sink.NewLogSink(log)}

	var results *sink.SQLiteSink
	if cfg.ResultsDBPath != "" {
		results, err = sink.OpenSQLiteSink(cfg.ResultsDBPath)
		if err != nil {
			return fmt.Errorf("failed to open results database: %w", err)
		}
		defer results.Close()
		sinks = append(sinks, results)
	}

	hub := sink.NewHub(log)
	defer hub.Close()
	sinks = append(sinks, hub)

	controller := engine.NewController(
		engine.NewRegister(),
		engine.NewFetcher(agents, log),
		engine.NewSandbox(log),
		sink.NewMultiSink(sinks...),
		log,
	)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: newServer(controller, results, hub, log).routes(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TickIntervalSeconds > 0 {
		go tickLoop(ctx, controller, time.Duration(cfg.TickIntervalSeconds)*time.Second, log)
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening on %s", cfg.ListenAddr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
	}
	return nil
}

// tickLoop drives the controller on a fixed interval until ctx is cancelled
func tickLoop(ctx context.Context, controller *engine.Controller, interval time.Duration, log *logger.Logger) {
	log.Info("self-ticking every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			controller.Tick(ctx)
		}
	}
}
