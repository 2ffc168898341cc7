package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mapforge-io/mapforge/internal/config"
	"github.com/mapforge-io/mapforge/internal/engine"
	"github.com/mapforge-io/mapforge/internal/logging"
	"github.com/mapforge-io/mapforge/internal/metrics"
	"github.com/mapforge-io/mapforge/internal/server"
)

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	listenAddr := fs.String("listen", "", "Override API listen address (e.g., :8080)")
	metricsAddr := fs.String("metrics-addr", "", "Override metrics endpoint address (e.g., :9090)")

	fs.Usage = func() {
		fmt.Println(`Usage: mapforged serve [options]

Start the mapping API server.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Server.Addr = *listenAddr
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	logger := logging.Configure(cfg.Logging.Level, cfg.Logging.Format)

	eng := engine.New(engine.Options{
		Logger:         logger,
		CompileMetrics: metrics.NewCompileMetrics(),
		ResolveMetrics: metrics.NewResolveMetrics(),
		ExecMetrics:    metrics.NewExecMetrics(),
		CheckIDMetrics: metrics.NewCheckIDMetrics(),
		DryRunMetrics:  metrics.NewDryRunMetrics(),
		OpBudget:       cfg.Engine.OpBudget,
	})

	apiServer := server.New(cfg.Server.Addr, eng, logger)
	if err := apiServer.Start(); err != nil {
		logger.Errorf("failed to start api server", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr)
		if err := metricsServer.Start(); err != nil {
			logger.Errorf("failed to start metrics server", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		logger.Infof("metrics server listening", map[string]any{"addr": metricsServer.Addr()})
	}

	logger.Infof("mapforged started", map[string]any{
		"version": version,
		"addr":    apiServer.Addr(),
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("received shutdown signal", map[string]any{"signal": sig.String()})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Errorf("shutdown error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			logger.Errorf("metrics shutdown error", map[string]any{"error": err.Error()})
		}
	}
	logger.Info("shutdown complete")
}
