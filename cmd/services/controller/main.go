package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"

	"github.com/shardpulse/shardpulse/internal/config"
	"github.com/shardpulse/shardpulse/internal/export"
	"github.com/shardpulse/shardpulse/internal/handlers"
	"github.com/shardpulse/shardpulse/internal/logging"
	"github.com/shardpulse/shardpulse/internal/monitor"
	"github.com/shardpulse/shardpulse/internal/registry"
	"github.com/shardpulse/shardpulse/internal/transport"
)

var (
	Version   = "dev"     // Injected via ldflags during build
	GitCommit = "unknown" // Injected via ldflags during build
	BuildTime = "unknown" // Injected via ldflags during build
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)
	logger.Info("Controller starting...",
		"version", Version, "commit", GitCommit, "build_time", BuildTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Node registry: etcd when enabled, in-process otherwise
	var reg registry.NodeRegistry
	if cfg.Etcd.Enabled {
		logger.Info("Connecting to etcd", "endpoints", cfg.Etcd.Endpoints)
		etcdReg, err := registry.NewEtcdRegistry(cfg.Etcd, logger)
		if err != nil {
			logger.Fatal("Failed to connect to etcd", "error", err)
		}
		reg = etcdReg
	} else {
		logger.Info("Etcd disabled, using in-memory node registry")
		reg = registry.NewMemoryRegistry()
	}
	defer func() { _ = reg.Close() }()

	// Metric collection transport
	var collector transport.MetricsCollector
	switch cfg.Transport.Type {
	case "memory":
		collector = transport.NewMemoryCollector()
	default:
		logger.Info("Connecting to NATS", "url", cfg.Transport.URL)
		natsCollector, err := transport.NewNATSCollector(cfg.Transport.URL)
		if err != nil {
			logger.Fatal("Failed to connect to NATS", "error", err)
		}
		collector = natsCollector
	}
	defer func() { _ = collector.Close() }()

	// Snapshot exporter (opportunistic; failures never block the loop)
	exporter, err := export.New(cfg.Export)
	if err != nil {
		logger.Fatal("Failed to create exporter", "type", cfg.Export.Type, "error", err)
	}
	defer func() { _ = exporter.Close() }()

	prober := transport.NewHealthProber(logger)
	defer func() { _ = prober.Close() }()

	loop := monitor.New(cfg.Controller, monitor.Options{
		Registry:  reg,
		Collector: collector,
		Prober:    prober,
		Exporter:  exporter,
		Logger:    logger,
	})

	if err := loop.Start(ctx); err != nil {
		logger.Fatal("Failed to start control loop", "error", err)
	}

	// Status API
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handlers.NewHandler(loop, logger).RegisterRoutes(app)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	go func() {
		logger.Info("Status API listening", "addr", addr)
		if err := app.Listen(addr); err != nil {
			logger.Error("Status API stopped", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", "signal", sig.String())

	cancel()
	loop.Stop()
	if err := app.Shutdown(); err != nil {
		logger.Error("Status API shutdown failed", "error", err)
	}

	logger.Info("Controller stopped")
}
