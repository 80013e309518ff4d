// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command graphgate starts the Aleutian Graph gateway server.
//
// The gateway sits in front of a Dgraph deployment and provides:
//   - Capability detection (enterprise features, namespace support, license)
//   - Tenant lifecycle with local namespace bookkeeping
//   - Namespace-bound query execution per tenant
//   - Hierarchy-aware node placement
//
// Usage:
//
//	go run ./cmd/graphgate
//	go run ./cmd/graphgate -config config.yaml
//	go run ./cmd/graphgate -addr :9090 -debug
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8086/v1/graph/health
//
//	# Detected capabilities
//	curl http://localhost:8086/v1/graph/capabilities | jq
//
//	# Create a tenant
//	curl -X POST http://localhost:8086/v1/graph/tenants \
//	  -H "Content-Type: application/json" \
//	  -d '{"tenant_id": "acme"}'
//
//	# Create a node in that tenant's namespace
//	curl -X POST http://localhost:8086/v1/graph/nodes \
//	  -H "Content-Type: application/json" \
//	  -H "X-Tenant-Id: acme" \
//	  -d '{"name": "Mammals", "node_type": "concept", "parent_id": "0x42"}'
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianGraph/pkg/logging"
	"github.com/AleutianAI/AleutianGraph/services/gateway"
	"github.com/AleutianAI/AleutianGraph/services/gateway/capability"
	"github.com/AleutianAI/AleutianGraph/services/gateway/dgraph"
	"github.com/AleutianAI/AleutianGraph/services/gateway/schema"
	"github.com/AleutianAI/AleutianGraph/services/gateway/telemetry"
	"github.com/AleutianAI/AleutianGraph/services/gateway/tenant"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	cfg, err := gateway.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *debug {
		cfg.Log.Level = "debug"
	}

	logger := logging.New(logging.Config{
		Level:   parseLevel(cfg.Log.Level),
		LogDir:  cfg.Log.Dir,
		Service: "graphgate",
		JSON:    cfg.Log.JSON,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, *debug, logger.Slog()); err != nil {
		logger.Error("graphgate exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run wires the full dependency graph and serves until a shutdown signal.
func run(cfg gateway.Config, debug bool, logger *slog.Logger) error {
	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	metrics, err := telemetry.NewMetrics(otel.Meter("graphgate"))
	if err != nil {
		return err
	}

	// Backing deployment client
	client, err := dgraph.NewClient(dgraph.Config{
		BaseURL:             cfg.Dgraph.URL,
		RequestTimeout:      cfg.Dgraph.RequestTimeout,
		HealthCheckInterval: cfg.Dgraph.HealthCheckInterval,
		Logger:              logger,
		Metrics:             metrics,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	// Capability detection
	prober := capability.NewProber(client, capability.Config{
		TTL:     cfg.CapabilityTTL,
		Logger:  logger,
		Metrics: metrics,
	})
	client.RegisterHandler(prober)

	// Schema manager
	schemaMgr, err := schema.NewManager(client, schema.Config{
		Path:   cfg.SchemaPath,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	// Tenant registry over the local store
	db, err := tenant.OpenStore(tenant.StoreConfig{
		Path:       cfg.StorePath,
		SyncWrites: true,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	registry, err := tenant.NewRegistry(db, client, prober, tenant.SchemaSourceFunc(schemaMgr.Schema), tenant.RegistryConfig{
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer registry.Close()

	service := gateway.NewService(gateway.ServiceConfig{
		Capabilities: prober,
		Tenants:      registry,
		Schema:       schemaMgr,
		Executor:     client,
		Connection:   client,
		Metrics:      metrics,
		Logger:       logger,
	})
	handlers := gateway.NewHandlers(service, logger)

	// Schema watcher re-pushes the default namespace on file changes.
	if cfg.WatchSchema {
		watcher, err := schema.NewWatcher(cfg.SchemaPath, func(ctx context.Context) {
			if err := schemaMgr.Push(ctx, tenant.DefaultNamespace); err != nil {
				logger.Warn("schema re-push failed", slog.String("error", err.Error()))
			}
		}, &schema.WatcherOptions{Logger: logger})
		if err != nil {
			logger.Warn("schema watcher unavailable", slog.String("error", err.Error()))
		} else {
			if err := watcher.Start(ctx); err != nil {
				logger.Warn("schema watcher failed to start", slog.String("error", err.Error()))
			} else {
				defer watcher.Stop()
			}
		}
	}

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	if debug {
		router.Use(gin.Logger())
	}
	router.Use(otelgin.Middleware("graphgate"))
	router.Use(telemetry.MetricsMiddleware(metrics))

	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))

	v1 := router.Group("/v1")
	gateway.RegisterRoutes(v1, handlers)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting graphgate server",
			slog.String("address", cfg.ListenAddr),
			slog.String("dgraph_url", cfg.Dgraph.URL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("Shutting down graphgate server", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// parseLevel maps the config's level string to a logging level.
func parseLevel(level string) logging.Level {
	switch level {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
