package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"marketstate/config"
	"marketstate/core"
	"marketstate/core/state"
	gwconfig "marketstate/gateway/config"
	"marketstate/gateway/middleware"
	"marketstate/gateway/routes"
	"marketstate/observability"
	"marketstate/observability/logging"
	"marketstate/observability/otel"
	"marketstate/rpc"
	"marketstate/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the node configuration file")
	gatewayConfigPath := flag.String("gateway-config", "", "path to the gateway configuration file (optional)")
	flag.Parse()

	if err := run(*configPath, *gatewayConfigPath); err != nil {
		fmt.Fprintf(os.Stderr, "marketd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, gatewayConfigPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(logging.Options{
		Service: "marketd",
		Env:     cfg.Env,
		File:    cfg.LogFile,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Metrics || cfg.Telemetry.Traces {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "marketd",
			Environment: cfg.Env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	node := core.NewNode(state.NewManager(db), cfg.Paused)
	node.SetEmitter(observability.NewInstrumentEmitter(node.Hub()))

	errCh := make(chan error, 2)

	rpcServer := rpc.NewServer(node)
	go func() {
		errCh <- rpcServer.Start(cfg.RPCAddress)
	}()

	gwCfg, err := gwconfig.Load(gatewayConfigPath)
	if err != nil {
		return fmt.Errorf("load gateway config: %w", err)
	}
	if gatewayConfigPath == "" {
		gwCfg.ListenAddress = cfg.GatewayAddress
	}
	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName:   gwCfg.Observability.ServiceName,
		MetricsPrefix: gwCfg.Observability.MetricsPrefix,
		LogRequests:   gwCfg.Observability.LogRequests,
		Enabled:       gwCfg.Observability.Enabled,
	}, logger)
	limiter := middleware.NewRateLimiter(middleware.RateLimit{
		RequestsPerMinute: gwCfg.RateLimit.RequestsPerMinute,
		Burst:             gwCfg.RateLimit.Burst,
	})
	gateway := &http.Server{
		Addr: gwCfg.ListenAddress,
		Handler: routes.New(routes.Config{
			Backend:       node,
			RateLimiter:   limiter,
			Observability: obs,
			CORS: middleware.CORSConfig{
				AllowedOrigins: gwCfg.CORS.AllowedOrigins,
				AllowedMethods: gwCfg.CORS.AllowedMethods,
				AllowedHeaders: gwCfg.CORS.AllowedHeaders,
			},
		}),
		ReadTimeout:  gwCfg.ReadTimeout,
		WriteTimeout: gwCfg.WriteTimeout,
		IdleTimeout:  gwCfg.IdleTimeout,
	}
	go func() {
		logger.Info("starting gateway", "addr", gwCfg.ListenAddress)
		errCh <- gateway.ListenAndServe()
	}()

	logger.Info("node started",
		"network", cfg.NetworkName,
		"rpc", cfg.RPCAddress,
		"gateway", gwCfg.ListenAddress,
		"backend", cfg.StorageBackend,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = gateway.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.StorageBackend {
	case "memory":
		return storage.NewMemDB(), nil
	case "bolt":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "state.bolt"))
	case "leveldb":
		return storage.NewLevelDB(filepath.Join(cfg.DataDir, "leveldb"))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
