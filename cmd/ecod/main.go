package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ecorelease/config"
	"ecorelease/core"
	"ecorelease/core/events"
	"ecorelease/crypto"
	"ecorelease/indexer"
	"ecorelease/observability"
	"ecorelease/observability/logging"
	telemetry "ecorelease/observability/otel"
	"ecorelease/rpc"
	"ecorelease/storage"
)

const (
	serviceName     = "ecod"
	envVar          = "ECO_ENV"
	shutdownTimeout = 10 * time.Second
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "ecod: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv(envVar))
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup(serviceName, env, &logging.FileOptions{Path: cfg.LogFile})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:   serviceName,
		Environment:   env,
		AddressPrefix: cfg.AddressPrefix,
		DBBackend:     cfg.DBBackend,
		Indexer:       cfg.Indexer.Driver,
		Endpoint:      cfg.Telemetry.Endpoint,
		Insecure:      cfg.Telemetry.Insecure,
		Headers:       telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Traces:        cfg.Telemetry.Traces,
		Metrics:       cfg.Telemetry.Metrics,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.Open(cfg.DBBackend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	broadcaster := events.NewBroadcaster(0)
	emitters := events.Multi{broadcaster}
	var eventStore rpc.EventStore
	if cfg.Indexer.Driver != "" {
		gdb, err := indexer.Open(cfg.Indexer.Driver, cfg.IndexerDSN())
		if err != nil {
			return fmt.Errorf("open event index: %w", err)
		}
		idx, err := indexer.New(gdb, logger)
		if err != nil {
			return err
		}
		defer idx.Close()
		emitters = append(emitters, idx)
		eventStore = idx
	}

	host := core.NewHost(db, crypto.NewCodec(cfg.AddressPrefix),
		core.WithEmitter(emitters),
		core.WithLogger(logger),
		core.WithMetrics(observability.Contract()))
	height, err := host.Height()
	if err != nil {
		return fmt.Errorf("read committed height: %w", err)
	}

	server := rpc.NewServer(rpc.Config{
		Host:        host,
		Events:      eventStore,
		Broadcaster: broadcaster,
		Auth: rpc.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		},
		RateLimit: rpc.RateLimit{
			RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
			Burst:             cfg.RateLimit.Burst,
		},
		Logger:  logger,
		Metrics: observability.RPC(),
	})
	if strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		logger.Warn("no RPC HMAC secret configured; instantiate and execute are disabled",
			slog.String("env", config.EnvHMACSecret))
	}

	servers := []*http.Server{{
		Addr:              cfg.RPCAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}}
	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		srv := srv
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
		}()
	}
	logger.Info("ecod started",
		slog.String("rpc", cfg.RPCAddress),
		slog.String("metrics", cfg.MetricsAddress),
		slog.String("backend", cfg.DBBackend),
		slog.Int64("height", height))

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		logger.Error("server failed", slog.Any("error", runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown failed", slog.String("addr", srv.Addr), slog.Any("error", err))
		}
	}
	return runErr
}
