package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/tcp-load-balancer/config"
	"github.com/angeloszaimis/tcp-load-balancer/internal/backend"
	"github.com/angeloszaimis/tcp-load-balancer/internal/healthcheck"
	"github.com/angeloszaimis/tcp-load-balancer/internal/httpserver"
	"github.com/angeloszaimis/tcp-load-balancer/internal/listener"
	"github.com/angeloszaimis/tcp-load-balancer/internal/metrics"
	"github.com/angeloszaimis/tcp-load-balancer/internal/pool"
	"github.com/angeloszaimis/tcp-load-balancer/internal/relay"
	"github.com/angeloszaimis/tcp-load-balancer/pkg/logger"
)

const metricsBufferSize = 1000

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Load balancer stopped", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	backends, err := initializeBackends(cfg, log)
	if err != nil {
		return err
	}

	prober, err := createProber(cfg.HealthCheck)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector(metricsBufferSize, log)
	collector.Start(ctx)

	checker := healthcheck.NewChecker(prober,
		config.Duration(cfg.HealthCheck.Interval),
		config.Duration(cfg.HealthCheck.Timeout),
		log, collector)
	checker.Start(ctx, backends)

	backendPool := pool.New(backends)

	handler := relay.NewHandler(log, backendPool, collector, relay.Options{
		DialTimeout: config.Duration(cfg.Relay.DialTimeout),
		ReadTimeout: config.Duration(cfg.Relay.ReadTimeout),
	})

	lb, err := listener.New(cfg.Server.Address, handler, log,
		listener.WithMaxConnections(cfg.Relay.MaxConnections))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return lb.ListenAndServe(gctx)
	})

	if cfg.Metrics.Address != "" {
		admin, err := httpserver.New(cfg.Metrics.Address, setupRouter(collector, backendPool))
		if err != nil {
			return err
		}

		g.Go(admin.Start)
		g.Go(func() error {
			<-gctx.Done()
			return admin.Shutdown(context.Background())
		})

		log.Info("Admin server listening", slog.String("addr", cfg.Metrics.Address))
	}

	return g.Wait()
}

// initializeBackends builds one backend per valid configured address, in
// order. Invalid entries are dropped; an empty result is fatal.
func initializeBackends(cfg *config.Config, log *slog.Logger) ([]*backend.Backend, error) {
	addrs, err := config.BackendAddresses(cfg.Backends, log)
	if err != nil {
		return nil, err
	}

	backends := make([]*backend.Backend, 0, len(addrs))
	for _, addr := range addrs {
		backends = append(backends, backend.New(addr))
	}

	return backends, nil
}

func createProber(hc config.HealthCheckConfig) (healthcheck.Prober, error) {
	return healthcheck.NewProber(hc.Type, hc.Path, hc.DSN)
}
