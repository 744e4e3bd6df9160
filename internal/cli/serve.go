package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vnykmshr/cardflow/pkg/config"
	"github.com/vnykmshr/cardflow/pkg/metrics"
	"github.com/vnykmshr/cardflow/pkg/ratelimit/bucket"
	"github.com/vnykmshr/cardflow/pkg/telemetry"
	"github.com/vnykmshr/cardflow/pkg/transport"
	"github.com/vnykmshr/cardflow/pkg/transport/dedup"
	"github.com/vnykmshr/cardflow/pkg/transport/redisbus"
)

// NewServeCommand creates the serve command.
func NewServeCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve every domain processor over Redis",
		Long: `Serve the cards, dictionaries, settings, tts and translation processors.

Requests are read from Redis lists named <prefix>:topic:<domain>. Retried
requests are answered from a reply cache. Prometheus metrics and a health
check are exposed on metrics.addr.

Example:
  cardflow serve --config ./cardflow.yaml
  CARDFLOW_STORAGE__TYPE=memory cardflow serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, root, cmd.ErrOrStderr())
		},
	}
}

func newRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:                  cfg.Addr,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		ContextTimeoutEnabled: true,
	})
}

func newBus(rdb redis.UniversalClient, cfg config.RedisConfig) (*redisbus.Bus, error) {
	return redisbus.New(redisbus.Config{Redis: rdb, Prefix: cfg.Prefix, ReplyTTL: cfg.ReplyTTL})
}

// newServer builds the executor for cfg on responder with every domain routed.
// The returned cleanup stops the dedup sweeper.
func newServer(cfg *config.Config, responder transport.Responder, svc *services, logger *slog.Logger, registry *metrics.Registry) (*transport.Server, func(), error) {
	sc := transport.ServerConfig{
		Workers:        cfg.Server.Workers,
		QueueSize:      cfg.Server.QueueSize,
		ReceiveWait:    cfg.Server.ReceiveWait,
		RequestTimeout: cfg.Server.RequestTimeout,
		ErrorBackoff:   time.Second,
		Logger:         logger,
		Metrics:        registry,
	}
	cleanup := func() {}

	if cfg.Server.RateLimit > 0 {
		limiter, err := bucket.New(bucket.Config{Rate: bucket.Limit(cfg.Server.RateLimit), Burst: cfg.Server.Burst})
		if err != nil {
			return nil, nil, err
		}
		sc.Limiter = limiter
	}

	if cfg.Dedup.Enabled {
		cache, err := dedup.New(dedup.Config{
			TTL:           cfg.Dedup.TTL,
			MaxEntries:    cfg.Dedup.MaxEntries,
			SweepInterval: cfg.Dedup.SweepInterval,
			Metrics:       registry,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := cache.Start(); err != nil {
			return nil, nil, err
		}
		sc.Cache = cache
		cleanup = func() { <-cache.Stop().Done() }
	}

	srv, err := transport.NewServer(responder, sc)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	svc.register(srv)
	return srv, cleanup, nil
}

func runServe(ctx context.Context, root *RootOptions, logOut io.Writer) error {
	cfg, logger, err := root.load(logOut)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.Setup(telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("tracing shutdown failed", slog.Any("error", err))
		}
	}()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	registry := metrics.NewRegistryWithConfig(metrics.Config{
		Enabled:   true,
		Registry:  promReg,
		Namespace: cfg.Metrics.Namespace,
	})

	rdb := newRedisClient(cfg.Redis)
	defer func() { _ = rdb.Close() }()
	bus, err := newBus(rdb, cfg.Redis)
	if err != nil {
		return err
	}
	if err := bus.Ping(ctx); err != nil {
		return err
	}

	svc, err := openServices(cfg, logger, registry)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.close(); err != nil {
			logger.Error("closing storage failed", slog.Any("error", err))
		}
	}()

	srv, cleanup, err := newServer(cfg, bus, svc, logger, registry)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Metrics.Enabled {
		ops := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           newOpsHandler(promReg, bus),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics listening", slog.String("addr", cfg.Metrics.Addr))
			if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ops.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("serving",
		slog.String("redis", cfg.Redis.Addr),
		slog.String("storage", cfg.Storage.Type),
		slog.Any("topics", srv.Topics()),
	)
	return srv.Run(ctx)
}
