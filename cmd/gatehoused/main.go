// gatehoused runs the gatehouse authorization core with its operational
// surface: health and metrics endpoints, the expired-token sweep, and config
// reload. The business API is consumed in-process via pkg/core.
package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/gatehouse-io/gatehouse/pkg/audit"
	"github.com/gatehouse-io/gatehouse/pkg/config"
	"github.com/gatehouse-io/gatehouse/pkg/core"
	"github.com/gatehouse-io/gatehouse/pkg/observability"
	"github.com/gatehouse-io/gatehouse/pkg/store"
	"github.com/gatehouse-io/gatehouse/pkg/store/memory"
	"github.com/gatehouse-io/gatehouse/pkg/store/postgres"
	"github.com/gatehouse-io/gatehouse/pkg/token"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional; env vars override)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel(), os.Stdout)
	logger.WithField("store", cfg.Store.Type).Info("starting gatehoused")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, db, err := openStore(ctx, cfg.Store)
	if err != nil {
		logger.WithError(err).Error("failed to open store")
		os.Exit(1)
	}
	defer st.Close()

	var redisClient *redis.Client
	var revocations *token.RevocationCache
	if cfg.Store.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			logger.WithError(err).Error("invalid redis URL")
			os.Exit(1)
		}
		if cfg.Store.RedisPassword != "" {
			opts.Password = cfg.Store.RedisPassword
		}
		opts.DB = cfg.Store.RedisDB
		opts.MaxRetries = cfg.Store.RedisMaxRetries
		opts.PoolSize = cfg.Store.RedisPoolSize
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		revocations = token.NewRevocationCache(redisClient, "")
		logger.Info("revocation cache enabled")
	}

	var sink audit.Sink = audit.NopSink{}
	if cfg.Observability.AuditEnabled {
		sink = audit.NewLogrusSink(nil)
	}
	defer sink.Close()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	service := core.New(st, core.Options{
		RevocationCache: revocations,
		Sink:            sink,
		Metrics:         metrics,
	})

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Token.PurgeSchedule, func() {
		n, err := service.Tokens().PurgeExpired(context.Background())
		if err != nil {
			logger.WithError(err).Warn("expired-token sweep failed")
			return
		}
		if n > 0 {
			metrics.TokensPurgedTotal.Add(float64(n))
			logger.WithField("purged", n).Info("expired-token sweep completed")
		}
	}); err != nil {
		logger.WithError(err).Error("failed to schedule expired-token sweep")
		os.Exit(1)
	}
	sweeper.Start()
	defer sweeper.Stop()

	checker := observability.NewHealthChecker(st, db, redisClient)

	router := mux.NewRouter()
	router.HandleFunc("/health", checker.Readiness).Methods(http.MethodGet)
	router.HandleFunc("/health/live", checker.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", checker.Readiness).Methods(http.MethodGet)
	if cfg.Observability.MetricsEnabled {
		router.Handle("/metrics", observability.Handler(registry)).Methods(http.MethodGet)
	}

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", server.Addr).Info("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if db != nil {
		g.Go(func() error {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					metrics.UpdateDBStats(db)
				}
			}
		})
	}

	if *configPath != "" {
		g.Go(func() error {
			err := config.Watch(gctx, *configPath,
				func(next *config.Config) {
					logger.SetLevel(next.LogLevel())
					logger.WithField("level", next.Observability.LogLevel).Info("log level reloaded")
				},
				func(err error) {
					logger.WithError(err).Warn("config reload failed")
				})
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("gatehoused exited with error")
		os.Exit(1)
	}
	logger.Info("gatehoused stopped")
}

func openStore(ctx context.Context, cfg store.Config) (store.Store, *sql.DB, error) {
	switch cfg.Type {
	case store.BackendPostgres:
		st, err := postgres.Open(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return st, st.DB(), nil
	default:
		return memory.New(), nil, nil
	}
}
