package main

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"

	"github.com/example/streamd/internal/platform/analytics"
	"github.com/example/streamd/internal/platform/auth"
	"github.com/example/streamd/internal/platform/config"
	"github.com/example/streamd/internal/platform/db"
	"github.com/example/streamd/internal/platform/httpserver"
	"github.com/example/streamd/internal/platform/logging"
	"github.com/example/streamd/internal/platform/metrics"
	"github.com/example/streamd/internal/platform/natsconn"
	"github.com/example/streamd/internal/platform/run"
	"github.com/example/streamd/services/stats/internal/cache"
	statsconfig "github.com/example/streamd/services/stats/internal/config"
	"github.com/example/streamd/services/stats/internal/grpcapi"
	"github.com/example/streamd/services/stats/internal/handlers"
	"github.com/example/streamd/services/stats/internal/jobs"
	statshttp "github.com/example/streamd/services/stats/internal/http"
	"github.com/example/streamd/services/stats/internal/service"
	"github.com/example/streamd/services/stats/internal/store"
	"github.com/example/streamd/services/stats/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	scfg, err := statsconfig.LoadStats()
	if err != nil {
		fatal(log, "stats config", err)
	}
	verifier, err := auth.NewJWTVerifier(scfg.JWTSecret)
	if err != nil {
		fatal(log, "jwt verifier", err)
	}

	source, closeSource := initSource(log, cfg, scfg)

	// NATS is optional: without it the cache is local and nothing is consumed.
	var nc *nats.Conn
	if conn, err := natsconn.Connect(natsconn.Options{URL: scfg.NATSURL, Name: cfg.ServiceName}); err != nil {
		log.Warn("nats unavailable, running without invalidation events", zap.Error(err))
	} else {
		nc = conn
	}

	statsCache, closeCache := initCache(log, cfg, scfg, nc)

	scheduler := jobs.NewScheduler()
	if sw, ok := statsCache.(jobs.Sweeper); ok {
		if err := jobs.ScheduleCacheSweep(scheduler, sw, scfg.CacheTTL, log); err != nil {
			log.Warn("cache sweep not scheduled", zap.Error(err))
		}
	}
	scheduler.StartAsync()

	var publisher *analytics.Publisher
	if nc != nil {
		if js, err := nc.JetStream(); err == nil {
			publisher = analytics.New(js, log)
		} else {
			log.Warn("jetstream unavailable, analytics disabled", zap.Error(err))
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := &service.Service{
		Source:    source,
		Cache:     statsCache,
		Analytics: publisher,
		Metrics:   service.NewMetrics(reg),
		Log:       log,
	}
	if nc != nil {
		svc.Broadcast = nc
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return source.Ping(ctx)
		},
		Logger:  log,
		Metrics: metrics.NewHTTP(reg),
	})
	r.Method("GET", "/metrics", metrics.Handler(reg))

	limiter := statshttp.NewRateLimiter(scfg.RateLimitRPS, scfg.RateLimitBurst)
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Get("/v1/users/{user_id}/stats", handlers.GetUserStats(svc))
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser(verifier))
			r.Get("/v1/me/stats", handlers.GetMyStats(svc))
			r.With(auth.RequireAdmin).Post("/v1/admin/stats/cache/flush", handlers.FlushCache(svc))
		})
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Router: r})

	healthSrv := health.NewServer()
	grpcSrv := grpcapi.NewServer(healthSrv)
	lis, err := net.Listen("tcp", scfg.GRPCAddr)
	if err != nil {
		fatal(log, "grpc listen", err)
	}
	go func() {
		log.Info("grpc server starting", zap.String("addr", scfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("grpc serve", zap.Error(err))
		}
	}()

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		reporter := &grpcapi.HealthReporter{Health: healthSrv, Store: source, Interval: scfg.HealthInterval, Log: log}
		go reporter.Run(ctx)

		if nc != nil {
			consumer := worker.NewWatchlistConsumer(svc, log)
			if err := consumer.Start(ctx, nc); err != nil {
				log.Error("watchlist consumer", zap.Error(err))
			}
		}
		return srv.Start(log)
	})

	runner.Graceful(10*time.Second,
		srv.Shutdown,
		func(context.Context) error {
			scheduler.Stop()
			return nil
		},
		func(ctx context.Context) error {
			healthSrv.Shutdown()
			stopped := make(chan struct{})
			go func() {
				grpcSrv.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-ctx.Done():
				grpcSrv.Stop()
			}
			return nil
		},
		func(context.Context) error {
			if nc == nil {
				return nil
			}
			return nc.Drain()
		},
		func(context.Context) error { return closeCache() },
		func(context.Context) error {
			closeSource()
			return nil
		},
	)

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// initSource selects the StatsSource backend. In production a working
// Postgres connection is required.
func initSource(log *zap.Logger, cfg config.AppConfig, scfg statsconfig.StatsConfig) (store.StatsSource, func()) {
	if scfg.DatabaseURL == "" {
		if cfg.IsProduction() {
			fatal(log, "DATABASE_URL is required in production", nil)
		}
		log.Warn("DATABASE_URL not set, using in-memory stats source (development only)")
		return store.NewInMemoryStatsSource(), func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.Open(ctx, scfg.DatabaseURL)
	if err != nil {
		if cfg.IsProduction() {
			fatal(log, "postgres is required in production but unavailable", err)
		}
		log.Warn("postgres unavailable, falling back to in-memory stats source", zap.Error(err))
		return store.NewInMemoryStatsSource(), func() {}
	}

	log.Info("stats source: postgres")
	return store.NewPostgresStatsSource(pool), pool.Close
}

// initCache returns a nil Cache unless STATS_CACHE_TTL_SEC is positive. When
// enabled it picks Redis if REDIS_URL is set, otherwise a local TTL cache
// kept coherent across replicas through NATS.
func initCache(log *zap.Logger, cfg config.AppConfig, scfg statsconfig.StatsConfig, nc *nats.Conn) (cache.Cache, func() error) {
	if scfg.CacheTTL <= 0 {
		log.Info("stats cache: disabled, computing on every request")
		return nil, func() error { return nil }
	}
	if scfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(scfg.RedisURL, scfg.CacheTTL)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err = rc.Client.Ping(ctx).Err()
			cancel()
			if err == nil {
				log.Info("stats cache: redis")
				return rc, rc.Close
			}
			_ = rc.Close()
		}
		if cfg.IsProduction() {
			fatal(log, "redis configured but unavailable", err)
		}
		log.Warn("redis unavailable, falling back to in-memory cache", zap.Error(err))
	}

	tc, err := cache.NewTTLCache(scfg.CacheTTL, nc)
	if err != nil {
		log.Warn("cache invalidation subscription failed", zap.Error(err))
		if tc, err = cache.NewTTLCache(scfg.CacheTTL, nil); err != nil {
			fatal(log, "ttl cache", err)
		}
	}
	log.Info("stats cache: in-memory", zap.Duration("ttl", scfg.CacheTTL))
	return tc, tc.Close
}

func fatal(log *zap.Logger, msg string, err error) {
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	_ = log.Sync()
	os.Exit(1)
}
