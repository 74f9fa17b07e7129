package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/comms-ninja/internal/platform/analytics"
	"github.com/example/comms-ninja/internal/platform/auth"
	"github.com/example/comms-ninja/internal/platform/config"
	"github.com/example/comms-ninja/internal/platform/db"
	"github.com/example/comms-ninja/internal/platform/httpserver"
	"github.com/example/comms-ninja/internal/platform/logging"
	"github.com/example/comms-ninja/internal/platform/metrics"
	"github.com/example/comms-ninja/internal/platform/natsconn"
	"github.com/example/comms-ninja/internal/platform/run"
	"github.com/example/comms-ninja/internal/platform/signing"
	"github.com/example/comms-ninja/internal/watchgate"
	"github.com/example/comms-ninja/services/api/internal/cache"
	apiconfig "github.com/example/comms-ninja/services/api/internal/config"
	"github.com/example/comms-ninja/services/api/internal/handlers"
	apihttp "github.com/example/comms-ninja/services/api/internal/http"
	"github.com/example/comms-ninja/services/api/internal/queue"
	"github.com/example/comms-ninja/services/api/internal/sessions"
	"github.com/example/comms-ninja/services/api/internal/store"
	"github.com/example/comms-ninja/services/api/internal/worker"
)

const rateLimitSweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, zap.String("service", cfg.ServiceName))
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	apiCfg, err := apiconfig.Load()
	if err != nil {
		log.Error("api config", zap.Error(err))
		run.Exit(1)
	}

	pool := initPool(log, cfg, apiCfg)
	if pool != nil {
		defer pool.Close()
	}

	var (
		analyses     store.AnalysisStore
		entitlements store.Entitlements
	)
	if pool != nil {
		analyses = store.NewPostgresAnalysisStore(pool)
		entitlements = store.NewPostgresEntitlements(pool)
	} else {
		analyses = store.NewInMemoryAnalysisStore()
		entitlements = store.StaticEntitlements{Value: apiCfg.StaticTier}
	}

	if apiCfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(apiCfg.RedisURL, apiCfg.ResultCacheTTL)
		if err != nil {
			log.Warn("redis cache disabled", zap.Error(err))
		} else {
			defer func() { _ = rc.Close() }()
			analyses = cache.NewCachedStore(analyses, rc, func(err error) {
				log.Warn("result cache", zap.Error(err))
			})
			log.Info("redis result cache enabled", zap.Duration("ttl", apiCfg.ResultCacheTTL))
		}
	}

	js, closeNATS := initJetStream(log, cfg, apiCfg)
	if closeNATS != nil {
		defer closeNATS()
	}
	events := analytics.New(js, log, cfg.ServiceName)

	registry := sessions.NewRegistry(
		sessions.WithIdleTimeout(apiCfg.SessionIdleTimeout),
		sessions.WithMaxPerUser(apiCfg.SessionsPerUser),
		sessions.WithOnOpen(func(s *sessions.Session, st watchgate.Status) {
			metrics.WatchGateOpened.WithLabelValues(string(st.Mode)).Inc()
			events.Publish(analytics.SubjectWatchGateOpened, s.UserID, map[string]any{
				"session_id":      s.ID,
				"video_id":        s.VideoID,
				"mode":            st.Mode,
				"watched_seconds": st.WatchedSeconds,
				"threshold":       st.Threshold,
			})
		}),
		sessions.WithOnSizeChange(func(n int) {
			metrics.WatchSessionsActive.Set(float64(n))
		}),
	)
	registry.StartSweeper()
	defer registry.Close()

	limiter := apihttp.NewRateLimiter(apiCfg.RateLimitRPS, apiCfg.RateLimitBurst)

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc:   db.Ready(pool),
		Middlewares: []func(http.Handler) http.Handler{metrics.HTTP(cfg.ServiceName), limiter.Middleware},
		Logger:      log,
	})
	handlers.Mount(r, handlers.Deps{
		Log:          log,
		Verifier:     auth.JWTVerifier{Secret: apiCfg.JWTSecret, Leeway: apiCfg.JWTLeeway},
		Sessions:     registry,
		Analyses:     analyses,
		Entitlements: entitlements,
		Receipts:     signing.New(apiCfg.ReceiptSecret),
		ReceiptTTL:   apiCfg.ReceiptTTL,
		Queue:        queue.NewPublisher(js, log),
		Analytics:    events,
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	components := []run.Component{
		run.HTTP(srv, log),
		func(ctx context.Context) error {
			t := time.NewTicker(rateLimitSweepInterval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
					limiter.Sweep()
				}
			}
		},
	}
	if js != nil {
		consumer := &worker.StatusConsumer{Store: analyses, Log: log}
		components = append(components, func(ctx context.Context) error {
			return consumer.Run(ctx, js)
		})
	}

	code := run.New(log).WithSignals(components...)
	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// initPool opens and migrates Postgres. Outside production a missing or
// unreachable database falls back to in-memory storage.
func initPool(log *zap.Logger, cfg config.AppConfig, apiCfg apiconfig.APIConfig) *pgxpool.Pool {
	if apiCfg.DatabaseURL == "" {
		if cfg.IsProd() {
			log.Error("DATABASE_URL is required in production")
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("DATABASE_URL not set, analyses are kept in memory (development only)",
			zap.String("static_tier", apiCfg.StaticTier))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.Open(ctx, apiCfg.DatabaseURL)
	if err != nil {
		if cfg.IsProd() {
			log.Error("postgres unreachable in production", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("postgres unavailable, analyses are kept in memory", zap.Error(err))
		return nil
	}
	if err := db.Migrate(apiCfg.DatabaseURL); err != nil {
		pool.Close()
		log.Error("migrate", zap.Error(err))
		_ = log.Sync()
		run.Exit(1)
	}
	log.Info("postgres connected")
	return pool
}

// initJetStream connects to NATS and ensures the analysis and analytics
// streams. A nil context means publishing is stubbed, which production refuses.
func initJetStream(log *zap.Logger, cfg config.AppConfig, apiCfg apiconfig.APIConfig) (nats.JetStreamContext, func()) {
	nc, err := natsconn.Connect(natsconn.Options{URL: apiCfg.NATSURL, Name: cfg.ServiceName, Logger: log})
	if err == nil {
		var js nats.JetStreamContext
		if js, err = nc.JetStream(); err == nil {
			if err = natsconn.EnsureStream(js, queue.StreamName, "analysis.>"); err == nil {
				err = natsconn.EnsureStream(js, analytics.StreamName, "analytics.>")
			}
		}
		if err == nil {
			log.Info("jetstream ready", zap.String("url", nc.ConnectedUrl()))
			return js, nc.Close
		}
		nc.Close()
	}
	if cfg.IsProd() {
		log.Error("NATS is required in production", zap.Error(err))
		_ = log.Sync()
		run.Exit(1)
	}
	log.Warn("NATS unavailable, analysis requests will not be queued", zap.Error(err))
	return nil, nil
}
