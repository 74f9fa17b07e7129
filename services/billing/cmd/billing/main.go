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
	billingconfig "github.com/example/comms-ninja/services/billing/internal/config"
	"github.com/example/comms-ninja/services/billing/internal/handlers"
	"github.com/example/comms-ninja/services/billing/internal/idempotency"
	"github.com/example/comms-ninja/services/billing/internal/publisher"
	billingstore "github.com/example/comms-ninja/services/billing/internal/store"
	"github.com/example/comms-ninja/services/billing/internal/stripe"
)

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

	billingCfg, err := billingconfig.Load()
	if err != nil {
		log.Error("billing config", zap.Error(err))
		run.Exit(1)
	}

	pool := initPool(log, cfg, billingCfg)
	if pool != nil {
		defer pool.Close()
	}

	idem, err := idempotency.NewStore(idempotency.Options{
		RedisDSN: billingCfg.RedisDSN,
		Pool:     pool,
		TTL:      billingCfg.IdempotencyTTL,
		IsProd:   cfg.IsProd(),
	})
	if err != nil {
		log.Error("idempotency store", zap.Error(err))
		run.Exit(1)
	}
	log.Info("idempotency store initialised",
		zap.Bool("redis", billingCfg.RedisDSN != ""),
		zap.Bool("postgres", pool != nil),
	)

	var ledger billingstore.Ledger = billingstore.NewMemoryLedger()
	if pool != nil {
		ledger = billingstore.NewPostgresLedger(pool)
	}

	js, closeNATS := initJetStream(log, cfg, billingCfg)
	if closeNATS != nil {
		defer closeNATS()
	}
	pub := publisher.New(js, log)
	events := analytics.New(js, log, cfg.ServiceName)

	checkout := stripe.NewCheckoutClient(billingCfg.StripeSecretKey, stripe.Prices{
		OneTime:      billingCfg.PriceOneTime,
		Subscription: billingCfg.PriceSubscription,
	}, stripe.WithLogger(log.Named("stripe")))
	if checkout.Dummy() {
		log.Warn("STRIPE_SECRET_KEY not set, checkout returns dummy sessions")
	}
	webhook := handlers.NewWebhookHandler(stripe.NewVerifier(billingCfg.StripeWebhookSecret), log, idem, ledger, pub, events)

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc:   db.Ready(pool),
		Middlewares: []func(http.Handler) http.Handler{metrics.HTTP(cfg.ServiceName)},
		Logger:      log,
	})
	r.Post("/v1/stripe/webhook", webhook.ServeHTTP)
	r.With(auth.RequireUser(auth.JWTVerifier{Secret: billingCfg.JWTSecret})).
		Post("/v1/checkout/sessions", handlers.Checkout(checkout, events, log))

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	code := run.New(log).WithSignals(run.HTTP(srv, log))
	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// initPool connects to Postgres. Production requires it; elsewhere billing
// runs without persistence.
func initPool(log *zap.Logger, cfg config.AppConfig, billingCfg billingconfig.Config) *pgxpool.Pool {
	if billingCfg.DatabaseURL == "" {
		if cfg.IsProd() {
			log.Error("DATABASE_URL is required in production")
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("DATABASE_URL not set, billing will run without persistence (development only)")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.Open(ctx, billingCfg.DatabaseURL)
	if err != nil {
		if cfg.IsProd() {
			log.Error("postgres unreachable in production", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("postgres unavailable, billing will run without persistence", zap.Error(err))
		return nil
	}
	if err := db.Migrate(billingCfg.DatabaseURL); err != nil {
		pool.Close()
		log.Error("migrate", zap.Error(err))
		_ = log.Sync()
		run.Exit(1)
	}
	log.Info("postgres connected for billing")
	return pool
}

func initJetStream(log *zap.Logger, cfg config.AppConfig, billingCfg billingconfig.Config) (nats.JetStreamContext, func()) {
	nc, err := natsconn.Connect(natsconn.Options{URL: billingCfg.NATSURL, Name: cfg.ServiceName, Logger: log})
	if err == nil {
		var js nats.JetStreamContext
		if js, err = nc.JetStream(); err == nil {
			if err = natsconn.EnsureStreamSpec(js, natsconn.StreamSpec{
				Name:     publisher.StreamName,
				Subjects: []string{"billing.>"},
				MaxAge:   30 * 24 * time.Hour,
			}); err == nil {
				err = natsconn.EnsureStream(js, analytics.StreamName, "analytics.>")
			}
		}
		if err == nil {
			return js, nc.Close
		}
		nc.Close()
	}
	if cfg.IsProd() {
		log.Error("NATS is required in production", zap.Error(err))
		_ = log.Sync()
		run.Exit(1)
	}
	log.Warn("NATS unavailable, billing events will not be published", zap.Error(err))
	return nil, nil
}
