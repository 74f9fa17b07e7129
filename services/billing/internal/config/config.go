package config

import (
	"fmt"
	"time"

	platformconfig "github.com/example/comms-ninja/internal/platform/config"
)

type Config struct {
	// StripeWebhookSecret is the webhook signing secret (whsec_...).
	StripeWebhookSecret string
	// StripeSecretKey enables real Checkout Sessions; empty means dummy mode.
	StripeSecretKey   string
	PriceOneTime      string
	PriceSubscription string

	JWTSecret []byte

	DatabaseURL    string
	RedisDSN       string
	NATSURL        string
	IdempotencyTTL time.Duration
}

func Load() (Config, error) {
	if err := platformconfig.Required("STRIPE_WEBHOOK_SECRET", "JWT_SECRET"); err != nil {
		return Config{}, err
	}
	cfg := Config{
		StripeWebhookSecret: platformconfig.Env("STRIPE_WEBHOOK_SECRET"),
		StripeSecretKey:     platformconfig.Env("STRIPE_SECRET_KEY"),
		PriceOneTime:        platformconfig.Env("STRIPE_PRICE_ONE_TIME"),
		PriceSubscription:   platformconfig.Env("STRIPE_PRICE_SUBSCRIPTION"),
		JWTSecret:           []byte(platformconfig.Env("JWT_SECRET")),
		DatabaseURL:         platformconfig.Env("DATABASE_URL"),
		RedisDSN:            platformconfig.Env("REDIS_DSN"),
		NATSURL:             platformconfig.Env("NATS_URL"),
		IdempotencyTTL:      platformconfig.EnvDuration("IDEMPOTENCY_TTL", 72*time.Hour),
	}
	if cfg.StripeSecretKey != "" {
		if err := platformconfig.Required("STRIPE_PRICE_ONE_TIME", "STRIPE_PRICE_SUBSCRIPTION"); err != nil {
			return Config{}, fmt.Errorf("STRIPE_SECRET_KEY set: %w", err)
		}
	}
	return cfg, nil
}
