package config

import (
	"strings"
	"time"

	platformconfig "github.com/example/comms-ninja/internal/platform/config"
)

// APIConfig is the service-specific configuration on top of platform config.
type APIConfig struct {
	JWTSecret     []byte
	JWTLeeway     time.Duration
	ReceiptSecret string
	ReceiptTTL    time.Duration

	DatabaseURL string
	RedisURL    string
	NATSURL     string

	// StaticTier is the entitlement granted to every user when there is no database.
	StaticTier string

	SessionIdleTimeout time.Duration
	SessionsPerUser    int
	ResultCacheTTL     time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
}

func Load() (APIConfig, error) {
	if err := platformconfig.Required("JWT_SECRET", "RECEIPT_SECRET"); err != nil {
		return APIConfig{}, err
	}
	return APIConfig{
		JWTSecret:          []byte(platformconfig.Env("JWT_SECRET")),
		JWTLeeway:          platformconfig.EnvDuration("JWT_LEEWAY", 30*time.Second),
		ReceiptSecret:      platformconfig.Env("RECEIPT_SECRET"),
		ReceiptTTL:         platformconfig.EnvDuration("RECEIPT_TTL", 30*time.Minute),
		DatabaseURL:        platformconfig.Env("DATABASE_URL"),
		RedisURL:           platformconfig.Env("REDIS_URL"),
		NATSURL:            platformconfig.Env("NATS_URL"),
		StaticTier:         strings.ToLower(platformconfig.EnvOr("STATIC_TIER", "free")),
		SessionIdleTimeout: platformconfig.EnvDuration("WATCH_SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SessionsPerUser:    platformconfig.EnvInt("WATCH_SESSIONS_PER_USER", 5),
		ResultCacheTTL:     platformconfig.EnvDuration("RESULT_CACHE_TTL", 10*time.Minute),
		RateLimitRPS:       platformconfig.EnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     platformconfig.EnvInt("RATE_LIMIT_BURST", 30),
	}, nil
}
