package config

import (
	"time"

	platformconfig "github.com/example/comms-ninja/internal/platform/config"
)

// Config holds the analytics sink settings.
type Config struct {
	NATSURL   string
	BatchSize int
	MaxWait   time.Duration
	// FunnelWindow bounds how long per-user funnel progress is remembered.
	FunnelWindow time.Duration
}

func Load() Config {
	return Config{
		NATSURL:      platformconfig.Env("NATS_URL"),
		BatchSize:    platformconfig.EnvInt("WORKER_BATCH_SIZE", 200),
		MaxWait:      platformconfig.EnvDuration("WORKER_BATCH_WAIT", 2*time.Second),
		FunnelWindow: platformconfig.EnvDuration("FUNNEL_WINDOW", 24*time.Hour),
	}
}
