// Package natsconn connects services to NATS JetStream and declares the
// streams they publish into.
package natsconn

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/comms-ninja/internal/platform/config"
)

// Options configures the NATS connection behaviour.
// Zero values fall back to env vars or built-in defaults.
type Options struct {
	URL           string
	Name          string
	MaxReconnects int           // default from NATS_MAX_RECONNECTS or 5
	ReconnectWait time.Duration // default from NATS_RECONNECT_WAIT or 2s
	Logger        *zap.Logger
}

// Connect establishes a NATS connection with the configured retry policy.
// On failure it returns an error so the caller can fail fast or degrade.
func Connect(opts Options) (*nats.Conn, error) {
	if opts.URL == "" {
		opts.URL = strings.TrimSpace(os.Getenv("NATS_URL"))
		if opts.URL == "" {
			opts.URL = "nats://nats:4222"
		}
	}
	if opts.MaxReconnects == 0 {
		opts.MaxReconnects = config.EnvInt("NATS_MAX_RECONNECTS", 5)
	}
	if opts.ReconnectWait == 0 {
		opts.ReconnectWait = config.EnvDuration("NATS_RECONNECT_WAIT", 2*time.Second)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	nc, err := nats.Connect(opts.URL,
		nats.Name(opts.Name),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.RetryOnFailedConnect(false),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s (max_reconnects=%d, wait=%s): %w",
			opts.URL, opts.MaxReconnects, opts.ReconnectWait, err)
	}
	return nc, nil
}

const (
	// DefaultMaxAge bounds how long unconsumed messages are retained.
	DefaultMaxAge = 7 * 24 * time.Hour
	// DefaultDuplicateWindow is how long a Nats-Msg-Id suppresses a republish.
	DefaultDuplicateWindow = 2 * time.Minute
)

// StreamSpec describes a stream owned by one service. Zero durations take
// the package defaults.
type StreamSpec struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	DuplicateWindow time.Duration
}

func (s StreamSpec) config() *nats.StreamConfig {
	cfg := &nats.StreamConfig{
		Name:       s.Name,
		Subjects:   s.Subjects,
		Storage:    nats.FileStorage,
		MaxAge:     s.MaxAge,
		Duplicates: s.DuplicateWindow,
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Duplicates <= 0 {
		cfg.Duplicates = DefaultDuplicateWindow
	}
	return cfg
}

// StreamManager is the slice of nats.JetStreamContext used to declare streams.
type StreamManager interface {
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	UpdateStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// EnsureStream declares a stream with default retention.
func EnsureStream(js StreamManager, name string, subjects ...string) error {
	return EnsureStreamSpec(js, StreamSpec{Name: name, Subjects: subjects})
}

// EnsureStreamSpec creates the stream, or updates it if it already exists.
func EnsureStreamSpec(js StreamManager, stream StreamSpec) error {
	if stream.Name == "" || len(stream.Subjects) == 0 {
		return fmt.Errorf("ensure stream %q: name and subjects are required", stream.Name)
	}
	cfg := stream.config()
	_, err := js.AddStream(cfg)
	if err == nil {
		return nil
	}
	if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		_, err = js.UpdateStream(cfg)
	}
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", stream.Name, err)
	}
	return nil
}
