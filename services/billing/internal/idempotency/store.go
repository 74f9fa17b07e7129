// Package idempotency deduplicates Stripe webhook deliveries by event id.
//
// Redis SETNX with a TTL is preferred, then a Postgres processed_events row.
// The in-memory store exists for local development only.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Store claims an event id before it is processed.
type Store interface {
	// Check reports whether eventID was already claimed, claiming it if not.
	Check(ctx context.Context, eventID string) (duplicate bool, err error)
	// Forget releases a claim so a failed delivery can be retried.
	Forget(ctx context.Context, eventID string) error
}

type Options struct {
	RedisDSN string
	Pool     *pgxpool.Pool
	TTL      time.Duration
	IsProd   bool
}

// NewStore picks Redis, then Postgres, then memory. Production refuses the
// memory store.
func NewStore(opts Options) (Store, error) {
	if opts.RedisDSN != "" {
		ro, err := redis.ParseURL(opts.RedisDSN)
		if err != nil {
			ro = &redis.Options{Addr: opts.RedisDSN}
		}
		return newRedisStore(redis.NewClient(ro), opts.TTL), nil
	}
	if opts.Pool != nil {
		return newPostgresStore(opts.Pool, opts.TTL), nil
	}
	if opts.IsProd {
		return nil, errors.New("production requires REDIS_DSN or DATABASE_URL for idempotency; in-memory store is not allowed")
	}
	return newMemoryStore(opts.TTL), nil
}
