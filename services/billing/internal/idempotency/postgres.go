package idempotency

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresStore claims ids in processed_events. A row older than ttl is
// re-claimed in place, so the table honours the same window as Redis.
type postgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func newPostgresStore(pool *pgxpool.Pool, ttl time.Duration) *postgresStore {
	return &postgresStore{pool: pool, ttl: ttl}
}

const claimEvent = `
INSERT INTO processed_events AS p (event_id, created_at)
VALUES ($1, now())
ON CONFLICT (event_id) DO UPDATE SET created_at = now()
WHERE $2::bigint > 0 AND p.created_at < now() - make_interval(secs => $2::bigint)`

func (s *postgresStore) Check(ctx context.Context, eventID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, claimEvent, eventID, int64(s.ttl/time.Second))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 0, nil
}

func (s *postgresStore) Forget(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM processed_events WHERE event_id = $1`, eventID)
	return err
}
