// Package store records billing outcomes: payments, subscriptions and the
// tier they grant.
package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TierPro is the tier a completed checkout grants.
const TierPro = "pro"

// Ledger persists webhook outcomes. Each call is atomic.
type Ledger interface {
	// RecordCheckout stores the payment and grants TierPro to userID.
	RecordCheckout(ctx context.Context, eventID, userID string, raw json.RawMessage) error
	RecordInvoice(ctx context.Context, eventID string, raw json.RawMessage) error
}

// PostgresLedger writes to the payments, subscriptions and users tables.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

func (s *PostgresLedger) RecordCheckout(ctx context.Context, eventID, userID string, raw json.RawMessage) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		const payment = `INSERT INTO payments (event_id, user_id, raw_data)
		                 VALUES ($1, $2, $3)
		                 ON CONFLICT (event_id) DO NOTHING`
		if _, err := tx.Exec(ctx, payment, eventID, userID, raw); err != nil {
			return err
		}
		const grant = `INSERT INTO users (id, tier, updated_at)
		               VALUES ($1, $2, now())
		               ON CONFLICT (id) DO UPDATE SET tier = EXCLUDED.tier, updated_at = now()`
		_, err := tx.Exec(ctx, grant, userID, TierPro)
		return err
	})
}

func (s *PostgresLedger) RecordInvoice(ctx context.Context, eventID string, raw json.RawMessage) error {
	const q = `INSERT INTO subscriptions (event_id, raw_data)
	           VALUES ($1, $2)
	           ON CONFLICT (event_id) DO UPDATE SET
	             raw_data = EXCLUDED.raw_data,
	             updated_at = now()`
	_, err := s.pool.Exec(ctx, q, eventID, raw)
	return err
}

// MemoryLedger keeps outcomes in process for development and tests.
type MemoryLedger struct {
	mu            sync.Mutex
	payments      map[string]string
	subscriptions map[string]json.RawMessage
	tiers         map[string]string
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		payments:      make(map[string]string),
		subscriptions: make(map[string]json.RawMessage),
		tiers:         make(map[string]string),
	}
}

func (s *MemoryLedger) RecordCheckout(_ context.Context, eventID, userID string, _ json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[eventID]; !ok {
		s.payments[eventID] = userID
	}
	s.tiers[userID] = TierPro
	return nil
}

func (s *MemoryLedger) RecordInvoice(_ context.Context, eventID string, raw json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[eventID] = raw
	return nil
}

// Tier returns the tier granted to userID, or "" when none was.
func (s *MemoryLedger) Tier(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tiers[userID]
}

func (s *MemoryLedger) Payments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}

func (s *MemoryLedger) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscriptions)
}
