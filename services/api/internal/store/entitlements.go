package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	TierFree = "free"
	TierPro  = "pro"
)

// Entitlements answers which tier a user is on.
type Entitlements interface {
	Tier(ctx context.Context, userID string) (string, error)
}

// IsPro reports whether userID may see full reports. Lookup errors deny.
func IsPro(ctx context.Context, e Entitlements, userID string) bool {
	tier, err := e.Tier(ctx, userID)
	return err == nil && strings.EqualFold(tier, TierPro)
}

// StaticEntitlements grants the same tier to everyone (development only).
type StaticEntitlements struct {
	Value string
}

func (s StaticEntitlements) Tier(context.Context, string) (string, error) {
	if s.Value == "" {
		return TierFree, nil
	}
	return s.Value, nil
}

// PostgresEntitlements reads users.tier; unknown users are free.
type PostgresEntitlements struct {
	pool *pgxpool.Pool
}

func NewPostgresEntitlements(pool *pgxpool.Pool) *PostgresEntitlements {
	return &PostgresEntitlements{pool: pool}
}

func (s *PostgresEntitlements) Tier(ctx context.Context, userID string) (string, error) {
	var tier string
	err := s.pool.QueryRow(ctx, `SELECT tier FROM users WHERE id = $1`, userID).Scan(&tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return TierFree, nil
	}
	return tier, err
}
