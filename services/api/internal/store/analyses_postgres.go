package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/comms-ninja/internal/analysis"
)

// PostgresAnalysisStore persists analyses in the video_analyses table.
type PostgresAnalysisStore struct {
	pool *pgxpool.Pool
}

func NewPostgresAnalysisStore(pool *pgxpool.Pool) *PostgresAnalysisStore {
	return &PostgresAnalysisStore{pool: pool}
}

const (
	uniqueViolation       = "23505"
	watchSessionIndexName = "video_analyses_watch_session_live_idx"
)

const analysisColumns = `id::text, user_id, youtube_url, video_id, video_title, company, role, target_person,
	status, result_payload, error_message, COALESCE(watch_session_id, ''), created_at, updated_at`

func scanAnalysis(row pgx.Row) (Analysis, error) {
	var a Analysis
	var status string
	err := row.Scan(&a.ID, &a.UserID, &a.YouTubeURL, &a.VideoID, &a.VideoTitle, &a.Company, &a.Role,
		&a.TargetPerson, &status, &a.ResultPayload, &a.ErrorMessage, &a.WatchSessionID, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Analysis{}, ErrNotFound
	}
	a.Status = analysis.Normalize(analysis.Status(status))
	return a, err
}

func (s *PostgresAnalysisStore) Create(ctx context.Context, a Analysis) (Analysis, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = analysis.StatusQueued
	}
	q := `INSERT INTO video_analyses
	        (id, user_id, youtube_url, video_id, video_title, company, role, target_person, status,
	         result_payload, error_message, watch_session_id)
	      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''))
	      RETURNING ` + analysisColumns
	out, err := scanAnalysis(s.pool.QueryRow(ctx, q, a.ID, a.UserID, a.YouTubeURL, a.VideoID, a.VideoTitle,
		a.Company, a.Role, a.TargetPerson, string(a.Status), a.ResultPayload, a.ErrorMessage, a.WatchSessionID))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == watchSessionIndexName {
		return Analysis{}, ErrReceiptUsed
	}
	return out, err
}

func (s *PostgresAnalysisStore) Get(ctx context.Context, id string) (Analysis, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Analysis{}, ErrNotFound
	}
	q := `SELECT ` + analysisColumns + ` FROM video_analyses WHERE id = $1`
	return scanAnalysis(s.pool.QueryRow(ctx, q, id))
}

func (s *PostgresAnalysisStore) ListByUser(ctx context.Context, userID string, limit int) ([]Analysis, error) {
	q := `SELECT ` + analysisColumns + ` FROM video_analyses
	      WHERE user_id = $1
	      ORDER BY created_at DESC, id DESC
	      LIMIT $2`
	rows, err := s.pool.Query(ctx, q, userID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateStatus locks the row so a concurrent update cannot move a job out
// of a terminal status.
func (s *PostgresAnalysisStore) UpdateStatus(ctx context.Context, id string, u StatusUpdate) (Analysis, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Analysis{}, ErrNotFound
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Analysis{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanAnalysis(tx.QueryRow(ctx, `SELECT `+analysisColumns+` FROM video_analyses WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Analysis{}, err
	}
	if err := analysis.CanTransition(current.Status, u.Status); err != nil {
		return current, err
	}

	q := `UPDATE video_analyses SET
	        status = $2,
	        result_payload = COALESCE($3, result_payload),
	        error_message = COALESCE($4, error_message),
	        updated_at = now()
	      WHERE id = $1
	      RETURNING ` + analysisColumns
	a, err := scanAnalysis(tx.QueryRow(ctx, q, id, string(u.Status), u.ResultPayload, u.ErrorMessage))
	if err != nil {
		return Analysis{}, err
	}
	return a, tx.Commit(ctx)
}
