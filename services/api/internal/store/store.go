// Package store persists analyses and user entitlements.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/example/comms-ninja/internal/analysis"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrReceiptUsed means another live analysis was admitted with the same
	// watch session.
	ErrReceiptUsed = errors.New("store: watch session already used")
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Analysis is one submitted video analysis.
type Analysis struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	YouTubeURL    string          `json:"youtube_url"`
	VideoID       string          `json:"video_id"`
	VideoTitle    string          `json:"video_title"`
	Company       string          `json:"company,omitempty"`
	Role          string          `json:"role,omitempty"`
	TargetPerson  string          `json:"target_person,omitempty"`
	Status        analysis.Status `json:"status"`
	ResultPayload json.RawMessage `json:"result_payload,omitempty"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// WatchSessionID is the session whose receipt admitted the analysis.
	// Empty for demo submissions.
	WatchSessionID string `json:"-"`
}

// Job projects the status resource.
func (a Analysis) Job() analysis.Job {
	return analysis.Job{
		ID:            a.ID,
		Status:        a.Status,
		ResultPayload: a.ResultPayload,
		ErrorMessage:  a.ErrorMessage,
	}
}

// StatusUpdate is a transition reported by the analysis backend or an admin.
type StatusUpdate struct {
	Status        analysis.Status
	ResultPayload json.RawMessage
	ErrorMessage  *string
}

// AnalysisStore defines the contract for analysis persistence.
type AnalysisStore interface {
	// Create returns ErrReceiptUsed when a.WatchSessionID already admitted
	// an analysis that has not failed.
	Create(ctx context.Context, a Analysis) (Analysis, error)
	Get(ctx context.Context, id string) (Analysis, error)
	// ListByUser returns the user's analyses, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]Analysis, error)
	// UpdateStatus applies u unless the analysis is already terminal,
	// in which case it returns analysis.ErrTerminal.
	UpdateStatus(ctx context.Context, id string, u StatusUpdate) (Analysis, error)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}
