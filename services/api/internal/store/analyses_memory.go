package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/comms-ninja/internal/analysis"
)

// InMemoryAnalysisStore is a development-only in-memory implementation.
type InMemoryAnalysisStore struct {
	mu       sync.RWMutex
	analyses map[string]Analysis
	now      func() time.Time
}

func NewInMemoryAnalysisStore() *InMemoryAnalysisStore {
	return &InMemoryAnalysisStore{
		analyses: make(map[string]Analysis),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemoryAnalysisStore) Create(_ context.Context, a Analysis) (Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.WatchSessionID != "" {
		for _, other := range s.analyses {
			if other.WatchSessionID == a.WatchSessionID && other.Status != analysis.StatusFailed {
				return Analysis{}, ErrReceiptUsed
			}
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = analysis.StatusQueued
	}
	a.CreatedAt = s.now()
	a.UpdatedAt = a.CreatedAt
	s.analyses[a.ID] = a
	return a, nil
}

func (s *InMemoryAnalysisStore) Get(_ context.Context, id string) (Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.analyses[id]
	if !ok {
		return Analysis{}, ErrNotFound
	}
	return a, nil
}

func (s *InMemoryAnalysisStore) ListByUser(_ context.Context, userID string, limit int) ([]Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Analysis{}
	for _, a := range s.analyses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryAnalysisStore) UpdateStatus(_ context.Context, id string, u StatusUpdate) (Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.analyses[id]
	if !ok {
		return Analysis{}, ErrNotFound
	}
	if err := analysis.CanTransition(a.Status, u.Status); err != nil {
		return a, err
	}
	a.Status = u.Status
	if u.ResultPayload != nil {
		a.ResultPayload = u.ResultPayload
	}
	if u.ErrorMessage != nil {
		a.ErrorMessage = u.ErrorMessage
	}
	a.UpdatedAt = s.now()
	s.analyses[id] = a
	return a, nil
}
