package idempotency

import (
	"context"
	"sync"
	"time"
)

// memoryStore is per-process and lost on restart. Claims older than ttl are
// reclaimable, matching the Redis key expiry.
type memoryStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	claims map[string]time.Time
}

func newMemoryStore(ttl time.Duration) *memoryStore {
	return &memoryStore{ttl: ttl, now: time.Now, claims: make(map[string]time.Time)}
}

func (s *memoryStore) Check(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if at, ok := s.claims[eventID]; ok && (s.ttl <= 0 || now.Sub(at) < s.ttl) {
		return true, nil
	}
	s.claims[eventID] = now
	if len(s.claims)%256 == 0 {
		s.evictLocked(now)
	}
	return false, nil
}

func (s *memoryStore) Forget(_ context.Context, eventID string) error {
	s.mu.Lock()
	delete(s.claims, eventID)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) evictLocked(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	for id, at := range s.claims {
		if now.Sub(at) >= s.ttl {
			delete(s.claims, id)
		}
	}
}
