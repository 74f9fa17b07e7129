// Package sessions holds the server-side watch sessions. Each session owns a
// watchgate.Tracker sampling a RemotePlayer, so the watch requirement is
// measured by the server rather than reported by the browser.
package sessions

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/comms-ninja/internal/platform/schedule"
	"github.com/example/comms-ninja/internal/watchgate"
)

var ErrNotFound = errors.New("sessions: not found")

const (
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultMaxPerUser    = 5
	defaultSweepInterval = time.Minute
)

// Session is one user watching one video.
type Session struct {
	ID        string
	UserID    string
	VideoID   string
	CreatedAt time.Time

	tracker  *watchgate.Tracker
	player   *RemotePlayer
	lastSeen time.Time
	seq      uint64
}

func (s *Session) Status() watchgate.Status { return s.tracker.Status() }

func (s *Session) State() watchgate.PlaybackState { return s.tracker.State() }

type Option func(*Registry)

func WithScheduler(s schedule.Scheduler) Option {
	return func(r *Registry) { r.sched = s }
}

func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.idle = d
		}
	}
}

// WithMaxPerUser caps the live sessions of one user; Create evicts the
// oldest beyond it.
func WithMaxPerUser(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxPerUser = n
		}
	}
}

// WithOnOpen is called once per session when its gate opens.
func WithOnOpen(fn func(*Session, watchgate.Status)) Option {
	return func(r *Registry) { r.onOpen = fn }
}

// WithOnSizeChange receives the session count after every change.
func WithOnSizeChange(fn func(int)) Option {
	return func(r *Registry) { r.onSize = fn }
}

type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	sched      schedule.Scheduler
	idle       time.Duration
	maxPerUser int
	seq        uint64
	onOpen     func(*Session, watchgate.Status)
	onSize     func(int)
	sweeper    schedule.Handle
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions:   make(map[string]*Session),
		sched:      schedule.System{},
		idle:       DefaultIdleTimeout,
		maxPerUser: DefaultMaxPerUser,
		onSize:     func(int) {},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Create starts a session for userID watching videoID. It replaces the
// user's earlier session for the same video and keeps at most maxPerUser
// sessions per user, closing the oldest.
func (r *Registry) Create(userID, videoID string) *Session {
	now := r.sched.Now()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		VideoID:   videoID,
		CreatedAt: now,
		player:    NewRemotePlayer(r.sched),
		lastSeen:  now,
	}
	opts := []watchgate.Option{watchgate.WithScheduler(r.sched)}
	if r.onOpen != nil {
		onOpen := r.onOpen
		opts = append(opts, watchgate.WithOnOpen(func(st watchgate.Status) { onOpen(s, st) }))
	}
	s.tracker = watchgate.NewTracker(s.player, opts...)

	r.mu.Lock()
	r.seq++
	s.seq = r.seq
	evicted := r.evictLocked(userID, videoID)
	r.sessions[s.ID] = s
	n := len(r.sessions)
	r.mu.Unlock()

	for _, old := range evicted {
		old.tracker.Close()
	}
	r.onSize(n)
	return s
}

// evictLocked removes the user's session for videoID and then the oldest
// sessions until one more fits under the cap.
func (r *Registry) evictLocked(userID, videoID string) []*Session {
	var evicted, mine []*Session
	for id, s := range r.sessions {
		if s.UserID != userID {
			continue
		}
		if s.VideoID == videoID {
			evicted = append(evicted, s)
			delete(r.sessions, id)
			continue
		}
		mine = append(mine, s)
	}
	if over := len(mine) - (r.maxPerUser - 1); over > 0 {
		sort.Slice(mine, func(i, j int) bool { return mine[i].seq < mine[j].seq })
		for _, s := range mine[:over] {
			evicted = append(evicted, s)
			delete(r.sessions, s.ID)
		}
	}
	return evicted
}

// Get returns the caller's session. Sessions of other users are not found.
func (r *Registry) Get(userID, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.UserID != userID {
		return nil, ErrNotFound
	}
	s.lastSeen = r.sched.Now()
	return s, nil
}

// Ready passes the video duration reported by the player.
func (r *Registry) Ready(userID, id string, durationSeconds float64) (watchgate.Status, error) {
	s, err := r.Get(userID, id)
	if err != nil {
		return watchgate.Status{}, err
	}
	return s.tracker.OnReady(durationSeconds)
}

// Heartbeat records the reported position and then applies the playback state.
func (r *Registry) Heartbeat(userID, id string, state watchgate.PlaybackState, positionSeconds float64) (watchgate.Status, error) {
	s, err := r.Get(userID, id)
	if err != nil {
		return watchgate.Status{}, err
	}
	s.player.Report(positionSeconds, state == watchgate.StatePlaying)
	s.tracker.OnStateChange(state)
	return s.tracker.Status(), nil
}

// Unlock performs the gated transition for the session.
func (r *Registry) Unlock(userID, id string) (*Session, watchgate.Status, error) {
	s, err := r.Get(userID, id)
	if err != nil {
		return nil, watchgate.Status{}, err
	}
	st, err := s.tracker.RequestUnlock()
	return s, st, err
}

// Delete closes and forgets the session.
func (r *Registry) Delete(userID, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok || s.UserID != userID {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	s.tracker.Close()
	r.onSize(n)
	return nil
}

// Sweep closes sessions idle for longer than the idle timeout and returns
// how many were removed.
func (r *Registry) Sweep() int {
	cutoff := r.sched.Now().Add(-r.idle)
	var stale []*Session

	r.mu.Lock()
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	for _, s := range stale {
		s.tracker.Close()
	}
	if len(stale) > 0 {
		r.onSize(n)
	}
	return len(stale)
}

// StartSweeper runs Sweep periodically until Close.
func (r *Registry) StartSweeper() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sweeper == nil {
		r.sweeper = schedule.Every(r.sched, defaultSweepInterval, func() { r.Sweep() })
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops the sweeper and every session's sampler.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.sweeper != nil {
		r.sweeper.Stop()
		r.sweeper = nil
	}
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range all {
		s.tracker.Close()
	}
	r.onSize(0)
}
