package sessions

import (
	"errors"
	"testing"
	"time"

	"github.com/example/comms-ninja/internal/platform/schedule"
	"github.com/example/comms-ninja/internal/watchgate"
)

func newTestRegistry(opts ...Option) (*Registry, *schedule.Fake) {
	clock := schedule.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewRegistry(append([]Option{WithScheduler(clock)}, opts...)...), clock
}

// watch sends one playing heartbeat per second for n seconds starting at from.
func watch(t *testing.T, r *Registry, clock *schedule.Fake, s *Session, from, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := r.Heartbeat(s.UserID, s.ID, watchgate.StatePlaying, float64(from+i)); err != nil {
			t.Fatalf("Heartbeat: %v", err)
		}
		clock.Advance(time.Second)
	}
}

func TestRegistry_HeartbeatsOpenShortVideo(t *testing.T) {
	var opened []string
	r, clock := newTestRegistry(WithOnOpen(func(s *Session, st watchgate.Status) {
		opened = append(opened, s.ID)
	}))
	s := r.Create("u1", "dQw4w9WgXcQ")

	st, err := r.Ready("u1", s.ID, 20)
	if err != nil || st.Threshold != 18 || st.Mode != watchgate.ModeClip {
		t.Fatalf("Ready: %+v %v", st, err)
	}

	watch(t, r, clock, s, 0, 20)

	st = s.Status()
	if st.Phase != watchgate.PhaseUnlocked {
		t.Fatalf("expected unlocked after watching, got %+v", st)
	}
	if len(opened) != 1 || opened[0] != s.ID {
		t.Fatalf("expected one open notification for session, got %v", opened)
	}

	if _, st, err = r.Unlock("u1", s.ID); err != nil || st.Phase != watchgate.PhaseTransitioning {
		t.Fatalf("Unlock: %+v %v", st, err)
	}
	if _, _, err = r.Unlock("u1", s.ID); !errors.Is(err, watchgate.ErrAlreadyRequested) {
		t.Fatalf("expected ErrAlreadyRequested, got %v", err)
	}
}

func TestRegistry_SilentClientExtrapolationIsCapped(t *testing.T) {
	r, clock := newTestRegistry()
	s := r.Create("u1", "vid")
	_, _ = r.Ready("u1", s.ID, 600)
	_, _ = r.Heartbeat("u1", s.ID, watchgate.StatePlaying, 0)

	clock.Advance(time.Minute)

	if got := s.Status().WatchedSeconds; got != int(MaxExtrapolation/time.Second) {
		t.Fatalf("expected %d seconds from extrapolation, got %d", int(MaxExtrapolation/time.Second), got)
	}
}

func TestRegistry_HeartbeatFloodDoesNotCount(t *testing.T) {
	r, _ := newTestRegistry()
	s := r.Create("u1", "vid")
	_, _ = r.Ready("u1", s.ID, 100)

	for pos := 0; pos < 100; pos++ {
		_, _ = r.Heartbeat("u1", s.ID, watchgate.StatePlaying, float64(pos))
	}
	if got := s.Status().WatchedSeconds; got != 0 {
		t.Fatalf("expected reports alone to add nothing, got %d", got)
	}
	if _, _, err := r.Unlock("u1", s.ID); !errors.Is(err, watchgate.ErrGateLocked) {
		t.Fatalf("expected ErrGateLocked, got %v", err)
	}
}

func TestRegistry_SeekToEndStaysLocked(t *testing.T) {
	r, clock := newTestRegistry()
	s := r.Create("u1", "vid")
	_, _ = r.Ready("u1", s.ID, 1200)

	watch(t, r, clock, s, 1190, 10)
	_, _ = r.Heartbeat("u1", s.ID, watchgate.StateEnded, 1200)
	clock.Advance(time.Minute)

	st := s.Status()
	if st.Phase != watchgate.PhaseLocked || st.WatchedSeconds > 11 {
		t.Fatalf("expected locked with few seconds, got %+v", st)
	}
}

func TestRegistry_PauseStopsSampling(t *testing.T) {
	r, clock := newTestRegistry()
	s := r.Create("u1", "vid")
	_, _ = r.Ready("u1", s.ID, 600)

	watch(t, r, clock, s, 0, 5)
	_, _ = r.Heartbeat("u1", s.ID, watchgate.StatePaused, 5)
	before := s.Status().WatchedSeconds
	clock.Advance(time.Minute)

	if got := s.Status().WatchedSeconds; got != before {
		t.Fatalf("sampling continued while paused: %d -> %d", before, got)
	}
	if s.State() != watchgate.StatePaused {
		t.Fatalf("expected paused, got %s", s.State())
	}
}

func TestRegistry_OtherUserCannotSeeSession(t *testing.T) {
	r, _ := newTestRegistry()
	s := r.Create("u1", "vid")

	if _, err := r.Get("u2", s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other user, got %v", err)
	}
	if err := r.Delete("u2", s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete by other user, got %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("session removed by other user")
	}
}

func TestRegistry_DeleteStopsSampler(t *testing.T) {
	var sizes []int
	r, clock := newTestRegistry(WithOnSizeChange(func(n int) { sizes = append(sizes, n) }))
	s := r.Create("u1", "vid")
	_, _ = r.Ready("u1", s.ID, 600)
	_, _ = r.Heartbeat("u1", s.ID, watchgate.StatePlaying, 0)

	if err := r.Delete("u1", s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if clock.Pending() != 0 {
		t.Fatalf("expected sampler cancelled, %d timers pending", clock.Pending())
	}
	if _, err := r.Get("u1", s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted session to be gone, got %v", err)
	}
	if len(sizes) != 2 || sizes[0] != 1 || sizes[1] != 0 {
		t.Fatalf("unexpected size notifications %v", sizes)
	}
}

func TestRegistry_CreateReplacesSameVideo(t *testing.T) {
	r, clock := newTestRegistry()
	first := r.Create("u1", "vid")
	_, _ = r.Ready("u1", first.ID, 600)
	_, _ = r.Heartbeat("u1", first.ID, watchgate.StatePlaying, 0)

	second := r.Create("u1", "vid")
	if _, err := r.Get("u1", first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected replaced session to be gone, got %v", err)
	}
	if _, err := r.Get("u1", second.ID); err != nil {
		t.Fatalf("Get new session: %v", err)
	}
	if clock.Pending() != 0 {
		t.Fatalf("expected replaced sampler cancelled, %d pending", clock.Pending())
	}
	r.Create("u2", "vid")
	if r.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", r.Len())
	}
	if _, err := r.Get("u1", second.ID); err != nil {
		t.Fatalf("another user's session must not replace ours: %v", err)
	}
}

func TestRegistry_CapsSessionsPerUser(t *testing.T) {
	var sizes []int
	r, _ := newTestRegistry(WithMaxPerUser(3), WithOnSizeChange(func(n int) { sizes = append(sizes, n) }))
	var created []*Session
	for _, vid := range []string{"v1", "v2", "v3", "v4", "v5"} {
		created = append(created, r.Create("u1", vid))
	}
	r.Create("u2", "v1")

	if r.Len() != 4 {
		t.Fatalf("expected 3 sessions for u1 plus 1 for u2, got %d", r.Len())
	}
	for i, s := range created {
		_, err := r.Get("u1", s.ID)
		if i < 2 && !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected oldest session %s evicted, got %v", s.VideoID, err)
		}
		if i >= 2 && err != nil {
			t.Fatalf("session %s should survive: %v", s.VideoID, err)
		}
	}
	if got := sizes[len(sizes)-1]; got != 4 {
		t.Fatalf("expected last size notification 4, got %d", got)
	}
}

func TestRegistry_SweepIdleSessions(t *testing.T) {
	r, clock := newTestRegistry(WithIdleTimeout(10 * time.Minute))
	idle := r.Create("u1", "vid")
	active := r.Create("u1", "vid2")
	r.StartSweeper()

	for i := 0; i < 12; i++ {
		clock.Advance(time.Minute)
		if _, err := r.Get("u1", active.ID); err != nil {
			t.Fatalf("active session swept at minute %d", i+1)
		}
	}

	if _, err := r.Get("u1", idle.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected idle session to be swept, got %v", err)
	}
	r.Close()
	if clock.Pending() != 0 {
		t.Fatalf("expected no timers after Close, got %d", clock.Pending())
	}
}

func TestRemotePlayer_Extrapolation(t *testing.T) {
	clock := schedule.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	p := NewRemotePlayer(clock)

	p.Report(30, true)
	clock.Advance(2 * time.Second)
	if got := p.CurrentTime(); got != 32 {
		t.Fatalf("expected 32, got %v", got)
	}
	clock.Advance(time.Hour)
	if got := p.CurrentTime(); got != 35 {
		t.Fatalf("expected cap at 35, got %v", got)
	}

	p.Report(40, false)
	clock.Advance(10 * time.Second)
	if got := p.CurrentTime(); got != 40 {
		t.Fatalf("expected paused position 40, got %v", got)
	}

	p.Report(-1, true)
	if got := p.CurrentTime(); got != 40 {
		t.Fatalf("expected negative report ignored, got %v", got)
	}
}
