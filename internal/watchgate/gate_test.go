package watchgate

import (
	"errors"
	"math"
	"testing"
)

func TestThresholdFor(t *testing.T) {
	cases := []struct {
		duration float64
		want     int
		ok       bool
	}{
		{250, 225, true},
		{299.9, 269, true},
		{300, 180, true},
		{600, 180, true},
		{3 * 3600, 180, true},
		{1, 1, true},
		{0.5, 1, true},
		{0, 0, false},
		{-10, 0, false},
		{math.NaN(), 0, false},
		{math.Inf(1), 0, false},
	}
	for _, c := range cases {
		got, ok := ThresholdFor(c.duration)
		if got != c.want || ok != c.ok {
			t.Fatalf("ThresholdFor(%v) = (%d, %v), want (%d, %v)", c.duration, got, ok, c.want, c.ok)
		}
	}
}

func observeRange(g *Gate, from, to int) {
	for s := from; s < to; s++ {
		g.Observe(float64(s))
	}
}

func TestGate_ShortVideoOpensAtNinetyPercent(t *testing.T) {
	g := New()
	if err := g.SetDuration(250); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	observeRange(g, 0, 224)
	if g.Open() {
		t.Fatal("gate opened at 224 unique seconds")
	}
	g.Observe(224)
	if !g.Open() {
		t.Fatal("gate should open at 225 unique seconds")
	}
	if st := g.Status(); st.Mode != ModeClip || st.Phase != PhaseUnlocked || st.Progress != 100 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestGate_LongVideoOpensAt180(t *testing.T) {
	g := New()
	_ = g.SetDuration(600)
	observeRange(g, 100, 279)
	if g.Open() {
		t.Fatal("gate opened at 179 unique seconds")
	}
	g.Observe(500.7)
	if !g.Open() {
		t.Fatal("gate should open at 180 unique seconds")
	}
	if st := g.Status(); st.Mode != ModeDeep || st.Threshold != 180 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestGate_RewatchingAddsNothing(t *testing.T) {
	g := New()
	_ = g.SetDuration(600)
	for i := 0; i < 50; i++ {
		g.Observe(float64(i % 10))
		g.Observe(float64(i%10) + 0.6)
	}
	if got := g.WatchedSeconds(); got != 10 {
		t.Fatalf("expected 10 unique seconds, got %d", got)
	}
}

func TestGate_InvalidDurationStaysLoading(t *testing.T) {
	g := New()
	for _, d := range []float64{0, math.NaN()} {
		if err := g.SetDuration(d); !errors.Is(err, ErrDurationUnavailable) {
			t.Fatalf("expected ErrDurationUnavailable for %v, got %v", d, err)
		}
	}
	observeRange(g, 0, 1000)
	if g.Open() {
		t.Fatal("gate must stay closed without a threshold")
	}
	if st := g.Status(); st.Phase != PhaseLoading || st.WatchedSeconds != 1000 {
		t.Fatalf("unexpected status %+v", st)
	}

	// A valid duration arriving later opens it immediately.
	_ = g.SetDuration(600)
	if !g.Open() {
		t.Fatal("expected gate to open once duration known")
	}
}

func TestGate_StaysOpenWhenThresholdRises(t *testing.T) {
	g := New()
	_ = g.SetDuration(100)
	observeRange(g, 0, 90)
	if !g.Open() {
		t.Fatal("expected open at 90/90")
	}
	_ = g.SetDuration(280)
	if !g.Open() {
		t.Fatal("gate must never revert to closed")
	}
}

func TestGate_IgnoresBadPositions(t *testing.T) {
	g := New()
	_ = g.SetDuration(600)
	for _, p := range []float64{-1, math.NaN(), math.Inf(1)} {
		if g.Observe(p) {
			t.Fatalf("position %v should be ignored", p)
		}
	}
	if g.WatchedSeconds() != 0 {
		t.Fatalf("expected nothing recorded, got %d", g.WatchedSeconds())
	}
}

func TestGate_Unlock(t *testing.T) {
	g := New()
	_ = g.SetDuration(10)
	if err := g.Unlock(); !errors.Is(err, ErrGateLocked) {
		t.Fatalf("expected ErrGateLocked, got %v", err)
	}
	observeRange(g, 0, 9)
	if g.Transitioning() {
		t.Fatal("not transitioning before Unlock")
	}
	if err := g.Unlock(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !g.Transitioning() {
		t.Fatal("expected transitioning after Unlock")
	}
	if err := g.Unlock(); !errors.Is(err, ErrAlreadyRequested) {
		t.Fatalf("expected ErrAlreadyRequested, got %v", err)
	}
	if g.Observe(9) {
		t.Fatal("no gate mutation after the unlocked action")
	}
	if st := g.Status(); st.Phase != PhaseTransitioning {
		t.Fatalf("expected transitioning, got %s", st.Phase)
	}
}

func TestGate_ProgressCapped(t *testing.T) {
	g := New()
	_ = g.SetDuration(600)
	observeRange(g, 0, 90)
	if st := g.Status(); st.Progress != 50 || st.Phase != PhaseLocked {
		t.Fatalf("expected 50%% locked, got %+v", st)
	}
}
