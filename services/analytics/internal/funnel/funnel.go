// Package funnel tracks how far each user gets through
// watch → gate → analysis → checkout.
package funnel

import (
	"sync"
	"time"
)

type Step int

const (
	StepNone Step = iota
	StepWatchStarted
	StepGateOpened
	StepAnalysisRequested
	StepCheckoutStarted
	StepCheckoutCompleted
)

var stepNames = [...]string{"none", "watch_started", "watch_gate_opened", "analysis_requested", "checkout_started", "checkout_completed"}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return "unknown"
	}
	return stepNames[s]
}

// StepFor maps an event name to its funnel step. Events outside the funnel
// return StepNone.
func StepFor(event string) Step {
	for i, n := range stepNames {
		if i > 0 && n == event {
			return Step(i)
		}
	}
	return StepNone
}

type progress struct {
	reached map[Step]bool
	seen    time.Time
}

// Tracker counts each user at most once per step while they stay active
// within the window.
type Tracker struct {
	mu     sync.Mutex
	users  map[string]*progress
	counts map[Step]int
	window time.Duration
	now    func() time.Time
}

func NewTracker(window time.Duration) *Tracker {
	return &Tracker{
		users:  make(map[string]*progress),
		counts: make(map[Step]int),
		window: window,
		now:    time.Now,
	}
}

// Record notes that userID reached step and reports whether it was the
// first time.
func (t *Tracker) Record(userID string, step Step) bool {
	if userID == "" || step == StepNone {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.users[userID]
	if !ok {
		p = &progress{reached: make(map[Step]bool)}
		t.users[userID] = p
	}
	p.seen = t.now()
	if p.reached[step] {
		return false
	}
	p.reached[step] = true
	t.counts[step]++
	return true
}

// Prune forgets users idle for longer than the window and returns how many.
func (t *Tracker) Prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-t.window)
	n := 0
	for id, p := range t.users {
		if p.seen.Before(cutoff) {
			delete(t.users, id)
			n++
		}
	}
	return n
}

// Snapshot returns the number of users that reached each step.
func (t *Tracker) Snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(stepNames)-1)
	for s := StepWatchStarted; s <= StepCheckoutCompleted; s++ {
		out[s.String()] = t.counts[s]
	}
	return out
}
