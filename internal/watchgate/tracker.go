package watchgate

import (
	"strings"
	"sync"
	"time"

	"github.com/example/comms-ninja/internal/platform/schedule"
)

// SampleInterval is how often the playing position is sampled.
const SampleInterval = time.Second

type PlaybackState string

const (
	StateUnstarted PlaybackState = "unstarted"
	StatePlaying   PlaybackState = "playing"
	StatePaused    PlaybackState = "paused"
	StateBuffering PlaybackState = "buffering"
	StateEnded     PlaybackState = "ended"
)

// ParseState accepts the state names and the numeric codes of the embed
// player API (-1 unstarted, 0 ended, 1 playing, 2 paused, 3 buffering).
func ParseState(raw string) (PlaybackState, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "playing", "1":
		return StatePlaying, true
	case "paused", "2":
		return StatePaused, true
	case "buffering", "3":
		return StateBuffering, true
	case "ended", "0":
		return StateEnded, true
	case "unstarted", "-1", "cued", "5":
		return StateUnstarted, true
	}
	return "", false
}

// Player is the video-embed collaborator the tracker samples from.
type Player interface {
	// CurrentTime returns the playback position in seconds.
	CurrentTime() float64
}

type Option func(*Tracker)

// WithScheduler replaces the runtime timers, mainly for tests.
func WithScheduler(s schedule.Scheduler) Option {
	return func(t *Tracker) { t.sched = s }
}

// WithOnOpen registers fn to run once, when the gate first opens.
// fn runs on the sampling goroutine after the tracker lock is released.
func WithOnOpen(fn func(Status)) Option {
	return func(t *Tracker) { t.onOpen = fn }
}

// Tracker drives a Gate from player callbacks: it owns the 1 Hz sampling
// timer, which runs only while the player reports playing.
type Tracker struct {
	mu       sync.Mutex
	gate     *Gate
	player   Player
	sched    schedule.Scheduler
	state    PlaybackState
	sampler  schedule.Handle
	closed   bool
	notified bool
	onOpen   func(Status)
}

func NewTracker(p Player, opts ...Option) *Tracker {
	t := &Tracker{
		gate:   New(),
		player: p,
		sched:  schedule.System{},
		state:  StateUnstarted,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// OnReady is called once the player knows the video duration.
func (t *Tracker) OnReady(durationSeconds float64) (Status, error) {
	t.mu.Lock()
	if t.closed {
		st := t.gate.Status()
		t.mu.Unlock()
		return st, nil
	}
	err := t.gate.SetDuration(durationSeconds)
	st, fire := t.statusLocked()
	t.mu.Unlock()

	t.notify(st, fire)
	return st, err
}

// OnStateChange arms the sampler on playing and cancels it on anything else.
// A frozen gate never re-arms it.
func (t *Tracker) OnStateChange(s PlaybackState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || s == t.state {
		return
	}
	t.state = s
	if s == StatePlaying && !t.gate.Transitioning() {
		if t.sampler == nil {
			t.sampler = schedule.Every(t.sched, SampleInterval, t.SampleTick)
		}
		return
	}
	t.stopSamplerLocked()
}

// SampleTick reads the current position and records it. Ticks that arrive
// while not playing (for example one already in flight during a pause) are ignored.
func (t *Tracker) SampleTick() {
	t.mu.Lock()
	if t.closed || t.state != StatePlaying {
		t.mu.Unlock()
		return
	}
	t.gate.Observe(t.player.CurrentTime())
	st, fire := t.statusLocked()
	t.mu.Unlock()

	t.notify(st, fire)
}

// RequestUnlock performs the gated action transition.
func (t *Tracker) RequestUnlock() (Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.gate.Unlock(); err != nil {
		return t.gate.Status(), err
	}
	t.stopSamplerLocked()
	return t.gate.Status(), nil
}

func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gate.Status()
}

func (t *Tracker) State() PlaybackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Close cancels the sampler; every later callback is a no-op. Safe to call twice.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.stopSamplerLocked()
}

func (t *Tracker) stopSamplerLocked() {
	if t.sampler != nil {
		t.sampler.Stop()
		t.sampler = nil
	}
}

// statusLocked returns the current status and whether the open notification is due.
func (t *Tracker) statusLocked() (Status, bool) {
	st := t.gate.Status()
	if t.gate.Open() && !t.notified {
		t.notified = true
		return st, t.onOpen != nil
	}
	return st, false
}

func (t *Tracker) notify(st Status, fire bool) {
	if fire {
		t.onOpen(st)
	}
}
