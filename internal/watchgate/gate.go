// Package watchgate enforces a minimum amount of genuinely watched video
// before the paid analysis action is unlocked.
//
// Progress is the number of distinct whole-second playback positions sampled
// while the video was playing. Seeking past content never adds those seconds
// and re-watching the same seconds adds nothing, so neither inflates progress.
package watchgate

import (
	"errors"
	"math"
)

const (
	// ShortVideoLimit separates clips (90% rule) from long-form video (flat floor).
	ShortVideoLimit = 300.0
	// ShortVideoRatio is the share of a short video's duration that must be watched.
	ShortVideoRatio = 0.9
	// LongVideoThreshold is the unique-second requirement for long-form video.
	LongVideoThreshold = 180
)

var (
	ErrDurationUnavailable = errors.New("watchgate: video duration unavailable")
	ErrGateLocked          = errors.New("watchgate: watch requirement not met")
	ErrAlreadyRequested    = errors.New("watchgate: unlocked action already requested")
)

type Phase string

const (
	PhaseLoading       Phase = "loading"
	PhaseLocked        Phase = "locked"
	PhaseUnlocked      Phase = "unlocked"
	PhaseTransitioning Phase = "transitioning"
)

type Mode string

const (
	ModeClip Mode = "clip_90p"
	ModeDeep Mode = "deep_obs_180s"
)

// ThresholdFor returns the unique-second requirement for a video of the given
// duration. ok is false when the duration is not usable yet.
func ThresholdFor(durationSeconds float64) (threshold int, ok bool) {
	if !validDuration(durationSeconds) {
		return 0, false
	}
	if durationSeconds < ShortVideoLimit {
		t := int(math.Floor(durationSeconds * ShortVideoRatio))
		return max(t, 1), true
	}
	return LongVideoThreshold, true
}

func validDuration(d float64) bool {
	return d > 0 && !math.IsNaN(d) && !math.IsInf(d, 0)
}

// Status is the presentable view of a gate.
type Status struct {
	Phase          Phase   `json:"phase"`
	Mode           Mode    `json:"mode,omitempty"`
	WatchedSeconds int     `json:"watched_seconds"`
	Threshold      int     `json:"threshold,omitempty"`
	Progress       float64 `json:"progress"`
	Duration       float64 `json:"duration_seconds,omitempty"`
}

// Gate is the watch-requirement state for one loaded video.
// It is not safe for concurrent use; Tracker serialises access.
type Gate struct {
	duration      float64
	threshold     int
	hasThreshold  bool
	watched       map[int]struct{}
	open          bool
	transitioning bool
}

func New() *Gate {
	return &Gate{watched: make(map[int]struct{})}
}

// SetDuration records the video duration and derives the threshold.
// An unusable duration leaves the gate closed and in the loading phase.
func (g *Gate) SetDuration(durationSeconds float64) error {
	t, ok := ThresholdFor(durationSeconds)
	if !ok {
		return ErrDurationUnavailable
	}
	g.duration = durationSeconds
	g.threshold = t
	g.hasThreshold = true
	g.recompute()
	return nil
}

// Observe inserts one sampled position. It reports whether the second was new.
// Negative and non-finite positions are dropped.
func (g *Gate) Observe(positionSeconds float64) bool {
	if g.transitioning || positionSeconds < 0 || math.IsNaN(positionSeconds) || math.IsInf(positionSeconds, 0) {
		return false
	}
	sec := int(math.Floor(positionSeconds))
	if _, seen := g.watched[sec]; seen {
		return false
	}
	g.watched[sec] = struct{}{}
	g.recompute()
	return true
}

// recompute latches the gate open; it never closes it again.
func (g *Gate) recompute() {
	if g.open || !g.hasThreshold {
		return
	}
	if len(g.watched) >= g.threshold {
		g.open = true
	}
}

func (g *Gate) Open() bool { return g.open }

func (g *Gate) WatchedSeconds() int { return len(g.watched) }

func (g *Gate) Threshold() (int, bool) { return g.threshold, g.hasThreshold }

// Transitioning reports whether Unlock has succeeded.
func (g *Gate) Transitioning() bool { return g.transitioning }

// Unlock performs the gated action transition. After a successful call the
// gate is frozen in the transitioning phase.
func (g *Gate) Unlock() error {
	if g.transitioning {
		return ErrAlreadyRequested
	}
	if !g.open {
		return ErrGateLocked
	}
	g.transitioning = true
	return nil
}

func (g *Gate) Status() Status {
	st := Status{WatchedSeconds: len(g.watched), Duration: g.duration}
	if !g.hasThreshold {
		st.Phase = PhaseLoading
		return st
	}
	st.Threshold = g.threshold
	st.Mode = ModeDeep
	if g.duration < ShortVideoLimit {
		st.Mode = ModeClip
	}
	st.Progress = math.Min(float64(len(g.watched))/float64(g.threshold)*100, 100)
	switch {
	case g.transitioning:
		st.Phase = PhaseTransitioning
	case g.open:
		st.Phase = PhaseUnlocked
		st.Progress = 100
	default:
		st.Phase = PhaseLocked
	}
	return st
}
