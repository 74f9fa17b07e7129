package sessions

import (
	"math"
	"sync"
	"time"

	"github.com/example/comms-ninja/internal/platform/schedule"
)

// MaxExtrapolation bounds how far playback is projected past the last
// client report. A silent client cannot accrue more than this.
const MaxExtrapolation = 5 * time.Second

// RemotePlayer is the server's view of a browser embed, fed by heartbeats.
// While playing, the position advances with the server clock from the last
// report, so the gate's 1 Hz sampler sees one new second per real second no
// matter how often the client reports.
type RemotePlayer struct {
	mu         sync.Mutex
	clock      schedule.Scheduler
	position   float64
	reportedAt time.Time
	playing    bool
}

func NewRemotePlayer(clock schedule.Scheduler) *RemotePlayer {
	return &RemotePlayer{clock: clock, reportedAt: clock.Now()}
}

// Report records a heartbeat. Non-finite or negative positions keep the
// previous position but still update the playing flag.
func (p *RemotePlayer) Report(position float64, playing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if position >= 0 && !math.IsNaN(position) && !math.IsInf(position, 0) {
		p.position = position
	}
	p.reportedAt = p.clock.Now()
	p.playing = playing
}

func (p *RemotePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return p.position
	}
	elapsed := min(p.clock.Now().Sub(p.reportedAt), MaxExtrapolation)
	if elapsed < 0 {
		elapsed = 0
	}
	return p.position + elapsed.Seconds()
}
