// Package schedule models timers as cancellable handles so every owner can
// release them deterministically on all exit paths.
package schedule

import (
	"sync"
	"time"
)

// Handle is a pending scheduled task. Stop is idempotent and reports whether
// this call prevented the task from running.
type Handle interface {
	Stop() bool
}

// Scheduler runs functions after a delay and exposes the clock it uses.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Handle
	Now() time.Time
}

// System is the Scheduler backed by the runtime timers.
type System struct{}

func (System) AfterFunc(d time.Duration, f func()) Handle {
	return time.AfterFunc(d, f)
}

func (System) Now() time.Time { return time.Now() }

type repeating struct {
	mu      sync.Mutex
	s       Scheduler
	d       time.Duration
	f       func()
	cur     Handle
	stopped bool
}

// Every runs f every d until the returned handle is stopped. The next run is
// armed only after f returns, so runs never overlap.
func Every(s Scheduler, d time.Duration, f func()) Handle {
	r := &repeating{s: s, d: d, f: f}
	r.mu.Lock()
	r.cur = s.AfterFunc(d, r.fire)
	r.mu.Unlock()
	return r
}

func (r *repeating) fire() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.f()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped {
		r.cur = r.s.AfterFunc(r.d, r.fire)
	}
}

func (r *repeating) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.stopped = true
	if r.cur != nil {
		r.cur.Stop()
	}
	return true
}
