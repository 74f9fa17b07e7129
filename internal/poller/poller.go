// Package poller follows a submitted analysis job until it reaches a terminal
// state or the attempt ceiling, reporting a presentable State after every fetch.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/example/comms-ninja/internal/analysis"
	"github.com/example/comms-ninja/internal/platform/schedule"
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 24
)

// Fetcher reads the job resource. Any error is a transport failure.
type Fetcher interface {
	FetchJob(ctx context.Context, id string) (analysis.Job, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id string) (analysis.Job, error)

func (f FetcherFunc) FetchJob(ctx context.Context, id string) (analysis.Job, error) {
	return f(ctx, id)
}

type Option func(*Poller)

func WithScheduler(s schedule.Scheduler) Option {
	return func(p *Poller) { p.sched = s }
}

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithErrorHook receives transport errors before they collapse into the
// generic network error state.
func WithErrorHook(fn func(error)) Option {
	return func(p *Poller) { p.onErr = fn }
}

// Poller keeps at most one fetch or timer outstanding. onState is invoked
// with the poller's lock held and must not call back into the Poller.
type Poller struct {
	fetcher     Fetcher
	onState     func(State)
	onErr       func(error)
	sched       schedule.Scheduler
	interval    time.Duration
	maxAttempts int

	mu       sync.Mutex
	jobID    string
	attempts int
	pending  schedule.Handle
	cancel   context.CancelFunc
	ctx      context.Context
	started  bool
	stopped  bool
}

func New(f Fetcher, onState func(State), opts ...Option) *Poller {
	p := &Poller{
		fetcher:     f,
		onState:     onState,
		sched:       schedule.System{},
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start issues the first fetch immediately. Calling Start twice, or after
// Stop, does nothing.
func (p *Poller) Start(ctx context.Context, jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	p.jobID = jobID
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.pending = p.sched.AfterFunc(0, p.poll)
}

// Stop cancels the pending timer and any in-flight request. It is synchronous
// and idempotent: once it returns no further state is delivered.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Poller) stopLocked() {
	if p.stopped {
		return
	}
	p.stopped = true
	if p.pending != nil {
		p.pending.Stop()
		p.pending = nil
	}
	if p.cancel != nil {
		p.cancel()
	}
}

// Attempts is the number of fetches that have completed.
func (p *Poller) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

func (p *Poller) poll() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	ctx, id := p.ctx, p.jobID
	p.pending = nil
	p.mu.Unlock()

	job, err := p.fetcher.FetchJob(ctx, id)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.attempts++

	var st State
	switch {
	case err != nil:
		if p.onErr != nil {
			p.onErr(err)
		}
		st = networkErrorState()
	default:
		st = MapJob(job)
	}
	st.Attempts = p.attempts

	if !st.Terminal() {
		if p.attempts >= p.maxAttempts {
			st = timedOutState(st)
		} else {
			p.pending = p.sched.AfterFunc(p.interval, p.poll)
		}
	}
	if st.Terminal() {
		p.stopLocked()
	}
	p.onState(st)
}

// Wait polls id until a terminal state and returns it. onState, when non-nil,
// sees every intermediate state. If ctx ends first, polling is stopped and
// ctx.Err() is returned.
func Wait(ctx context.Context, f Fetcher, id string, onState func(State), opts ...Option) (State, error) {
	done := make(chan State, 1)
	p := New(f, func(st State) {
		if onState != nil {
			onState(st)
		}
		if st.Terminal() {
			done <- st
		}
	}, opts...)
	p.Start(ctx, id)
	defer p.Stop()

	select {
	case st := <-done:
		return st, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}
