package schedule

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Scheduler for tests. Tasks run synchronously
// inside Advance, in due-time order.
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*fakeTask
}

type fakeTask struct {
	f    *Fake
	when time.Time
	seq  int
	fn   func()
	done bool
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTask{f: f, when: f.now.Add(d), seq: f.seq, fn: fn}
	f.tasks = append(f.tasks, t)
	return t
}

// Pending is the number of tasks that have not run or been stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

// Advance moves the clock forward by d, running every task that falls due,
// including tasks scheduled by tasks that ran during this call.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		sort.SliceStable(f.tasks, func(i, j int) bool {
			if !f.tasks[i].when.Equal(f.tasks[j].when) {
				return f.tasks[i].when.Before(f.tasks[j].when)
			}
			return f.tasks[i].seq < f.tasks[j].seq
		})
		if len(f.tasks) == 0 || f.tasks[0].when.After(target) {
			f.now = target
			f.mu.Unlock()
			return
		}
		t := f.tasks[0]
		f.tasks = f.tasks[1:]
		t.done = true
		if t.when.After(f.now) {
			f.now = t.when
		}
		f.mu.Unlock()

		t.fn()
	}
}

func (t *fakeTask) Stop() bool {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	for i, other := range t.f.tasks {
		if other == t {
			t.f.tasks = append(t.f.tasks[:i], t.f.tasks[i+1:]...)
			break
		}
	}
	return true
}
