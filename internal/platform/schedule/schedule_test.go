package schedule

import (
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFake_AfterFuncRunsWhenDue(t *testing.T) {
	f := NewFake(epoch)
	ran := 0
	f.AfterFunc(5*time.Second, func() { ran++ })

	f.Advance(4 * time.Second)
	if ran != 0 {
		t.Fatalf("ran early")
	}
	f.Advance(time.Second)
	if ran != 1 {
		t.Fatalf("expected one run, got %d", ran)
	}
	if f.Pending() != 0 {
		t.Fatalf("expected no pending tasks, got %d", f.Pending())
	}
	if !f.Now().Equal(epoch.Add(5 * time.Second)) {
		t.Fatalf("unexpected clock %s", f.Now())
	}
}

func TestFake_StopIsIdempotent(t *testing.T) {
	f := NewFake(epoch)
	ran := false
	h := f.AfterFunc(time.Second, func() { ran = true })

	if !h.Stop() {
		t.Fatal("first stop should report it prevented the run")
	}
	if h.Stop() {
		t.Fatal("second stop should be a no-op")
	}
	f.Advance(time.Minute)
	if ran {
		t.Fatal("stopped task ran")
	}
}

func TestFake_ZeroDelayRunsOnAdvanceZero(t *testing.T) {
	f := NewFake(epoch)
	ran := false
	f.AfterFunc(0, func() { ran = true })
	f.Advance(0)
	if !ran {
		t.Fatal("expected zero-delay task to run")
	}
}

func TestEvery_RepeatsUntilStopped(t *testing.T) {
	f := NewFake(epoch)
	n := 0
	h := Every(f, time.Second, func() { n++ })

	f.Advance(10 * time.Second)
	if n != 10 {
		t.Fatalf("expected 10 runs, got %d", n)
	}
	h.Stop()
	f.Advance(10 * time.Second)
	if n != 10 {
		t.Fatalf("expected no runs after stop, got %d", n)
	}
	if f.Pending() != 0 {
		t.Fatalf("expected no pending tasks, got %d", f.Pending())
	}
}

func TestEvery_StopFromInsideCallback(t *testing.T) {
	f := NewFake(epoch)
	n := 0
	var h Handle
	h = Every(f, time.Second, func() {
		n++
		if n == 3 {
			h.Stop()
		}
	})
	f.Advance(time.Minute)
	if n != 3 {
		t.Fatalf("expected 3 runs, got %d", n)
	}
}

func TestSystem_AfterFunc(t *testing.T) {
	var fired atomic.Bool
	done := make(chan struct{})
	System{}.AfterFunc(time.Millisecond, func() {
		fired.Store(true)
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	if !fired.Load() {
		t.Fatal("expected fired")
	}
}
