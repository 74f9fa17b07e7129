package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/comms-ninja/internal/analysis"
)

func newMemStore() *InMemoryAnalysisStore {
	s := NewInMemoryAnalysisStore()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	s.now = func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
	return s
}

func TestInMemory_CreateGet(t *testing.T) {
	s := newMemStore()
	ctx := context.Background()

	a, err := s.Create(ctx, Analysis{UserID: "u1", VideoID: "dQw4w9WgXcQ"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ID == "" || a.Status != analysis.StatusQueued {
		t.Fatalf("expected id and queued status, got %+v", a)
	}
	got, err := s.Get(ctx, a.ID)
	if err != nil || got.VideoID != "dQw4w9WgXcQ" {
		t.Fatalf("Get: %+v %v", got, err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemory_ListNewestFirst(t *testing.T) {
	s := newMemStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = s.Create(ctx, Analysis{UserID: "u1", VideoTitle: fmt.Sprintf("v%d", i)})
	}
	_, _ = s.Create(ctx, Analysis{UserID: "u2"})

	list, err := s.ListByUser(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3, got %d", len(list))
	}
	if list[0].VideoTitle != "v4" || list[2].VideoTitle != "v2" {
		t.Fatalf("unexpected order: %s, %s", list[0].VideoTitle, list[2].VideoTitle)
	}
}

func TestInMemory_ListEmptyIsNotNil(t *testing.T) {
	list, err := newMemStore().ListByUser(context.Background(), "nobody", 0)
	if err != nil || list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil list, got %v %v", list, err)
	}
}

func TestInMemory_UpdateStatus(t *testing.T) {
	s := newMemStore()
	ctx := context.Background()
	a, _ := s.Create(ctx, Analysis{UserID: "u1"})

	if _, err := s.UpdateStatus(ctx, a.ID, StatusUpdate{Status: analysis.StatusProcessing}); err != nil {
		t.Fatalf("to processing: %v", err)
	}
	done, err := s.UpdateStatus(ctx, a.ID, StatusUpdate{Status: analysis.StatusCompleted, ResultPayload: []byte(`{"score":9}`)})
	if err != nil {
		t.Fatalf("to completed: %v", err)
	}
	if string(done.ResultPayload) != `{"score":9}` || !done.UpdatedAt.After(done.CreatedAt) {
		t.Fatalf("unexpected completed analysis %+v", done)
	}

	msg := "late"
	if _, err := s.UpdateStatus(ctx, a.ID, StatusUpdate{Status: analysis.StatusFailed, ErrorMessage: &msg}); !errors.Is(err, analysis.ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	got, _ := s.Get(ctx, a.ID)
	if got.Status != analysis.StatusCompleted || got.ErrorMessage != nil {
		t.Fatalf("terminal analysis mutated: %+v", got)
	}
}

func TestInMemory_UpdateStatusUnknown(t *testing.T) {
	s := newMemStore()
	ctx := context.Background()
	a, _ := s.Create(ctx, Analysis{UserID: "u1"})
	if _, err := s.UpdateStatus(ctx, a.ID, StatusUpdate{Status: "exploded"}); !errors.Is(err, analysis.ErrUnknownStatus) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
	if _, err := s.UpdateStatus(ctx, "missing", StatusUpdate{Status: analysis.StatusFailed}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemory_WatchSessionAdmitsOnce(t *testing.T) {
	s := newMemStore()
	ctx := context.Background()

	first, err := s.Create(ctx, Analysis{UserID: "u1", WatchSessionID: "ws-1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(ctx, Analysis{UserID: "u1", WatchSessionID: "ws-1"}); !errors.Is(err, ErrReceiptUsed) {
		t.Fatalf("expected ErrReceiptUsed, got %v", err)
	}
	if _, err := s.Create(ctx, Analysis{UserID: "u1", WatchSessionID: "ws-2"}); err != nil {
		t.Fatalf("other session: %v", err)
	}
	// Demo submissions carry no session.
	for i := 0; i < 2; i++ {
		if _, err := s.Create(ctx, Analysis{UserID: "u1"}); err != nil {
			t.Fatalf("demo create %d: %v", i, err)
		}
	}

	if _, err := s.UpdateStatus(ctx, first.ID, StatusUpdate{Status: analysis.StatusFailed}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if _, err := s.Create(ctx, Analysis{UserID: "u1", WatchSessionID: "ws-1"}); err != nil {
		t.Fatalf("failed analysis should release the session: %v", err)
	}
}

func TestEntitlements_Static(t *testing.T) {
	ctx := context.Background()
	if IsPro(ctx, StaticEntitlements{}, "u1") {
		t.Fatal("zero static entitlements should be free")
	}
	if !IsPro(ctx, StaticEntitlements{Value: "PRO"}, "u1") {
		t.Fatal("expected pro")
	}
}

func TestClampLimit(t *testing.T) {
	cases := map[int]int{0: DefaultListLimit, -5: DefaultListLimit, 7: 7, 500: MaxListLimit}
	for in, want := range cases {
		if got := clampLimit(in); got != want {
			t.Fatalf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
