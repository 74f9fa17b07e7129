package analysis

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := map[Status]Status{
		"pending":     StatusQueued,
		"QUEUED":      StatusQueued,
		" analyzing ": StatusProcessing,
		"downloading": StatusDownloading,
		"completed":   StatusCompleted,
		"failed":      StatusFailed,
		"mystery":     "mystery",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParse_RejectsUnknown(t *testing.T) {
	if _, err := Parse("mystery"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
	s, err := Parse("pending")
	if err != nil || s != StatusQueued {
		t.Fatalf("expected queued, got %q (%v)", s, err)
	}
}

func TestCanTransition(t *testing.T) {
	if err := CanTransition(StatusProcessing, StatusDownloading); err != nil {
		t.Fatalf("processing -> downloading should be allowed: %v", err)
	}
	if err := CanTransition(StatusQueued, StatusCompleted); err != nil {
		t.Fatalf("queued -> completed should be allowed: %v", err)
	}
	if err := CanTransition(StatusCompleted, StatusFailed); !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	if err := CanTransition(StatusFailed, StatusProcessing); !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	if err := CanTransition(StatusQueued, "bogus"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
}
