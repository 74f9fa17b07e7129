// Package analysis defines the analysis job resource shared by the API
// service, its status consumer and the status poller.
package analysis

import (
	"encoding/json"
	"errors"
	"strings"
)

type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

var (
	ErrUnknownStatus = errors.New("analysis: unknown status")
	ErrTerminal      = errors.New("analysis: job already in a terminal state")
)

// Job is the status resource as served by GET /v1/analyses/{id}.
type Job struct {
	ID            string          `json:"id"`
	Status        Status          `json:"status"`
	ResultPayload json.RawMessage `json:"result_payload,omitempty"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
}

// Normalize maps the aliases written by the analysis backend onto the
// five canonical statuses. Unrecognised values come back unchanged.
func Normalize(s Status) Status {
	switch strings.ToLower(strings.TrimSpace(string(s))) {
	case "pending", "queued":
		return StatusQueued
	case "downloading":
		return StatusDownloading
	case "processing", "analyzing":
		return StatusProcessing
	case "completed":
		return StatusCompleted
	case "failed":
		return StatusFailed
	}
	return s
}

// Parse is Normalize that rejects anything outside the canonical set.
func Parse(raw string) (Status, error) {
	s := Normalize(Status(raw))
	if !s.Valid() {
		return "", ErrUnknownStatus
	}
	return s, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusDownloading, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition allows any move out of a non-terminal status; the backend
// may fall back from processing to downloading when no transcript exists.
func CanTransition(from, to Status) error {
	if !to.Valid() {
		return ErrUnknownStatus
	}
	if from.Terminal() {
		return ErrTerminal
	}
	return nil
}
