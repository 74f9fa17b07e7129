// Package queue carries analysis work between the API and the analysis
// backend over the NATS JetStream ANALYSIS stream.
package queue

import (
	"encoding/json"
	"time"
)

const (
	StreamName = "ANALYSIS"

	SubjectRequested = "analysis.requested"
	SubjectStatus    = "analysis.status"
)

// RequestedEvent asks the backend to analyse a video.
type RequestedEvent struct {
	EventID        string    `json:"event_id"`
	AnalysisID     string    `json:"analysis_id"`
	UserID         string    `json:"user_id"`
	YouTubeURL     string    `json:"youtube_url"`
	VideoID        string    `json:"video_id"`
	VideoTitle     string    `json:"video_title"`
	Company        string    `json:"company,omitempty"`
	Role           string    `json:"role,omitempty"`
	TargetPerson   string    `json:"target_person,omitempty"`
	TranscriptText string    `json:"transcript_text,omitempty"`
	RequestedAt    time.Time `json:"requested_at"`
}

// StatusEvent is a progress report from the backend.
type StatusEvent struct {
	EventID       string          `json:"event_id"`
	AnalysisID    string          `json:"analysis_id"`
	Status        string          `json:"status"`
	ResultPayload json.RawMessage `json:"result_payload,omitempty"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
}
