// Package analytics publishes product events (gate opened, analysis requested,
// checkout started) to NATS without ever blocking the request path.
package analytics

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectWatchStarted      = "analytics.watch.started"
	SubjectWatchGateOpened   = "analytics.watch.gate_opened"
	SubjectAnalysisRequested = "analytics.analysis.requested"
	SubjectAnalysisViewed    = "analytics.analysis.viewed"
	SubjectCheckoutStarted   = "analytics.billing.checkout_started"
	SubjectCheckoutCompleted = "analytics.billing.checkout_completed"
)

// StreamName is the JetStream stream that captures every analytics.* subject.
const StreamName = "ANALYTICS"

// eventNames is the event_name carried for each subject.
var eventNames = map[string]string{
	SubjectWatchStarted:      "watch_started",
	SubjectWatchGateOpened:   "watch_gate_opened",
	SubjectAnalysisRequested: "analysis_requested",
	SubjectAnalysisViewed:    "analysis_viewed",
	SubjectCheckoutStarted:   "checkout_started",
	SubjectCheckoutCompleted: "checkout_completed",
}

// EventName returns the event name published on subject, or "" for
// subjects this package does not own.
func EventName(subject string) string { return eventNames[subject] }

var ErrInvalidEvent = errors.New("analytics: invalid event")

// Event is the envelope sent on every analytics.* subject.
type Event struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	Source     string         `json:"source,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Decode parses an envelope and rejects events without an id or name.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, errors.Join(ErrInvalidEvent, err)
	}
	if ev.EventID == "" || ev.EventName == "" {
		return Event{}, ErrInvalidEvent
	}
	return ev, nil
}

// AsyncPublisher is the slice of nats.JetStreamContext the Publisher needs.
type AsyncPublisher interface {
	PublishAsync(subj string, data []byte, opts ...nats.PubOpt) (nats.PubAckFuture, error)
}

// Publisher publishes analytics events without waiting for acks. A nil
// Publisher, or one built without a stream, drops everything.
type Publisher struct {
	js     AsyncPublisher
	log    *zap.Logger
	source string
	now    func() time.Time
}

// New returns a Publisher that stamps events with source. js may be nil.
func New(js nats.JetStreamContext, log *zap.Logger, source string) *Publisher {
	p := &Publisher{log: log, source: source, now: time.Now}
	if js != nil {
		p.js = js
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	return p
}

// Publish sends the event for subject. Failures are logged and never reach
// the caller. The event id doubles as the JetStream dedup id.
func (p *Publisher) Publish(subject, userID string, props map[string]any) {
	if p == nil || p.js == nil {
		return
	}
	name := EventName(subject)
	if name == "" {
		p.log.Warn("analytics: unknown subject", zap.String("subject", subject))
		return
	}
	ev := Event{
		EventID:    uuid.NewString(),
		EventName:  name,
		Source:     p.source,
		UserID:     userID,
		OccurredAt: p.now().UTC(),
		Properties: props,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("analytics: marshal failed", zap.String("event", name), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data, nats.MsgId(ev.EventID)); err != nil {
		p.log.Warn("analytics: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
