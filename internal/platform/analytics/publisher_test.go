package analytics

import (
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type sent struct {
	subject string
	data    []byte
}

type fakeJS struct {
	msgs []sent
	err  error
}

func (f *fakeJS) PublishAsync(subj string, data []byte, _ ...nats.PubOpt) (nats.PubAckFuture, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, sent{subject: subj, data: data})
	return nil, nil
}

func newTestPublisher(js AsyncPublisher) *Publisher {
	return &Publisher{
		js:     js,
		log:    zap.NewNop(),
		source: "api",
		now:    func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestPublish_NilPublisherIsNoop(t *testing.T) {
	var p *Publisher
	p.Publish(SubjectWatchGateOpened, "user-1", map[string]any{"threshold": 180})
}

func TestPublish_NoJetStreamIsNoop(t *testing.T) {
	p := New(nil, nil, "api")
	p.Publish(SubjectAnalysisRequested, "user-1", nil)
}

func TestPublish_Envelope(t *testing.T) {
	js := &fakeJS{}
	newTestPublisher(js).Publish(SubjectWatchGateOpened, "user-1", map[string]any{"threshold": 180})

	if len(js.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(js.msgs))
	}
	if js.msgs[0].subject != SubjectWatchGateOpened {
		t.Fatalf("unexpected subject %q", js.msgs[0].subject)
	}
	ev, err := Decode(js.msgs[0].data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.EventName != "watch_gate_opened" || ev.Source != "api" || ev.UserID != "user-1" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if !ev.OccurredAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %v", ev.OccurredAt)
	}
	if ev.Properties["threshold"] != float64(180) {
		t.Fatalf("expected threshold property, got %v", ev.Properties)
	}
}

func TestPublish_UnknownSubjectDropped(t *testing.T) {
	js := &fakeJS{}
	newTestPublisher(js).Publish("analytics.nope", "user-1", nil)
	if len(js.msgs) != 0 {
		t.Fatalf("expected nothing published, got %d", len(js.msgs))
	}
}

func TestPublish_ErrorIsSwallowed(t *testing.T) {
	newTestPublisher(&fakeJS{err: errors.New("nats: no responders")}).Publish(SubjectCheckoutStarted, "user-1", nil)
}

func TestDecode_Rejects(t *testing.T) {
	for _, raw := range []string{`not json`, `{}`, `{"event_id":"e1"}`, `{"event_name":"watch_started"}`} {
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("Decode(%s): expected ErrInvalidEvent, got %v", raw, err)
		}
	}
}

func TestEventNames(t *testing.T) {
	for subject, name := range eventNames {
		if EventName(subject) != name || name == "" {
			t.Fatalf("bad mapping %q -> %q", subject, name)
		}
	}
	if EventName("billing.payment.completed") != "" {
		t.Fatal("billing subjects are not analytics events")
	}
}
