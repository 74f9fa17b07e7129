package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/comms-ninja/internal/platform/httpserver"
)

// ErrIncompleteRequest rejects a request the backend could not act on.
var ErrIncompleteRequest = errors.New("queue: analysis request needs event, analysis and video ids")

// MsgPublisher is the slice of nats.JetStreamContext used here.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher hands analysis requests to the backend. Without JetStream it
// logs and drops, which is only used outside production.
type Publisher struct {
	js  MsgPublisher
	log *zap.Logger
}

func NewPublisher(js nats.JetStreamContext, log *zap.Logger) *Publisher {
	p := &Publisher{log: log}
	if js != nil {
		p.js = js
	}
	return p
}

// Requested publishes ev and waits for the stream ack. The submitting
// request id rides along as a header so backend logs can be joined to ours.
func (p *Publisher) Requested(ctx context.Context, ev RequestedEvent) error {
	if p == nil || p.js == nil {
		if p != nil {
			p.log.Debug("analysis request dropped, no stream", zap.String("analysis_id", ev.AnalysisID))
		}
		return nil
	}
	if ev.EventID == "" || ev.AnalysisID == "" || ev.VideoID == "" {
		return ErrIncompleteRequest
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(SubjectRequested)
	msg.Data = data
	if rid := httpserver.RequestIDFromContext(ctx); rid != "" {
		msg.Header.Set(httpserver.RequestIDHeader, rid)
	}
	ack, err := p.js.PublishMsg(msg, nats.Context(ctx), nats.MsgId(ev.EventID))
	if err != nil {
		return fmt.Errorf("publish %s: %w", SubjectRequested, err)
	}
	p.log.Debug("analysis requested",
		zap.String("analysis_id", ev.AnalysisID),
		zap.Uint64("seq", ack.Sequence),
	)
	return nil
}
