// Package publisher emits billing outcomes to NATS JetStream for the API
// tier cache and the analytics sink.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectPaymentCompleted    = "billing.payment.completed"
	SubjectSubscriptionUpdated = "billing.subscription.updated"
	SubjectTierGranted         = "billing.tier.granted"

	// StreamName captures every billing.* subject.
	StreamName = "BILLING"
)

// JetStream is the publish half of nats.JetStreamContext.
type JetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher publishes billing events. Without a stream it only logs.
type Publisher struct {
	js  JetStream
	log *zap.Logger
	now func() time.Time
}

func New(js nats.JetStreamContext, log *zap.Logger) *Publisher {
	p := &Publisher{log: log, now: time.Now}
	if js == nil {
		log.Warn("billing events will not be published (stub mode)")
		return p
	}
	p.js = js
	return p
}

// BillingEvent is the payload on every billing.* subject. EventID is the
// Stripe event id that caused it.
type BillingEvent struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	UserID     string          `json:"user_id,omitempty"`
	Tier       string          `json:"tier,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// PaymentCompleted announces a settled checkout for userID.
func (p *Publisher) PaymentCompleted(ctx context.Context, stripeEventID, eventType, userID string, obj json.RawMessage) error {
	return p.publish(ctx, SubjectPaymentCompleted, BillingEvent{EventID: stripeEventID, EventType: eventType, UserID: userID, Data: obj})
}

// TierGranted tells consumers that userID now holds tier.
func (p *Publisher) TierGranted(ctx context.Context, stripeEventID, eventType, userID, tier string) error {
	return p.publish(ctx, SubjectTierGranted, BillingEvent{EventID: stripeEventID, EventType: eventType, UserID: userID, Tier: tier})
}

// SubscriptionUpdated forwards a paid invoice.
func (p *Publisher) SubscriptionUpdated(ctx context.Context, stripeEventID, eventType string, obj json.RawMessage) error {
	return p.publish(ctx, SubjectSubscriptionUpdated, BillingEvent{EventID: stripeEventID, EventType: eventType, Data: obj})
}

// publish is deduplicated per subject on the Stripe event id, so a webhook
// redelivery that reaches this point twice produces one message.
func (p *Publisher) publish(ctx context.Context, subject string, evt BillingEvent) error {
	if p.js == nil {
		p.log.Debug("billing publish skipped", zap.String("subject", subject), zap.String("event_id", evt.EventID))
		return nil
	}
	evt.OccurredAt = p.now().UTC()
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	ack, err := p.js.Publish(subject, data, nats.Context(ctx), nats.MsgId(subject+":"+evt.EventID))
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.log.Debug("billing event published",
		zap.String("subject", subject),
		zap.String("event_id", evt.EventID),
		zap.Uint64("seq", ack.Sequence),
		zap.Bool("duplicate", ack.Duplicate),
	)
	return nil
}
