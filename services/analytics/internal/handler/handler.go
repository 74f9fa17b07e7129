// Package handler turns raw stream messages into funnel progress and
// per-event counters.
package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/example/comms-ninja/internal/platform/analytics"
	"github.com/example/comms-ninja/internal/platform/api"
	"github.com/example/comms-ninja/internal/platform/metrics"
	"github.com/example/comms-ninja/services/analytics/internal/funnel"
)

const (
	subjectPaymentCompleted    = "billing.payment.completed"
	subjectSubscriptionUpdated = "billing.subscription.updated"
	subjectTierGranted         = "billing.tier.granted"
)

// Dispatcher routes messages by subject.
type Dispatcher struct {
	funnel *funnel.Tracker
	log    *zap.Logger
}

func New(f *funnel.Tracker, log *zap.Logger) *Dispatcher {
	return &Dispatcher{funnel: f, log: log}
}

// Dispatch handles one message. Unknown and malformed messages are counted
// and dropped; the caller acks every message.
func (d *Dispatcher) Dispatch(subject string, data []byte) {
	switch {
	case strings.HasPrefix(subject, "analytics."):
		d.handleProductEvent(subject, data)
	case subject == subjectPaymentCompleted:
		d.count("payment_completed", "recorded")
	case subject == subjectSubscriptionUpdated:
		d.count("subscription_updated", "recorded")
	case subject == subjectTierGranted:
		d.handleTierGranted(data)
	default:
		d.log.Debug("analytics: unhandled subject", zap.String("subject", subject))
		d.count("unknown", "dropped")
	}
}

func (d *Dispatcher) handleProductEvent(subject string, data []byte) {
	ev, err := analytics.Decode(data)
	if err != nil {
		d.log.Warn("analytics: bad event", zap.String("subject", subject), zap.Error(err))
		d.count("invalid", "dropped")
		return
	}
	outcome := "recorded"
	if d.funnel.Record(ev.UserID, funnel.StepFor(ev.EventName)) {
		outcome = "funnel_advanced"
	}
	d.count(ev.EventName, outcome)
	d.log.Debug("analytics event",
		zap.String("event", ev.EventName),
		zap.String("user_id", ev.UserID),
		zap.String("source", ev.Source),
		zap.String("outcome", outcome),
	)
}

func (d *Dispatcher) handleTierGranted(data []byte) {
	var ev struct {
		UserID string `json:"user_id"`
		Tier   string `json:"tier"`
	}
	if err := json.Unmarshal(data, &ev); err != nil || ev.UserID == "" {
		d.count("invalid", "dropped")
		return
	}
	d.log.Info("tier granted", zap.String("user_id", ev.UserID), zap.String("tier", ev.Tier))
	d.count("tier_granted", "recorded")
}

func (d *Dispatcher) count(event, outcome string) {
	metrics.AnalyticsEvents.WithLabelValues(event, outcome).Inc()
}

type funnelResponse struct {
	Steps map[string]int `json:"steps"`
}

// Funnel serves GET /v1/funnel.
func Funnel(f *funnel.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		api.WriteJSON(w, http.StatusOK, funnelResponse{Steps: f.Snapshot()})
	}
}
