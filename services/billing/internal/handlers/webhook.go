package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/example/comms-ninja/internal/platform/analytics"
	"github.com/example/comms-ninja/internal/platform/api"
	"github.com/example/comms-ninja/internal/platform/httpserver"
	"github.com/example/comms-ninja/internal/platform/metrics"
	"github.com/example/comms-ninja/services/billing/internal/idempotency"
	"github.com/example/comms-ninja/services/billing/internal/publisher"
	billingstore "github.com/example/comms-ninja/services/billing/internal/store"
	"github.com/example/comms-ninja/services/billing/internal/stripe"
)

const maxBodyBytes = 65536

const (
	eventCheckoutCompleted = "checkout.session.completed"
	eventInvoicePaid       = "invoice.paid"
)

var errNoUser = errors.New("checkout session has no client_reference_id")

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSession struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	Mode              string            `json:"mode"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
}

type webhookResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// WebhookHandler handles Stripe webhook POST requests.
type WebhookHandler struct {
	verifier   *stripe.Verifier
	log        *zap.Logger
	idempotent idempotency.Store
	ledger     billingstore.Ledger
	pub        *publisher.Publisher
	events     *analytics.Publisher
}

func NewWebhookHandler(
	verifier *stripe.Verifier,
	log *zap.Logger,
	idem idempotency.Store,
	ledger billingstore.Ledger,
	pub *publisher.Publisher,
	events *analytics.Publisher,
) *WebhookHandler {
	return &WebhookHandler{
		verifier:   verifier,
		log:        log,
		idempotent: idem,
		ledger:     ledger,
		pub:        pub,
		events:     events,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		api.BadRequest(w, "READ_ERROR", "cannot read body", rid, nil)
		return
	}

	if err := h.verifier.Verify(body, r.Header.Get("Stripe-Signature")); err != nil {
		h.log.Warn("stripe signature verification failed", zap.Error(err), zap.String("request_id", rid))
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid").Inc()
		api.BadRequest(w, "INVALID_SIGNATURE", "webhook signature verification failed", rid, nil)
		return
	}

	var event stripeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		api.BadRequest(w, "INVALID_JSON", "cannot parse event", rid, nil)
		return
	}
	if event.ID == "" {
		api.BadRequest(w, "MISSING_EVENT_ID", "event id is required", rid, nil)
		return
	}

	dup, err := h.idempotent.Check(r.Context(), event.ID)
	if err != nil {
		h.log.Error("idempotency check failed", zap.Error(err), zap.String("event_id", event.ID))
		api.Internal(w, rid)
		return
	}
	if dup {
		h.log.Debug("duplicate event, skipping", zap.String("event_id", event.ID))
		metrics.WebhookEvents.WithLabelValues(event.Type, "duplicate").Inc()
		api.WriteJSON(w, http.StatusOK, webhookResponse{Status: "duplicate"})
		return
	}

	switch event.Type {
	case eventCheckoutCompleted:
		err = h.handleCheckoutCompleted(r.Context(), event)
	case eventInvoicePaid:
		err = h.handleInvoicePaid(r.Context(), event)
	default:
		h.log.Debug("unhandled event type", zap.String("type", event.Type), zap.String("event_id", event.ID))
		metrics.WebhookEvents.WithLabelValues(event.Type, "ignored").Inc()
		api.WriteJSON(w, http.StatusOK, webhookResponse{Status: "ignored", Reason: "unhandled event type"})
		return
	}

	switch {
	case errors.Is(err, errNoUser):
		// Retrying cannot attach a user, so the claim is kept.
		h.log.Error("checkout without user", zap.String("event_id", event.ID))
		metrics.WebhookEvents.WithLabelValues(event.Type, "ignored").Inc()
		api.WriteJSON(w, http.StatusOK, webhookResponse{Status: "ignored", Reason: "No user ID attached to session"})
	case err != nil:
		h.log.Error("handle webhook event failed", zap.Error(err), zap.String("type", event.Type), zap.String("event_id", event.ID))
		if ferr := h.idempotent.Forget(r.Context(), event.ID); ferr != nil {
			h.log.Error("release idempotency claim", zap.Error(ferr), zap.String("event_id", event.ID))
		}
		metrics.WebhookEvents.WithLabelValues(event.Type, "error").Inc()
		api.Internal(w, rid)
	default:
		metrics.WebhookEvents.WithLabelValues(event.Type, "processed").Inc()
		api.WriteJSON(w, http.StatusOK, webhookResponse{Status: "success"})
	}
}

func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, event stripeEvent) error {
	var s checkoutSession
	if err := json.Unmarshal(event.Data.Object, &s); err != nil {
		return err
	}
	userID := strings.TrimSpace(s.ClientReferenceID)
	if userID == "" {
		return errNoUser
	}
	h.log.Info("checkout.session.completed",
		zap.String("event_id", event.ID),
		zap.String("session_id", s.ID),
		zap.String("user_id", userID),
	)

	// Persist before publishing.
	if err := h.ledger.RecordCheckout(ctx, event.ID, userID, event.Data.Object); err != nil {
		return err
	}

	if err := h.pub.PaymentCompleted(ctx, event.ID, event.Type, userID, event.Data.Object); err != nil {
		return err
	}
	if err := h.pub.TierGranted(ctx, event.ID, event.Type, userID, billingstore.TierPro); err != nil {
		return err
	}

	h.events.Publish(analytics.SubjectCheckoutCompleted, userID, map[string]any{
		"session_id":   s.ID,
		"mode":         s.Mode,
		"tier":         s.Metadata["tier"],
		"amount_total": s.AmountTotal,
		"currency":     s.Currency,
	})
	return nil
}

func (h *WebhookHandler) handleInvoicePaid(ctx context.Context, event stripeEvent) error {
	h.log.Info("invoice.paid", zap.String("event_id", event.ID))

	if err := h.ledger.RecordInvoice(ctx, event.ID, event.Data.Object); err != nil {
		return err
	}
	return h.pub.SubscriptionUpdated(ctx, event.ID, event.Type, event.Data.Object)
}
