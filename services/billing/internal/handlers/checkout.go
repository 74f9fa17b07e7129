package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/example/comms-ninja/internal/platform/analytics"
	"github.com/example/comms-ninja/internal/platform/api"
	"github.com/example/comms-ninja/internal/platform/auth"
	"github.com/example/comms-ninja/internal/platform/httpserver"
	"github.com/example/comms-ninja/services/billing/internal/stripe"
)

type checkoutRequest struct {
	Tier       string `json:"tier"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

type checkoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

// Checkout handles POST /v1/checkout/sessions. The authenticated user becomes
// the session's client_reference_id, which the webhook later upgrades.
func Checkout(client *stripe.CheckoutClient, events *analytics.Publisher, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}

		var req checkoutRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}
		req.Tier = strings.TrimSpace(req.Tier)
		if req.Tier != stripe.TierOneTime && req.Tier != stripe.TierSubscription {
			api.BadRequest(w, "INVALID_TIER", "tier must be one_time or subscription", rid, map[string]any{"tier": req.Tier})
			return
		}
		if !absoluteURL(req.SuccessURL) || !absoluteURL(req.CancelURL) {
			api.BadRequest(w, "INVALID_REDIRECT", "success_url and cancel_url must be absolute http(s) URLs", rid, nil)
			return
		}

		s, err := client.Create(r.Context(), stripe.CheckoutParams{
			Tier:       req.Tier,
			UserID:     uid,
			SuccessURL: req.SuccessURL,
			CancelURL:  req.CancelURL,
		})
		if err != nil {
			log.Error("create checkout session", zap.Error(err), zap.String("request_id", rid))
			var apiErr *stripe.APIError
			if errors.As(err, &apiErr) {
				api.BadGateway(w, "PAYMENT_PROVIDER_ERROR", "Payment provider rejected the request", rid)
				return
			}
			api.Internal(w, rid)
			return
		}

		events.Publish(analytics.SubjectCheckoutStarted, uid, map[string]any{
			"tier":  req.Tier,
			"dummy": client.Dummy(),
		})
		api.WriteJSON(w, http.StatusOK, checkoutResponse{CheckoutURL: s.URL, SessionID: s.ID})
	}
}

func absoluteURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
