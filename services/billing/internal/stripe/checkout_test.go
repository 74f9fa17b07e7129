package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

var testPrices = Prices{OneTime: "price_one", Subscription: "price_sub"}

func newTestClient(t *testing.T, h http.HandlerFunc) *CheckoutClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewCheckoutClient("sk_test_123", testPrices, WithBackendURL(srv.URL), WithNetworkRetries(0))
}

func TestCreate_DummyMode(t *testing.T) {
	c := NewCheckoutClient("  ", testPrices)
	if !c.Dummy() {
		t.Fatal("blank key should select dummy mode")
	}
	s, err := c.Create(context.Background(), CheckoutParams{Tier: TierOneTime, UserID: "u1", SuccessURL: "https://app.test/success?plan=pro"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID != DummySessionID || s.URL != "https://app.test/success?plan=pro&session_id=dummy_session_test_123" {
		t.Fatalf("unexpected dummy session %+v", s)
	}
}

func TestCreate_UnknownTier(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) { calls.Add(1) })
	if _, err := c.Create(context.Background(), CheckoutParams{Tier: "lifetime"}); !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("expected ErrUnknownTier, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatal("unknown tier must not reach Stripe")
	}
}

func TestCreate_PostsForm(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_123" {
			t.Errorf("unexpected authorization %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		checks := map[string]string{
			"mode":                    "subscription",
			"payment_method_types[0]": "card",
			"line_items[0][price]":    "price_sub",
			"line_items[0][quantity]": "1",
			"client_reference_id":     "u1",
			"metadata[tier]":          "subscription",
			"success_url":             "https://app.test/success?session_id={CHECKOUT_SESSION_ID}",
			"cancel_url":              "https://app.test/pricing",
		}
		for k, want := range checks {
			if got := r.PostForm.Get(k); got != want {
				t.Errorf("%s = %q, want %q", k, got, want)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/cs_test_1"}`))
	})

	s, err := c.Create(context.Background(), CheckoutParams{
		Tier: TierSubscription, UserID: "u1",
		SuccessURL: "https://app.test/success", CancelURL: "https://app.test/pricing",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID != "cs_test_1" || s.URL != "https://checkout.stripe.com/c/cs_test_1" {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestCreate_OneTimeUsesPaymentMode(t *testing.T) {
	var mode, price string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		mode, price = r.PostForm.Get("mode"), r.PostForm.Get("line_items[0][price]")
		_, _ = w.Write([]byte(`{"id":"cs_test_2","url":"https://checkout.stripe.com/c/cs_test_2"}`))
	})
	if _, err := c.Create(context.Background(), CheckoutParams{Tier: TierOneTime, UserID: "u1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mode != "payment" || price != "price_one" {
		t.Fatalf("expected payment mode with price_one, got %q %q", mode, price)
	}
}

func TestCreate_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such price"}}`))
	})

	_, err := c.Create(context.Background(), CheckoutParams{Tier: TierOneTime})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Type != "invalid_request_error" || apiErr.Message != "No such price" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}
