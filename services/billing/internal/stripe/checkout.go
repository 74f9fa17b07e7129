package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"go.uber.org/zap"
)

const (
	// DummySessionID is returned instead of a real session when no secret key
	// is configured, so the success page can be exercised locally.
	DummySessionID = "dummy_session_test_123"

	TierOneTime      = "one_time"
	TierSubscription = "subscription"

	defaultNetworkRetries = 2
)

var ErrUnknownTier = errors.New("stripe: unknown checkout tier")

// APIError is a non-2xx response from the Stripe API.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe: %d %s: %s", e.Status, e.Type, e.Message)
}

// Prices maps each tier to its Stripe price id.
type Prices struct {
	OneTime      string
	Subscription string
}

// line returns the price id and checkout mode for tier.
func (p Prices) line(tier string) (string, stripego.CheckoutSessionMode, error) {
	switch tier {
	case TierOneTime:
		return p.OneTime, stripego.CheckoutSessionModePayment, nil
	case TierSubscription:
		return p.Subscription, stripego.CheckoutSessionModeSubscription, nil
	}
	return "", "", ErrUnknownTier
}

type CheckoutParams struct {
	Tier       string
	UserID     string
	SuccessURL string
	CancelURL  string
}

type CheckoutSession struct {
	ID  string
	URL string
}

type Option func(*clientOptions)

type clientOptions struct {
	url        string
	httpClient *http.Client
	log        *zap.Logger
	retries    int64
}

// WithBackendURL points the client at another API host, such as a local mock.
func WithBackendURL(u string) Option {
	return func(o *clientOptions) { o.url = strings.TrimSuffix(u, "/") }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithLogger routes stripe-go's own request logging through log.
func WithLogger(log *zap.Logger) Option {
	return func(o *clientOptions) { o.log = log }
}

func WithNetworkRetries(n int64) Option {
	return func(o *clientOptions) { o.retries = n }
}

// CheckoutClient creates hosted Checkout Sessions. With an empty secret key
// it never calls Stripe and redirects straight to the success URL.
type CheckoutClient struct {
	prices   Prices
	sessions *checkoutsession.Client
}

func NewCheckoutClient(secretKey string, prices Prices, opts ...Option) *CheckoutClient {
	c := &CheckoutClient{prices: prices}
	key := strings.TrimSpace(secretKey)
	if key == "" {
		return c
	}

	o := clientOptions{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        zap.NewNop(),
		retries:    defaultNetworkRetries,
	}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := &stripego.BackendConfig{
		HTTPClient:        o.httpClient,
		LeveledLogger:     o.log.Sugar(),
		MaxNetworkRetries: stripego.Int64(o.retries),
		EnableTelemetry:   stripego.Bool(false),
	}
	if o.url != "" {
		cfg.URL = stripego.String(o.url)
	}
	c.sessions = &checkoutsession.Client{
		B:   stripego.GetBackendWithConfig(stripego.APIBackend, cfg),
		Key: key,
	}
	return c
}

// Dummy reports whether sessions are faked locally.
func (c *CheckoutClient) Dummy() bool { return c.sessions == nil }

func (c *CheckoutClient) Create(ctx context.Context, p CheckoutParams) (CheckoutSession, error) {
	price, mode, err := c.prices.line(p.Tier)
	if err != nil {
		return CheckoutSession{}, err
	}
	if c.Dummy() {
		return CheckoutSession{ID: DummySessionID, URL: WithSessionID(p.SuccessURL, DummySessionID)}, nil
	}

	params := &stripego.CheckoutSessionParams{
		Mode:               stripego.String(string(mode)),
		PaymentMethodTypes: stripego.StringSlice([]string{"card"}),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{
				Price:    stripego.String(price),
				Quantity: stripego.Int64(1),
			},
		},
		SuccessURL:        stripego.String(WithSessionID(p.SuccessURL, "{CHECKOUT_SESSION_ID}")),
		CancelURL:         stripego.String(p.CancelURL),
		ClientReferenceID: stripego.String(p.UserID),
	}
	params.Context = ctx
	params.AddMetadata("tier", p.Tier)

	s, err := c.sessions.New(params)
	if err != nil {
		var se *stripego.Error
		if errors.As(err, &se) {
			return CheckoutSession{}, &APIError{Status: se.HTTPStatusCode, Type: string(se.Type), Message: se.Msg}
		}
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// WithSessionID appends session_id to u, keeping any existing query. The
// value is not escaped so Stripe's {CHECKOUT_SESSION_ID} template survives.
func WithSessionID(u, id string) string {
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "session_id=" + id
}
