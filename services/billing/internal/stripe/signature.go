// Package stripe speaks the small part of the Stripe API billing needs:
// webhook signature verification and Checkout Session creation.
package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance bounds the age of a signed webhook timestamp.
const DefaultTolerance = 5 * time.Minute

var (
	ErrInvalidHeader    = errors.New("stripe: invalid Stripe-Signature header")
	ErrNoValidSignature = errors.New("stripe: no valid signature found")
	ErrTimestampExpired = errors.New("stripe: timestamp outside tolerance")
)

// Verifier checks Stripe-Signature headers of the form "t=<unix>,v1=<hex>".
type Verifier struct {
	Secret    string
	Tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{Secret: secret, Tolerance: DefaultTolerance, now: time.Now}
}

// Verify accepts the payload if any v1 signature matches and the timestamp
// is within Tolerance of now in either direction.
func (v *Verifier) Verify(payload []byte, header string) error {
	ts, sigs, err := parseHeader(header)
	if err != nil {
		return err
	}
	if v.Tolerance > 0 {
		age := v.now().Sub(time.Unix(ts, 0))
		if age < 0 {
			age = -age
		}
		if age > v.Tolerance {
			return ErrTimestampExpired
		}
	}
	want := []byte(signature(v.Secret, ts, payload))
	for _, s := range sigs {
		if hmac.Equal([]byte(s), want) {
			return nil
		}
	}
	return ErrNoValidSignature
}

// SignHeader builds a Stripe-Signature header for payload, as Stripe would.
func SignHeader(secret string, at time.Time, payload []byte) string {
	ts := at.Unix()
	return "t=" + strconv.FormatInt(ts, 10) + ",v1=" + signature(secret, ts, payload)
}

func parseHeader(header string) (int64, []string, error) {
	var (
		ts   int64
		sigs []string
	)
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return 0, nil, ErrInvalidHeader
			}
			ts = n
		case "v1":
			sigs = append(sigs, val)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return 0, nil, ErrInvalidHeader
	}
	return ts, sigs, nil
}

func signature(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
