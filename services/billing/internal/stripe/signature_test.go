package stripe

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

const testSecret = "whsec_test_secret"

var payload = []byte(`{"id":"evt_123","type":"checkout.session.completed"}`)

func fixedVerifier(at time.Time) *Verifier {
	v := NewVerifier(testSecret)
	v.now = func() time.Time { return at }
	return v
}

func TestVerify_ValidSignature(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	if err := fixedVerifier(now).Verify(payload, SignHeader(testSecret, now, payload)); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	err := fixedVerifier(now).Verify(payload, SignHeader("whsec_other", now, payload))
	if !errors.Is(err, ErrNoValidSignature) {
		t.Fatalf("expected ErrNoValidSignature, got: %v", err)
	}
}

func TestVerify_TamperedPayload(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	header := SignHeader(testSecret, now, payload)
	err := fixedVerifier(now).Verify([]byte(`{"id":"evt_999"}`), header)
	if !errors.Is(err, ErrNoValidSignature) {
		t.Fatalf("expected ErrNoValidSignature, got: %v", err)
	}
}

func TestVerify_ExpiredTimestamp(t *testing.T) {
	signed := time.Unix(1_760_000_000, 0)
	for _, skew := range []time.Duration{10 * time.Minute, -10 * time.Minute} {
		err := fixedVerifier(signed.Add(skew)).Verify(payload, SignHeader(testSecret, signed, payload))
		if !errors.Is(err, ErrTimestampExpired) {
			t.Fatalf("skew %s: expected ErrTimestampExpired, got: %v", skew, err)
		}
	}
}

func TestVerify_ZeroToleranceSkipsAgeCheck(t *testing.T) {
	signed := time.Unix(1_760_000_000, 0)
	v := fixedVerifier(signed.Add(24 * time.Hour))
	v.Tolerance = 0
	if err := v.Verify(payload, SignHeader(testSecret, signed, payload)); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestVerify_MultipleSignatures(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	good := SignHeader(testSecret, now, payload)
	header := fmt.Sprintf("t=%d,v1=deadbeef,%s", now.Unix(), good[len(fmt.Sprintf("t=%d,", now.Unix())):])
	if err := fixedVerifier(now).Verify(payload, header); err != nil {
		t.Fatalf("expected rotated secret to verify, got: %v", err)
	}
}

func TestVerify_InvalidHeaders(t *testing.T) {
	v := fixedVerifier(time.Unix(1_760_000_000, 0))
	for _, h := range []string{"", "garbage", "t=abc,v1=ff", "t=1760000000", "v1=ff"} {
		if err := v.Verify(payload, h); !errors.Is(err, ErrInvalidHeader) {
			t.Fatalf("header %q: expected ErrInvalidHeader, got: %v", h, err)
		}
	}
}
