// Package signing issues and checks watch receipts: short-lived HMAC tokens
// proving a user cleared the watch gate for one video.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMalformed = errors.New("signing: malformed receipt")
	ErrExpired   = errors.New("signing: receipt expired")
	ErrSignature = errors.New("signing: bad signature")
)

type Signer struct {
	Secret []byte
	now    func() time.Time
}

// Receipt binds a gate-cleared session to a user and a video.
type Receipt struct {
	SessionID string
	UserID    string
	VideoID   string
	Exp       int64
}

func New(secret string) *Signer {
	return &Signer{Secret: []byte(secret), now: time.Now}
}

// Sign returns the encoded token for r.
func (s *Signer) Sign(r Receipt) string {
	payload := strings.Join([]string{r.SessionID, r.UserID, r.VideoID, strconv.FormatInt(r.Exp, 10)}, "|")
	enc := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return enc + "." + s.signValue(enc)
}

// Issue signs a receipt that expires ttl from now.
func (s *Signer) Issue(sessionID, userID, videoID string, ttl time.Duration) (string, Receipt) {
	r := Receipt{SessionID: sessionID, UserID: userID, VideoID: videoID, Exp: s.now().Add(ttl).Unix()}
	return s.Sign(r), r
}

// Verify decodes token and checks its signature and expiry.
func (s *Signer) Verify(token string) (Receipt, error) {
	enc, sig, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || enc == "" || sig == "" {
		return Receipt{}, ErrMalformed
	}
	if !hmac.Equal([]byte(sig), []byte(s.signValue(enc))) {
		return Receipt{}, ErrSignature
	}
	raw, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return Receipt{}, ErrMalformed
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 4 {
		return Receipt{}, ErrMalformed
	}
	exp, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Receipt{}, ErrMalformed
	}
	r := Receipt{SessionID: parts[0], UserID: parts[1], VideoID: parts[2], Exp: exp}
	if s.now().Unix() > r.Exp {
		return r, ErrExpired
	}
	return r, nil
}

func (s *Signer) signValue(enc string) string {
	mac := hmac.New(sha256.New, s.Secret)
	mac.Write([]byte(enc))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
