package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTolerance is how far a callback timestamp may drift from our clock
const DefaultTolerance = 5 * time.Minute

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleTimestamp   = errors.New("webhook timestamp outside tolerance")
)

// Verifier checks the signature the payments service puts on its callbacks
type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewVerifier creates a new webhook verifier. An empty secret disables verification.
func NewVerifier(secret string, tolerance time.Duration, logger *zap.Logger) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{
		secret:    secret,
		tolerance: tolerance,
		now:       time.Now,
		logger:    logger,
	}
}

// Enabled reports whether callbacks are verified
func (v *Verifier) Enabled() bool {
	return v.secret != ""
}

// Sign returns the hex HMAC-SHA256 of "timestamp.body"
func (v *Verifier) Sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the callback signature and its unix timestamp
func (v *Verifier) VerifySignature(timestamp, signature string, body []byte) error {
	if !v.Enabled() {
		return nil
	}
	if timestamp == "" || signature == "" {
		return ErrMissingSignature
	}

	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", ErrInvalidSignature, timestamp)
	}
	drift := v.now().Sub(time.Unix(seconds, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > v.tolerance {
		return ErrStaleTimestamp
	}

	expected := v.Sign(timestamp, body)
	given := strings.ToLower(strings.TrimPrefix(signature, "sha256="))
	if !hmac.Equal([]byte(expected), []byte(given)) {
		return ErrInvalidSignature
	}
	return nil
}
