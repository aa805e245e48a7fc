// Package pickup derives and checks the short tokens a receiver presents
// (usually as a QR code) when collecting an accepted donation.
package pickup

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
)

// TokenLength is the number of hex characters in a pickup token.
const TokenLength = 16

// Scheme computes pickup tokens from a donation id and a server secret.
// Tokens are deterministic, so one can be shown again at any time and
// checked without storing it.
type Scheme struct {
	secret string
}

// NewScheme returns a Scheme keyed by secret. An empty secret is replaced
// with a random one that lives as long as the process, which invalidates
// outstanding tokens on restart.
func NewScheme(secret string, logger *slog.Logger) (*Scheme, error) {
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate pickup secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		if logger != nil {
			logger.Warn("no pickup secret configured, using a random one; tokens will not survive a restart")
		}
	}
	return &Scheme{secret: secret}, nil
}

// Token returns the pickup token for a donation.
func (s *Scheme) Token(donationID int64) string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(donationID, 10) + ":" + s.secret))
	return hex.EncodeToString(sum[:])[:TokenLength]
}

// Verify reports whether token is exactly the token for donationID.
func (s *Scheme) Verify(donationID int64, token string) bool {
	want := s.Token(donationID)
	return subtle.ConstantTimeCompare([]byte(want), []byte(token)) == 1
}
