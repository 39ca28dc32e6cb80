// Package token issues and checks single-use verification tokens.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/utafrali/StudioReviews/internal/domain"
)

// DefaultTTL is how long a verification link stays valid.
const DefaultTTL = 48 * time.Hour

const rawBytes = 32

// Issuer mints verification tokens. Only the SHA-256 of a raw token is ever
// persisted, so a leaked store cannot be replayed.
type Issuer struct {
	ttl     time.Duration
	entropy io.Reader
}

// NewIssuer creates an Issuer; a non-positive ttl means DefaultTTL.
func NewIssuer(ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{ttl: ttl, entropy: rand.Reader}
}

// TTL returns the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue returns a fresh raw token for reviewID and the record to persist.
func (i *Issuer) Issue(reviewID string, now time.Time) (string, *domain.VerificationToken, error) {
	buf := make([]byte, rawBytes)
	if _, err := io.ReadFull(i.entropy, buf); err != nil {
		return "", nil, fmt.Errorf("read token entropy: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)

	return raw, &domain.VerificationToken{
		TokenHash: Hash(raw),
		ReviewID:  reviewID,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
	}, nil
}

// Check reports whether tok can still verify at now.
func (i *Issuer) Check(tok *domain.VerificationToken, now time.Time) error {
	return tok.Check(now)
}

// Hash returns the lookup key stored for a raw token.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
