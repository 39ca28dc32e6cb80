package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

const reviewerKeyLen = 16

// ReviewerKeyer derives the public identity marker of a submitter.
type ReviewerKeyer struct {
	secret []byte
}

// NewReviewerKeyer creates a keyer using secret as the HMAC key.
func NewReviewerKeyer(secret []byte) *ReviewerKeyer {
	return &ReviewerKeyer{secret: secret}
}

// Key returns a stable marker for a normalized email. The same email always
// yields the same marker; the marker cannot be reversed without the secret.
func (k *ReviewerKeyer) Key(email string) string {
	mac := hmac.New(sha256.New, k.secret)
	mac.Write([]byte(email))
	return hex.EncodeToString(mac.Sum(nil))[:reviewerKeyLen]
}
