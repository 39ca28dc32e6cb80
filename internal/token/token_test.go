package token

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/StudioReviews/pkg/errors"
)

func TestIssuer_Issue(t *testing.T) {
	issuer := NewIssuer(0)
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	raw, tok, err := issuer.Issue("review-1", now)

	require.NoError(t, err)
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	require.NoError(t, err)
	assert.Len(t, decoded, 32)

	assert.Equal(t, "review-1", tok.ReviewID)
	assert.Equal(t, Hash(raw), tok.TokenHash)
	assert.NotContains(t, tok.TokenHash, raw)
	assert.Equal(t, now, tok.IssuedAt)
	assert.Equal(t, now.Add(DefaultTTL), tok.ExpiresAt)
	assert.False(t, tok.Consumed())
}

func TestIssuer_IssueIsUnique(t *testing.T) {
	issuer := NewIssuer(time.Hour)
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		raw, _, err := issuer.Issue("r", time.Now())
		require.NoError(t, err)
		_, dup := seen[raw]
		require.False(t, dup)
		seen[raw] = struct{}{}
	}
}

func TestIssuer_CustomTTL(t *testing.T) {
	issuer := NewIssuer(2 * time.Hour)
	now := time.Now()
	_, tok, err := issuer.Issue("r", now)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, issuer.TTL())
	assert.Equal(t, now.Add(2*time.Hour), tok.ExpiresAt)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestIssuer_EntropyFailure(t *testing.T) {
	issuer := NewIssuer(time.Hour)
	issuer.entropy = failingReader{}

	_, tok, err := issuer.Issue("r", time.Now())

	assert.Error(t, err)
	assert.Nil(t, tok)
}

func TestIssuer_Deterministic(t *testing.T) {
	issuer := NewIssuer(time.Hour)
	issuer.entropy = bytes.NewReader(bytes.Repeat([]byte{0xAB}, 32))

	raw, _, err := issuer.Issue("r", time.Now())
	require.NoError(t, err)
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(bytes.Repeat([]byte{0xAB}, 32)), raw)
}

func TestIssuer_Check(t *testing.T) {
	issuer := NewIssuer(time.Hour)
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	_, tok, err := issuer.Issue("r", now)
	require.NoError(t, err)

	assert.NoError(t, issuer.Check(tok, now.Add(59*time.Minute)))
	assert.ErrorIs(t, issuer.Check(tok, now.Add(time.Hour)), apperrors.ErrTokenExpired)

	used := now.Add(time.Minute)
	tok.ConsumedAt = &used
	assert.ErrorIs(t, issuer.Check(tok, now.Add(2*time.Minute)), apperrors.ErrTokenAlreadyUsed)
}

func TestHash(t *testing.T) {
	assert.Equal(t, Hash("abc"), Hash("abc"))
	assert.NotEqual(t, Hash("abc"), Hash("abd"))
	assert.Len(t, Hash("abc"), 64)
}

func TestReviewerKeyer(t *testing.T) {
	k := NewReviewerKeyer([]byte("secret-a"))

	key := k.Key("alice@example.com")
	assert.Len(t, key, 16)
	assert.Equal(t, key, k.Key("alice@example.com"))
	assert.NotEqual(t, key, k.Key("bob@example.com"))
	assert.NotEqual(t, key, NewReviewerKeyer([]byte("secret-b")).Key("alice@example.com"))
	assert.NotContains(t, key, "alice")
}
