// Package ratelimit admits calls per identity within a trailing window.
//
// Both implementations keep a sliding-window log: timestamps of admitted
// calls older than the window are purged before each decision and a call
// is recorded only when it is admitted.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether the identity behind key may make another call.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Policy is a limit per trailing window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// DefaultSubmitPolicy admits five submissions per minute per identity.
var DefaultSubmitPolicy = Policy{Limit: 5, Window: time.Minute}

// DefaultVotePolicy admits thirty helpful votes per minute per identity.
var DefaultVotePolicy = Policy{Limit: 30, Window: time.Minute}
