package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// window is the admission log of one identity.
type window struct {
	mu       sync.Mutex
	hits     []time.Time
	lastSeen time.Time
	dead     bool
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// MemoryLimiter is a process-local Limiter. Identities are spread over
// shards so unrelated callers rarely contend; each identity's log has its
// own lock. A restart resets every window.
type MemoryLimiter struct {
	shards  [shardCount]*shard
	nowFunc func() time.Time
}

// NewMemoryLimiter creates an empty in-memory limiter.
func NewMemoryLimiter() *MemoryLimiter {
	l := &MemoryLimiter{nowFunc: time.Now}
	for i := range l.shards {
		l.shards[i] = &shard{windows: make(map[string]*window)}
	}
	return l
}

// WithClock replaces the limiter's time source.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.nowFunc = now
	return l
}

func (l *MemoryLimiter) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return l.shards[h.Sum32()%shardCount]
}

func (l *MemoryLimiter) window(key string) *window {
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		w = &window{}
		s.windows[key] = w
	}
	return w
}

// Allow implements Limiter. It never returns an error.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, win time.Duration) (bool, error) {
	if limit <= 0 {
		return false, nil
	}

	for {
		w := l.window(key)
		w.mu.Lock()
		if w.dead {
			// Evicted between lookup and lock; fetch the replacement.
			w.mu.Unlock()
			continue
		}

		now := l.nowFunc()
		w.purge(now.Add(-win))
		w.lastSeen = now

		allowed := len(w.hits) < limit
		if allowed {
			w.hits = append(w.hits, now)
		}
		w.mu.Unlock()
		return allowed, nil
	}
}

// purge drops hits at or before cutoff. Hits are appended in order, so the
// expired ones form a prefix.
func (w *window) purge(cutoff time.Time) {
	i := 0
	for i < len(w.hits) && !w.hits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.hits = append(w.hits[:0], w.hits[i:]...)
	}
}

// Sweep evicts identities idle for longer than idle. It returns how many
// were removed.
func (l *MemoryLimiter) Sweep(idle time.Duration) int {
	now := l.nowFunc()
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for key, w := range s.windows {
			w.mu.Lock()
			if now.Sub(w.lastSeen) > idle {
				w.dead = true
				delete(s.windows, key)
				removed++
			}
			w.mu.Unlock()
		}
		s.mu.Unlock()
	}
	return removed
}

// Run sweeps idle identities every interval until ctx is cancelled.
func (l *MemoryLimiter) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(idle)
		}
	}
}

// Len returns the number of tracked identities.
func (l *MemoryLimiter) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.windows)
		s.mu.Unlock()
	}
	return n
}
