// Package ratelimit enforces a per-player claim rate. State is in-memory
// and resets on restart.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of a rate check. RetryAfter is set only on
// rejection and tells the player when the next attempt can succeed.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type playerEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter tracks one token bucket per player. Each player may make up to
// maxRequests claims per window, with the full window available as burst.
type Limiter struct {
	mu       sync.Mutex
	players  map[string]*playerEntry
	limit    rate.Limit
	burst    int
	maxIdle  time.Duration
	clockNow func() time.Time
}

// New creates a limiter allowing maxRequests per player per window.
func New(maxRequests int, window time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		players:  make(map[string]*playerEntry),
		limit:    rate.Limit(float64(maxRequests) / window.Seconds()),
		burst:    maxRequests,
		maxIdle:  10 * window,
		clockNow: time.Now,
	}
}

// Check consumes one token for the player if available. A rejected check
// consumes nothing.
func (l *Limiter) Check(playerID string) Decision {
	limiter := l.obtain(playerID)

	reservation := limiter.Reserve()
	if !reservation.OK() {
		return Decision{Allowed: false, RetryAfter: time.Minute}
	}

	delay := reservation.Delay()
	if delay > 0 {
		reservation.Cancel()
		return Decision{Allowed: false, RetryAfter: delay}
	}
	return Decision{Allowed: true}
}

func (l *Limiter) obtain(playerID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clockNow()
	entry, ok := l.players[playerID]
	if !ok {
		entry = &playerEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.players[playerID] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// Purge drops players idle longer than ten windows. Called periodically by
// the server to bound memory.
func (l *Limiter) Purge() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.clockNow().Add(-l.maxIdle)
	removed := 0
	for id, entry := range l.players {
		if entry.lastSeen.Before(cutoff) {
			delete(l.players, id)
			removed++
		}
	}
	return removed
}

// Tracked returns the number of players currently tracked.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.players)
}
