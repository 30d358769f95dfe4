// File: internal/ratelimit/limiter.go
package ratelimit

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shoptalk-labs/shoptalk/internal/config"
)

// Result is the admission decision for a single check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter int // seconds, set only when not allowed
}

// record tracks one identity's current window.
type record struct {
	count   int
	resetAt time.Time
}

// Limiter is a sliding-window request counter keyed by identity. The limiter
// itself is tier-agnostic: the caller names the tier on every check, and the
// (window, max) pair comes from the configured tier table.
type Limiter struct {
	mu      sync.Mutex
	records map[string]*record
	tiers   map[string]config.RateLimitTier
	logger  *zap.Logger
	now     func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a limiter and starts the background sweep that purges expired
// windows, bounding memory. Call Close to stop it.
func New(cfg config.RateLimitConfig, logger *zap.Logger) *Limiter {
	l := &Limiter{
		records: make(map[string]*record),
		tiers:   cfg.Tiers,
		logger:  logger.Named("ratelimit"),
		now:     time.Now,
		done:    make(chan struct{}),
	}

	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go l.runSweep(interval)
	return l
}

// Check admits or rejects one request for identity under the named tier.
// Unknown tiers fall back to the most restrictive configured tier.
func (l *Limiter) Check(identity, tier string) Result {
	t, ok := l.tiers[tier]
	if !ok {
		t = l.strictestTier()
		l.logger.Warn("Unknown rate-limit tier, applying strictest policy", zap.String("tier", tier))
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, exists := l.records[identity]
	if !exists || now.After(rec.resetAt) || now.Equal(rec.resetAt) {
		rec = &record{count: 0, resetAt: now.Add(t.Window)}
		l.records[identity] = rec
	}
	rec.count++

	res := Result{
		Allowed: rec.count <= t.MaxRequests,
		Limit:   t.MaxRequests,
		Reset:   rec.resetAt,
	}
	if remaining := t.MaxRequests - rec.count; remaining > 0 {
		res.Remaining = remaining
	}
	if !res.Allowed {
		res.RetryAfter = int(math.Ceil(rec.resetAt.Sub(now).Seconds()))
		if res.RetryAfter < 1 {
			res.RetryAfter = 1
		}
	}
	return res
}

// Reset clears the window for a single identity.
func (l *Limiter) Reset(identity string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, identity)
}

// Len reports the number of live records. Used by the sweep test.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Close stops the background sweep.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

func (l *Limiter) runSweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// sweep deletes records whose window has expired. No record survives past its
// reset without being superseded on the next check anyway; the sweep just
// bounds the map.
func (l *Limiter) sweep() {
	now := l.now()

	l.mu.Lock()
	removed := 0
	for id, rec := range l.records {
		if now.After(rec.resetAt) {
			delete(l.records, id)
			removed++
		}
	}
	remaining := len(l.records)
	l.mu.Unlock()

	if removed > 0 {
		l.logger.Debug("Swept expired rate-limit records",
			zap.Int("removed", removed), zap.Int("remaining", remaining))
	}
}

// strictestTier picks the tier with the fewest allowed requests, used when a
// caller names a tier that is not configured.
func (l *Limiter) strictestTier() config.RateLimitTier {
	strictest := config.RateLimitTier{Window: time.Minute, MaxRequests: 10}
	first := true
	for _, t := range l.tiers {
		if first || t.MaxRequests < strictest.MaxRequests {
			strictest = t
			first = false
		}
	}
	return strictest
}
