package riface

import (
	"sync"
	"time"
)

// AnnounceCap enforces spec.md §4.4's per-interface announce rate limit:
// an interface only forwards/retransmits a bounded number of announces per
// unit wall-clock time, deferring the rest rather than flooding a slow link.
// It is a standard token bucket, refilled continuously rather than in
// discrete ticks so a burst after a quiet period is not penalised.
type AnnounceCap struct {
	mu       sync.Mutex
	rate     float64 // tokens/sec
	burst    float64
	tokens   float64
	lastFill time.Time
}

// NewAnnounceCap builds a bucket allowing up to burst announces
// immediately, refilling at rate per second thereafter.
func NewAnnounceCap(rate float64, burst float64) *AnnounceCap {
	return &AnnounceCap{
		rate:     rate,
		burst:    burst,
		tokens:   burst,
		lastFill: time.Now(),
	}
}

// Allow reports whether an announce may be sent now, consuming one token if
// so.
func (c *AnnounceCap) Allow() bool {
	return c.AllowAt(time.Now())
}

// AllowAt is Allow with an explicit clock reading, for deterministic tests.
func (c *AnnounceCap) AllowAt(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := now.Sub(c.lastFill).Seconds()
	if elapsed > 0 {
		c.tokens += elapsed * c.rate
		if c.tokens > c.burst {
			c.tokens = c.burst
		}
		c.lastFill = now
	}
	if c.tokens < 1 {
		return false
	}
	c.tokens--
	return true
}

// Peek reports whether a token is currently available without consuming
// one, refilling first so the answer reflects elapsed time.
func (c *AnnounceCap) Peek(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := now.Sub(c.lastFill).Seconds()
	if elapsed > 0 {
		c.tokens += elapsed * c.rate
		if c.tokens > c.burst {
			c.tokens = c.burst
		}
		c.lastFill = now
	}
	return c.tokens >= 1
}

// Available returns the current token count, for diagnostics.
func (c *AnnounceCap) Available() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}
