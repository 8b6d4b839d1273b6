package transport

import (
	"math"
	"time"
)

// Backoff is the bounded exponential reconnect policy.
type Backoff struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	Factor     float64
	MaxRetries int
}

// DefaultBackoff returns the policy used when nothing is configured:
// 1s growing by 1.5x up to 10s, giving up after 10 failed attempts.
func DefaultBackoff() Backoff {
	return Backoff{
		MinDelay:   time.Second,
		MaxDelay:   10 * time.Second,
		Factor:     1.5,
		MaxRetries: 10,
	}
}

// Delay returns the wait before retry k (k >= 1).
func (b Backoff) Delay(k int) time.Duration {
	if k < 1 {
		k = 1
	}
	d := float64(b.MinDelay) * math.Pow(b.Factor, float64(k-1))
	if d >= float64(b.MaxDelay) {
		return b.MaxDelay
	}
	return time.Duration(d)
}
