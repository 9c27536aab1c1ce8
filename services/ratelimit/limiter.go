// Package ratelimit throttles login attempts with fixed-window counters.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the result of one Allow call
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts hits per key within a fixed window
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// unlimited is returned for a non-positive limit
func unlimited(limit int) Decision {
	return Decision{Allowed: true, Limit: limit, Remaining: limit}
}
