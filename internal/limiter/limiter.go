// Package limiter counts requests per key over a fixed window. Backed by
// Redis when configured, by an in-process store otherwise.
package limiter

import (
	"context"
	"time"
)

// Store increments the counter for key and reports the count within window.
// The first increment of a window starts it.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}
