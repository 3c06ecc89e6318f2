// Package quota keeps day-scoped usage counters and timestamp marks per chat.
//
// Counters are the only admission arbiter: a request is admitted when its own
// atomic increment stays within the limit, never by reading first.
package quota

import (
	"context"
	"time"
)

// Backend is an atomic counter store. Implementations must make Incr and Decr
// atomic per key; Decr never leaves a value below zero and never creates a key.
type Backend interface {
	Incr(ctx context.Context, keys []string) ([]int64, error)
	Decr(ctx context.Context, keys []string) error
	MGet(ctx context.Context, keys []string) ([]int64, error)
	Expire(ctx context.Context, keys []string, ttl time.Duration) error
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error
}
