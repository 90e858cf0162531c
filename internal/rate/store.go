package rate

import (
	"context"
	"time"
)

// Window is the state of one identifier's log as seen by a single check.
type Window struct {
	// Count is the number of in-window entries before the current request was recorded.
	Count int
	// Oldest is the earliest in-window timestamp after recording.
	Oldest time.Time
}

// Store performs the prune, count, record and expire steps atomically.
type Store interface {
	Record(ctx context.Context, key string, now time.Time, window time.Duration, member string) (Window, error)
}
