package authcore

import (
	"sync"
	"time"
)

var (
	startOnce sync.Once
	startedAt time.Time
)

func markStarted() {
	startOnce.Do(func() {
		startedAt = time.Now()
	})
}

// StartTime returns the wall-clock time the first engine was built, or the
// zero time if none has been.
func StartTime() time.Time {
	return startedAt
}

// Uptime returns the time elapsed since the first engine was built.
func Uptime() time.Duration {
	if startedAt.IsZero() {
		return 0
	}
	return time.Since(startedAt)
}
