// Package playback schedules inbound audio frames per remote speaker so that
// consecutive frames play back to back on a monotonic output clock.
package playback

import "time"

// Clock is the output device's monotonic timeline.
type Clock interface {
	Now() time.Duration
}

type MonotonicClock struct {
	start time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

func (c *MonotonicClock) Now() time.Duration { return time.Since(c.start) }
