package bucket

import (
	"math"
	"time"
)

// Limit is a rate in events per second. Zero admits nothing after the
// initial burst; Inf admits everything.
type Limit float64

// Inf is the unbounded rate.
var Inf = Limit(math.Inf(1))

// Every converts a minimum spacing between events to a Limit.
func Every(interval time.Duration) Limit {
	if interval <= 0 {
		return Inf
	}
	return Limit(time.Second) / Limit(interval)
}

// durationFor returns how long rate takes to produce n events.
func (l Limit) durationFor(n float64) time.Duration {
	return time.Duration(float64(time.Second) * n / float64(l))
}
