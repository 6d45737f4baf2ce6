package leakybucket

import (
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/vnykmshr/flowguard/pkg/common/validation"
	"github.com/vnykmshr/flowguard/pkg/ratelimit/bucket"
)

// Limiter meters events through a bucket that drains at a constant rate.
// Each admitted event raises the level; the level falls by LeakRate per
// second. Events that would overflow the capacity must wait for the
// overflow to drain.
type Limiter interface {
	// AllowN reports whether n events fit without waiting.
	AllowN(n int) bool

	// ReserveN books n events and reports how long the caller must wait.
	// The reservation is not OK when the wait would exceed maxWait.
	ReserveN(n int, maxWait time.Duration) *Reservation

	// SetLeakRate changes the drain rate, keeping the current level.
	SetLeakRate(rate bucket.Limit)

	// SetCapacity changes the capacity and clamps the level to it.
	SetCapacity(capacity int) error

	LeakRate() bucket.Limit
	Capacity() int

	// Level returns the current fill level after draining.
	Level() float64
}

// Reservation is a booking of n events at a future instant.
type Reservation struct {
	ok        bool
	timeToAct time.Time
	events    int
	lim       *leakyBucket
}

// OK returns whether the reservation is valid.
func (r *Reservation) OK() bool {
	return r.ok
}

// DelayFrom returns how long after now the booked events may proceed.
func (r *Reservation) DelayFrom(now time.Time) time.Duration {
	if !r.ok {
		return 0
	}
	delay := r.timeToAct.Sub(now)
	if delay < 0 {
		return 0
	}
	return delay
}

// Cancel returns the booked level to the bucket.
func (r *Reservation) Cancel() {
	if !r.ok || r.lim == nil {
		return
	}
	r.lim.cancel(r)
}

// Config holds the parameters of a Limiter.
type Config struct {
	// LeakRate is how many events drain per second.
	LeakRate bucket.Limit

	// Capacity is the level that can be reached without waiting.
	Capacity int

	// Clock provides the current time. If nil, clock.RealClock is used.
	Clock clock.PassiveClock

	// InitialLevel is the starting level, clamped to Capacity. Negative
	// starts empty.
	InitialLevel int
}

type leakyBucket struct {
	mu       sync.Mutex
	leakRate bucket.Limit
	capacity int
	level    float64
	lastLeak time.Time
	clock    clock.PassiveClock
}

// New creates an empty limiter.
func New(leakRate bucket.Limit, capacity int) (Limiter, error) {
	return NewWithConfig(Config{
		LeakRate:     leakRate,
		Capacity:     capacity,
		InitialLevel: -1,
	})
}

// NewWithConfig creates a limiter from config.
func NewWithConfig(config Config) (Limiter, error) {
	if err := validation.NonNegative("leakybucket", "leakRate", config.LeakRate); err != nil {
		return nil, err
	}
	if err := validation.Positive("leakybucket", "capacity", config.Capacity); err != nil {
		return nil, err
	}
	if config.Clock == nil {
		config.Clock = clock.RealClock{}
	}

	level := float64(config.InitialLevel)
	if config.InitialLevel < 0 {
		level = 0
	}
	if level > float64(config.Capacity) {
		level = float64(config.Capacity)
	}

	return &leakyBucket{
		leakRate: config.LeakRate,
		capacity: config.Capacity,
		level:    level,
		lastLeak: config.Clock.Now(),
		clock:    config.Clock,
	}, nil
}
