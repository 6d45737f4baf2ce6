package leakybucket

import (
	"math"
	"time"

	"github.com/vnykmshr/flowguard/pkg/common/validation"
	"github.com/vnykmshr/flowguard/pkg/ratelimit/bucket"
)

func (lb *leakyBucket) AllowN(n int) bool {
	return lb.reserveN(lb.clock.Now(), n, 0).ok
}

func (lb *leakyBucket) ReserveN(n int, maxWait time.Duration) *Reservation {
	return lb.reserveN(lb.clock.Now(), n, maxWait)
}

func (lb *leakyBucket) SetLeakRate(rate bucket.Limit) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.leak(lb.clock.Now())
	lb.leakRate = rate
}

func (lb *leakyBucket) SetCapacity(capacity int) error {
	if err := validation.Positive("leakybucket", "capacity", capacity); err != nil {
		return err
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.leak(lb.clock.Now())
	lb.capacity = capacity
	if lb.level > float64(capacity) {
		lb.level = float64(capacity)
	}
	return nil
}

func (lb *leakyBucket) LeakRate() bucket.Limit {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.leakRate
}

func (lb *leakyBucket) Capacity() int {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.capacity
}

func (lb *leakyBucket) Level() float64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.leak(lb.clock.Now())
	return lb.level
}

func (lb *leakyBucket) reserveN(now time.Time, n int, maxWait time.Duration) *Reservation {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if n <= 0 || lb.leakRate == bucket.Inf {
		return &Reservation{ok: true, timeToAct: now, lim: lb}
	}

	lb.leak(now)

	available := float64(lb.capacity) - lb.level
	if float64(n) <= available {
		lb.level += float64(n)
		return &Reservation{ok: true, timeToAct: now, events: n, lim: lb}
	}
	if lb.leakRate == 0 {
		return &Reservation{events: n}
	}

	// The level may exceed capacity while the overflow drains.
	overflow := float64(n) - available
	wait := time.Duration(float64(time.Second) * overflow / float64(lb.leakRate))
	if wait > maxWait {
		return &Reservation{events: n}
	}
	lb.level += float64(n)
	return &Reservation{ok: true, timeToAct: now.Add(wait), events: n, lim: lb}
}

func (lb *leakyBucket) leak(now time.Time) {
	switch {
	case lb.leakRate == bucket.Inf:
		lb.level = 0
		lb.lastLeak = now
		return
	case lb.leakRate == 0:
		lb.lastLeak = now
		return
	}

	elapsed := now.Sub(lb.lastLeak)
	if elapsed <= 0 {
		return
	}
	lb.level = math.Max(0, lb.level-elapsed.Seconds()*float64(lb.leakRate))
	lb.lastLeak = now
}

func (lb *leakyBucket) cancel(r *Reservation) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.leak(lb.clock.Now())
	lb.level = math.Max(0, lb.level-float64(r.events))
}
