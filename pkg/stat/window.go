package stat

import (
	"sync/atomic"
)

// MetricEvent identifies one counter kept by every sample bucket.
type MetricEvent int

const (
	// EventPass counts admitted acquisitions.
	EventPass MetricEvent = iota
	// EventBlock counts rejected acquisitions.
	EventBlock
	// EventComplete counts calls that exited.
	EventComplete
	// EventError counts calls that exited with an error.
	EventError
	// EventRT accumulates response time in milliseconds.
	EventRT
	// EventOccupiedPass counts admissions borrowed from a future window.
	EventOccupiedPass

	eventCount
)

// bucket accumulates counters for calls whose timestamp falls in
// [start, start+windowMs). Counters are only ever mutated with atomic adds.
type bucket struct {
	start    int64
	counters [eventCount]atomic.Int64
}

func (b *bucket) add(event MetricEvent, n int64) {
	b.counters[event].Add(n)
}

func (b *bucket) get(event MetricEvent) int64 {
	return b.counters[event].Load()
}

// leapArray is a ring of sampleCount buckets covering intervalMs. Buckets are
// replaced lazily, by compare-and-swap, the first time a caller lands in a
// window newer than the one the slot holds.
type leapArray struct {
	sampleCount int64
	intervalMs  int64
	windowMs    int64
	slots       []atomic.Pointer[bucket]

	// future marks a borrow array: its buckets are live only while their
	// window is still ahead of now.
	future bool
	// borrow, when set, pre-loads new buckets with passes that were
	// reserved for their window ahead of time.
	borrow *leapArray
}

func newLeapArray(sampleCount, intervalMs int64) *leapArray {
	return &leapArray{
		sampleCount: sampleCount,
		intervalMs:  intervalMs,
		windowMs:    intervalMs / sampleCount,
		slots:       make([]atomic.Pointer[bucket], sampleCount),
	}
}

func newOccupiableLeapArray(sampleCount, intervalMs int64) *leapArray {
	la := newLeapArray(sampleCount, intervalMs)
	la.borrow = newLeapArray(sampleCount, intervalMs)
	la.borrow.future = true
	return la
}

func (la *leapArray) index(nowMs int64) int64 {
	return (nowMs / la.windowMs) % la.sampleCount
}

func (la *leapArray) windowStart(nowMs int64) int64 {
	return nowMs - nowMs%la.windowMs
}

func (la *leapArray) newBucket(start int64) *bucket {
	b := &bucket{start: start}
	if la.borrow != nil {
		if reserved := la.borrow.bucketAt(start); reserved != nil {
			b.add(EventPass, reserved.get(EventPass))
		}
	}
	return b
}

// currentBucket returns the bucket for the window containing nowMs,
// creating or recycling its slot as needed.
func (la *leapArray) currentBucket(nowMs int64) *bucket {
	if nowMs < 0 {
		nowMs = 0
	}
	slot := &la.slots[la.index(nowMs)]
	start := la.windowStart(nowMs)
	for {
		old := slot.Load()
		switch {
		case old == nil:
			b := la.newBucket(start)
			if slot.CompareAndSwap(nil, b) {
				return b
			}
		case old.start == start:
			return old
		case old.start < start:
			b := la.newBucket(start)
			if slot.CompareAndSwap(old, b) {
				return b
			}
		default:
			// The clock went backwards. Count into a detached bucket rather
			// than corrupting a newer window.
			return &bucket{start: start}
		}
	}
}

// bucketAt returns the live bucket whose window contains tMs, or nil.
func (la *leapArray) bucketAt(tMs int64) *bucket {
	if tMs < 0 {
		return nil
	}
	b := la.slots[la.index(tMs)].Load()
	if b == nil || tMs < b.start || tMs >= b.start+la.windowMs {
		return nil
	}
	return b
}

func (la *leapArray) deprecated(nowMs int64, b *bucket) bool {
	if la.future {
		return nowMs >= b.start
	}
	return nowMs-b.start > la.intervalMs
}

// sum totals event over every live bucket as of nowMs.
func (la *leapArray) sum(event MetricEvent, nowMs int64) int64 {
	la.currentBucket(nowMs)
	var total int64
	for i := range la.slots {
		b := la.slots[i].Load()
		if b == nil || la.deprecated(nowMs, b) {
			continue
		}
		total += b.get(event)
	}
	return total
}

// valueAt returns event for the window containing tMs, zero when that
// window is not held.
func (la *leapArray) valueAt(event MetricEvent, tMs int64) int64 {
	b := la.bucketAt(tMs)
	if b == nil {
		return 0
	}
	return b.get(event)
}

// previous returns event for the window immediately before the one
// containing nowMs.
func (la *leapArray) previous(event MetricEvent, nowMs int64) int64 {
	la.currentBucket(nowMs)
	prev := nowMs - la.windowMs
	b := la.bucketAt(prev)
	if b == nil || la.deprecated(nowMs, b) {
		return 0
	}
	return b.get(event)
}

// add records n occurrences of event against the window containing nowMs.
func (la *leapArray) add(event MetricEvent, nowMs, n int64) {
	la.currentBucket(nowMs).add(event, n)
}

// waiting totals passes reserved in future windows.
func (la *leapArray) waiting(nowMs int64) int64 {
	if la.borrow == nil {
		return 0
	}
	var total int64
	for i := range la.borrow.slots {
		b := la.borrow.slots[i].Load()
		if b == nil || la.borrow.deprecated(nowMs, b) {
			continue
		}
		total += b.get(EventPass)
	}
	return total
}

// reserve books n passes for the window containing futureMs.
func (la *leapArray) reserve(futureMs, n int64) {
	if la.borrow == nil {
		return
	}
	la.borrow.add(EventPass, futureMs, n)
}
