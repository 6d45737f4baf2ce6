package flow

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"github.com/vnykmshr/flowguard/pkg/stat"
)

// pacer spaces admissions evenly. latestPassedMs is the scheduled time of
// the last admitted call; each admission advances it by the call's cost.
// It starts at neverSynced so the first call passes at any clock reading.
type pacer struct {
	maxQueueingMs  int64
	latestPassedMs atomic.Int64
	clock          clock.Clock
}

func newPacer(maxQueueingTimeMs uint32, clk clock.Clock) *pacer {
	p := &pacer{maxQueueingMs: int64(maxQueueingTimeMs), clock: clk}
	p.latestPassedMs.Store(neverSynced)
	return p
}

func (p *pacer) admit(costMs int64) Result {
	now := p.clock.Now().UnixMilli()
	for {
		latest := p.latestPassedMs.Load()
		if latest+costMs > now {
			break
		}
		if p.latestPassedMs.CompareAndSwap(latest, now) {
			return pass()
		}
	}

	if wait := p.latestPassedMs.Load() + costMs - now; wait > p.maxQueueingMs {
		return block(fmt.Sprintf("queueing time %dms exceeds %dms", wait, p.maxQueueingMs))
	}
	scheduled := p.latestPassedMs.Add(costMs)
	wait := scheduled - p.clock.Now().UnixMilli()
	if wait > p.maxQueueingMs {
		p.latestPassedMs.Add(-costMs)
		return block(fmt.Sprintf("queueing time %dms exceeds %dms", wait, p.maxQueueingMs))
	}
	if wait <= 0 {
		return pass()
	}
	d := time.Duration(wait) * time.Millisecond
	p.clock.Sleep(d)
	return passAfter(d)
}

func costMs(acquireCount uint32, rate float64) int64 {
	return int64(math.Round(float64(acquireCount) / rate * 1000))
}

// ThrottlingController admits calls at a uniform pace of Threshold per
// second, holding callers until their slot and rejecting those whose slot
// lies beyond the queueing limit.
type ThrottlingController struct {
	threshold float64
	pacer     *pacer
}

// NewThrottlingController returns a queueing rate limiter.
func NewThrottlingController(threshold float64, maxQueueingTimeMs uint32, clk clock.Clock) *ThrottlingController {
	return &ThrottlingController{
		threshold: threshold,
		pacer:     newPacer(maxQueueingTimeMs, clk),
	}
}

func (c *ThrottlingController) CanPass(_ stat.Node, acquireCount uint32, _ bool) Result {
	if acquireCount == 0 {
		return pass()
	}
	if c.threshold <= 0 {
		return block("threshold is zero")
	}
	return c.pacer.admit(costMs(acquireCount, c.threshold))
}

// WarmUpThrottlingController paces calls at the rate the warm-up ramp
// currently allows.
type WarmUpThrottlingController struct {
	bucket *warmUpBucket
	pacer  *pacer
	clock  clock.Clock
}

// NewWarmUpThrottlingController returns a queueing rate limiter whose rate
// follows a warm-up ramp.
func NewWarmUpThrottlingController(threshold float64, warmUpPeriodSec, coldFactor, maxQueueingTimeMs uint32, clk clock.Clock) *WarmUpThrottlingController {
	return &WarmUpThrottlingController{
		bucket: newWarmUpBucket(threshold, warmUpPeriodSec, coldFactor),
		pacer:  newPacer(maxQueueingTimeMs, clk),
		clock:  clk,
	}
}

func (c *WarmUpThrottlingController) CanPass(node stat.Node, acquireCount uint32, _ bool) Result {
	if acquireCount == 0 {
		return pass()
	}
	if c.bucket.threshold <= 0 {
		return block("threshold is zero")
	}
	c.bucket.sync(c.clock.Now().UnixMilli(), int64(node.PreviousPassQPS()))
	return c.pacer.admit(costMs(acquireCount, c.bucket.rate()))
}

var (
	_ Controller = (*DefaultController)(nil)
	_ Controller = (*WarmUpController)(nil)
	_ Controller = (*ThrottlingController)(nil)
	_ Controller = (*WarmUpThrottlingController)(nil)
)
