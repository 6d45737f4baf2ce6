package flow

import (
	"fmt"
	"math"
	"sync/atomic"

	"k8s.io/utils/clock"

	"github.com/vnykmshr/flowguard/pkg/stat"
)

// DefaultColdFactor divides the threshold to get the cold-start rate.
const DefaultColdFactor = 3

// warmUpBucket tracks stored tokens for the warm-up ramp. A full bucket
// means the system is cold; sustained traffic drains it toward the warning
// line, below which the full threshold applies.
type warmUpBucket struct {
	threshold    float64
	coldFactor   float64
	warningToken int64
	maxToken     int64
	slope        float64

	storedTokens atomic.Int64
	lastFilledMs atomic.Int64
}

func newWarmUpBucket(threshold float64, warmUpPeriodSec, coldFactor uint32) *warmUpBucket {
	if coldFactor <= 1 {
		coldFactor = DefaultColdFactor
	}
	w := &warmUpBucket{
		threshold:  threshold,
		coldFactor: float64(coldFactor),
	}
	period := float64(warmUpPeriodSec)
	w.warningToken = int64(period*threshold) / int64(coldFactor-1)
	w.maxToken = w.warningToken + int64(2*period*threshold/(1.0+w.coldFactor))
	if w.maxToken > w.warningToken && threshold > 0 {
		w.slope = (w.coldFactor - 1.0) / threshold / float64(w.maxToken-w.warningToken)
	}
	w.lastFilledMs.Store(neverSynced)
	return w
}

// neverSynced marks a bucket that has not been filled yet. It is far
// enough below any clock reading that subtracting it cannot overflow.
const neverSynced = math.MinInt64 / 2

// sync refills or drains tokens once per second. previousQPS is the pass
// count of the last full second. The first caller to claim a second does
// the update; the others keep the current level.
func (w *warmUpBucket) sync(nowMs int64, previousQPS int64) {
	current := nowMs - nowMs%1000
	last := w.lastFilledMs.Load()
	if current <= last {
		return
	}
	if !w.lastFilledMs.CompareAndSwap(last, current) {
		return
	}

	for {
		old := w.storedTokens.Load()
		next := w.coolDown(old, current, last, previousQPS) - previousQPS
		if next < 0 {
			next = 0
		}
		if w.storedTokens.CompareAndSwap(old, next) {
			return
		}
	}
}

func (w *warmUpBucket) coolDown(old, current, last, previousQPS int64) int64 {
	refill := w.maxToken
	if last != neverSynced {
		refill = int64(math.Min(float64(old)+float64(current-last)*w.threshold/1000, float64(w.maxToken)))
	}
	next := old
	switch {
	case old < w.warningToken:
		next = refill
	case old > w.warningToken:
		// Only idle traffic lets a warming system cool back down.
		if previousQPS < int64(w.threshold)/int64(w.coldFactor) {
			next = refill
		}
	}
	if next > w.maxToken {
		next = w.maxToken
	}
	return next
}

// rate returns the QPS currently allowed by the ramp.
func (w *warmUpBucket) rate() float64 {
	rest := w.storedTokens.Load()
	if rest < w.warningToken {
		return w.threshold
	}
	above := float64(rest - w.warningToken)
	return math.Nextafter(1.0/(above*w.slope+1.0/w.threshold), math.Inf(1))
}

// WarmUpController lets the allowed QPS climb from Threshold/coldFactor to
// Threshold over the warm-up period, and drops back when traffic idles.
type WarmUpController struct {
	bucket *warmUpBucket
	clock  clock.Clock
}

// NewWarmUpController returns a warm-up controller. A coldFactor of one or
// less falls back to DefaultColdFactor.
func NewWarmUpController(threshold float64, warmUpPeriodSec, coldFactor uint32, clk clock.Clock) *WarmUpController {
	return &WarmUpController{
		bucket: newWarmUpBucket(threshold, warmUpPeriodSec, coldFactor),
		clock:  clk,
	}
}

func (c *WarmUpController) CanPass(node stat.Node, acquireCount uint32, _ bool) Result {
	if c.bucket.threshold <= 0 {
		return block("threshold is zero")
	}
	passQPS := int64(node.PassQPS())
	c.bucket.sync(c.clock.Now().UnixMilli(), int64(node.PreviousPassQPS()))

	allowed := c.bucket.rate()
	if float64(passQPS+int64(acquireCount)) <= allowed {
		return pass()
	}
	return block(fmt.Sprintf("QPS %d+%d exceeds warm-up rate %.2f", passQPS, acquireCount, allowed))
}
