package flow

import (
	"fmt"

	"k8s.io/utils/clock"

	"github.com/vnykmshr/flowguard/pkg/stat"
)

// DefaultController rejects calls that would push the current metric over
// the threshold. Prioritized QPS calls may instead borrow from the next
// sample window.
type DefaultController struct {
	kind      ThresholdKind
	threshold float64
	clock     clock.Clock
}

// NewDefaultController returns a reject-immediately controller.
func NewDefaultController(kind ThresholdKind, threshold float64, clk clock.Clock) *DefaultController {
	return &DefaultController{kind: kind, threshold: threshold, clock: clk}
}

func (c *DefaultController) used(node stat.Node) int64 {
	if c.kind == Concurrency {
		return int64(node.CurrentConcurrency())
	}
	return int64(node.PassQPS())
}

func (c *DefaultController) CanPass(node stat.Node, acquireCount uint32, prioritized bool) Result {
	used := c.used(node)
	if float64(used+int64(acquireCount)) <= c.threshold {
		return pass()
	}

	if prioritized && c.kind == QPS {
		now := c.clock.Now()
		wait := node.TryOccupyNext(now, acquireCount, c.threshold)
		if wait < node.OccupyTimeout() {
			node.AddWaiting(now.Add(wait), acquireCount)
			node.AddOccupiedPass(acquireCount)
			c.clock.Sleep(wait)
			return Result{Verdict: VerdictOccupied, Wait: wait}
		}
	}
	return block(fmt.Sprintf("%s %d+%d exceeds threshold %g", c.kind, used, acquireCount, c.threshold))
}
