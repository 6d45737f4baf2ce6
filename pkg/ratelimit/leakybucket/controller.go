package leakybucket

import (
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/vnykmshr/flowguard/pkg/flow"
	"github.com/vnykmshr/flowguard/pkg/ratelimit/bucket"
	"github.com/vnykmshr/flowguard/pkg/stat"
)

// ControllerID is the CustomController name this package registers.
const ControllerID = "leaky_bucket"

func init() {
	if err := flow.RegisterController(ControllerID, NewController); err != nil {
		panic(err)
	}
}

// Controller drains Threshold calls per second through a bucket of
// capacity one, so admitted calls leave evenly spaced. Calls that land on
// a full bucket wait for it to drain up to MaxQueueingTimeMs.
type Controller struct {
	limiter Limiter
	maxWait time.Duration
	clock   clock.Clock
}

// NewController builds a leaky bucket controller for rule. It is the
// factory registered under ControllerID.
func NewController(rule flow.Rule, opts flow.ControllerOptions) (flow.Controller, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	initial := -1
	if rule.Threshold == 0 {
		initial = 1
	}
	limiter, err := NewWithConfig(Config{
		LeakRate:     bucket.Limit(rule.Threshold),
		Capacity:     1,
		Clock:        clk,
		InitialLevel: initial,
	})
	if err != nil {
		return nil, err
	}
	return &Controller{
		limiter: limiter,
		maxWait: time.Duration(rule.MaxQueueingTimeMs) * time.Millisecond,
		clock:   clk,
	}, nil
}

// CanPass books acquireCount calls and sleeps until they drain into the
// bucket. The node is not consulted.
func (c *Controller) CanPass(_ stat.Node, acquireCount uint32, _ bool) flow.Result {
	now := c.clock.Now()
	r := c.limiter.ReserveN(int(acquireCount), c.maxWait)
	if !r.OK() {
		return flow.Result{
			Verdict: flow.VerdictBlock,
			Reason:  fmt.Sprintf("leaky bucket level %.2f, draining %v/s", c.limiter.Level(), float64(c.limiter.LeakRate())),
		}
	}
	delay := r.DelayFrom(now)
	if delay > 0 {
		c.clock.Sleep(delay)
	}
	return flow.Result{Verdict: flow.VerdictPass, Wait: delay}
}

// Limiter exposes the underlying bucket.
func (c *Controller) Limiter() Limiter {
	return c.limiter
}
