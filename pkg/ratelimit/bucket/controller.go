package bucket

import (
	"fmt"
	"math"
	"time"

	"k8s.io/utils/clock"

	"github.com/vnykmshr/flowguard/pkg/flow"
	"github.com/vnykmshr/flowguard/pkg/stat"
)

// ControllerID is the CustomController name this package registers.
const ControllerID = "token_bucket"

func init() {
	if err := flow.RegisterController(ControllerID, NewController); err != nil {
		panic(err)
	}
}

// Controller shapes a flow rule with a token bucket: Threshold tokens per
// second with a burst of Threshold (at least one). Calls that find the
// bucket empty wait for a refill up to MaxQueueingTimeMs.
type Controller struct {
	limiter Limiter
	maxWait time.Duration
	clock   clock.Clock
}

// NewController builds a token bucket controller for rule. It is the
// factory registered under ControllerID.
func NewController(rule flow.Rule, opts flow.ControllerOptions) (flow.Controller, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	burst := int(math.Ceil(rule.Threshold))
	if burst < 1 {
		burst = 1
	}
	initial := -1
	if rule.Threshold == 0 {
		initial = 0
	}
	limiter, err := NewWithConfig(Config{
		Rate:          Limit(rule.Threshold),
		Burst:         burst,
		Clock:         clk,
		InitialTokens: initial,
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

// CanPass takes acquireCount tokens, waiting for them if the wait fits
// the queueing limit. The node is not consulted.
func (c *Controller) CanPass(_ stat.Node, acquireCount uint32, _ bool) flow.Result {
	now := c.clock.Now()
	r := c.limiter.ReserveN(int(acquireCount), c.maxWait)
	if !r.OK() {
		return flow.Result{
			Verdict: flow.VerdictBlock,
			Reason:  fmt.Sprintf("token bucket has %.2f of %d tokens", c.limiter.Tokens(), acquireCount),
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
