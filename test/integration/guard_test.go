// Package integration contains integration tests that verify cross-package functionality.
// These tests ensure that guards, rule sources and metrics work together in realistic scenarios.
package integration

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logger "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/vnykmshr/flowguard/internal/testutil"
	gferrors "github.com/vnykmshr/flowguard/pkg/common/errors"
	"github.com/vnykmshr/flowguard/pkg/flow"
	"github.com/vnykmshr/flowguard/pkg/guard"
)

func quietLogger() *logger.Logger {
	l := logger.New()
	l.SetOutput(io.Discard)
	return l
}

func newGuard(t *testing.T, opts ...guard.Option) (*guard.Guard, *testingclock.FakeClock) {
	t.Helper()
	clk := testutil.NewFakeClock()
	g, err := guard.New(append([]guard.Option{guard.WithClock(clk), guard.WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return g, clk
}

// TestConcurrentEntryAccounting verifies that under concurrent traffic every
// call is either admitted or blocked, and that node statistics agree with
// what callers observed.
func TestConcurrentEntryAccounting(t *testing.T) {
	g, _ := newGuard(t)
	_, err := g.LoadRules([]flow.Rule{
		{Resource: "orders", Threshold: 100},
		{Resource: "orders", Threshold: 8, ThresholdKind: flow.Concurrency},
	})
	require.NoError(t, err)

	const workers, calls = 16, 50
	var passed, blocked atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < calls; i++ {
				e, err := g.Entry(context.Background(), "orders")
				if err != nil {
					if !gferrors.IsBlocked(err) {
						t.Errorf("unexpected error: %v", err)
					}
					blocked.Add(1)
					continue
				}
				passed.Add(1)
				e.Exit()
			}
		}()
	}
	wg.Wait()

	node := g.Nodes().ResourceNode("orders")
	assert.Equal(t, int64(workers*calls), passed.Load()+blocked.Load())
	assert.Equal(t, float64(passed.Load()), node.PassQPS())
	assert.Equal(t, float64(blocked.Load()), node.BlockQPS())
	assert.Equal(t, float64(passed.Load()), node.SuccessQPS())
	assert.Equal(t, int32(0), node.CurrentConcurrency())
	assert.GreaterOrEqual(t, passed.Load(), int64(100))
}

// TestReloadDuringTraffic verifies that rules can be swapped while entries
// are being checked, and that every entry sees a consistent rule set.
func TestReloadDuringTraffic(t *testing.T) {
	g, _ := newGuard(t)
	blockAll := []flow.Rule{{Resource: "orders", Threshold: 0}}
	allowAll := []flow.Rule{{Resource: "orders", Threshold: 1e9}}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ctx.Err() == nil; i++ {
			rules := allowAll
			if i%2 == 0 {
				rules = blockAll
			}
			if _, err := g.LoadRules(rules); err != nil {
				t.Errorf("load failed: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 2000; i++ {
		e, err := g.Entry(context.Background(), "orders")
		if err != nil {
			var berr *guard.BlockError
			require.True(t, errors.As(err, &berr))
			require.NotNil(t, berr.Rule)
			require.Equal(t, 0.0, berr.Rule.Threshold)
			continue
		}
		e.Exit()
	}
	cancel()
	wg.Wait()

	g.ClearRules()
	e, err := g.Entry(context.Background(), "orders")
	require.NoError(t, err)
	e.Exit()
}

// TestQueueingUnderConcurrency verifies that paced entries from many callers
// are spread out by the rate limiter.
func TestQueueingUnderConcurrency(t *testing.T) {
	g, err := guard.New(guard.WithLogger(quietLogger()))
	require.NoError(t, err)
	_, err = g.LoadRules([]flow.Rule{{
		Resource:          "reports",
		Threshold:         50,
		ControlBehavior:   flow.RateLimiter,
		MaxQueueingTimeMs: 2000,
	}})
	require.NoError(t, err)

	const callers = 10
	start := time.Now()
	var wg sync.WaitGroup
	var passed atomic.Int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Do(context.Background(), "reports", func(context.Context) error { return nil }); err == nil {
				passed.Add(1)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	// 10 calls at 50 per second are paced 20ms apart.
	assert.Equal(t, int32(callers), passed.Load())
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

// TestWarmUpRampThroughGuard verifies the warm-up ramp as seen by callers.
func TestWarmUpRampThroughGuard(t *testing.T) {
	g, clk := newGuard(t)
	_, err := g.LoadRules([]flow.Rule{{
		Resource:        "search",
		Threshold:       10,
		ControlBehavior: flow.WarmUp,
		WarmUpPeriodSec: 10,
	}})
	require.NoError(t, err)

	perSecond := make([]int, 60)
	for sec := range perSecond {
		for i := 0; i < 20; i++ {
			e, err := g.Entry(context.Background(), "search")
			if err != nil {
				break
			}
			e.Exit()
			perSecond[sec]++
		}
		clk.Step(time.Second)
	}

	assert.Equal(t, 3, perSecond[0])
	assert.Equal(t, 10, perSecond[len(perSecond)-1])
	for sec, n := range perSecond {
		assert.LessOrEqual(t, n, 10, "second %d", sec)
	}
}
