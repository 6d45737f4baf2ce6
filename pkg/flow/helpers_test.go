package flow

import (
	"io"
	"testing"
	"time"

	logger "github.com/sirupsen/logrus"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/vnykmshr/flowguard/internal/testutil"
	"github.com/vnykmshr/flowguard/pkg/stat"
)

func quietLogger() *logger.Logger {
	l := logger.New()
	l.SetOutput(io.Discard)
	return l
}

// heldClock is a fake clock whose Sleep records the wait instead of
// advancing time, so that several callers can arrive at the same instant.
type heldClock struct {
	*testingclock.FakeClock
	slept []time.Duration
}

func (c *heldClock) Sleep(d time.Duration) {
	c.slept = append(c.slept, d)
}

func newTestManager(t *testing.T, clk *testingclock.FakeClock) *Manager {
	t.Helper()
	m, err := NewManager(Config{Clock: clk, ColdFactor: DefaultColdFactor, Logger: quietLogger()})
	testutil.AssertNoError(t, err)
	return m
}

func newTestRegistry(t *testing.T, clk *testingclock.FakeClock) *stat.Registry {
	t.Helper()
	cfg := stat.DefaultConfig()
	cfg.Clock = clk
	reg, err := stat.NewRegistry(cfg)
	testutil.AssertNoError(t, err)
	return reg
}

func newTestNode(clk *testingclock.FakeClock) *stat.StatisticNode {
	cfg := stat.DefaultConfig()
	cfg.Clock = clk
	return stat.NewStatisticNode(cfg)
}

// harness plays the part of the entry gate around a Checker.
type harness struct {
	t       *testing.T
	clock   *testingclock.FakeClock
	rules   *Manager
	nodes   *stat.Registry
	checker *Checker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := testutil.NewFakeClock()
	h := &harness{
		t:     t,
		clock: clk,
		rules: newTestManager(t, clk),
		nodes: newTestRegistry(t, clk),
	}
	h.checker = NewChecker(h.rules, h.nodes)
	return h
}

func (h *harness) load(rules ...Rule) {
	h.t.Helper()
	_, err := h.rules.LoadRules(rules)
	testutil.AssertNoError(h.t, err)
}

func (h *harness) call(resource, contextName, origin string) *Call {
	rn, ok := h.nodes.GetOrCreateResourceNode(resource)
	if !ok {
		h.t.Fatalf("resource node for %s not created", resource)
	}
	c := &Call{
		Resource:     resource,
		ContextName:  contextName,
		Origin:       origin,
		AcquireCount: 1,
		ResourceNode: rn,
		EntryNode:    h.nodes.GetOrCreateEntryNode(rn, contextName),
	}
	if origin != "" {
		c.OriginNode = rn.GetOrCreateOriginNode(origin)
	}
	return c
}

// enter checks a call and records the pass the way the gate does.
func (h *harness) enter(resource, contextName, origin string) bool {
	c := h.call(resource, contextName, origin)
	blocking, res := h.checker.Check(c)
	if res.Blocked() {
		if blocking == nil {
			h.t.Fatal("blocked result without a rule")
		}
		c.EntryNode.AddBlock(1)
		return false
	}
	c.EntryNode.AddPass(1)
	if c.OriginNode != nil {
		c.OriginNode.AddPass(1)
	}
	return true
}
