package guard

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	logger "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	gfcontext "github.com/vnykmshr/flowguard/pkg/common/context"
	"github.com/vnykmshr/flowguard/pkg/flow"
	"github.com/vnykmshr/flowguard/pkg/metrics"
	"github.com/vnykmshr/flowguard/pkg/stat"
)

// Guard admits or rejects calls to named resources according to the flow
// rules it holds. All methods are safe for concurrent use.
type Guard struct {
	clock   clock.Clock
	log     logger.FieldLogger
	nodes   *stat.Registry
	rules   *flow.Manager
	checker *flow.Checker

	metrics   atomic.Pointer[metrics.Registry]
	capWarned sync.Map
}

// New creates a guard with no rules; every entry is admitted until rules
// are loaded.
func New(opts ...Option) (*Guard, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.RealClock{}
	}
	if o.logger == nil {
		o.logger = logger.StandardLogger()
	}

	o.stat.Clock = o.clock
	nodes, err := stat.NewRegistry(o.stat)
	if err != nil {
		return nil, err
	}
	rules, err := flow.NewManager(flow.Config{
		Clock:      o.clock,
		ColdFactor: o.coldFactor,
		Logger:     o.logger,
	})
	if err != nil {
		return nil, err
	}

	g := &Guard{
		clock:   o.clock,
		log:     o.logger,
		nodes:   nodes,
		rules:   rules,
		checker: flow.NewChecker(rules, nodes),
	}
	if o.metrics.Enabled {
		if err := g.EnableMetrics(o.metrics); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Entry asks to enter resource. It returns the admitted entry, or a
// *BlockError when a rule rejects the call. The calling context is taken
// from ctx, or from WithContextName and WithOrigin when ctx carries none.
func (g *Guard) Entry(ctx context.Context, resource string, opts ...EntryOption) (*Entry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	eo := entryOptions{acquireCount: 1}
	for _, opt := range opts {
		opt(&eo)
	}
	if eo.acquireCount == 0 {
		eo.acquireCount = 1
	}
	if !gfcontext.Entered(ctx) {
		ctx = gfcontext.Enter(ctx, eo.contextName, eo.origin)
	}
	cc := gfcontext.FromContext(ctx)
	m := g.metrics.Load()
	if m != nil {
		m.EntryRequests.WithLabelValues(resource).Inc()
	}

	e := &Entry{
		guard:        g,
		resource:     resource,
		acquireCount: eo.acquireCount,
		start:        g.clock.Now(),
	}
	e.parent, _ = CurrentEntry(ctx)
	e.ctx = context.WithValue(ctx, entryKey{}, e)

	rn, ok := g.nodes.GetOrCreateResourceNode(resource)
	if !ok {
		if _, warned := g.capWarned.LoadOrStore(resource, struct{}{}); !warned {
			g.log.WithField("resource", resource).Warn("resource limit reached, entry admitted without checks")
		}
		if m != nil {
			m.EntryPassed.WithLabelValues(resource).Inc()
		}
		return e, nil
	}
	e.entryNode = g.nodes.GetOrCreateEntryNode(rn, cc.Name())
	if cc.Origin() != "" {
		e.originNode = rn.GetOrCreateOriginNode(cc.Origin())
	}

	blocking, res := g.checker.Check(&flow.Call{
		Resource:     resource,
		ContextName:  cc.Name(),
		Origin:       cc.Origin(),
		AcquireCount: eo.acquireCount,
		Prioritized:  eo.prioritized,
		ResourceNode: rn,
		EntryNode:    e.entryNode,
		OriginNode:   e.originNode,
	})

	if res.Blocked() {
		e.entryNode.AddBlock(eo.acquireCount)
		if e.originNode != nil {
			e.originNode.AddBlock(eo.acquireCount)
		}
		berr := &BlockError{Resource: resource, Reason: res.Reason}
		behavior := "none"
		if blocking != nil {
			rule := blocking.Rule()
			berr.Rule = &rule
			behavior = rule.ControlBehavior.String()
		}
		if m != nil {
			m.EntryBlocked.WithLabelValues(resource, behavior).Inc()
		}
		g.log.WithFields(logger.Fields{
			"resource": resource,
			"context":  cc.Name(),
			"origin":   cc.Origin(),
			"reason":   res.Reason,
		}).Debug("entry blocked")
		return nil, berr
	}

	e.entryNode.IncreaseConcurrency()
	if e.originNode != nil {
		e.originNode.IncreaseConcurrency()
	}
	// An occupied pass was already charged to the future window.
	if res.Verdict != flow.VerdictOccupied {
		e.entryNode.AddPass(eo.acquireCount)
		if e.originNode != nil {
			e.originNode.AddPass(eo.acquireCount)
		}
	}
	if m != nil {
		m.EntryPassed.WithLabelValues(resource).Inc()
		if res.Verdict == flow.VerdictOccupied {
			m.EntryOccupied.WithLabelValues(resource).Inc()
		}
		if res.Wait > 0 {
			m.QueueWaitTime.WithLabelValues(resource).Observe(res.Wait.Seconds())
		}
	}
	e.start = g.clock.Now()
	return e, nil
}

func (g *Guard) exit(e *Entry) {
	rt := g.clock.Since(e.start)
	failed := e.Err() != nil
	if m := g.metrics.Load(); m != nil {
		m.ResponseTime.WithLabelValues(e.resource).Observe(rt.Seconds())
		if failed {
			m.EntryErrors.WithLabelValues(e.resource).Inc()
		}
	}
	if e.entryNode == nil {
		return
	}

	n := e.acquireCount
	if failed {
		e.entryNode.AddError(n)
	}
	e.entryNode.AddRTAndComplete(rt, n)
	e.entryNode.DecreaseConcurrency()
	if e.originNode != nil {
		if failed {
			e.originNode.AddError(n)
		}
		e.originNode.AddRTAndComplete(rt, n)
		e.originNode.DecreaseConcurrency()
	}
}

// Do runs fn inside an entry for resource. It returns the *BlockError when
// the entry is rejected, otherwise the error of fn, which is also recorded
// as the entry's error.
func (g *Guard) Do(ctx context.Context, resource string, fn func(ctx context.Context) error, opts ...EntryOption) error {
	e, err := g.Entry(ctx, resource, opts...)
	if err != nil {
		return err
	}
	defer e.Exit()

	err = fn(e.Context())
	e.SetError(err)
	return err
}

// LoadRules replaces every flow rule. See flow.Manager.LoadRules.
func (g *Guard) LoadRules(rules []flow.Rule) (bool, error) {
	updated, err := g.rules.LoadRules(rules)
	g.recordLoad(updated, err)
	return updated, err
}

// LoadRulesOfResource replaces the flow rules of one resource.
func (g *Guard) LoadRulesOfResource(resource string, rules []flow.Rule) (bool, error) {
	updated, err := g.rules.LoadRulesOfResource(resource, rules)
	g.recordLoad(updated, err)
	return updated, err
}

// ClearRules removes every flow rule.
func (g *Guard) ClearRules() {
	g.rules.ClearRules()
	g.recordLoad(true, nil)
}

// Rules returns the published flow rules.
func (g *Guard) Rules() []flow.Rule {
	return g.rules.Rules()
}

// RulesOfResource returns the flow rules published for resource.
func (g *Guard) RulesOfResource(resource string) []flow.Rule {
	return g.rules.RulesOfResource(resource)
}

// RuleManager returns the underlying rule manager.
func (g *Guard) RuleManager() *flow.Manager {
	return g.rules
}

// Nodes returns the statistics registry.
func (g *Guard) Nodes() *stat.Registry {
	return g.nodes
}

func (g *Guard) recordLoad(updated bool, err error) {
	m := g.metrics.Load()
	if m == nil {
		return
	}
	result := "unchanged"
	if updated {
		result = "updated"
	}
	m.RuleLoads.WithLabelValues(result).Inc()
	if err != nil {
		m.RulesRejected.Inc()
	}
	m.RulesActive.Set(float64(len(g.rules.Rules())))
}

// EnableMetrics starts recording metrics into cfg.Registry and registers a
// node collector there. A nil registry means the Prometheus default.
func (g *Guard) EnableMetrics(cfg metrics.Config) error {
	if !cfg.Enabled {
		g.DisableMetrics()
		return nil
	}
	reg := cfg.Registry
	var m *metrics.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
		m = metrics.DefaultRegistry
	} else {
		m = metrics.NewRegistryWithConfig(cfg)
	}

	if !cfg.SkipNodeCollector {
		collector := metrics.NewNodeCollector(g.nodes, g.rules, cfg)
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !stderrors.As(err, &already) {
				return err
			}
		}
	}
	g.metrics.Store(m)
	m.RulesActive.Set(float64(len(g.rules.Rules())))
	return nil
}

// DisableMetrics stops recording metrics.
func (g *Guard) DisableMetrics() {
	g.metrics.Store(nil)
}

// MetricsEnabled reports whether metrics are being recorded.
func (g *Guard) MetricsEnabled() bool {
	return g.metrics.Load() != nil
}

var _ metrics.Instrumentable = (*Guard)(nil)
