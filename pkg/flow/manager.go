package flow

import (
	stderrors "errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/vnykmshr/flowguard/pkg/common/errors"
)

// TrafficShaper binds a published rule to the controller built for it.
type TrafficShaper struct {
	rule       Rule
	controller Controller

	// instances holds, for a pattern rule, the shaper built for each
	// resource the pattern matched. It travels with the shaper, so a
	// reused pattern rule keeps every per-resource controller.
	instances sync.Map // resource name -> *TrafficShaper
}

// Rule returns the published rule.
func (ts *TrafficShaper) Rule() Rule {
	return ts.rule
}

// Controller returns the controller that decides for the rule.
func (ts *TrafficShaper) Controller() Controller {
	return ts.controller
}

type pattern struct {
	re      *regexp.Regexp
	shapers []*TrafficShaper
}

// generation is one immutable published rule set. Only the regex match
// cache is filled in after publication.
type generation struct {
	ordered    []*TrafficShaper
	byResource map[string][]*TrafficShaper
	literal    map[string][]*TrafficShaper
	patterns   []pattern
	opts       ControllerOptions

	matched sync.Map // resource name -> []*TrafficShaper
}

func emptyGeneration(opts ControllerOptions) *generation {
	return &generation{
		byResource: make(map[string][]*TrafficShaper),
		literal:    make(map[string][]*TrafficShaper),
		opts:       opts,
	}
}

func (g *generation) shapersFor(resource string) []*TrafficShaper {
	if len(g.patterns) == 0 {
		return g.literal[resource]
	}
	if cached, ok := g.matched.Load(resource); ok {
		return cached.([]*TrafficShaper)
	}

	list := append([]*TrafficShaper(nil), g.literal[resource]...)
	for _, p := range g.patterns {
		if !p.re.MatchString(resource) {
			continue
		}
		for _, ts := range p.shapers {
			list = append(list, g.instantiate(ts, resource))
		}
	}
	sortShapers(list)
	actual, _ := g.matched.LoadOrStore(resource, list)
	return actual.([]*TrafficShaper)
}

// instantiate gives a resource matched by a pattern rule its own
// controller so that stateful shaping is kept per resource.
func (g *generation) instantiate(ts *TrafficShaper, resource string) *TrafficShaper {
	if inst, ok := ts.instances.Load(resource); ok {
		return inst.(*TrafficShaper)
	}
	c, err := NewController(ts.rule, g.opts)
	if err != nil {
		return ts
	}
	inst, _ := ts.instances.LoadOrStore(resource, &TrafficShaper{rule: ts.rule, controller: c})
	return inst.(*TrafficShaper)
}

func (g *generation) sameAs(other *generation) bool {
	if len(g.ordered) != len(other.ordered) {
		return false
	}
	for i := range g.ordered {
		if g.ordered[i] != other.ordered[i] {
			return false
		}
	}
	return true
}

// Config controls how a Manager builds controllers.
type Config struct {
	// Clock is handed to every controller. If nil, clock.RealClock is used.
	Clock clock.Clock

	// ColdFactor is the warm-up cold factor for rules that leave it unset.
	ColdFactor uint32

	// Logger receives load and rejection messages. If nil, the standard
	// logrus logger is used.
	Logger logger.FieldLogger
}

// DefaultConfig returns a real clock, the default cold factor and the
// standard logger.
func DefaultConfig() Config {
	return Config{
		Clock:      clock.RealClock{},
		ColdFactor: DefaultColdFactor,
		Logger:     logger.StandardLogger(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ColdFactor <= 1 {
		return errors.NewValidationError("flow", "coldFactor", c.ColdFactor, "must be greater than 1")
	}
	return nil
}

// Manager holds the published flow rules. Readers take a snapshot of the
// current generation without locking; loads build a complete new
// generation and publish it with a single pointer swap.
type Manager struct {
	mu      sync.Mutex
	current atomic.Pointer[generation]
	opts    ControllerOptions
	log     logger.FieldLogger
}

// NewManager creates an empty rule manager.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.StandardLogger()
	}
	m := &Manager{
		opts: ControllerOptions{Clock: cfg.Clock, ColdFactor: cfg.ColdFactor},
		log:  cfg.Logger,
	}
	m.current.Store(emptyGeneration(m.opts))
	return m, nil
}

// LoadRules replaces every published rule with rules. Invalid rules are
// left out and reported in the returned error; the valid ones are still
// published. updated is false when the result equals the current set.
func (m *Manager) LoadRules(rules []Rule) (updated bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.publish(rules)
}

// LoadRulesOfResource replaces the rules of one resource, leaving the rest
// untouched. An empty list removes the resource's rules.
func (m *Manager) LoadRulesOfResource(resource string, rules []Rule) (updated bool, err error) {
	if resource == "" {
		return false, errors.NewValidationError("flow", "resource", resource, "cannot be empty")
	}

	var errs []error
	own := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Resource != resource {
			errs = append(errs, errors.NewValidationError("flow", "resource", r.Resource,
				fmt.Sprintf("rule loaded for resource %q", resource)))
			continue
		}
		own = append(own, r)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.current.Load()
	next := make([]Rule, 0, len(cur.ordered)+len(own))
	for _, ts := range cur.ordered {
		if ts.rule.Resource != resource {
			next = append(next, ts.rule)
		}
	}
	next = append(next, own...)

	updated, err = m.publish(next)
	errs = append(errs, err)
	return updated, stderrors.Join(errs...)
}

// ClearRules removes every published rule.
func (m *Manager) ClearRules() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Store(emptyGeneration(m.opts))
	m.log.Info("flow rules cleared")
}

// publish must be called with m.mu held.
func (m *Manager) publish(rules []Rule) (bool, error) {
	prev := m.current.Load()
	next, errs := m.build(rules, prev)
	for _, err := range errs {
		m.log.WithError(err).Warn("flow rule rejected")
	}
	if next.sameAs(prev) {
		m.log.Debug("flow rules unchanged")
		return false, stderrors.Join(errs...)
	}
	m.current.Store(next)
	m.log.WithFields(logger.Fields{
		"rules":     len(next.ordered),
		"resources": len(next.byResource),
	}).Info("flow rules loaded")
	return true, stderrors.Join(errs...)
}

func (m *Manager) build(rules []Rule, prev *generation) (*generation, []error) {
	var errs []error
	gen := emptyGeneration(m.opts)
	seen := make(map[dedupKey]struct{}, len(rules))
	compiled := make(map[string]*regexp.Regexp)

	for _, r := range rules {
		r = r.Normalized()
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		key := r.dedupKey()
		if _, dup := seen[key]; dup {
			m.log.WithField("rule", r.String()).Warn("duplicate flow rule ignored")
			continue
		}

		ts := reuse(prev, r)
		if ts == nil {
			if r.ID == "" {
				r.ID = uuid.New().String()
			}
			c, err := NewController(r, m.opts)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			ts = &TrafficShaper{rule: r, controller: c}
		}
		seen[key] = struct{}{}

		gen.byResource[r.Resource] = append(gen.byResource[r.Resource], ts)
		if !r.Regex {
			gen.literal[r.Resource] = append(gen.literal[r.Resource], ts)
			continue
		}
		if _, ok := compiled[r.Resource]; !ok {
			compiled[r.Resource] = regexp.MustCompile("^(?:" + r.Resource + ")$")
		}
	}

	resources := make([]string, 0, len(gen.byResource))
	for res, list := range gen.byResource {
		sortShapers(list)
		resources = append(resources, res)
	}
	sort.Strings(resources)
	for _, res := range resources {
		gen.ordered = append(gen.ordered, gen.byResource[res]...)
	}
	for _, list := range gen.literal {
		sortShapers(list)
	}

	patterns := make([]string, 0, len(compiled))
	for p := range compiled {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)
	for _, p := range patterns {
		var shapers []*TrafficShaper
		for _, ts := range gen.byResource[p] {
			if ts.rule.Regex {
				shapers = append(shapers, ts)
			}
		}
		gen.patterns = append(gen.patterns, pattern{re: compiled[p], shapers: shapers})
	}
	return gen, errs
}

// reuse returns the published shaper for a rule equal to r so that its
// controller keeps its state across reloads.
func reuse(prev *generation, r Rule) *TrafficShaper {
	for _, ts := range prev.byResource[r.Resource] {
		if sameShape(ts.rule, r) {
			return ts
		}
	}
	return nil
}

// ShapersFor returns the shapers that apply to resource in evaluation
// order, including those of matching pattern rules. The slice belongs to
// the current generation and must not be modified.
func (m *Manager) ShapersFor(resource string) []*TrafficShaper {
	return m.current.Load().shapersFor(resource)
}

// Rules returns every published rule, grouped by resource in name order
// and ordered within a resource for evaluation.
func (m *Manager) Rules() []Rule {
	gen := m.current.Load()
	rules := make([]Rule, 0, len(gen.ordered))
	for _, ts := range gen.ordered {
		rules = append(rules, ts.rule)
	}
	return rules
}

// RulesOfResource returns the rules published under resource. Pattern
// rules are listed under their pattern.
func (m *Manager) RulesOfResource(resource string) []Rule {
	list := m.current.Load().byResource[resource]
	rules := make([]Rule, 0, len(list))
	for _, ts := range list {
		rules = append(rules, ts.rule)
	}
	return rules
}

// HasRules reports whether any rule applies to resource.
func (m *Manager) HasRules(resource string) bool {
	return len(m.ShapersFor(resource)) > 0
}

// IsOtherOrigin reports whether origin is not named by any rule that
// applies to resource.
func (m *Manager) IsOtherOrigin(origin, resource string) bool {
	return isOtherOrigin(origin, m.ShapersFor(resource))
}
