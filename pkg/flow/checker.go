package flow

import (
	"github.com/vnykmshr/flowguard/pkg/stat"
)

// NodeLookup finds aggregate resource nodes by name.
type NodeLookup interface {
	ResourceNode(name string) *stat.ResourceNode
}

// Call describes one admission attempt.
type Call struct {
	Resource     string
	ContextName  string
	Origin       string
	AcquireCount uint32
	Prioritized  bool

	// ResourceNode aggregates the resource over every entry point.
	ResourceNode *stat.ResourceNode
	// EntryNode counts the resource as entered through ContextName.
	EntryNode *stat.EntryNode
	// OriginNode counts the resource for Origin. Nil when Origin is empty.
	OriginNode *stat.StatisticNode
}

// Checker evaluates the flow rules of a resource against calls.
type Checker struct {
	rules *Manager
	nodes NodeLookup
}

// NewChecker returns a checker reading rules from rules and related
// resource nodes from nodes.
func NewChecker(rules *Manager, nodes NodeLookup) *Checker {
	return &Checker{rules: rules, nodes: nodes}
}

// Check runs every applicable rule in evaluation order. It returns the
// blocking rule and its result, or nil and the admitting result. A call
// admitted against borrowed capacity stops further checks.
func (c *Checker) Check(call *Call) (*TrafficShaper, Result) {
	shapers := c.rules.ShapersFor(call.Resource)
	if len(shapers) == 0 {
		return nil, pass()
	}

	admitted := pass()
	for _, ts := range shapers {
		node := c.selectNode(ts.rule, call, shapers)
		if node == nil {
			continue
		}
		res := ts.controller.CanPass(node, call.AcquireCount, call.Prioritized)
		switch res.Verdict {
		case VerdictBlock:
			return ts, res
		case VerdictOccupied:
			return nil, res
		}
		admitted.Wait += res.Wait
	}
	return nil, admitted
}

// selectNode returns the node rule checks for call, or nil when the rule
// does not apply to it.
func (c *Checker) selectNode(rule Rule, call *Call, peers []*TrafficShaper) stat.Node {
	limitApp := rule.limitApp()

	switch {
	case limitApp == call.Origin && isSpecificOrigin(call.Origin):
		if rule.Strategy == Direct {
			return originNode(call)
		}
		return c.referenceNode(rule, call)
	case limitApp == LimitAppDefault:
		if rule.Strategy == Direct {
			if call.ResourceNode == nil {
				return nil
			}
			return call.ResourceNode
		}
		return c.referenceNode(rule, call)
	case limitApp == LimitAppOther && isOtherOrigin(call.Origin, peers):
		if rule.Strategy == Direct {
			return originNode(call)
		}
		return c.referenceNode(rule, call)
	}
	return nil
}

func (c *Checker) referenceNode(rule Rule, call *Call) stat.Node {
	if rule.RefResource == "" {
		return nil
	}
	switch rule.Strategy {
	case Relate:
		if c.nodes == nil {
			return nil
		}
		if node := c.nodes.ResourceNode(rule.RefResource); node != nil {
			return node
		}
	case Chain:
		if rule.RefResource == call.ContextName && call.EntryNode != nil {
			return call.EntryNode
		}
	}
	return nil
}

func originNode(call *Call) stat.Node {
	if call.OriginNode == nil {
		return nil
	}
	return call.OriginNode
}

// isSpecificOrigin reports whether origin can be named by a rule's
// LimitApp as a caller identity rather than a keyword.
func isSpecificOrigin(origin string) bool {
	return origin != "" && origin != LimitAppDefault && origin != LimitAppOther
}

// isOtherOrigin reports whether no rule among peers names origin.
func isOtherOrigin(origin string, peers []*TrafficShaper) bool {
	if origin == "" {
		return false
	}
	for _, ts := range peers {
		if ts.rule.LimitApp == origin {
			return false
		}
	}
	return true
}
