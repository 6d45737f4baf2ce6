package stat

import (
	"sync"
	"sync/atomic"
	"time"
)

// ResourceNode aggregates every call to one resource regardless of entry
// point, and owns the per-origin child nodes of that resource.
type ResourceNode struct {
	*StatisticNode

	name string
	cfg  Config

	mu      sync.Mutex
	origins atomic.Pointer[map[string]*StatisticNode]
}

func newResourceNode(name string, cfg Config) *ResourceNode {
	rn := &ResourceNode{
		StatisticNode: NewStatisticNode(cfg),
		name:          name,
		cfg:           cfg,
	}
	empty := make(map[string]*StatisticNode)
	rn.origins.Store(&empty)
	return rn
}

// Name returns the resource name.
func (rn *ResourceNode) Name() string {
	return rn.name
}

// OriginNode returns the child node for origin, or nil if that origin has
// not called this resource yet.
func (rn *ResourceNode) OriginNode(origin string) *StatisticNode {
	return (*rn.origins.Load())[origin]
}

// GetOrCreateOriginNode returns the child node for origin, creating it on
// first use. Readers never take the lock.
func (rn *ResourceNode) GetOrCreateOriginNode(origin string) *StatisticNode {
	if node := rn.OriginNode(origin); node != nil {
		return node
	}

	rn.mu.Lock()
	defer rn.mu.Unlock()

	current := *rn.origins.Load()
	if node, ok := current[origin]; ok {
		return node
	}
	next := make(map[string]*StatisticNode, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	node := NewStatisticNode(rn.cfg)
	next[origin] = node
	rn.origins.Store(&next)
	return node
}

// Origins returns a snapshot of the origin children keyed by origin.
func (rn *ResourceNode) Origins() map[string]*StatisticNode {
	return *rn.origins.Load()
}

// EntryNode counts calls to one resource arriving through one entry point.
// Every write is mirrored onto the resource node.
type EntryNode struct {
	*StatisticNode

	contextName string
	resource    *ResourceNode
}

// ContextName returns the entry point this node belongs to.
func (en *EntryNode) ContextName() string {
	return en.contextName
}

// Resource returns the aggregate node for the same resource.
func (en *EntryNode) Resource() *ResourceNode {
	return en.resource
}

func (en *EntryNode) AddPass(n uint32) {
	en.StatisticNode.AddPass(n)
	en.resource.AddPass(n)
}

func (en *EntryNode) AddBlock(n uint32) {
	en.StatisticNode.AddBlock(n)
	en.resource.AddBlock(n)
}

func (en *EntryNode) AddOccupiedPass(n uint32) {
	en.StatisticNode.AddOccupiedPass(n)
	en.resource.AddOccupiedPass(n)
}

func (en *EntryNode) AddWaiting(at time.Time, n uint32) {
	en.StatisticNode.AddWaiting(at, n)
	en.resource.AddWaiting(at, n)
}

func (en *EntryNode) AddRTAndComplete(rt time.Duration, n uint32) {
	en.StatisticNode.AddRTAndComplete(rt, n)
	en.resource.AddRTAndComplete(rt, n)
}

func (en *EntryNode) AddError(n uint32) {
	en.StatisticNode.AddError(n)
	en.resource.AddError(n)
}

func (en *EntryNode) IncreaseConcurrency() {
	en.StatisticNode.IncreaseConcurrency()
	en.resource.IncreaseConcurrency()
}

func (en *EntryNode) DecreaseConcurrency() {
	en.StatisticNode.DecreaseConcurrency()
	en.resource.DecreaseConcurrency()
}

var (
	_ Node = (*ResourceNode)(nil)
	_ Node = (*EntryNode)(nil)
)
