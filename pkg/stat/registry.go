package stat

import (
	"sort"
	"sync"
	"sync/atomic"
)

type entryKey struct {
	resource    string
	contextName string
}

// Registry maps resource names to resource nodes and (resource, entry
// point) pairs to entry nodes. Nodes are created lazily and never evicted.
// Lookups read an immutable map snapshot; creation copies the map under a
// lock and swaps the pointer.
type Registry struct {
	cfg Config

	mu        sync.Mutex
	resources atomic.Pointer[map[string]*ResourceNode]
	entries   atomic.Pointer[map[entryKey]*EntryNode]
	contexts  map[string]struct{}
}

// NewRegistry creates a registry whose nodes all share cfg.
func NewRegistry(cfg Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Registry{
		cfg:      cfg,
		contexts: make(map[string]struct{}),
	}
	resources := make(map[string]*ResourceNode)
	entries := make(map[entryKey]*EntryNode)
	r.resources.Store(&resources)
	r.entries.Store(&entries)
	return r, nil
}

// Config returns the node configuration.
func (r *Registry) Config() Config {
	return r.cfg
}

// ResourceNode returns the aggregate node for name, or nil if the resource
// has never been entered.
func (r *Registry) ResourceNode(name string) *ResourceNode {
	return (*r.resources.Load())[name]
}

// GetOrCreateResourceNode returns the aggregate node for name. It returns
// false when the node does not exist and MaxResources has been reached.
func (r *Registry) GetOrCreateResourceNode(name string) (*ResourceNode, bool) {
	if node := r.ResourceNode(name); node != nil {
		return node, true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.resources.Load()
	if node, ok := current[name]; ok {
		return node, true
	}
	if r.cfg.MaxResources > 0 && len(current) >= r.cfg.MaxResources {
		return nil, false
	}
	next := make(map[string]*ResourceNode, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	node := newResourceNode(name, r.cfg)
	next[name] = node
	r.resources.Store(&next)
	return node, true
}

// GetOrCreateEntryNode returns the node for resource as entered through
// contextName. Names beyond MaxContexts share the overflow context.
func (r *Registry) GetOrCreateEntryNode(resource *ResourceNode, contextName string) *EntryNode {
	key := entryKey{resource: resource.name, contextName: contextName}
	if node, ok := (*r.entries.Load())[key]; ok {
		return node
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, known := r.contexts[contextName]; !known {
		if r.cfg.MaxContexts > 0 && len(r.contexts) >= r.cfg.MaxContexts {
			contextName = r.cfg.OverflowContext
			key.contextName = contextName
		}
		r.contexts[contextName] = struct{}{}
	}

	current := *r.entries.Load()
	if node, ok := current[key]; ok {
		return node
	}
	next := make(map[entryKey]*EntryNode, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	node := &EntryNode{
		StatisticNode: NewStatisticNode(r.cfg),
		contextName:   contextName,
		resource:      resource,
	}
	next[key] = node
	r.entries.Store(&next)
	return node
}

// EntryNode returns the node for (resource, contextName), or nil.
func (r *Registry) EntryNode(resource, contextName string) *EntryNode {
	return (*r.entries.Load())[entryKey{resource: resource, contextName: contextName}]
}

// ResourceNames returns the names of all known resources in sorted order.
func (r *Registry) ResourceNames() []string {
	current := *r.resources.Load()
	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResourceNodes returns a snapshot of every resource node keyed by name.
func (r *Registry) ResourceNodes() map[string]*ResourceNode {
	return *r.resources.Load()
}

// ContextCount returns the number of distinct entry-point names seen.
func (r *Registry) ContextCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contexts)
}
