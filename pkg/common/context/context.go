// Package context carries the calling context of a protected call: the
// entry point it arrived through and the identity of the caller.
package context

import (
	"context"
)

// DefaultName is the entry-point name used when the caller never entered
// one explicitly.
const DefaultName = "default_context"

// CallContext identifies where a call came from. It is immutable.
type CallContext struct {
	name   string
	origin string
}

// Name returns the entry-point name.
func (c *CallContext) Name() string {
	return c.name
}

// Origin returns the caller identity, empty when unknown.
func (c *CallContext) Origin() string {
	return c.origin
}

type callContextKey struct{}

var defaultCallContext = &CallContext{name: DefaultName}

// Enter returns a child of parent that carries an entry point named name
// with the given origin. If parent already carries a call context it is
// returned unchanged: the outermost entry point names the whole call tree.
func Enter(parent context.Context, name, origin string) context.Context {
	if _, ok := parent.Value(callContextKey{}).(*CallContext); ok {
		return parent
	}
	if name == "" {
		name = DefaultName
	}
	return context.WithValue(parent, callContextKey{}, &CallContext{name: name, origin: origin})
}

// FromContext returns the call context carried by ctx, or the default
// context with an empty origin.
func FromContext(ctx context.Context) *CallContext {
	if ctx != nil {
		if cc, ok := ctx.Value(callContextKey{}).(*CallContext); ok {
			return cc
		}
	}
	return defaultCallContext
}

// Entered reports whether ctx already carries a call context.
func Entered(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	_, ok := ctx.Value(callContextKey{}).(*CallContext)
	return ok
}
