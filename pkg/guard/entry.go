package guard

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/flowguard/pkg/stat"
)

type entryKey struct{}

// Entry is an admitted call. Exit must be called once the call finishes.
type Entry struct {
	guard        *Guard
	resource     string
	ctx          context.Context
	parent       *Entry
	entryNode    *stat.EntryNode
	originNode   *stat.StatisticNode
	acquireCount uint32
	start        time.Time

	err    atomic.Pointer[error]
	exited atomic.Bool
}

// Resource returns the entered resource name.
func (e *Entry) Resource() string {
	return e.resource
}

// Context returns a context carrying this entry and its call context.
// Entries made with it nest under this one and share its entry point.
func (e *Entry) Context() context.Context {
	return e.ctx
}

// Parent returns the entry this one is nested in, or nil.
func (e *Entry) Parent() *Entry {
	return e.parent
}

// SetError marks the call as failed. It is counted when the entry exits.
func (e *Entry) SetError(err error) {
	if err == nil {
		return
	}
	e.err.Store(&err)
}

// Err returns the error recorded with SetError.
func (e *Entry) Err() error {
	if p := e.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Exit completes the call, recording its response time and releasing its
// concurrency slot. Calls after the first are ignored.
func (e *Entry) Exit() {
	if !e.exited.CompareAndSwap(false, true) {
		e.guard.log.WithField("resource", e.resource).Debug("entry exited more than once")
		return
	}
	e.guard.exit(e)
}

// Exited reports whether Exit has been called.
func (e *Entry) Exited() bool {
	return e.exited.Load()
}

// CurrentEntry returns the innermost entry carried by ctx.
func CurrentEntry(ctx context.Context) (*Entry, bool) {
	e, ok := ctx.Value(entryKey{}).(*Entry)
	return e, ok
}
