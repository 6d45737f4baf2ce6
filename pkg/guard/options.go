package guard

import (
	logger "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/vnykmshr/flowguard/pkg/flow"
	"github.com/vnykmshr/flowguard/pkg/metrics"
	"github.com/vnykmshr/flowguard/pkg/stat"
)

type options struct {
	stat       stat.Config
	coldFactor uint32
	clock      clock.Clock
	logger     logger.FieldLogger
	metrics    metrics.Config
}

func defaultOptions() options {
	return options{
		stat:       stat.DefaultConfig(),
		coldFactor: flow.DefaultColdFactor,
		clock:      clock.RealClock{},
		logger:     logger.StandardLogger(),
	}
}

// Option configures a Guard.
type Option func(*options)

// WithClock sets the time source for statistics, shaping and response
// times.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLogger sets the logger. The default is the standard logrus logger.
func WithLogger(l logger.FieldLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithStatConfig sets the sliding-window geometry and node caps. Its clock
// is replaced by the guard clock.
func WithStatConfig(cfg stat.Config) Option {
	return func(o *options) {
		o.stat = cfg
	}
}

// WithColdFactor sets the warm-up cold factor for rules that leave it
// unset.
func WithColdFactor(f uint32) Option {
	return func(o *options) {
		o.coldFactor = f
	}
}

// WithMetrics enables Prometheus metrics when cfg.Enabled is set.
func WithMetrics(cfg metrics.Config) Option {
	return func(o *options) {
		o.metrics = cfg
	}
}

type entryOptions struct {
	contextName  string
	origin       string
	acquireCount uint32
	prioritized  bool
}

// EntryOption configures a single Entry call.
type EntryOption func(*entryOptions)

// WithContextName names the entry point when the context does not carry
// one yet.
func WithContextName(name string) EntryOption {
	return func(o *entryOptions) {
		o.contextName = name
	}
}

// WithOrigin sets the caller identity when the context does not carry a
// call context yet.
func WithOrigin(origin string) EntryOption {
	return func(o *entryOptions) {
		o.origin = origin
	}
}

// WithAcquireCount makes the entry count as n acquisitions. Zero is
// treated as one.
func WithAcquireCount(n uint32) EntryOption {
	return func(o *entryOptions) {
		o.acquireCount = n
	}
}

// WithPrioritized lets a QPS-limited entry borrow from the next window
// instead of being rejected.
func WithPrioritized() EntryOption {
	return func(o *entryOptions) {
		o.prioritized = true
	}
}
