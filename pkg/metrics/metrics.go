// Package metrics provides Prometheus instrumentation for flowguard components.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metric instances for flowguard components.
type Registry struct {
	// Entry Metrics
	EntryRequests *prometheus.CounterVec
	EntryPassed   *prometheus.CounterVec
	EntryBlocked  *prometheus.CounterVec
	EntryOccupied *prometheus.CounterVec
	EntryErrors   *prometheus.CounterVec
	QueueWaitTime *prometheus.HistogramVec
	ResponseTime  *prometheus.HistogramVec

	// Rule Metrics
	RuleLoads     *prometheus.CounterVec
	RulesRejected prometheus.Counter
	RulesActive   prometheus.Gauge
}

// DefaultRegistry is the default metrics registry used by flowguard components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	cfg := DefaultConfig()
	cfg.Registry = reg
	return NewRegistryWithConfig(cfg)
}

// NewRegistryWithConfig creates a metrics registry using the namespace and
// constant labels of cfg. Metrics already registered with the same
// descriptors are shared, so several registries may target one registerer.
func NewRegistryWithConfig(cfg Config) *Registry {
	ns := cfg.namespace()
	factory := factory{reg: cfg.registerer()}

	return &Registry{
		EntryRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "entry",
				Name:        "requests_total",
				Help:        "Total number of entry attempts",
				ConstLabels: cfg.Labels,
			},
			[]string{"resource"},
		),

		EntryPassed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "entry",
				Name:        "passed_total",
				Help:        "Total number of admitted entries",
				ConstLabels: cfg.Labels,
			},
			[]string{"resource"},
		),

		EntryBlocked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "entry",
				Name:        "blocked_total",
				Help:        "Total number of rejected entries",
				ConstLabels: cfg.Labels,
			},
			[]string{"resource", "control_behavior"},
		),

		EntryOccupied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "entry",
				Name:        "occupied_total",
				Help:        "Total number of prioritized entries admitted against a future window",
				ConstLabels: cfg.Labels,
			},
			[]string{"resource"},
		),

		EntryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "entry",
				Name:        "errors_total",
				Help:        "Total number of admitted entries that exited with an error",
				ConstLabels: cfg.Labels,
			},
			[]string{"resource"},
		),

		QueueWaitTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "entry",
				Name:        "queue_wait_seconds",
				Help:        "Time admitted entries were held by shaping controllers",
				Buckets:     cfg.waitBuckets(),
				ConstLabels: cfg.Labels,
			},
			[]string{"resource"},
		),

		ResponseTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "entry",
				Name:        "response_seconds",
				Help:        "Time between admission and exit",
				Buckets:     cfg.responseBuckets(),
				ConstLabels: cfg.Labels,
			},
			[]string{"resource"},
		),

		RuleLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "rules",
				Name:        "loads_total",
				Help:        "Total number of rule loads by outcome",
				ConstLabels: cfg.Labels,
			},
			[]string{"result"},
		),

		RulesRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "rules",
				Name:        "rejected_total",
				Help:        "Total number of rule loads that reported invalid rules",
				ConstLabels: cfg.Labels,
			},
		),

		RulesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "rules",
				Name:        "active",
				Help:        "Number of published flow rules",
				ConstLabels: cfg.Labels,
			},
		),
	}
}

// factory registers collectors like promauto, but hands back the existing
// collector when an identical one is already registered.
type factory struct {
	reg prometheus.Registerer
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (f factory) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return register(f.reg, prometheus.NewCounterVec(opts, labels))
}

func (f factory) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	return register(f.reg, prometheus.NewHistogramVec(opts, labels))
}

func (f factory) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	return register(f.reg, prometheus.NewCounter(opts))
}

func (f factory) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	return register(f.reg, prometheus.NewGauge(opts))
}
