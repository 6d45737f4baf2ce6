package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every flowguard metric.
const DefaultNamespace = "flowguard"

// DefaultWaitBuckets cover queueing waits from 1ms up to the longest
// practical MaxQueueingTimeMs.
var DefaultWaitBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}

// Config selects where flowguard metrics go and how they are named.
type Config struct {
	// Enabled controls whether metrics are recorded at all.
	Enabled bool

	// Registry receives the metrics. If nil, prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Namespace replaces the "flowguard" prefix.
	Namespace string

	// Labels are constant labels added to every metric.
	Labels prometheus.Labels

	// WaitBuckets bound entry_queue_wait_seconds. Nil uses DefaultWaitBuckets.
	WaitBuckets []float64

	// ResponseBuckets bound entry_response_seconds. Nil uses
	// prometheus.DefBuckets.
	ResponseBuckets []float64

	// SkipNodeCollector leaves the resource and rule gauges unregistered.
	SkipNodeCollector bool
}

// DefaultConfig returns an enabled config on the default registerer.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Registry:  prometheus.DefaultRegisterer,
		Namespace: DefaultNamespace,
	}
}

func (c Config) namespace() string {
	if c.Namespace == "" {
		return DefaultNamespace
	}
	return c.Namespace
}

func (c Config) registerer() prometheus.Registerer {
	if c.Registry == nil {
		return prometheus.DefaultRegisterer
	}
	return c.Registry
}

func (c Config) waitBuckets() []float64 {
	if len(c.WaitBuckets) == 0 {
		return DefaultWaitBuckets
	}
	return c.WaitBuckets
}

func (c Config) responseBuckets() []float64 {
	if len(c.ResponseBuckets) == 0 {
		return prometheus.DefBuckets
	}
	return c.ResponseBuckets
}

// Instrumentable is implemented by components that record into a Registry.
type Instrumentable interface {
	EnableMetrics(config Config) error
	DisableMetrics()
	MetricsEnabled() bool
}
