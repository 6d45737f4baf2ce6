package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/flowguard/pkg/flow"
	"github.com/vnykmshr/flowguard/pkg/stat"
)

// NodeSource lists the resource nodes to report.
type NodeSource interface {
	ResourceNodes() map[string]*stat.ResourceNode
}

// RuleSource lists the published rules to report.
type RuleSource interface {
	Rules() []flow.Rule
}

// NodeCollector reports live node statistics and rule thresholds at scrape
// time. Values come from the sliding windows, so a scrape always shows the
// last second of traffic.
type NodeCollector struct {
	nodes NodeSource
	rules RuleSource

	passQPS     *prometheus.Desc
	blockQPS    *prometheus.Desc
	successQPS  *prometheus.Desc
	errorQPS    *prometheus.Desc
	avgRT       *prometheus.Desc
	concurrency *prometheus.Desc
	minutePass  *prometheus.Desc
	threshold   *prometheus.Desc
}

// NewNodeCollector returns a collector over nodes and rules. Either source
// may be nil.
func NewNodeCollector(nodes NodeSource, rules RuleSource, cfg Config) *NodeCollector {
	ns := cfg.namespace()
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(ns, subsystem, name), help, labels, cfg.Labels)
	}
	return &NodeCollector{
		nodes:       nodes,
		rules:       rules,
		passQPS:     desc("resource", "pass_qps", "Admitted acquisitions per second", "resource"),
		blockQPS:    desc("resource", "block_qps", "Rejected acquisitions per second", "resource"),
		successQPS:  desc("resource", "success_qps", "Completed calls per second", "resource"),
		errorQPS:    desc("resource", "error_qps", "Calls per second that exited with an error", "resource"),
		avgRT:       desc("resource", "avg_rt_milliseconds", "Mean response time over the last second", "resource"),
		concurrency: desc("resource", "concurrency", "Calls admitted and not yet exited", "resource"),
		minutePass:  desc("resource", "minute_pass", "Admitted acquisitions over the last minute", "resource"),
		threshold: desc("rule", "threshold", "Threshold of a published flow rule",
			"resource", "rule_id", "limit_app", "threshold_kind", "control_behavior"),
	}
}

// Describe implements prometheus.Collector.
func (c *NodeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.passQPS
	ch <- c.blockQPS
	ch <- c.successQPS
	ch <- c.errorQPS
	ch <- c.avgRT
	ch <- c.concurrency
	ch <- c.minutePass
	ch <- c.threshold
}

// Collect implements prometheus.Collector.
func (c *NodeCollector) Collect(ch chan<- prometheus.Metric) {
	if c.nodes != nil {
		for name, node := range c.nodes.ResourceNodes() {
			ch <- prometheus.MustNewConstMetric(c.passQPS, prometheus.GaugeValue, node.PassQPS(), name)
			ch <- prometheus.MustNewConstMetric(c.blockQPS, prometheus.GaugeValue, node.BlockQPS(), name)
			ch <- prometheus.MustNewConstMetric(c.successQPS, prometheus.GaugeValue, node.SuccessQPS(), name)
			ch <- prometheus.MustNewConstMetric(c.errorQPS, prometheus.GaugeValue, node.ErrorQPS(), name)
			ch <- prometheus.MustNewConstMetric(c.avgRT, prometheus.GaugeValue, node.AvgRT(), name)
			ch <- prometheus.MustNewConstMetric(c.concurrency, prometheus.GaugeValue, float64(node.CurrentConcurrency()), name)
			ch <- prometheus.MustNewConstMetric(c.minutePass, prometheus.GaugeValue, float64(node.MinutePass()), name)
		}
	}
	if c.rules != nil {
		for _, r := range c.rules.Rules() {
			ch <- prometheus.MustNewConstMetric(c.threshold, prometheus.GaugeValue, r.Threshold,
				r.Resource, r.ID, r.LimitApp, r.ThresholdKind.String(), r.ControlBehavior.String())
		}
	}
}

var _ prometheus.Collector = (*NodeCollector)(nil)
