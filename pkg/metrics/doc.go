// Package metrics provides Prometheus instrumentation for flowguard.
//
// Two kinds of metrics are exported. The Registry holds counters and
// histograms that the guard updates on every entry and rule load. The
// NodeCollector reads the live sliding-window statistics of every resource
// node, and the thresholds of the published rules, at scrape time.
//
// # Quick Start
//
// Metrics are enabled through guard options:
//
//	reg := prometheus.NewRegistry()
//	g, err := guard.New(guard.WithMetrics(metrics.Config{
//		Enabled:  true,
//		Registry: reg,
//	}))
//
// Then expose them via HTTP:
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// # Available Metrics
//
// ## Entry Metrics
//
//   - flowguard_entry_requests_total{resource}: entry attempts
//   - flowguard_entry_passed_total{resource}: admitted entries
//   - flowguard_entry_blocked_total{resource,control_behavior}: rejected entries
//   - flowguard_entry_occupied_total{resource}: prioritized entries admitted early
//   - flowguard_entry_errors_total{resource}: admitted entries that failed
//   - flowguard_entry_queue_wait_seconds{resource}: time held by shaping
//   - flowguard_entry_response_seconds{resource}: admission to exit
//
// ## Rule Metrics
//
//   - flowguard_rules_loads_total{result}: rule loads, updated or unchanged
//   - flowguard_rules_rejected_total: loads that reported invalid rules
//   - flowguard_rules_active: published rules
//
// ## Node Metrics (NodeCollector)
//
//   - flowguard_resource_pass_qps{resource}
//   - flowguard_resource_block_qps{resource}
//   - flowguard_resource_success_qps{resource}
//   - flowguard_resource_error_qps{resource}
//   - flowguard_resource_avg_rt_milliseconds{resource}
//   - flowguard_resource_concurrency{resource}
//   - flowguard_resource_minute_pass{resource}
//   - flowguard_rule_threshold{resource,rule_id,limit_app,threshold_kind,control_behavior}
//
// # Custom Namespace
//
// Config.Namespace replaces the "flowguard" prefix and Config.Labels adds
// constant labels to every metric, which is useful when several guards
// share one Prometheus registry.
package metrics
