package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Example_basicUsage records entry outcomes into a private registry.
func Example_basicUsage() {
	testRegistry := prometheus.NewRegistry()
	registry := NewRegistry(testRegistry)

	registry.EntryRequests.WithLabelValues("checkout").Add(10)
	registry.EntryPassed.WithLabelValues("checkout").Add(8)
	registry.EntryBlocked.WithLabelValues("checkout", "Reject").Add(2)

	families, err := testRegistry.Gather()
	if err != nil {
		fmt.Println("gather failed:", err)
		return
	}
	for _, mf := range families {
		fmt.Println(mf.GetName())
	}

	// Output:
	// flowguard_entry_blocked_total
	// flowguard_entry_passed_total
	// flowguard_entry_requests_total
	// flowguard_rules_active
	// flowguard_rules_rejected_total
}

// Example_configuration shows a namespace and constant labels applied to
// every metric.
func Example_configuration() {
	reg := prometheus.NewRegistry()
	registry := NewRegistryWithConfig(Config{
		Enabled:   true,
		Registry:  reg,
		Namespace: "edge",
		Labels:    prometheus.Labels{"zone": "eu-1"},
	})
	registry.EntryErrors.WithLabelValues("checkout").Inc()

	families, _ := reg.Gather()
	for _, mf := range families {
		if mf.GetName() != "edge_entry_errors_total" {
			continue
		}
		for _, lp := range mf.GetMetric()[0].GetLabel() {
			fmt.Printf("%s=%s\n", lp.GetName(), lp.GetValue())
		}
	}

	// Output:
	// resource=checkout
	// zone=eu-1
}
