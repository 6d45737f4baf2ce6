/*
Package flowguard provides in-process flow control: rule-driven admission
of calls to named resources with sliding-window statistics.

Statistics (pkg/stat):
  - sliding windows per resource, per origin and per entry point

Flow rules (pkg/flow):
  - QPS and concurrency thresholds
  - direct, relate and chain strategies
  - reject, warm-up, rate limiter and warm-up rate limiter shaping
  - custom controllers: token_bucket (pkg/ratelimit/bucket) and
    leaky_bucket (pkg/ratelimit/leakybucket)

Admission (pkg/guard):
  - Entry/Exit pairs with response time and error accounting

Operations:
  - pkg/datasource: rules from YAML files or Redis
  - pkg/metrics: Prometheus export of node statistics
  - pkg/config: FLOWGUARD_* environment settings
  - cmd/flowguard: check, simulate and push rule documents

Example usage:

	import (
		"github.com/vnykmshr/flowguard/pkg/flow"
		"github.com/vnykmshr/flowguard/pkg/guard"
	)

	g, _ := guard.New()
	_, _ = g.LoadRules([]flow.Rule{{Resource: "orders", Threshold: 20}})

	entry, err := g.Entry(ctx, "orders")
	if err != nil {
		return err // blocked
	}
	defer entry.Exit()
*/
package flowguard
