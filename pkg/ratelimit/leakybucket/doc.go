/*
Package leakybucket provides a leaky bucket meter and registers it as the
custom flow controller "leaky_bucket".

	import _ "github.com/vnykmshr/flowguard/pkg/ratelimit/leakybucket"

	rule := flow.Rule{
		Resource:          "export",
		Threshold:         5,
		ControlBehavior:   flow.Custom,
		CustomController:  leakybucket.ControllerID,
		MaxQueueingTimeMs: 1000,
	}

The controller admits one call at a time and drains Threshold calls per
second, so bursts are queued rather than let through.
*/
package leakybucket
