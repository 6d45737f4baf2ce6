/*
Package ratelimit groups limiters that plug into flow rules as custom
controllers.

  - bucket: token bucket, lets a burst of Threshold calls through
  - leakybucket: drains Threshold calls per second, queues bursts

Each subpackage registers its controller in init, so a blank import is
enough to make the id available to rules:

	import _ "github.com/vnykmshr/flowguard/pkg/ratelimit/leakybucket"

All limiters are safe for concurrent use and take their time from a
k8s.io/utils clock.
*/
package ratelimit
