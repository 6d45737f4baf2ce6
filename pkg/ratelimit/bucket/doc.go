/*
Package bucket provides a token bucket limiter and registers it as the
custom flow controller "token_bucket".

Import the package for its side effect to make the controller available
to flow rules:

	import _ "github.com/vnykmshr/flowguard/pkg/ratelimit/bucket"

	rule := flow.Rule{
		Resource:          "search",
		Threshold:         20,
		ControlBehavior:   flow.Custom,
		CustomController:  bucket.ControllerID,
		MaxQueueingTimeMs: 200,
	}

Unlike the built-in rate limiter, which spaces calls evenly, the token
bucket lets a burst of up to Threshold calls through at once and then
refills at Threshold per second.

The limiter can also be used on its own:

	limiter, err := bucket.New(10, 5) // 10 tokens/sec, burst of 5
	if err != nil {
		return err
	}
	if limiter.AllowN(1) {
		// Process request
	}
*/
package bucket
