package flow

import (
	"fmt"
	"strings"

	"github.com/vnykmshr/flowguard/pkg/common/errors"
	"github.com/vnykmshr/flowguard/pkg/common/validation"
)

// Special LimitApp values.
const (
	// LimitAppDefault applies a rule to every caller.
	LimitAppDefault = "default"
	// LimitAppOther applies a rule to callers that no origin-specific rule of
	// the same resource names.
	LimitAppOther = "other"
)

// ThresholdKind selects the metric a rule bounds.
type ThresholdKind uint8

const (
	// QPS bounds admitted acquisitions per second.
	QPS ThresholdKind = iota
	// Concurrency bounds calls that have entered and not yet exited.
	Concurrency
)

func (k ThresholdKind) String() string {
	switch k {
	case QPS:
		return "QPS"
	case Concurrency:
		return "Concurrency"
	default:
		return fmt.Sprintf("ThresholdKind(%d)", uint8(k))
	}
}

// ParseThresholdKind accepts the names printed by String, case-insensitively.
func ParseThresholdKind(s string) (ThresholdKind, error) {
	switch strings.ToLower(s) {
	case "", "qps":
		return QPS, nil
	case "concurrency", "thread":
		return Concurrency, nil
	}
	return 0, errors.NewValidationError("flow", "thresholdKind", s, "unknown threshold kind").
		WithHint("use QPS or Concurrency")
}

// Strategy selects which node a rule checks relative to the call site.
type Strategy uint8

const (
	// Direct checks the node of the resource being entered.
	Direct Strategy = iota
	// Relate checks the aggregate node of RefResource.
	Relate
	// Chain checks the entry-point node, and only for calls entering
	// through the entry point named by RefResource.
	Chain
)

func (s Strategy) String() string {
	switch s {
	case Direct:
		return "Direct"
	case Relate:
		return "Relate"
	case Chain:
		return "Chain"
	default:
		return fmt.Sprintf("Strategy(%d)", uint8(s))
	}
}

// ParseStrategy accepts the names printed by String, case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "", "direct":
		return Direct, nil
	case "relate":
		return Relate, nil
	case "chain":
		return Chain, nil
	}
	return 0, errors.NewValidationError("flow", "strategy", s, "unknown strategy").
		WithHint("use Direct, Relate or Chain")
}

// ControlBehavior selects the shaping algorithm of a rule.
type ControlBehavior uint8

const (
	// Reject refuses calls over the threshold immediately.
	Reject ControlBehavior = iota
	// WarmUp ramps the allowed rate up from a cold start.
	WarmUp
	// RateLimiter queues calls so that they pass at a uniform pace.
	RateLimiter
	// WarmUpRateLimiter queues calls at the warm-up rate.
	WarmUpRateLimiter
	// Custom delegates to a controller registered with RegisterController.
	Custom
)

func (b ControlBehavior) String() string {
	switch b {
	case Reject:
		return "Reject"
	case WarmUp:
		return "WarmUp"
	case RateLimiter:
		return "RateLimiter"
	case WarmUpRateLimiter:
		return "WarmUpRateLimiter"
	case Custom:
		return "Custom"
	default:
		return fmt.Sprintf("ControlBehavior(%d)", uint8(b))
	}
}

// ParseControlBehavior accepts the names printed by String,
// case-insensitively.
func ParseControlBehavior(s string) (ControlBehavior, error) {
	switch strings.ToLower(s) {
	case "", "reject", "default":
		return Reject, nil
	case "warmup":
		return WarmUp, nil
	case "ratelimiter", "throttling":
		return RateLimiter, nil
	case "warmupratelimiter":
		return WarmUpRateLimiter, nil
	case "custom":
		return Custom, nil
	}
	return 0, errors.NewValidationError("flow", "controlBehavior", s, "unknown control behavior").
		WithHint("use Reject, WarmUp, RateLimiter, WarmUpRateLimiter or Custom")
}

// Rule is one admission policy for one resource. A published rule is never
// modified; reloading publishes new values.
type Rule struct {
	// ID identifies the rule in logs. Empty IDs are assigned on publish.
	ID string

	// Resource names the protected operation, or a pattern when Regex is set.
	Resource string

	ThresholdKind ThresholdKind
	Threshold     float64

	// LimitApp is a specific origin, LimitAppDefault or LimitAppOther.
	// Empty means LimitAppDefault.
	LimitApp string

	Strategy Strategy
	// RefResource is the related resource (Relate) or entry point (Chain).
	RefResource string

	ControlBehavior ControlBehavior
	// WarmUpPeriodSec is the time to ramp from cold rate to Threshold.
	WarmUpPeriodSec uint32
	// WarmUpColdFactor divides Threshold to get the cold rate. Zero uses the
	// manager default.
	WarmUpColdFactor uint32
	// MaxQueueingTimeMs bounds how long a rate-limited call may wait.
	MaxQueueingTimeMs uint32

	// Regex makes Resource a pattern matched against whole resource names.
	Regex bool

	// CustomController names the registered controller for Custom.
	CustomController string
}

func (r Rule) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rule{resource=%s, id=%s, %s<=%g, limitApp=%s, strategy=%s",
		r.Resource, r.ID, r.ThresholdKind, r.Threshold, r.limitApp(), r.Strategy)
	if r.RefResource != "" {
		fmt.Fprintf(&b, ", ref=%s", r.RefResource)
	}
	fmt.Fprintf(&b, ", behavior=%s", r.ControlBehavior)
	if r.ControlBehavior == Custom {
		fmt.Fprintf(&b, "(%s)", r.CustomController)
	}
	if r.Regex {
		b.WriteString(", regex")
	}
	b.WriteString("}")
	return b.String()
}

func (r Rule) limitApp() string {
	if r.LimitApp == "" {
		return LimitAppDefault
	}
	return r.LimitApp
}

// Normalized returns a copy of r with defaults filled in.
func (r Rule) Normalized() Rule {
	r.LimitApp = r.limitApp()
	return r
}

// Validate reports the first problem that keeps r from being published.
func (r Rule) Validate() error {
	if err := validation.NotEmpty("flow", "resource", r.Resource); err != nil {
		return err
	}
	if err := validation.Threshold("flow", "threshold", r.Threshold); err != nil {
		return err
	}
	if r.ThresholdKind > Concurrency {
		return errors.NewValidationError("flow", "thresholdKind", r.ThresholdKind, "unknown threshold kind")
	}
	switch r.Strategy {
	case Direct:
	case Relate, Chain:
		if r.RefResource == "" {
			return errors.NewValidationError("flow", "refResource", r.RefResource,
				fmt.Sprintf("required by %s strategy", r.Strategy))
		}
	default:
		return errors.NewValidationError("flow", "strategy", r.Strategy, "unknown strategy")
	}
	switch r.ControlBehavior {
	case Reject, RateLimiter:
	case WarmUp, WarmUpRateLimiter:
		if err := validation.Positive("flow", "warmUpPeriodSec", r.WarmUpPeriodSec); err != nil {
			return err
		}
		if r.WarmUpColdFactor == 1 {
			return errors.NewValidationError("flow", "warmUpColdFactor", r.WarmUpColdFactor, "must be greater than 1")
		}
	case Custom:
		if r.CustomController == "" {
			return errors.NewValidationError("flow", "customController", r.CustomController,
				"required by Custom behavior")
		}
	default:
		return errors.NewValidationError("flow", "controlBehavior", r.ControlBehavior, "unknown control behavior")
	}
	if r.Regex {
		if err := validation.Pattern("flow", "resource", r.Resource); err != nil {
			return err
		}
	}
	return nil
}

// dedupKey is the identity two rules share when one shadows the other.
type dedupKey struct {
	resource        string
	limitApp        string
	strategy        Strategy
	thresholdKind   ThresholdKind
	threshold       float64
	controlBehavior ControlBehavior
}

func (r Rule) dedupKey() dedupKey {
	return dedupKey{
		resource:        r.Resource,
		limitApp:        r.limitApp(),
		strategy:        r.Strategy,
		thresholdKind:   r.ThresholdKind,
		threshold:       r.Threshold,
		controlBehavior: r.ControlBehavior,
	}
}

// sameShape reports whether a and b describe the same policy. An empty ID
// on either side matches any ID.
func sameShape(a, b Rule) bool {
	if a.ID != "" && b.ID != "" && a.ID != b.ID {
		return false
	}
	a.ID, b.ID = "", ""
	return a.Normalized() == b.Normalized()
}
