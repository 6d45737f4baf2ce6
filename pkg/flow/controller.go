package flow

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/vnykmshr/flowguard/pkg/common/errors"
	"github.com/vnykmshr/flowguard/pkg/stat"
)

// Verdict is the outcome of one controller check.
type Verdict uint8

const (
	// VerdictPass admits the call.
	VerdictPass Verdict = iota
	// VerdictBlock rejects the call.
	VerdictBlock
	// VerdictOccupied admits a prioritized call against capacity borrowed
	// from a future window. The pass has already been charged.
	VerdictOccupied
)

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "pass"
	case VerdictBlock:
		return "block"
	case VerdictOccupied:
		return "occupied"
	default:
		return fmt.Sprintf("Verdict(%d)", uint8(v))
	}
}

// Result reports a controller decision.
type Result struct {
	Verdict Verdict
	// Wait is how long the caller was held before admission.
	Wait time.Duration
	// Reason explains a block.
	Reason string
}

// Blocked reports whether the call was rejected.
func (r Result) Blocked() bool {
	return r.Verdict == VerdictBlock
}

func pass() Result {
	return Result{Verdict: VerdictPass}
}

func passAfter(wait time.Duration) Result {
	return Result{Verdict: VerdictPass, Wait: wait}
}

func block(reason string) Result {
	return Result{Verdict: VerdictBlock, Reason: reason}
}

// Controller decides whether acquireCount more acquisitions fit on node.
// Implementations are shared by every concurrent caller of their rule and
// may hold the caller for a bounded time, never indefinitely.
type Controller interface {
	CanPass(node stat.Node, acquireCount uint32, prioritized bool) Result
}

// ControllerOptions carries the environment every controller is built in.
type ControllerOptions struct {
	// Clock is the time source for sleeping and timestamps.
	Clock clock.Clock
	// ColdFactor is the warm-up cold factor for rules that leave it unset.
	ColdFactor uint32
}

// ControllerFactory builds the controller of a Custom rule.
type ControllerFactory func(rule Rule, opts ControllerOptions) (Controller, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]ControllerFactory)
)

// RegisterController makes factory available to Custom rules naming id.
// Registering an id twice is an error.
func RegisterController(id string, factory ControllerFactory) error {
	if id == "" {
		return errors.NewValidationError("flow", "controllerID", id, "cannot be empty")
	}
	if factory == nil {
		return errors.NewValidationError("flow", "controllerFactory", id, "cannot be nil")
	}
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, exists := factories[id]; exists {
		return errors.NewValidationError("flow", "controllerID", id, "already registered")
	}
	factories[id] = factory
	return nil
}

// RegisteredControllers returns the registered custom controller ids in
// sorted order.
func RegisteredControllers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	ids := make([]string, 0, len(factories))
	for id := range factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func lookupFactory(id string) (ControllerFactory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[id]
	return f, ok
}

// NewController builds the controller for a validated rule. Concurrency
// rules always use the reject controller; the other behaviors only shape
// QPS.
func NewController(rule Rule, opts ControllerOptions) (Controller, error) {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	coldFactor := rule.WarmUpColdFactor
	if coldFactor == 0 {
		coldFactor = opts.ColdFactor
	}
	if coldFactor <= 1 {
		coldFactor = DefaultColdFactor
	}

	if rule.ThresholdKind == Concurrency && rule.ControlBehavior != Custom {
		return NewDefaultController(rule.ThresholdKind, rule.Threshold, opts.Clock), nil
	}
	switch rule.ControlBehavior {
	case Reject:
		return NewDefaultController(rule.ThresholdKind, rule.Threshold, opts.Clock), nil
	case WarmUp:
		return NewWarmUpController(rule.Threshold, rule.WarmUpPeriodSec, coldFactor, opts.Clock), nil
	case RateLimiter:
		return NewThrottlingController(rule.Threshold, rule.MaxQueueingTimeMs, opts.Clock), nil
	case WarmUpRateLimiter:
		return NewWarmUpThrottlingController(rule.Threshold, rule.WarmUpPeriodSec, coldFactor,
			rule.MaxQueueingTimeMs, opts.Clock), nil
	case Custom:
		factory, ok := lookupFactory(rule.CustomController)
		if !ok {
			return nil, fmt.Errorf("flow: rule %s: %w %q", rule.Resource, errors.ErrUnknownController, rule.CustomController)
		}
		c, err := factory(rule, opts)
		if err != nil {
			return nil, errors.NewOperationError("flow", "buildController", err).WithContext(rule.CustomController)
		}
		return c, nil
	}
	return nil, errors.NewValidationError("flow", "controlBehavior", rule.ControlBehavior, "unknown control behavior")
}
