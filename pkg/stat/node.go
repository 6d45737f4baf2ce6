package stat

import (
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"github.com/vnykmshr/flowguard/pkg/common/errors"
	"github.com/vnykmshr/flowguard/pkg/common/validation"
)

// ReadNode exposes the live statistics of one node.
type ReadNode interface {
	// PassQPS returns admitted acquisitions per second over the sliding window.
	PassQPS() float64
	// BlockQPS returns rejected acquisitions per second over the sliding window.
	BlockQPS() float64
	// TotalQPS returns PassQPS plus BlockQPS.
	TotalQPS() float64
	// SuccessQPS returns completed calls per second.
	SuccessQPS() float64
	// ErrorQPS returns calls per second that exited with an error.
	ErrorQPS() float64
	// AvgRT returns the mean response time in milliseconds.
	AvgRT() float64
	// PreviousPassQPS returns the passes recorded in the previous full second.
	PreviousPassQPS() float64
	// MinutePass returns the passes recorded over the last minute.
	MinutePass() int64
	// CurrentConcurrency returns the number of admitted calls not yet exited.
	CurrentConcurrency() int32
	// Waiting returns the passes booked against future windows.
	Waiting() int64
}

// WriteNode records events against a node.
type WriteNode interface {
	AddPass(n uint32)
	AddBlock(n uint32)
	AddOccupiedPass(n uint32)
	AddWaiting(at time.Time, n uint32)
	AddRTAndComplete(rt time.Duration, n uint32)
	AddError(n uint32)
	IncreaseConcurrency()
	DecreaseConcurrency()
}

// Node is a statistics aggregation point that shaping controllers check.
type Node interface {
	ReadNode
	WriteNode

	// TryOccupyNext reports how long a caller must wait before n more
	// passes fit under threshold by borrowing a future window. A result
	// equal to the occupy timeout means borrowing is not possible.
	TryOccupyNext(now time.Time, n uint32, threshold float64) time.Duration
	// OccupyTimeout is the longest wait TryOccupyNext will offer.
	OccupyTimeout() time.Duration
}

// Config controls the window geometry of every node built from it.
type Config struct {
	// SampleCount is the number of buckets in the second-level window.
	SampleCount int

	// Interval is the total span of the second-level window.
	Interval time.Duration

	// OccupyTimeout bounds how far a prioritized call may borrow ahead.
	OccupyTimeout time.Duration

	// Clock provides the current time. If nil, clock.RealClock is used.
	Clock clock.PassiveClock

	// MaxResources caps the number of resource nodes. Zero means unbounded.
	MaxResources int

	// MaxContexts caps the number of distinct entry-point names. Zero means
	// unbounded.
	MaxContexts int

	// OverflowContext is used for entry-point names beyond MaxContexts.
	OverflowContext string
}

// DefaultConfig returns two 500ms buckets over one second.
func DefaultConfig() Config {
	return Config{
		SampleCount:     2,
		Interval:        time.Second,
		OccupyTimeout:   500 * time.Millisecond,
		Clock:           clock.RealClock{},
		MaxResources:    6000,
		MaxContexts:     2000,
		OverflowContext: "default_context",
	}
}

// Validate checks the window geometry.
func (c Config) Validate() error {
	if err := validation.Positive("stat", "sampleCount", c.SampleCount); err != nil {
		return err
	}
	intervalMs := c.Interval.Milliseconds()
	if intervalMs <= 0 {
		return errors.NewValidationError("stat", "interval", c.Interval, "must be at least 1ms")
	}
	if intervalMs%int64(c.SampleCount) != 0 {
		return errors.NewValidationError("stat", "interval", c.Interval, "not divisible by sample count").
			WithHint("choose an interval that splits into equal whole-millisecond buckets")
	}
	if err := validation.NonNegative("stat", "occupyTimeout", c.OccupyTimeout); err != nil {
		return err
	}
	return nil
}

const (
	minuteSampleCount = 60
	minuteIntervalMs  = 60_000
)

// StatisticNode holds sliding-window counters for one statistical identity.
type StatisticNode struct {
	clock         clock.PassiveClock
	second        *leapArray
	minute        *leapArray
	occupyTimeout time.Duration
	concurrency   atomic.Int32
}

// NewStatisticNode builds a node from cfg. The config is assumed valid.
func NewStatisticNode(cfg Config) *StatisticNode {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &StatisticNode{
		clock:         clk,
		second:        newOccupiableLeapArray(int64(cfg.SampleCount), cfg.Interval.Milliseconds()),
		minute:        newLeapArray(minuteSampleCount, minuteIntervalMs),
		occupyTimeout: cfg.OccupyTimeout,
	}
}

func (n *StatisticNode) nowMs() int64 {
	return n.clock.Now().UnixMilli()
}

func (n *StatisticNode) intervalSec() float64 {
	return float64(n.second.intervalMs) / 1000.0
}

func (n *StatisticNode) perSecond(event MetricEvent) float64 {
	return float64(n.second.sum(event, n.nowMs())) / n.intervalSec()
}

func (n *StatisticNode) PassQPS() float64 {
	return n.perSecond(EventPass)
}

func (n *StatisticNode) BlockQPS() float64 {
	return n.perSecond(EventBlock)
}

func (n *StatisticNode) TotalQPS() float64 {
	return n.PassQPS() + n.BlockQPS()
}

func (n *StatisticNode) SuccessQPS() float64 {
	return n.perSecond(EventComplete)
}

func (n *StatisticNode) ErrorQPS() float64 {
	return n.perSecond(EventError)
}

func (n *StatisticNode) AvgRT() float64 {
	now := n.nowMs()
	completed := n.second.sum(EventComplete, now)
	if completed == 0 {
		return 0
	}
	return float64(n.second.sum(EventRT, now)) / float64(completed)
}

func (n *StatisticNode) PreviousPassQPS() float64 {
	return float64(n.minute.previous(EventPass, n.nowMs()))
}

func (n *StatisticNode) MinutePass() int64 {
	return n.minute.sum(EventPass, n.nowMs())
}

func (n *StatisticNode) CurrentConcurrency() int32 {
	return n.concurrency.Load()
}

func (n *StatisticNode) Waiting() int64 {
	return n.second.waiting(n.nowMs())
}

func (n *StatisticNode) AddPass(count uint32) {
	now := n.nowMs()
	n.second.add(EventPass, now, int64(count))
	n.minute.add(EventPass, now, int64(count))
}

func (n *StatisticNode) AddBlock(count uint32) {
	now := n.nowMs()
	n.second.add(EventBlock, now, int64(count))
	n.minute.add(EventBlock, now, int64(count))
}

// AddOccupiedPass charges passes that were borrowed from a future window.
// The second-level window picks them up when that window opens.
func (n *StatisticNode) AddOccupiedPass(count uint32) {
	now := n.nowMs()
	n.minute.add(EventOccupiedPass, now, int64(count))
	n.minute.add(EventPass, now, int64(count))
}

func (n *StatisticNode) AddWaiting(at time.Time, count uint32) {
	n.second.reserve(at.UnixMilli(), int64(count))
}

func (n *StatisticNode) AddRTAndComplete(rt time.Duration, count uint32) {
	now := n.nowMs()
	n.second.add(EventRT, now, rt.Milliseconds())
	n.second.add(EventComplete, now, int64(count))
	n.minute.add(EventRT, now, rt.Milliseconds())
	n.minute.add(EventComplete, now, int64(count))
}

func (n *StatisticNode) AddError(count uint32) {
	now := n.nowMs()
	n.second.add(EventError, now, int64(count))
	n.minute.add(EventError, now, int64(count))
}

func (n *StatisticNode) IncreaseConcurrency() {
	n.concurrency.Add(1)
}

// DecreaseConcurrency never lets the counter drop below zero; an unmatched
// exit is absorbed instead of surfacing to the caller.
func (n *StatisticNode) DecreaseConcurrency() {
	for {
		cur := n.concurrency.Load()
		if cur <= 0 {
			return
		}
		if n.concurrency.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

func (n *StatisticNode) OccupyTimeout() time.Duration {
	return n.occupyTimeout
}

func (n *StatisticNode) TryOccupyNext(now time.Time, count uint32, threshold float64) time.Duration {
	nowMs := now.UnixMilli()
	timeoutMs := n.occupyTimeout.Milliseconds()
	windowMs := n.second.windowMs
	maxCount := threshold * float64(n.second.intervalMs) / 1000

	borrowed := n.second.waiting(nowMs)
	if float64(borrowed) >= maxCount {
		return n.occupyTimeout
	}

	earliest := nowMs - nowMs%windowMs + windowMs - n.second.intervalMs
	currentPass := n.second.sum(EventPass, nowMs)
	for idx := int64(0); earliest < nowMs; idx++ {
		waitMs := idx*windowMs + windowMs - nowMs%windowMs
		if waitMs >= timeoutMs {
			break
		}
		windowPass := n.second.valueAt(EventPass, earliest)
		if float64(currentPass+borrowed+int64(count)-windowPass) <= maxCount {
			return time.Duration(waitMs) * time.Millisecond
		}
		earliest += windowMs
		currentPass -= windowPass
	}
	return n.occupyTimeout
}

var _ Node = (*StatisticNode)(nil)
