package bucket

import (
	"math"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/vnykmshr/flowguard/pkg/common/validation"
)

// Limiter hands out tokens that refill at Rate up to Burst. A request that
// finds too few tokens may book the shortfall and wait for it.
type Limiter interface {
	// AllowN takes n tokens if they are available now.
	AllowN(n int) bool

	// ReserveN takes n tokens, borrowing against future refills when the
	// wait for them is at most maxWait.
	ReserveN(n int, maxWait time.Duration) *Reservation

	// SetRate changes the refill rate, keeping the tokens already earned.
	SetRate(rate Limit)

	// SetBurst changes the bucket size and drops tokens above it.
	SetBurst(burst int) error

	Rate() Limit
	Burst() int

	// Tokens returns the tokens available now. It is negative while
	// reservations are outstanding.
	Tokens() float64
}

// Reservation is the outcome of ReserveN.
type Reservation struct {
	ok     bool
	at     time.Time
	tokens int
	owner  *tokenBucket
}

// OK reports whether the tokens were granted.
func (r *Reservation) OK() bool {
	return r.ok
}

// DelayFrom returns how long after now the tokens become usable.
func (r *Reservation) DelayFrom(now time.Time) time.Duration {
	if !r.ok {
		return 0
	}
	if d := r.at.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Cancel hands the reserved tokens back.
func (r *Reservation) Cancel() {
	if !r.ok || r.owner == nil {
		return
	}
	r.owner.refund(r.tokens)
}

// Config holds the parameters of a Limiter.
type Config struct {
	// Rate is the number of tokens added per second.
	Rate Limit

	// Burst is the most tokens the bucket holds.
	Burst int

	// Clock provides the current time. If nil, clock.RealClock is used.
	Clock clock.PassiveClock

	// InitialTokens is the starting balance. Negative or above Burst
	// starts full.
	InitialTokens int
}

type tokenBucket struct {
	mu     sync.Mutex
	clock  clock.PassiveClock
	rate   Limit
	burst  int
	tokens float64
	last   time.Time
}

// New creates a full limiter.
func New(rate Limit, burst int) (Limiter, error) {
	return NewWithConfig(Config{Rate: rate, Burst: burst, InitialTokens: -1})
}

// NewWithConfig creates a limiter from config.
func NewWithConfig(config Config) (Limiter, error) {
	if err := validation.NonNegative("bucket", "rate", config.Rate); err != nil {
		return nil, err
	}
	if err := validation.Positive("bucket", "burst", config.Burst); err != nil {
		return nil, err
	}
	if config.Clock == nil {
		config.Clock = clock.RealClock{}
	}
	tokens := float64(config.InitialTokens)
	if config.InitialTokens < 0 || config.InitialTokens > config.Burst {
		tokens = float64(config.Burst)
	}
	return &tokenBucket{
		clock:  config.Clock,
		rate:   config.Rate,
		burst:  config.Burst,
		tokens: tokens,
		last:   config.Clock.Now(),
	}, nil
}

func (tb *tokenBucket) AllowN(n int) bool {
	return tb.take(n, 0).ok
}

func (tb *tokenBucket) ReserveN(n int, maxWait time.Duration) *Reservation {
	return tb.take(n, maxWait)
}

func (tb *tokenBucket) SetRate(rate Limit) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.advance(tb.clock.Now())
	tb.rate = rate
}

func (tb *tokenBucket) SetBurst(burst int) error {
	if err := validation.Positive("bucket", "burst", burst); err != nil {
		return err
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.advance(tb.clock.Now())
	tb.burst = burst
	tb.tokens = math.Min(tb.tokens, float64(burst))
	return nil
}

func (tb *tokenBucket) Rate() Limit {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.rate
}

func (tb *tokenBucket) Burst() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.burst
}

func (tb *tokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.advance(tb.clock.Now())
	return tb.tokens
}

func (tb *tokenBucket) take(n int, maxWait time.Duration) *Reservation {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.clock.Now()
	if n <= 0 || tb.rate == Inf {
		return &Reservation{ok: true, at: now, owner: tb}
	}

	tb.advance(now)
	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return &Reservation{ok: true, at: now, tokens: n, owner: tb}
	}
	// A request larger than the bucket, or any shortfall at rate zero,
	// can never be covered.
	if tb.rate == 0 || n > tb.burst {
		return &Reservation{tokens: n}
	}
	wait := tb.rate.durationFor(float64(n) - tb.tokens)
	if wait > maxWait {
		return &Reservation{tokens: n}
	}
	// The balance goes negative; later callers queue behind this one.
	tb.tokens -= float64(n)
	return &Reservation{ok: true, at: now.Add(wait), tokens: n, owner: tb}
}

// advance credits the tokens earned since the last update.
func (tb *tokenBucket) advance(now time.Time) {
	switch {
	case tb.rate == Inf:
		tb.tokens = float64(tb.burst)
	case tb.rate > 0:
		if elapsed := now.Sub(tb.last); elapsed > 0 {
			tb.tokens = math.Min(tb.tokens+elapsed.Seconds()*float64(tb.rate), float64(tb.burst))
		} else {
			return
		}
	}
	tb.last = now
}

func (tb *tokenBucket) refund(n int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.advance(tb.clock.Now())
	tb.tokens = math.Min(tb.tokens+float64(n), float64(tb.burst))
}
