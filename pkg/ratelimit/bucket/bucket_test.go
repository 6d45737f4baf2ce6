package bucket

import (
	"math"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"

	"github.com/vnykmshr/flowguard/internal/testutil"
	"github.com/vnykmshr/flowguard/pkg/common/errors"
)

func newFakeLimiter(t *testing.T, rate Limit, burst, initial int) (Limiter, *testingclock.FakeClock) {
	t.Helper()
	clk := testutil.NewFakeClock()
	limiter, err := NewWithConfig(Config{
		Rate:          rate,
		Burst:         burst,
		Clock:         clk,
		InitialTokens: initial,
	})
	testutil.AssertNoError(t, err)
	return limiter, clk
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		rate    Limit
		burst   int
		wantErr bool
	}{
		{"valid", 10, 5, false},
		{"zero rate", 0, 5, false},
		{"infinite rate", Inf, 5, false},
		{"negative rate", -1, 5, true},
		{"zero burst", 10, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter, err := New(tt.rate, tt.burst)
			if tt.wantErr {
				testutil.AssertEqual(t, errors.IsValidationError(err), true)
				return
			}
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, limiter.Rate(), tt.rate)
			testutil.AssertEqual(t, limiter.Tokens(), float64(tt.burst))
		})
	}
}

func TestEvery(t *testing.T) {
	testutil.AssertInDelta(t, float64(Every(100*time.Millisecond)), 10, 1e-10)
	testutil.AssertInDelta(t, float64(Every(2*time.Second)), 0.5, 1e-10)
	if !math.IsInf(float64(Every(0)), 1) {
		t.Error("Every(0) should be Inf")
	}
}

func TestAllowNRefills(t *testing.T) {
	limiter, clk := newFakeLimiter(t, 10, 5, -1)

	testutil.AssertEqual(t, limiter.AllowN(3), true)
	testutil.AssertEqual(t, limiter.Tokens(), 2.0)
	testutil.AssertEqual(t, limiter.AllowN(3), false)
	testutil.AssertEqual(t, limiter.AllowN(0), true)

	clk.Step(100 * time.Millisecond)
	testutil.AssertEqual(t, limiter.AllowN(3), true)
	testutil.AssertEqual(t, limiter.AllowN(1), false)

	clk.Step(time.Hour)
	testutil.AssertEqual(t, limiter.Tokens(), 5.0)
}

func TestReserveQueues(t *testing.T) {
	limiter, clk := newFakeLimiter(t, 10, 1, 1)
	now := clk.Now()

	testutil.AssertEqual(t, limiter.AllowN(1), true)

	r1 := limiter.ReserveN(1, time.Second)
	testutil.AssertEqual(t, r1.DelayFrom(now), 100*time.Millisecond)
	r2 := limiter.ReserveN(1, time.Second)
	testutil.AssertEqual(t, r2.DelayFrom(now), 200*time.Millisecond)
	testutil.AssertInDelta(t, limiter.Tokens(), -2, 1e-9)

	r2.Cancel()
	r3 := limiter.ReserveN(1, time.Second)
	testutil.AssertEqual(t, r3.DelayFrom(now), 200*time.Millisecond)
}

func TestReserveLimits(t *testing.T) {
	limiter, _ := newFakeLimiter(t, 10, 2, 0)

	r := limiter.ReserveN(1, 50*time.Millisecond)
	testutil.AssertEqual(t, r.OK(), false)
	testutil.AssertEqual(t, r.DelayFrom(testutil.Epoch), time.Duration(0))

	testutil.AssertEqual(t, limiter.ReserveN(1, 100*time.Millisecond).OK(), true)
	testutil.AssertEqual(t, limiter.ReserveN(3, time.Hour).OK(), false)
}

func TestZeroAndInfiniteRate(t *testing.T) {
	stuck, clk := newFakeLimiter(t, 0, 2, -1)
	testutil.AssertEqual(t, stuck.AllowN(2), true)
	clk.Step(time.Hour)
	testutil.AssertEqual(t, stuck.ReserveN(1, time.Hour).OK(), false)

	open, _ := newFakeLimiter(t, Inf, 1, 0)
	for i := 0; i < 100; i++ {
		testutil.AssertEqual(t, open.AllowN(5), true)
	}
}

func TestSetRateAndBurst(t *testing.T) {
	limiter, clk := newFakeLimiter(t, 1, 10, 0)

	limiter.SetRate(100)
	testutil.AssertEqual(t, limiter.Rate(), Limit(100))
	clk.Step(50 * time.Millisecond)
	testutil.AssertInDelta(t, limiter.Tokens(), 5, 1e-9)

	testutil.AssertNoError(t, limiter.SetBurst(2))
	testutil.AssertEqual(t, limiter.Burst(), 2)
	testutil.AssertEqual(t, limiter.Tokens(), 2.0)

	testutil.AssertEqual(t, errors.IsValidationError(limiter.SetBurst(0)), true)
	testutil.AssertEqual(t, limiter.Burst(), 2)
}
