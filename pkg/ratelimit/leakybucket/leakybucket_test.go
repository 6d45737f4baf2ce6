package leakybucket

import (
	"testing"
	"time"

	"github.com/vnykmshr/flowguard/internal/testutil"
	"github.com/vnykmshr/flowguard/pkg/common/errors"
	"github.com/vnykmshr/flowguard/pkg/ratelimit/bucket"
)

func newTestLimiter(t *testing.T, rate bucket.Limit, capacity int) (Limiter, func(time.Duration)) {
	t.Helper()
	clk := testutil.NewFakeClock()
	lim, err := NewWithConfig(Config{LeakRate: rate, Capacity: capacity, Clock: clk, InitialLevel: -1})
	testutil.AssertNoError(t, err)
	return lim, clk.Step
}

func TestAllowDrains(t *testing.T) {
	lim, step := newTestLimiter(t, 10, 2)

	testutil.AssertEqual(t, lim.AllowN(2), true)
	testutil.AssertEqual(t, lim.AllowN(1), false)
	testutil.AssertInDelta(t, lim.Level(), 2, 1e-9)

	step(100 * time.Millisecond)
	testutil.AssertInDelta(t, lim.Level(), 1, 1e-9)
	testutil.AssertEqual(t, lim.AllowN(1), true)
	testutil.AssertEqual(t, lim.AllowN(1), false)
}

func TestReserveSpacesEvents(t *testing.T) {
	lim, _ := newTestLimiter(t, 10, 1)
	now := testutil.Epoch

	delays := []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond}
	for i, want := range delays {
		r := lim.ReserveN(1, 500*time.Millisecond)
		if !r.OK() {
			t.Fatalf("reservation %d rejected", i)
		}
		testutil.AssertEqual(t, r.DelayFrom(now), want)
	}

	r := lim.ReserveN(3, 250*time.Millisecond)
	testutil.AssertEqual(t, r.OK(), false)
	testutil.AssertEqual(t, r.DelayFrom(now), time.Duration(0))
}

func TestReservationCancel(t *testing.T) {
	lim, _ := newTestLimiter(t, 1, 1)

	testutil.AssertEqual(t, lim.AllowN(1), true)
	r := lim.ReserveN(1, 2*time.Second)
	testutil.AssertEqual(t, r.OK(), true)
	testutil.AssertInDelta(t, lim.Level(), 2, 1e-9)

	r.Cancel()
	testutil.AssertInDelta(t, lim.Level(), 1, 1e-9)
}

func TestZeroAndInfiniteRate(t *testing.T) {
	stuck, step := newTestLimiter(t, 0, 1)
	testutil.AssertEqual(t, stuck.AllowN(1), true)
	step(time.Hour)
	testutil.AssertEqual(t, stuck.ReserveN(1, time.Hour).OK(), false)

	open, _ := newTestLimiter(t, bucket.Inf, 1)
	for i := 0; i < 100; i++ {
		testutil.AssertEqual(t, open.AllowN(5), true)
	}
	testutil.AssertEqual(t, open.Level(), 0.0)
}

func TestSetters(t *testing.T) {
	lim, step := newTestLimiter(t, 1, 4)
	testutil.AssertEqual(t, lim.AllowN(4), true)

	testutil.AssertNoError(t, lim.SetCapacity(2))
	testutil.AssertEqual(t, lim.Capacity(), 2)
	testutil.AssertInDelta(t, lim.Level(), 2, 1e-9)

	err := lim.SetCapacity(0)
	testutil.AssertEqual(t, errors.IsValidationError(err), true)

	lim.SetLeakRate(4)
	testutil.AssertEqual(t, lim.LeakRate(), bucket.Limit(4))
	step(250 * time.Millisecond)
	testutil.AssertInDelta(t, lim.Level(), 1, 1e-9)
}

func TestInvalidConfig(t *testing.T) {
	_, err := New(-1, 1)
	testutil.AssertEqual(t, errors.IsValidationError(err), true)

	_, err = New(1, 0)
	testutil.AssertEqual(t, errors.IsValidationError(err), true)

	lim, err := NewWithConfig(Config{LeakRate: 1, Capacity: 2, InitialLevel: 9})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, lim.AllowN(1), false)
}
