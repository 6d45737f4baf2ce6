package testutil

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestEventually(t *testing.T) {
	var ready atomic.Bool
	go func() {
		time.Sleep(20 * time.Millisecond)
		ready.Store(true)
	}()

	polls := 0
	Eventually(t, func() bool {
		polls++
		return ready.Load()
	}, time.Second, 5*time.Millisecond)

	if polls < 2 {
		t.Errorf("condition polled %d times, want at least 2", polls)
	}
}

func TestNewFakeClock(t *testing.T) {
	clock := NewFakeClock()
	AssertEqual(t, clock.Now(), Epoch)
	AssertEqual(t, Epoch.UnixMilli()%1000, int64(0))

	clock.Sleep(250 * time.Millisecond)
	AssertEqual(t, clock.Since(Epoch), 250*time.Millisecond)
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(t)
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("context should carry a deadline")
	}
	if time.Until(deadline) > TestTimeout {
		t.Errorf("deadline too far in the future: %v", deadline)
	}
}

func TestAssertNoError(t *testing.T) {
	AssertNoError(t, nil)
}

func TestAssertEqual(t *testing.T) {
	AssertEqual(t, 1, 1)
	AssertEqual(t, "resource", "resource")
}

func TestAssertNotEqual(t *testing.T) {
	AssertNotEqual(t, 1, 2)
}

func TestAssertInDelta(t *testing.T) {
	AssertInDelta(t, 1.0001, 1.0, 0.001)
}
