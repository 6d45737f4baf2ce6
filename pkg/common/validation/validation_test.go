package validation

import (
	stderrors "errors"
	"math"
	"testing"
	"time"

	"github.com/vnykmshr/flowguard/internal/testutil"
	"github.com/vnykmshr/flowguard/pkg/common/errors"
)

func TestPositive(t *testing.T) {
	tests := []struct {
		name    string
		check   func() error
		wantErr bool
	}{
		{"int", func() error { return Positive("stat", "sampleCount", 2) }, false},
		{"int zero", func() error { return Positive("stat", "sampleCount", 0) }, true},
		{"int negative", func() error { return Positive("stat", "sampleCount", -1) }, true},
		{"uint32", func() error { return Positive("flow", "warmUpPeriodSec", uint32(10)) }, false},
		{"uint32 zero", func() error { return Positive("flow", "warmUpPeriodSec", uint32(0)) }, true},
		{"duration", func() error { return Positive("stat", "interval", time.Second) }, false},
		{"float", func() error { return Positive("bucket", "rate", 0.001) }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.check()
			if tt.wantErr {
				testutil.AssertEqual(t, errors.IsValidationError(err), true)
				return
			}
			testutil.AssertNoError(t, err)
		})
	}
}

func TestNonNegative(t *testing.T) {
	testutil.AssertNoError(t, NonNegative("stat", "occupyTimeout", time.Duration(0)))
	testutil.AssertNoError(t, NonNegative("bucket", "rate", 0.0))

	err := NonNegative("stat", "occupyTimeout", -time.Millisecond)
	testutil.AssertEqual(t, err.Error(), "stat: invalid occupyTimeout=-1ms (cannot be negative)")
}

func TestThreshold(t *testing.T) {
	for _, v := range []float64{0, 0.5, 1, 1e9} {
		testutil.AssertNoError(t, Threshold("flow", "threshold", v))
	}
	for _, v := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		err := Threshold("flow", "threshold", v)
		if !stderrors.Is(err, errors.ErrInvalidConfiguration) {
			t.Errorf("Threshold(%v) = %v, want ErrInvalidConfiguration", v, err)
		}
	}

	var verr *errors.ValidationError
	if !stderrors.As(Threshold("flow", "threshold", -2), &verr) {
		t.Fatal("expected *ValidationError")
	}
	testutil.AssertEqual(t, verr.Hint, "use 0 to block every call")
}

func TestNotEmpty(t *testing.T) {
	testutil.AssertNoError(t, NotEmpty("flow", "resource", "orders"))

	var verr *errors.ValidationError
	if !stderrors.As(NotEmpty("flow", "resource", ""), &verr) {
		t.Fatal("expected *ValidationError")
	}
	testutil.AssertEqual(t, verr.Module, "flow")
	testutil.AssertEqual(t, verr.Field, "resource")
}

func TestPattern(t *testing.T) {
	testutil.AssertNoError(t, Pattern("flow", "resource", "^/api/.*"))

	var verr *errors.ValidationError
	if !stderrors.As(Pattern("flow", "resource", "orders("), &verr) {
		t.Fatal("expected *ValidationError")
	}
	testutil.AssertEqual(t, verr.Reason, "not a valid regular expression")
	if verr.Hint == "" {
		t.Error("expected the compile error as hint")
	}
}
