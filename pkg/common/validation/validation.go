package validation

import (
	"math"
	"regexp"

	gferrors "github.com/vnykmshr/flowguard/pkg/common/errors"
)

// Number is any numeric type a configuration field is declared as,
// including named types such as time.Duration.
type Number interface {
	~int | ~int32 | ~int64 | ~uint32 | ~float64
}

// Positive rejects values that are zero or negative.
func Positive[T Number](module, field string, value T) error {
	if value <= 0 {
		return gferrors.NewValidationError(module, field, value, "must be positive")
	}
	return nil
}

// NonNegative rejects values below zero.
func NonNegative[T Number](module, field string, value T) error {
	if value < 0 {
		return gferrors.NewValidationError(module, field, value, "cannot be negative")
	}
	return nil
}

// Threshold accepts finite values of zero or more. Zero is a valid
// threshold meaning "admit nothing".
func Threshold(module, field string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return gferrors.NewValidationError(module, field, value, "must be a finite number")
	}
	if value < 0 {
		return gferrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use 0 to block every call")
	}
	return nil
}

// NotEmpty rejects the empty string.
func NotEmpty(module, field, value string) error {
	if value == "" {
		return gferrors.NewValidationError(module, field, value, "cannot be empty")
	}
	return nil
}

// Pattern rejects values that do not compile as a regular expression.
func Pattern(module, field, value string) error {
	if _, err := regexp.Compile(value); err != nil {
		return gferrors.NewValidationError(module, field, value, "not a valid regular expression").
			WithHint(err.Error())
	}
	return nil
}
