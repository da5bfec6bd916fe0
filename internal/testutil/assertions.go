package testutil

import (
	"errors"
	"testing"

	apperrors "papertrade/internal/errors"
	"papertrade/internal/ledger"
)

// AssertAppError checks that err is, or wraps, an *AppError with the
// expected code, e.g. INSUFFICIENT_FUNDS.
func AssertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected %s, got nil", expectedCode)
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected %s, got %T: %v", expectedCode, err, err)
	}

	if appErr.Code != expectedCode {
		t.Errorf("expected %s, got %s (%s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// AssertRetryable checks that err tells the caller to retry: a busy
// portfolio or missing market data, never a business rejection.
func AssertRetryable(t *testing.T, err error) {
	t.Helper()

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || !appErr.Retryable {
		t.Fatalf("expected a retryable error, got %v", err)
	}
}

// AssertAmount compares two amounts in minor units and reports a mismatch
// in rupees, e.g. "cash: got ₹997,497.50, want ₹997,500.00".
func AssertAmount(t *testing.T, what string, got, want int64) {
	t.Helper()

	if got != want {
		t.Errorf("%s: got %s, want %s (%d paise apart)",
			what, ledger.FormatAmount(got), ledger.FormatAmount(want), got-want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
