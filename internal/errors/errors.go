// Package errors provides custom error types for the paper trading API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak ledger internals to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
	// Retryable marks transient failures: the same request may succeed if
	// sent again shortly.
	Retryable bool `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is reports whether target is an AppError with the same code, so that
// errors.Is(err, ErrInsufficientFunds) matches wrapped copies of a sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
		Retryable:  sentinel.Retryable,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
		Retryable:  sentinel.Retryable,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrForbidden    = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Pipeline authentication errors.
var (
	ErrInvalidAPIKey         = &AppError{Code: "INVALID_API_KEY", Message: "Invalid or missing API key", StatusCode: http.StatusUnauthorized}
	ErrPipelineNotConfigured = &AppError{Code: "PIPELINE_NOT_CONFIGURED", Message: "Pipeline endpoints are not configured", StatusCode: http.StatusServiceUnavailable}
)

// Portfolio errors.
var (
	ErrPortfolioNotFound = &AppError{Code: "PORTFOLIO_NOT_FOUND", Message: "Portfolio not found", StatusCode: http.StatusNotFound}
	ErrPortfolioExists   = &AppError{Code: "PORTFOLIO_EXISTS", Message: "A default portfolio already exists for this user", StatusCode: http.StatusConflict}
)

// Order and trade errors. Business-rule rejections carry a specific message;
// dependency failures use a generic retry message; Inconsistency never
// describes the ledger state to the caller.
var (
	ErrTradeNotFound        = &AppError{Code: "TRADE_NOT_FOUND", Message: "Trade not found", StatusCode: http.StatusNotFound}
	ErrInsufficientFunds    = &AppError{Code: "INSUFFICIENT_FUNDS", Message: "Insufficient funds for this order", StatusCode: http.StatusBadRequest}
	ErrInsufficientHoldings = &AppError{Code: "INSUFFICIENT_HOLDINGS", Message: "Insufficient holdings for this sale", StatusCode: http.StatusBadRequest}
	ErrQuoteUnavailable     = &AppError{Code: "QUOTE_UNAVAILABLE", Message: "Market data is temporarily unavailable, please retry", StatusCode: http.StatusServiceUnavailable, Retryable: true}
	ErrConcurrencyTimeout   = &AppError{Code: "CONCURRENCY_TIMEOUT", Message: "Portfolio is busy, please retry", StatusCode: http.StatusServiceUnavailable, Retryable: true}
	ErrAlreadyExecuted      = &AppError{Code: "ALREADY_EXECUTED", Message: "Order is no longer pending", StatusCode: http.StatusConflict}
	ErrTriggerNotMet        = &AppError{Code: "TRIGGER_NOT_MET", Message: "Order trigger condition is not met", StatusCode: http.StatusConflict}
	ErrInconsistency        = &AppError{Code: "INCONSISTENCY", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)
