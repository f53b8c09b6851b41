// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrFeedStale             = errors.New("market data stale")
	ErrFeedUnavailable       = errors.New("market data unavailable")
	ErrVenueTimeout          = errors.New("venue request timed out")
	ErrOrderRejected         = errors.New("order rejected")
	ErrInsufficientLiquidity = errors.New("insufficient venue liquidity")
	ErrPositionNotFound      = errors.New("position not found")
	ErrPositionExists        = errors.New("position already open for symbol")
	ErrBreakerOpen           = errors.New("circuit breaker is open")
	ErrOracleUnavailable     = errors.New("advisory oracle unavailable")
	ErrInsufficientHistory   = errors.New("insufficient history")
	ErrConfigInvalid         = errors.New("invalid configuration")
	ErrTimeout               = errors.New("operation timed out")
)

// FeedError represents stale or missing market data for a symbol. The scan
// cycle for that symbol is skipped; it is never retried within the cycle.
type FeedError struct {
	Symbol  string
	Message string
	Err     error
}

func (e *FeedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feed error [%s]: %s: %v", e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("feed error [%s]: %s", e.Symbol, e.Message)
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

// NewFeedError creates a new FeedError.
func NewFeedError(symbol, message string, err error) *FeedError {
	return &FeedError{Symbol: symbol, Message: message, Err: err}
}

// VenueError represents a venue-side failure: timeout, rejection, or thin
// liquidity. Retryable up to the router's bound.
type VenueError struct {
	Venue     string
	Symbol    string
	Operation string
	Err       error
	Retryable bool
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("venue error [%s] %s %s: %v", e.Venue, e.Operation, e.Symbol, e.Err)
}

func (e *VenueError) Unwrap() error {
	return e.Err
}

// NewVenueError creates a new retryable VenueError.
func NewVenueError(venue, symbol, operation string, err error) *VenueError {
	return &VenueError{Venue: venue, Symbol: symbol, Operation: operation, Err: err, Retryable: true}
}

// IsRetryableVenueError reports whether err is a VenueError marked retryable.
func IsRetryableVenueError(err error) bool {
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve.Retryable
	}
	return errors.Is(err, ErrVenueTimeout) || errors.Is(err, ErrTimeout)
}

// ComputationError represents insufficient history for a statistic. Callers
// substitute a neutral default rather than failing the cycle.
type ComputationError struct {
	Metric   string
	Required int
	Actual   int
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("computation error [%s]: need %d observations, have %d", e.Metric, e.Required, e.Actual)
}

// NewComputationError creates a new ComputationError.
func NewComputationError(metric string, required, actual int) *ComputationError {
	return &ComputationError{Metric: metric, Required: required, Actual: actual}
}

// ValidationError represents a signal or oracle response failing a
// risk/confidence check. The caller coerces to HOLD, never propagates.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// SafetyError represents a hard risk limit breach. Always surfaced as a
// circuit breaker trip and an alert; never silently retried.
type SafetyError struct {
	Rule    string
	Current float64
	Limit   float64
	Message string
}

func (e *SafetyError) Error() string {
	return fmt.Sprintf("safety breach [%s]: %s (current: %.4f, limit: %.4f)", e.Rule, e.Message, e.Current, e.Limit)
}

// NewSafetyError creates a new SafetyError.
func NewSafetyError(rule string, current, limit float64, message string) *SafetyError {
	return &SafetyError{Rule: rule, Current: current, Limit: limit, Message: message}
}

// OracleError represents a failure of the advisory oracle. The ensemble
// signal is used verbatim on any OracleError.
type OracleError struct {
	Operation string
	Err       error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle error [%s]: %v", e.Operation, e.Err)
}

func (e *OracleError) Unwrap() error {
	return e.Err
}

// NewOracleError creates a new OracleError.
func NewOracleError(operation string, err error) *OracleError {
	return &OracleError{Operation: operation, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
