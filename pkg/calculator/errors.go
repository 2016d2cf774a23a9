package calculator

import "errors"

var (
	// ErrEmptyInput is returned when no customer qualifies for the analysis.
	ErrEmptyInput = errors.New("calculator: no qualifying customers")

	// ErrMissingBoundary is returned when scoring runs without quartiles for a metric.
	ErrMissingBoundary = errors.New("calculator: missing quartile boundaries")

	// ErrInvalidMetrics is returned when a customer row has a negative recency
	// or a frequency below one, which no aggregation produces.
	ErrInvalidMetrics = errors.New("calculator: invalid customer metrics")

	// ErrFutureTransaction is returned when a row is dated after the reference date,
	// which would give the customer a negative recency.
	ErrFutureTransaction = errors.New("calculator: transaction after reference date")
)
