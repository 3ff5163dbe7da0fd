package store

import "errors"

var (
	// ErrConflict is a transient concurrency failure; the whole transaction may be retried.
	ErrConflict = errors.New("store: transaction conflict")
	// ErrUnavailable means the backend could not be reached.
	ErrUnavailable = errors.New("store: unavailable")
	// ErrStockGuard means a guarded decrement found less stock than requested.
	ErrStockGuard = errors.New("store: stock guard failed")
	// ErrBadQuantity rejects a decrement that is not a positive amount.
	ErrBadQuantity = errors.New("store: decrement quantity must be positive")

	ErrOrderNotFound   = errors.New("store: order not found")
	ErrProductNotFound = errors.New("store: product not found")
	ErrDuplicateOrder  = errors.New("store: duplicate order id")
)

// Retryable reports whether err allows re-running a whole transaction.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable) || errors.Is(err, ErrStockGuard)
}

// DefaultListLimit caps list queries when callers pass a non-positive limit.
const DefaultListLimit = 100

// NormalizeLimit applies DefaultListLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultListLimit {
		return DefaultListLimit
	}
	return limit
}
