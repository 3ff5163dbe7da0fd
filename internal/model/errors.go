package model

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Typed errors below match these with errors.Is.
var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidProduct    = errors.New("invalid product")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrTransactionFailed = errors.New("transaction failed")
	ErrAccessDenied      = errors.New("access denied")
	ErrNotFound          = errors.New("not found")
)

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InvalidProductError names cart references that did not resolve to an orderable product.
type InvalidProductError struct {
	ProductRef string
	Missing    []string
}

func (e *InvalidProductError) Error() string {
	if len(e.Missing) > 1 {
		return fmt.Sprintf("invalid product(s): %s", strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("invalid product: %s", e.ProductRef)
}

func (e *InvalidProductError) Is(target error) bool { return target == ErrInvalidProduct }

// InsufficientStockError carries the requested and available quantities.
type InsufficientStockError struct {
	ProductRef string
	Requested  int64
	Available  int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ProductRef, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// TransactionFailedError is returned when the store could not commit.
// Nothing was written; the whole request may be retried.
type TransactionFailedError struct {
	Attempts int
	Err      error
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("transaction failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransactionFailedError) Is(target error) bool { return target == ErrTransactionFailed }

func (e *TransactionFailedError) Unwrap() error { return e.Err }

// AccessDeniedError hides the resource from a requester lacking rights.
type AccessDeniedError struct {
	Resource string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied to %s", e.Resource)
}

func (e *AccessDeniedError) Is(target error) bool { return target == ErrAccessDenied }

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
