package inventory

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownProduct    = errors.New("unknown product")
	ErrDuplicateProduct  = errors.New("product already exists")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidProduct    = errors.New("invalid product")

	// ErrClosed is returned by mutations after Close.
	ErrClosed = errors.New("store closed")

	// ErrInvariant signals a torn or impossible read. Unreachable while every
	// mutation goes through the store's critical section.
	ErrInvariant = errors.New("store invariant violated")
)

// ValidationError is bad caller input. Never retried.
type ValidationError struct {
	Op        string
	ProductID string
	Err       error
}

func (e *ValidationError) Error() string {
	if e.ProductID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.ProductID, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(op, id string, err error) error {
	return &ValidationError{Op: op, ProductID: id, Err: err}
}

// StoreIOError means the snapshot file could not be read or written.
// The in-memory store keeps working; persistence is degraded.
type StoreIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreIOError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreIOError) Unwrap() error { return e.Err }

// IsValidation reports whether err is caller input rejected by the store.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPersistence reports whether err is a snapshot file failure.
func IsPersistence(err error) bool {
	var se *StoreIOError
	return errors.As(err, &se)
}
