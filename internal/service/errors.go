package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks caller input rejected before any backend call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks an absent record, or an absent payload on delete.
	ErrNotFound = errors.New("not found")
	// ErrBackend marks a failed blob store, index or issuer call.
	ErrBackend = errors.New("backend error")
	// ErrIntegrity marks a record that violates a stored invariant, such as
	// a missing blob key or a payload that is gone.
	ErrIntegrity = errors.New("integrity error")

	ErrListTooLarge = fmt.Errorf("%w: too many records to list without an owner filter; filter by user_id", ErrInvalidInput)
)

const (
	CategoryValidation = "validation"
	CategoryNotFound   = "not_found"
	CategoryBackend    = "backend"
	CategoryIntegrity  = "integrity"
)

// Category returns the caller-visible class of err. Unclassified errors are
// reported as backend errors.
func Category(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return CategoryValidation
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrIntegrity):
		return CategoryIntegrity
	default:
		return CategoryBackend
	}
}

func backendErr(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrBackend, step, err)
}
