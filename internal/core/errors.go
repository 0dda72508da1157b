package core

import "errors"

// Rejections surfaced by the ledger. Every one of them leaves stored state
// unchanged.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("record not found")
	ErrInsufficientBalance = errors.New("insufficient balance: operation would make the balance negative")
	ErrPersistence         = errors.New("persistence failure")
)

// IsRejection reports whether err is a deterministic rejection that must not
// be retried.
func IsRejection(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientBalance)
}
