package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrForbidden        = errors.New("forbidden")
)

// TransportError is a failure of one storage tier. It triggers fallback to the next tier.
type TransportError struct {
	Tier string
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Tier, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StoreUnavailable reports that every tier failed, keeping each tier's cause.
func StoreUnavailable(op string, errs ...error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, errors.Join(errs...))
}
