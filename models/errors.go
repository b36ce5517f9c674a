package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound also covers records that exist but belong to someone else.
	ErrNotFound = errors.New("not found")
	// ErrProviderUnavailable means no push adapter could serve any endpoint.
	ErrProviderUnavailable = errors.New("push provider unavailable")
	// ErrConnectionUnauthenticated rejects a real-time handshake.
	ErrConnectionUnauthenticated = errors.New("connection unauthenticated")
)

// ValidationError rejects malformed input before any store write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
