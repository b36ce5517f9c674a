package push

import (
	"errors"
	"fmt"

	"wayfinder/models"
)

type FailureKind int

const (
	// Transient failures are retryable and never deactivate an endpoint.
	Transient FailureKind = iota
	// Permanent failures mean the provider no longer accepts the credential.
	Permanent
)

func (k FailureKind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// ProviderError is what adapters return for a failed send.
type ProviderError struct {
	Channel    models.Channel
	Kind       FailureKind
	Reason     models.DeactivationReason
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failure (status %d): %v", e.Channel, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s failure: %v", e.Channel, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewPermanentError reports a credential the provider will never accept again.
func NewPermanentError(channel models.Channel, reason models.DeactivationReason, statusCode int, err error) *ProviderError {
	return &ProviderError{Channel: channel, Kind: Permanent, Reason: reason, StatusCode: statusCode, Err: err}
}

// NewTransientError reports a failure worth retrying later.
func NewTransientError(channel models.Channel, statusCode int, err error) *ProviderError {
	return &ProviderError{Channel: channel, Kind: Transient, StatusCode: statusCode, Err: err}
}

// IsPermanent reports whether err is a permanent provider failure.
func IsPermanent(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == Permanent
}

// classify folds any adapter error into a ProviderError. Anything the adapter
// did not classify, timeouts included, is transient.
func classify(channel models.Channel, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return NewTransientError(channel, 0, err)
}

// IsTransient reports whether err is worth retrying. Unclassified errors are.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}
