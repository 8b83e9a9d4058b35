package notifier

import (
	"errors"
	"fmt"
)

var (
	// ErrDrop is returned by a middleware to stop processing a notification.
	// Notify still returns the generated id and a nil error.
	ErrDrop = errors.New("notifier: dropped by middleware")

	ErrDestroyed = errors.New("notifier destroyed")
)

// ValidationError reports a malformed Request. It is the only error Notify returns.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid notification: %s %s", e.Field, e.Reason)
}

// DeliveryError is returned once native delivery exhausted its attempts.
type DeliveryError struct {
	ID       string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("native delivery of %s failed after %d attempts: %v", e.ID, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
