package outbox

import (
	"context"
	"errors"
)

// SendPort is the transport the outbox worker delivers through.
// A nil error means delivered; errors wrapped with Permanent are not retried,
// every other error is treated as retryable.
type SendPort interface {
	Send(ctx context.Context, topic string, payload map[string]any) error
}

// PermanentError marks a delivery failure that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent delivery failure: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked non-retryable.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
