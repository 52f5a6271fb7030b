package gateway

import (
	"errors"
)

// Kind classifies a gateway failure for the transport layer.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindInvalidInput
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is returned by every gateway operation that can fail. Message is
// safe to show to the caller.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func invalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message, Err: nil}
}

func internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: err.Error(), Err: err}
}

// KindOf reports the kind of err. Errors that did not come from the gateway
// are internal.
func KindOf(err error) Kind {
	var gatewayErr *Error
	if errors.As(err, &gatewayErr) {
		return gatewayErr.Kind
	}

	return KindInternal
}

// IsInvalidInput reports whether err was caused by the caller's input.
func IsInvalidInput(err error) bool {
	return err != nil && KindOf(err) == KindInvalidInput
}
