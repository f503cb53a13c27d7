// Package errors defines the error taxonomy shared by the transport packages.
//
// Every failure in the transport path maps to one kind:
//   - Not-ready: ErrSocketUninit, ErrCallbacksUninit
//   - Bind-exhausted: *BindError
//   - Codec: *CodecError (compression or decompression rejected the input)
//   - Encoding: *EncodingError (serialization or deserialization mismatch)
//   - I/O: *NetworkError
//   - Handler: *HandlerError (the registered handler failed)
//
// Configuration problems are reported as *ValidationError.
//
// Typed errors wrap their cause, so callers can match them with errors.Is and
// errors.As from the standard library.
package errors

import (
	goerrors "errors"
	"fmt"
)

// Not-ready and lifecycle sentinels.
var (
	// ErrSocketUninit is returned when a socket operation runs before Init bound one.
	ErrSocketUninit = goerrors.New("socket unbound/uninitialized")

	// ErrCallbacksUninit is returned by Poll when no handler was registered.
	ErrCallbacksUninit = goerrors.New("session callbacks uninitialized")

	// ErrAlreadyBound is returned by Init on a transport that is already bound.
	ErrAlreadyBound = goerrors.New("transport already bound")
)

// NetworkError reports a socket-level failure (bind, send, receive, close).
type NetworkError struct {
	Operation string // e.g. "send datagram", "receive datagram"
	Err       error  // underlying cause
	Details   string // optional human-readable context
}

func (e *NetworkError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("network error during %s: %v (%s)", e.Operation, e.Err, e.Details)
	}
	return fmt.Sprintf("network error during %s: %v", e.Operation, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// BindError is returned when no local port could be bound within the retry budget.
type BindError struct {
	Addr     string // the originally requested endpoint
	Attempts int    // number of bind attempts made
	Err      error  // last bind failure
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind socket at %s after %d attempts: %v", e.Addr, e.Attempts, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// CodecError reports a compression or decompression failure.
type CodecError struct {
	Operation string // "compress" or "decompress"
	Err       error
	Details   string
}

func (e *CodecError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s failed: %v (%s)", e.Operation, e.Err, e.Details)
	}
	return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

// EncodingError reports a serialization or deserialization failure.
type EncodingError struct {
	Operation string // "serialize" or "deserialize"
	Err       error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// HandlerError wraps a failure reported by the registered message handler.
//
// It is kept distinct from transport faults so a misbehaving handler is never
// mistaken for a socket or codec problem.
type HandlerError struct {
	From string // sender endpoint of the message being handled
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("callback error for message from %s: %v", e.From, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// ValidationError reports an invalid argument or configuration value.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Message)
}
