// Package stream consumes chat and upload event streams.
//
// A ChatConsumer or UploadConsumer drives one request from open to exactly
// one finalization. A CancelHandle aborts the request from any goroutine.
package stream

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel causes and misuse errors.
var (
	// ErrAborted is the cancellation cause set by CancelHandle.Cancel.
	ErrAborted = errors.New("stream aborted")
	// ErrIdleTimeout is the cancellation cause set when no frame arrives
	// within the idle timeout.
	ErrIdleTimeout = errors.New("stream idle timeout")
	// ErrHandleReused is returned when a CancelHandle drives a second request.
	ErrHandleReused = errors.New("cancel handle already used")
	// ErrNoTerminalEvent is wrapped when an upload stream ends without
	// complete or error.
	ErrNoTerminalEvent = errors.New("upload stream ended without a terminal event")
)

// ErrorKind classifies stream errors for outcome determination.
type ErrorKind int

const (
	// ErrorMalformedFrame indicates a payload that failed to decode.
	// Never terminal: the frame is skipped.
	ErrorMalformedFrame ErrorKind = iota
	// ErrorAborted indicates user cancellation.
	ErrorAborted
	// ErrorTransport indicates a request failure, non-2xx status, connection
	// loss, or idle timeout.
	ErrorTransport
	// ErrorProtocol indicates a stream that violated its framing contract.
	ErrorProtocol
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorMalformedFrame:
		return "malformed_frame"
	case ErrorAborted:
		return "aborted"
	case ErrorTransport:
		return "transport"
	case ErrorProtocol:
		return "protocol"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// StreamError classifies a stream failure.
type StreamError struct {
	Kind ErrorKind
	// Err is the underlying error.
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

func errorKind(err error) (ErrorKind, bool) {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// IsAbortError returns true if the error is due to user cancellation.
func IsAbortError(err error) bool {
	k, ok := errorKind(err)
	return ok && k == ErrorAborted
}

// IsTransportError returns true if the error is a transport failure.
func IsTransportError(err error) bool {
	k, ok := errorKind(err)
	return ok && k == ErrorTransport
}

// IsProtocolError returns true if the error is a protocol violation.
func IsProtocolError(err error) bool {
	k, ok := errorKind(err)
	return ok && k == ErrorProtocol
}

// IsMalformedFrame returns true if the error is a skipped payload.
func IsMalformedFrame(err error) bool {
	k, ok := errorKind(err)
	return ok && k == ErrorMalformedFrame
}

// classify maps a failure observed under ctx to a StreamError.
// The cancellation cause decides, never the error text: an idle timeout or
// deadline is a transport failure, any other cancellation is an abort.
func classify(ctx context.Context, err error) *StreamError {
	if cause := context.Cause(ctx); cause != nil {
		if errors.Is(cause, ErrIdleTimeout) || errors.Is(cause, context.DeadlineExceeded) {
			return &StreamError{Kind: ErrorTransport, Err: cause}
		}
		return &StreamError{Kind: ErrorAborted, Err: cause}
	}
	var se *StreamError
	if errors.As(err, &se) {
		return se
	}
	return &StreamError{Kind: ErrorTransport, Err: err}
}
