// Package vdkerrors defines the error taxonomy shared by every component of
// this module. Errors are plain Go errors wrapping a Kind, so
// callers use errors.Is/errors.As instead of a class hierarchy.
package vdkerrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error without dictating its exact message.
type Kind int

const (
	// InvalidInput marks a malformed URL, unknown scheme, or negative
	// duration. Non-retryable.
	InvalidInput Kind = iota
	// ProtocolError marks an RTSP/RTP/TS framing violation or an
	// unexpected state transition. Non-retryable for the offending session.
	ProtocolError
	// AuthFailed marks a failure after two credentialed retries.
	// Non-retryable.
	AuthFailed
	// TransportLost marks a closed socket, a read timeout, or excessive
	// RTCP loss. Retryable by the caller with exponential backoff.
	TransportLost
	// InvalidBitstream marks an Exp-Golomb overflow, a truncated NALU, or
	// an ADTS sync miss. The offending packet is dropped; not fatal.
	InvalidBitstream
	// IO marks a local filesystem error during segment/playlist write.
	// Fatal to the segmenter; the session may continue with a new sink.
	IO
	// Timeout marks a server unresponsive beyond the configured deadline.
	// Retryable.
	Timeout
	// Unsupported marks a codec or transport advertised but not
	// implemented. Non-retryable.
	Unsupported
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case ProtocolError:
		return "ProtocolError"
	case AuthFailed:
		return "AuthFailed"
	case TransportLost:
		return "TransportLost"
	case InvalidBitstream:
		return "InvalidBitstream"
	case IO:
		return "Io"
	case Timeout:
		return "Timeout"
	case Unsupported:
		return "Unsupported"
	default:
		return "Unknown"
	}
}

// Error is a Kind-tagged error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, vdkerrors.Kind(...)) style checks via a sentinel
// constructed with New(kind, "").
func (e *Error) Is(target error) bool {
	var o *Error
	if errors.As(target, &o) {
		return o.Kind == e.Kind
	}
	return false
}

// New builds an *Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind, wrapping err.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Retryable reports whether the error's kind is one the caller should retry
// (with backoff)
func Retryable(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return false
	}
	switch k {
	case TransportLost, Timeout:
		return true
	default:
		return false
	}
}
