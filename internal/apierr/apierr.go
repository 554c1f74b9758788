// Package apierr implements the error taxonomy shared by the
// server-side executor and the client-side runtime, following the
// teacher's struct-plus-Is-helper pattern (see types.LeaseBusyError
// and types.IsLeaseBusy in the teacher's internal/types package).
package apierr

import "github.com/pkg/errors"

// Kind enumerates the error categories a caller needs to branch on.
type Kind int

const (
	// KindUnknownSession means the session referenced by a request is
	// not in the registry, or was just expired.
	KindUnknownSession Kind = iota
	// KindNoLeader means the cluster view known to the caller has no
	// leader.
	KindNoLeader
	// KindTimeout means an RPC deadline elapsed.
	KindTimeout
	// KindTransport means a connection-level failure occurred.
	KindTransport
	// KindProtocolViolation means a malformed or unrecognized entry or
	// message was encountered.
	KindProtocolViolation
	// KindUserError means the user state machine raised an error while
	// applying a command or query.
	KindUserError
)

func (k Kind) String() string {
	switch k {
	case KindUnknownSession:
		return "UnknownSession"
	case KindNoLeader:
		return "NoLeader"
	case KindTimeout:
		return "Timeout"
	case KindTransport:
		return "Transport"
	case KindProtocolViolation:
		return "ProtocolViolation"
	case KindUserError:
		return "UserError"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned across the session/command
// boundary. It wraps an optional cause so callers can still unwrap to
// the original error with errors.As / errors.Is.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Cause.Error()
}

// Unwrap lets errors.Is / errors.As see through to Cause.
func (e *Error) Unwrap() error { return e.Cause }

// UnknownSession builds a KindUnknownSession error.
func UnknownSession() *Error { return &Error{Kind: KindUnknownSession} }

// NoLeader builds a KindNoLeader error.
func NoLeader() *Error { return &Error{Kind: KindNoLeader} }

// Timeout wraps cause as a KindTimeout error.
func Timeout(cause error) *Error { return &Error{Kind: KindTimeout, Cause: errors.WithStack(cause)} }

// Transport wraps cause as a KindTransport error.
func Transport(cause error) *Error {
	return &Error{Kind: KindTransport, Cause: errors.WithStack(cause)}
}

// ProtocolViolation builds a KindProtocolViolation error from a message.
func ProtocolViolation(msg string) *Error {
	return &Error{Kind: KindProtocolViolation, Cause: errors.New(msg)}
}

// UserErrorOf wraps a state-machine-raised error as KindUserError.
func UserErrorOf(cause error) *Error {
	return &Error{Kind: KindUserError, Cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind carried by err, for metrics labeling. An
// err that isn't an *Error reports KindUserError, the closest fit for
// an error this package didn't originate.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUserError
}
