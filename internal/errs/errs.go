// Package errs defines the single error taxonomy shared by the importer's
// transport, framing, classification and reconciliation layers.
package errs

import (
	"errors"
	"fmt"
	"net"
	"os"
)

// Kind classifies an error for handling purposes.
type Kind int

const (
	// KindUnknown is reported for errors that carry no classification.
	KindUnknown Kind = iota
	// KindTransport covers socket connect, read, write and timeout failures.
	KindTransport
	// KindProtocol covers handshake mismatches, malformed frames and
	// unparseable structured payloads.
	KindProtocol
	// KindConflict is raised when two records for the same id disagree on a
	// field that must be stable.
	KindConflict
	// KindExhausted is raised when a segment is requested after the stream
	// end was already reported.
	KindExhausted
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindConflict:
		return "conflict"
	case KindExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Sentinel errors. Match them with errors.Is.
var (
	ErrExhausted         = errors.New("stream has no more data")
	ErrEmptySeparator    = errors.New("separator must not be empty")
	ErrHandshakeRejected = errors.New("server rejected version check")
	ErrMalformedPayload  = errors.New("malformed structured payload")
	ErrSessionClosed     = errors.New("session is closed")
	ErrInvalidState      = errors.New("invalid session state")
)

// Error wraps an underlying cause with its classification and the step that
// failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Transport wraps err as a transport failure of op.
func Transport(op string, err error) error {
	return New(KindTransport, op, err)
}

// Protocol wraps err as a protocol violation detected in op.
func Protocol(op string, err error) error {
	return New(KindProtocol, op, err)
}

// Protocolf builds a protocol violation with a formatted cause.
func Protocolf(op, format string, args ...any) error {
	return New(KindProtocol, op, fmt.Errorf(format, args...))
}

// KindOf returns the classification of the outermost classified error in the
// chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var c interface{ ErrorKind() Kind }
	if errors.As(err, &c) {
		return c.ErrorKind()
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsTimeout reports whether err was caused by an expired read or write
// deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
