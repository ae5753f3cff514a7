package streamrt

import "errors"

// ErrorKind is a closed taxonomy of failure kinds returned by every public
// operation of this package. No operation unwinds via panic for an
// expected failure; ErrorKind values are returned instead.
type ErrorKind int

const (
	// Success is never returned as an error (nil is), but is defined so
	// ErrorKind has a documented zero-adjacent "no failure" member.
	Success ErrorKind = iota
	// ErrUninitialized is returned when an operation is attempted against
	// a Runtime that was never initialized (its zero value).
	ErrUninitialized
	// ErrInvalidXStream covers a wrong-thread call, a call that targets the
	// PRIMARY xstream where that is forbidden, or an xstream that
	// targets itself where that is forbidden (e.g. Join on the caller's
	// own xstream).
	ErrInvalidXStream
	// ErrInvalidUnit is returned for operations against a nil or
	// already-terminated unit where that is not a valid target.
	ErrInvalidUnit
	// ErrInvalidPool is returned for operations against a nil pool, or a
	// pool that fails its consumer-binding contract.
	ErrInvalidPool
	// ErrInvalidScheduler is returned for operations against a nil
	// scheduler, or one bound to the wrong xstream.
	ErrInvalidScheduler
	// ErrXStreamState is returned when an operation is not valid for the
	// xstream's current state (e.g. Start on a non-CREATED xstream).
	ErrXStreamState
	// ErrMem is returned when a resource (stack, context) could not be
	// allocated.
	ErrMem
	// ErrConsumerConflict is returned when a pool already has a different
	// consumer xstream bound, and a second xstream attempts to bind.
	ErrConsumerConflict
)

// Error implements the error interface, pairing a closed ErrorKind with a
// human-readable message and (if the failure applies to a specific
// operation) that operation's name.
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	s := "streamrt: "
	if e.Op != "" {
		s += e.Op + ": "
	}
	s += e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

// String renders the ErrorKind's name.
func (k ErrorKind) String() string {
	switch k {
	case Success:
		return "success"
	case ErrUninitialized:
		return "uninitialized"
	case ErrInvalidXStream:
		return "invalid xstream"
	case ErrInvalidUnit:
		return "invalid unit"
	case ErrInvalidPool:
		return "invalid pool"
	case ErrInvalidScheduler:
		return "invalid scheduler"
	case ErrXStreamState:
		return "invalid xstream state"
	case ErrMem:
		return "allocation failure"
	case ErrConsumerConflict:
		return "consumer conflict"
	default:
		return "unknown"
	}
}

func newError(kind ErrorKind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// KindOf unwraps err (if it is, or wraps, an *Error) to its ErrorKind, or
// Success if err is nil, or an unrecognized error kind otherwise not
// produced by this package.
func KindOf(err error) ErrorKind {
	if err == nil {
		return Success
	}
	var e *Error
	if !errors.As(err, &e) {
		return ErrorKind(-1)
	}
	return e.Kind
}
