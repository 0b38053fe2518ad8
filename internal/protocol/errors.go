package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCommand    = errors.New("protocol: invalid command")
	ErrUnexpectedCommand = errors.New("protocol: unexpected command")
	ErrTruncated         = errors.New("protocol: truncated data")
	ErrPingFailure       = errors.New("protocol: ping failure")
	ErrDeclined          = errors.New("protocol: session declined")
	ErrConnectTimeout    = errors.New("protocol: connect timeout")
)

// InvalidCommandError reports a tag byte that maps to no Command.
type InvalidCommandError struct {
	Code byte
}

func (e *InvalidCommandError) Error() string {
	return fmt.Sprintf("protocol: invalid command %d", e.Code)
}

func (e *InvalidCommandError) Is(target error) bool {
	return target == ErrInvalidCommand
}

// UnexpectedCommandError reports a valid Command arriving where the state
// machine does not accept it. Want is zero when any of several commands was allowed.
type UnexpectedCommandError struct {
	Got  Command
	Want Command
}

func (e *UnexpectedCommandError) Error() string {
	if e.Want == 0 {
		return fmt.Sprintf("protocol: unexpected command %s", e.Got)
	}
	return fmt.Sprintf("protocol: unexpected command %s, want %s", e.Got, e.Want)
}

func (e *UnexpectedCommandError) Is(target error) bool {
	return target == ErrUnexpectedCommand
}

// DeclineError is the negotiated refusal of a session by the server.
type DeclineError struct {
	Reason DeclineReason
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("protocol: session declined: %s", e.Reason)
}

func (e *DeclineError) Is(target error) bool {
	return target == ErrDeclined
}

// ErrorKind is the closed set of failure classes.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	// KindProtocol covers invalid or unexpected tags and malformed fields.
	KindProtocol
	// KindConnection covers connect, bind and mid-session I/O failures.
	KindConnection
	// KindCapacity is a server decline; not a crash.
	KindCapacity
	KindConnectTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindConnection:
		return "connection"
	case KindCapacity:
		return "capacity"
	case KindConnectTimeout:
		return "connect_timeout"
	default:
		return "unknown"
	}
}

// Error tags an underlying failure with its kind and the operation that hit it.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ProtocolError tags a malformed or out-of-order message.
func ProtocolError(op string, err error) error {
	return &Error{Kind: KindProtocol, Op: op, Err: err}
}

// ConnectionError tags a connect, bind or mid-session I/O failure.
func ConnectionError(op string, err error) error {
	return &Error{Kind: KindConnection, Op: op, Err: err}
}

// CapacityError carries the reason a server declined the session.
func CapacityError(op string, reason DeclineReason) error {
	return &Error{Kind: KindCapacity, Op: op, Err: &DeclineError{Reason: reason}}
}

// ConnectTimeoutError tags a connect attempt that ran out of time.
func ConnectTimeoutError(op string, err error) error {
	return &Error{Kind: KindConnectTimeout, Op: op, Err: fmt.Errorf("%w: %w", ErrConnectTimeout, err)}
}

// KindOf returns the outermost kind attached to err. Untagged protocol
// sentinels still classify as KindProtocol.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	switch {
	case errors.Is(err, ErrDeclined):
		return KindCapacity
	case errors.Is(err, ErrConnectTimeout):
		return KindConnectTimeout
	case errors.Is(err, ErrInvalidCommand),
		errors.Is(err, ErrUnexpectedCommand),
		errors.Is(err, ErrTruncated),
		errors.Is(err, ErrPingFailure):
		return KindProtocol
	default:
		return KindConnection
	}
}

// DeclineReasonOf extracts the decline reason carried by err, if any.
func DeclineReasonOf(err error) (DeclineReason, bool) {
	var decline *DeclineError
	if errors.As(err, &decline) {
		return decline.Reason, true
	}
	return DeclineReason{}, false
}
