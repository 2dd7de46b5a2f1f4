// Package mailerr classifies the failures surfaced by the sync engine.
package mailerr

import (
	"errors"
	"fmt"
)

// Kind is the class of a failure.
type Kind int

const (
	// Unknown is the zero value; unclassified errors report it.
	Unknown Kind = iota
	// Config indicates a missing or invalid request field. Nothing was attempted.
	Config
	// Connection covers DNS, dial, TLS negotiation and timeout failures.
	Connection
	// Auth indicates the server rejected the credentials.
	Auth
	// Send indicates the submission server rejected the message.
	Send
	// Persistence indicates a local storage failure.
	Persistence
)

var kindNames = map[Kind]string{
	Unknown:     "unknown",
	Config:      "config",
	Connection:  "connection",
	Auth:        "auth",
	Send:        "send",
	Persistence: "persistence",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Cause is the short, human readable failure text for external callers. Persistence failures are
// reduced to a fixed message so file paths never leave the process.
func (e *Error) Cause() string {
	switch e.Kind {
	case Persistence:
		return "local storage failure"
	case Auth:
		return "authentication failed: " + e.Err.Error()
	}
	return e.Err.Error()
}

// New wraps err with kind and op. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Configf returns a Config error with a formatted message.
func Configf(op, format string, args ...any) error {
	return &Error{Kind: Config, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Cause returns the external failure text for any error.
func Cause(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Cause()
	}
	return "internal error"
}
