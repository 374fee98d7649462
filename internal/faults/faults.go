// internal/faults/faults.go
package faults

import (
	"errors"
	"fmt"
)

// Kind is a string type used for structured error classification across the
// acquisition, publishing, and monitoring stages. Using a custom type ensures
// that only the predefined constants can be used where a Kind is expected.
type Kind string

const (
	// InteractionTimeout means a bounded wait for a page element or state elapsed.
	InteractionTimeout Kind = "INTERACTION_TIMEOUT"
	// UnexpectedInteraction is any other failure during the login sequence.
	UnexpectedInteraction Kind = "UNEXPECTED_INTERACTION"
	// IO covers configuration-store read and write failures.
	IO Kind = "IO_ERROR"
	// Process means the dependent-service restart command failed.
	Process Kind = "PROCESS_ERROR"
	// Network covers health probe and acquisition transport failures.
	Network Kind = "NETWORK_ERROR"
	// Configuration is a missing or invalid startup input. Fatal at startup.
	Configuration Kind = "CONFIGURATION_ERROR"

	// Unknown is reported by KindOf for errors that carry no classification.
	Unknown Kind = "UNKNOWN"
)

// Error attaches a Kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New wraps err with a kind and operation name. A nil err yields an error
// whose message is just the operation.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf is a convenience for New(kind, op, fmt.Errorf(format, args...)).
func Newf(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Kind == kind {
			return true
		}
		err = fe.Err
	}
	return false
}
