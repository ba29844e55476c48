// internal/fault/fault.go
package fault

// Error taxonomy shared by the dongle driver.

import (
	"errors"
	"fmt"
)

// Kinds. Match with errors.Is.
var (
	// ErrTransient is a serial/Modbus I/O failure or timeout. Always retryable.
	ErrTransient = errors.New("transient transport failure")

	// ErrNoData means a poll found zero length or all-zero registers.
	ErrNoData = errors.New("no data yet")

	// ErrFraming means an AT response could not be decoded.
	ErrFraming = errors.New("response framing error")

	// ErrNotAuthenticated means the device password has not been accepted.
	ErrNotAuthenticated = errors.New("session not authenticated")

	// ErrDelivery means an uplink exchange ended without a completion signal.
	ErrDelivery = errors.New("uplink delivery failed")

	// ErrPersistence is a queue/log file lock or I/O error.
	ErrPersistence = errors.New("persistence failure")
)

// Error attaches an operation and an underlying cause to one of the kinds.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap builds an *Error of the given kind. A nil kind returns err unchanged.
func Wrap(kind error, op string, err error) error {
	if kind == nil {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Transient wraps err as ErrTransient.
func Transient(op string, err error) error {
	return Wrap(ErrTransient, op, err)
}

// Framing wraps err as ErrFraming.
func Framing(op string, err error) error {
	return Wrap(ErrFraming, op, err)
}

// Persistence wraps err as ErrPersistence.
func Persistence(op string, err error) error {
	return Wrap(ErrPersistence, op, err)
}

// Retryable reports whether err is a kind a polling loop should simply retry.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrNoData)
}
