package lmkv

import (
	"errors"
	"fmt"

	"github.com/Giulio2002/lmkv/engine"
)

var (
	// ErrInvalidState is returned by every operation on a handle that has
	// been closed, committed, aborted or dropped, or whose owner has.
	// Such calls never reach the storage engine.
	ErrInvalidState = errors.New("lmkv: handle is no longer valid")

	// ErrAlreadyOpen is returned by Open when the path is already open in
	// this process. Engines do not support opening one store twice.
	ErrAlreadyOpen = errors.New("lmkv: environment already open in this process")

	// ErrUnknownEngine is returned by Open when no engine is registered under
	// the configured name.
	ErrUnknownEngine = errors.New("lmkv: unknown engine")

	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("lmkv: invalid config")

	// ErrForeignHandle is returned when a handle from another environment is
	// passed to a transaction.
	ErrForeignHandle = errors.New("lmkv: handle belongs to another environment")
)

// Error is an engine failure. It carries the operation that was attempted,
// the engine status code and, for resource exhaustion, a remediation hint.
type Error struct {
	Op   string
	Code engine.Status
	Err  error // engine error
}

var hints = map[engine.Status]string{
	engine.MapFull:     "raise Config.MapSize",
	engine.DBsFull:     "raise Config.MaxDBs",
	engine.ReadersFull: "raise Config.MaxReaders",
	engine.TxnFull:     "do less work within the transaction",
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("lmkv: %s: %s", e.Op, e.Reason())
	if h := e.Hint(); h != "" {
		msg += " (" + h + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Reason is the engine's description of the failure.
func (e *Error) Reason() string {
	if e.Code != engine.Problem || e.Err == nil {
		return e.Code.Error()
	}
	return e.Err.Error()
}

// Hint suggests a remedy for resource exhaustion codes, or returns "".
func (e *Error) Hint() string {
	return hints[e.Code]
}

// wrap turns an engine error into an *Error. Handle-state errors pass
// through untouched.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInvalidState) {
		return err
	}
	return &Error{Op: op, Code: engine.StatusOf(err), Err: err}
}

// Code returns the engine status carried by err, engine.Success for nil
// and engine.Problem for errors that carry none.
func Code(err error) engine.Status {
	if err == nil {
		return engine.Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return engine.StatusOf(err)
}

// IsInvalidState reports whether err is ErrInvalidState.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsNotFound reports whether err carries engine.NotFound.
func IsNotFound(err error) bool {
	return err != nil && Code(err) == engine.NotFound
}

// IsMapFull reports whether err carries engine.MapFull.
func IsMapFull(err error) bool {
	return err != nil && Code(err) == engine.MapFull
}

// IsDBsFull reports whether err carries engine.DBsFull.
func IsDBsFull(err error) bool {
	return err != nil && Code(err) == engine.DBsFull
}

// IsReadersFull reports whether err carries engine.ReadersFull.
func IsReadersFull(err error) bool {
	return err != nil && Code(err) == engine.ReadersFull
}

// IsTxnFull reports whether err carries engine.TxnFull.
func IsTxnFull(err error) bool {
	return err != nil && Code(err) == engine.TxnFull
}
