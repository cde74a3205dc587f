package state

import "fmt"

type ErrorCode string

const (
	ErrDbOpen    ErrorCode = "DB_OPEN"
	ErrDbIo      ErrorCode = "DB_IO"
	ErrTxConflict ErrorCode = "TX_CONFLICT"
)

// StateError is the uniform error type for the persistent state store.
type StateError struct {
	Code ErrorCode
	Msg  string
}

func (e *StateError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func stateErr(code ErrorCode, msg string) error {
	return &StateError{Code: code, Msg: msg}
}
