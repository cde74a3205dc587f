package consensus

import "fmt"

type ErrorCode string

const (
	ErrReplay           ErrorCode = "REPLAY"
	ErrUnknownValidator ErrorCode = "UNKNOWN_VALIDATOR"
	ErrBadSignature     ErrorCode = "BAD_SIGNATURE"
	ErrDoubleVote       ErrorCode = "DOUBLE_VOTE"
	ErrNotEnoughVotes   ErrorCode = "NOT_ENOUGH_VOTES"
	ErrCodec            ErrorCode = "CODEC"
)

// TideError is the uniform error type returned by the finalizer and codec.
type TideError struct {
	Code ErrorCode
	Msg  string
}

func (e *TideError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func tideErr(code ErrorCode, msg string) error {
	return &TideError{Code: code, Msg: msg}
}

// Is allows errors.Is(err, &TideError{Code: ErrDoubleVote}) style matching on Code alone.
func (e *TideError) Is(target error) bool {
	t, ok := target.(*TideError)
	if !ok || t == nil {
		return false
	}
	return e.Code == t.Code
}
