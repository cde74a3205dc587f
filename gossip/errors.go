package gossip

import "fmt"

type ErrorCode string

const (
	ErrIo          ErrorCode = "IO"
	ErrOversize    ErrorCode = "OVERSIZE"
	ErrDecode      ErrorCode = "DECODE"
	ErrDisallowed  ErrorCode = "DISALLOWED"
	ErrBanned      ErrorCode = "BANNED"
	ErrRateLimited ErrorCode = "RATE_LIMITED"
	ErrReplayed    ErrorCode = "REPLAYED"
	ErrBadSignature ErrorCode = "BAD_SIGNATURE"
)

// TransportError is the uniform error type for the gossip transport.
type TransportError struct {
	Code ErrorCode
	Msg  string
}

func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func transportErr(code ErrorCode, msg string) error {
	return &TransportError{Code: code, Msg: msg}
}
