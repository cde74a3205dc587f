package keystore

import "fmt"

type ErrorCode string

const (
	ErrIo                ErrorCode = "IO"
	ErrInvalidKey        ErrorCode = "INVALID_KEY"
	ErrMissingPassphrase ErrorCode = "MISSING_PASSPHRASE"
	ErrCrypto            ErrorCode = "CRYPTO"
	ErrRateLimited       ErrorCode = "RATE_LIMITED"
	ErrBadSignature      ErrorCode = "BAD_SIGNATURE"
)

type KeystoreError struct {
	Code ErrorCode
	Msg  string
}

func (e *KeystoreError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func keystoreErr(code ErrorCode, msg string) error {
	return &KeystoreError{Code: code, Msg: msg}
}
