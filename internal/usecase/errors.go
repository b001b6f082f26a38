package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrorSessionExpired      ErrorCode = "SESSION_EXPIRED"
	ErrorUpstream            ErrorCode = "UPSTREAM_ERROR"
	ErrorApprovalBlocked     ErrorCode = "APPROVAL_BLOCKED"
	ErrorImpersonationFailed ErrorCode = "IMPERSONATION_FAILED"
	ErrorNoDocuments         ErrorCode = "NO_DOCUMENTS"
	ErrorInvalidState        ErrorCode = "INVALID_STATE"
	ErrorReadOnly            ErrorCode = "READ_ONLY"
	ErrorStale               ErrorCode = "STALE"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code of a usecase error, or "" for any other error.
func CodeOf(err error) ErrorCode {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ""
}
