package chat

import (
	"errors"
	"fmt"
)

// Kind classifies command failures.
type Kind int

const (
	// KindUser is invalid input from the caller. No state changed.
	KindUser Kind = iota + 1
	// KindPolicy is a refusal: rate limit, quota, block, no session or
	// missing moderator rights. No state changed except a quota rollover.
	KindPolicy
	// KindDelivery is a transport failure after the state change stood.
	KindDelivery
	// KindPersistence is a storage failure. The command failed as a whole.
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user_error"
	case KindPolicy:
		return "policy_denied"
	case KindDelivery:
		return "delivery_failure"
	case KindPersistence:
		return "persistence_error"
	default:
		return "unknown"
	}
}

// Error codes.
const (
	CodeInvalidTarget   = "invalid_target"
	CodeMissingTarget   = "missing_target"
	CodeInvalidMessage  = "invalid_message"
	CodeRateLimited     = "rate_limited"
	CodeQuotaExceeded   = "quota_exceeded"
	CodeBlocked         = "blocked"
	CodeNoActiveSession = "no_active_session"
	CodeNotModerator    = "not_moderator"
	CodeDeliveryFailed  = "delivery_failed"
	CodeStorage         = "storage"
)

// Error is returned by every Service command that did not succeed. Message
// is the text the caller was shown.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }

func userError(code, msg string) *Error {
	return &Error{Kind: KindUser, Code: code, Message: msg}
}

func denied(code, msg string) *Error {
	return &Error{Kind: KindPolicy, Code: code, Message: msg}
}

func deliveryFailed(msg string, cause error) *Error {
	return &Error{Kind: KindDelivery, Code: CodeDeliveryFailed, Message: msg, Cause: cause}
}

func persistence(cause error) *Error {
	return &Error{Kind: KindPersistence, Code: CodeStorage, Message: TextRetry, Cause: cause}
}

// KindOf returns the Kind of err, or 0 when err is nil or not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// CodeOf returns the code of err, or "" when err is not an *Error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// asError turns any error into an *Error. Bare errors come from storage.
func asError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return persistence(err)
}
