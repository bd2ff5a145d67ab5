package verify

import (
	"errors"
	"time"
)

var (
	// ErrEngineNotReady is an exported constant or variable used by the verification engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrIdentityInvalid is an exported constant or variable used by the verification engine.
	ErrIdentityInvalid = errors.New("identity is not a valid email address")
	// ErrCodeInvalid is the single caller-facing failure for a bad confirm.
	// Missing, expired, consumed, purpose-mismatched, and wrong-code
	// challenges all collapse into it so the caller gets no oracle.
	ErrCodeInvalid = errors.New("verification code invalid or expired")
	// ErrIssueRateLimited is an exported constant or variable used by the verification engine.
	ErrIssueRateLimited = errors.New("code issuance rate limited")
	// ErrConfirmRateLimited is an exported constant or variable used by the verification engine.
	ErrConfirmRateLimited = errors.New("code confirmation rate limited")
	// ErrDeliveryFailed is an exported constant or variable used by the verification engine.
	ErrDeliveryFailed = errors.New("code delivery failed")
	// ErrVerifyUnavailable is an exported constant or variable used by the verification engine.
	ErrVerifyUnavailable = errors.New("verification backend unavailable")
	// ErrLookupUnavailable is an exported constant or variable used by the verification engine.
	ErrLookupUnavailable = errors.New("identity lookup unavailable")
	// ErrPurposeInvalid is an exported constant or variable used by the verification engine.
	ErrPurposeInvalid = errors.New("unknown verification purpose")
	// ErrAlreadyCompleted is an exported constant or variable used by the verification engine.
	ErrAlreadyCompleted = errors.New("verification already completed for this operation")
)

// RateLimitError wraps [ErrIssueRateLimited] with the remaining lockout
// time so callers can surface a countdown. Match it with errors.As, or with
// errors.Is against ErrIssueRateLimited when the duration is not needed.
type RateLimitError struct {
	RetryAfter time.Duration
}

// Error describes the error operation and its observable behavior.
func (e *RateLimitError) Error() string {
	return ErrIssueRateLimited.Error()
}

// Unwrap describes the unwrap operation and its observable behavior.
func (e *RateLimitError) Unwrap() error {
	return ErrIssueRateLimited
}

// RetryAfterSeconds returns the remaining wait rounded up to whole seconds,
// never less than 1 while the lockout holds.
func (e *RateLimitError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
