package verify

import (
	"context"
	"errors"

	"github.com/campuslink/verify/internal"
	"github.com/campuslink/verify/internal/limiters"
	"github.com/campuslink/verify/internal/stores"
)

// Confirm checks a submitted code against the outstanding challenge for an
// identity key. On the first exact match before expiry the challenge is
// consumed and Confirm returns nil: the caller is then authorized to perform
// exactly one downstream mutation for this purpose.
//
// Every failure mode on the challenge itself (no outstanding challenge,
// expired, already consumed, purpose mismatch, wrong code) returns
// [ErrCodeInvalid] without distinction, so a caller (or attacker) learns
// nothing about why. Throttle trips return [ErrConfirmRateLimited].
//
// Confirm may return an error when input validation, dependency calls, or security checks fail.
// Confirm does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Confirm(ctx context.Context, identityKey string, purpose Purpose, code string) error {
	if e == nil || e.challengeStore == nil || e.confirmLimiter == nil {
		return ErrEngineNotReady
	}
	if purpose >= purposeCount {
		e.metricInc(MetricConfirmFailure)
		e.emitAudit(ctx, auditEventConfirmFailure, false, identityKey, purpose, ErrPurposeInvalid, nil)
		return ErrPurposeInvalid
	}

	identityKey = normalizeIdentityKey(identityKey)
	if identityKey == "" || !validCodeFormat(code, e.config.Challenge.CodeDigits) {
		e.metricInc(MetricConfirmFailure)
		e.emitAudit(ctx, auditEventConfirmFailure, false, identityKey, purpose, ErrCodeInvalid, func() map[string]string {
			return map[string]string{
				"reason": "malformed_input",
			}
		})
		return ErrCodeInvalid
	}

	if err := e.confirmLimiter.Check(ctx, identityKey, clientIPFromContext(ctx)); err != nil {
		e.metricInc(MetricConfirmFailure)
		if errors.Is(err, limiters.ErrConfirmRateLimited) {
			e.emitAudit(ctx, auditEventConfirmFailure, false, identityKey, purpose, ErrConfirmRateLimited, nil)
			e.emitRateLimit(ctx, "confirm", identityKey, purpose, nil)
			return ErrConfirmRateLimited
		}
		e.emitAudit(ctx, auditEventConfirmFailure, false, identityKey, purpose, ErrVerifyUnavailable, nil)
		return ErrVerifyUnavailable
	}

	record, err := e.challengeStore.Consume(
		ctx,
		identityKey,
		internal.HashCode(code),
		int(purpose),
		e.config.Confirm.MaxAttempts,
	)
	if err != nil {
		mapped := mapChallengeStoreError(err)
		e.metricInc(MetricConfirmFailure)
		if errors.Is(err, stores.ErrChallengeAttemptsExceeded) {
			e.metricInc(MetricConfirmAttemptsExceeded)
		}
		e.emitAudit(ctx, auditEventConfirmFailure, false, identityKey, purpose, mapped, nil)
		return mapped
	}

	e.metricInc(MetricConfirmSuccess)
	e.emitAudit(ctx, auditEventConfirmSuccess, true, identityKey, purpose, nil, func() map[string]string {
		return map[string]string{
			"challenge_id": record.ChallengeID,
		}
	})
	return nil
}

// mapChallengeStoreError collapses every challenge-level failure into the
// single generic invalid result. Only backend unavailability stays distinct.
func mapChallengeStoreError(err error) error {
	switch {
	case errors.Is(err, stores.ErrChallengeNotFound),
		errors.Is(err, stores.ErrChallengeCodeMismatch),
		errors.Is(err, stores.ErrChallengePurposeMismatch),
		errors.Is(err, stores.ErrChallengeAttemptsExceeded):
		return ErrCodeInvalid
	default:
		return ErrVerifyUnavailable
	}
}

func validCodeFormat(code string, digits int) bool {
	if len(code) != digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
