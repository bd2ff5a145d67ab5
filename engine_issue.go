package verify

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"github.com/campuslink/verify/internal"
	"github.com/campuslink/verify/internal/limiters"
	"github.com/campuslink/verify/internal/stores"
	"github.com/google/uuid"
)

// Issue generates a fresh code for an identity key, stores it (superseding
// any outstanding challenge for that key even if unexpired), and hands the
// raw code to the Mailer. The returned descriptor never carries the code.
//
// Issue may return an error when input validation, dependency calls, or security checks fail.
// Issue does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Issue(ctx context.Context, identityKey string, purpose Purpose) (*Challenge, error) {
	if e == nil || e.challengeStore == nil || e.issueLimiter == nil || e.mailer == nil {
		return nil, ErrEngineNotReady
	}
	if purpose >= purposeCount {
		e.emitAudit(ctx, auditEventIssueRequest, false, identityKey, purpose, ErrPurposeInvalid, nil)
		return nil, ErrPurposeInvalid
	}

	identityKey = normalizeIdentityKey(identityKey)
	if !validIdentityKey(identityKey) {
		e.emitAudit(ctx, auditEventIssueRequest, false, identityKey, purpose, ErrIdentityInvalid, func() map[string]string {
			return map[string]string{
				"reason": "malformed_email",
			}
		})
		return nil, ErrIdentityInvalid
	}

	e.metricInc(MetricIssueRequest)

	remaining, err := e.issueLimiter.CheckAllowed(ctx, identityKey)
	if err != nil {
		if errors.Is(err, limiters.ErrIssueLockedOut) {
			e.metricInc(MetricIssueLockedOut)
			e.emitAudit(ctx, auditEventIssueLockedOut, false, identityKey, purpose, ErrIssueRateLimited, func() map[string]string {
				return map[string]string{
					"retry_after": remaining.String(),
				}
			})
			e.emitRateLimit(ctx, "issue", identityKey, purpose, nil)
			return nil, &RateLimitError{RetryAfter: remaining}
		}
		e.emitAudit(ctx, auditEventIssueRequest, false, identityKey, purpose, ErrVerifyUnavailable, nil)
		return nil, ErrVerifyUnavailable
	}

	code, err := internal.NewCode(e.config.Challenge.CodeDigits)
	if err != nil {
		e.emitAudit(ctx, auditEventIssueRequest, false, identityKey, purpose, ErrVerifyUnavailable, func() map[string]string {
			return map[string]string{
				"reason": "code_generation_failed",
			}
		})
		return nil, ErrVerifyUnavailable
	}

	now := time.Now()
	challenge := &Challenge{
		ChallengeID: uuid.NewString(),
		IdentityKey: identityKey,
		Purpose:     purpose,
		IssuedAt:    now,
		ExpiresAt:   now.Add(e.config.Challenge.TTL),
	}

	record := &stores.ChallengeRecord{
		ChallengeID: challenge.ChallengeID,
		CodeHash:    internal.HashCode(code),
		IssuedAt:    challenge.IssuedAt.Unix(),
		ExpiresAt:   challenge.ExpiresAt.Unix(),
		Attempts:    0,
		Purpose:     int(purpose),
	}

	superseded, err := e.challengeStore.Save(ctx, identityKey, record, e.config.Challenge.TTL)
	if err != nil {
		e.emitAudit(ctx, auditEventIssueRequest, false, identityKey, purpose, ErrVerifyUnavailable, nil)
		return nil, ErrVerifyUnavailable
	}
	if superseded {
		e.metricInc(MetricIssueSuperseded)
	}

	if err := e.mailer.Send(ctx, identityKey, code, purpose); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		e.metricInc(MetricIssueDeliveryFailure)
		locked, limErr := e.issueLimiter.RecordFailure(ctx, identityKey)
		if limErr != nil {
			e.emitAudit(ctx, auditEventIssueRequest, false, identityKey, purpose, ErrVerifyUnavailable, nil)
			return nil, ErrVerifyUnavailable
		}
		e.emitAudit(ctx, auditEventIssueRequest, false, identityKey, purpose, ErrDeliveryFailed, func() map[string]string {
			m := map[string]string{
				"challenge_id": challenge.ChallengeID,
			}
			if locked {
				m["lockout_armed"] = "true"
			}
			return m
		})
		return nil, ErrDeliveryFailed
	}

	if err := e.issueLimiter.RecordSuccess(ctx, identityKey); err != nil {
		// Delivery went out; a stale failure counter is the lesser harm.
		e.emitAudit(ctx, auditEventIssueDelivered, true, identityKey, purpose, nil, func() map[string]string {
			return map[string]string{
				"challenge_id":        challenge.ChallengeID,
				"limiter_reset_error": "true",
			}
		})
		e.metricInc(MetricIssueDelivered)
		return challenge, nil
	}

	e.metricInc(MetricIssueDelivered)
	e.emitAudit(ctx, auditEventIssueDelivered, true, identityKey, purpose, nil, func() map[string]string {
		return map[string]string{
			"challenge_id": challenge.ChallengeID,
		}
	})
	return challenge, nil
}

// Cancel invalidates any outstanding challenge for an identity key. It is
// not required for correctness (expiry and re-issue both supersede) but
// lets a caller drop a pending code when the user abandons a flow.
func (e *Engine) Cancel(ctx context.Context, identityKey string) error {
	if e == nil || e.challengeStore == nil {
		return ErrEngineNotReady
	}
	identityKey = normalizeIdentityKey(identityKey)
	if identityKey == "" {
		return ErrIdentityInvalid
	}
	if err := e.challengeStore.Delete(ctx, identityKey); err != nil {
		return ErrVerifyUnavailable
	}
	return nil
}

// ActiveChallenge returns the descriptor of the outstanding challenge for
// an identity key, without the code and without consuming anything. It is
// an introspection aid; Confirm is the only binding check.
func (e *Engine) ActiveChallenge(ctx context.Context, identityKey string) (*Challenge, error) {
	if e == nil || e.challengeStore == nil {
		return nil, ErrEngineNotReady
	}
	identityKey = normalizeIdentityKey(identityKey)

	record, err := e.challengeStore.Get(ctx, identityKey)
	if err != nil {
		if errors.Is(err, stores.ErrChallengeNotFound) {
			return nil, ErrCodeInvalid
		}
		return nil, ErrVerifyUnavailable
	}

	return &Challenge{
		ChallengeID: record.ChallengeID,
		IdentityKey: identityKey,
		Purpose:     Purpose(record.Purpose),
		IssuedAt:    time.Unix(record.IssuedAt, 0),
		ExpiresAt:   time.Unix(record.ExpiresAt, 0),
	}, nil
}

func validIdentityKey(identityKey string) bool {
	if identityKey == "" {
		return false
	}
	addr, err := mail.ParseAddress(identityKey)
	if err != nil {
		return false
	}
	// Reject display-name forms: the identity key must be the bare address.
	return addr.Address == identityKey
}
