package verify

import (
	"context"
	"errors"
)

// CheckAvailability reports whether an identity key may proceed into the
// code-request step of the given flow. It backs the debounced
// duplicate-email check the client runs while the user is still typing.
//
// What "may proceed" means depends on the purpose: registration and email
// change want an address nobody holds yet, recovery wants one that is
// already registered.
//
// CheckAvailability may return an error when input validation, dependency calls, or security checks fail.
// CheckAvailability does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CheckAvailability(ctx context.Context, identityKey string, purpose Purpose) (bool, error) {
	if e == nil || e.lookup == nil {
		return false, ErrEngineNotReady
	}
	if purpose >= purposeCount {
		return false, ErrPurposeInvalid
	}

	identityKey = normalizeIdentityKey(identityKey)
	if !validIdentityKey(identityKey) {
		return false, ErrIdentityInvalid
	}

	e.metricInc(MetricAvailabilityCheck)

	exists, err := e.lookup.Exists(ctx, identityKey)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		e.emitAudit(ctx, auditEventAvailabilityCheck, false, identityKey, purpose, ErrLookupUnavailable, nil)
		return false, ErrLookupUnavailable
	}

	ok := !exists
	if purpose == PurposeRecovery {
		ok = exists
	}

	e.emitAudit(ctx, auditEventAvailabilityCheck, true, identityKey, purpose, nil, func() map[string]string {
		if exists {
			return map[string]string{"exists": "true"}
		}
		return map[string]string{"exists": "false"}
	})

	return ok, nil
}
