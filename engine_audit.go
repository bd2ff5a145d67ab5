package verify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	auditEventIssueRequest       = "verification_issue_request"
	auditEventIssueDelivered     = "verification_issue_delivered"
	auditEventIssueLockedOut     = "verification_issue_locked_out"
	auditEventConfirmSuccess     = "verification_confirm_success"
	auditEventConfirmFailure     = "verification_confirm_failure"
	auditEventAvailabilityCheck  = "verification_availability_check"
	auditEventRateLimitTriggered = "rate_limit_triggered"
)

// AuditErrorCode defines a public type used by verify APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrIdentityInvalid  AuditErrorCode = "identity_invalid"
	auditErrCodeInvalid      AuditErrorCode = "code_invalid"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrDeliveryFailed   AuditErrorCode = "delivery_failed"
	auditErrPurposeInvalid   AuditErrorCode = "purpose_invalid"
	auditErrUnavailable      AuditErrorCode = "backend_unavailable"
	auditErrAlreadyCompleted AuditErrorCode = "already_completed"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identityKey string,
	purpose Purpose,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		EventID:     uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		IdentityKey: identityKey,
		Purpose:     purpose.String(),
		IP:          clientIPFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope string,
	identityKey string,
	purpose Purpose,
	metadataBuilder func() map[string]string,
) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, identityKey, purpose, nil, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrIdentityInvalid):
		return auditErrIdentityInvalid
	case errors.Is(err, ErrCodeInvalid):
		return auditErrCodeInvalid
	case errors.Is(err, ErrIssueRateLimited),
		errors.Is(err, ErrConfirmRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrPurposeInvalid):
		return auditErrPurposeInvalid
	case errors.Is(err, ErrAlreadyCompleted):
		return auditErrAlreadyCompleted
	case errors.Is(err, ErrVerifyUnavailable),
		errors.Is(err, ErrLookupUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
