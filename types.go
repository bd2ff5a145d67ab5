package verify

import (
	"context"
	"time"
)

// Purpose identifies which portal flow a challenge belongs to. A challenge
// issued for one purpose cannot confirm another: the purpose byte is stored
// in the challenge record and must match on Confirm.
type Purpose uint8

const (
	// PurposeRegistration is an exported constant or variable used by the verification engine.
	PurposeRegistration Purpose = iota
	// PurposeRecovery is an exported constant or variable used by the verification engine.
	PurposeRecovery
	// PurposeEmailChange is an exported constant or variable used by the verification engine.
	PurposeEmailChange

	purposeCount
)

// String returns the wire name of the purpose.
func (p Purpose) String() string {
	switch p {
	case PurposeRegistration:
		return "registration"
	case PurposeRecovery:
		return "recovery"
	case PurposeEmailChange:
		return "email_change"
	default:
		return "unknown"
	}
}

// ParsePurpose maps a wire name back to a [Purpose].
func ParsePurpose(s string) (Purpose, error) {
	switch s {
	case "registration":
		return PurposeRegistration, nil
	case "recovery":
		return PurposeRecovery, nil
	case "email_change":
		return PurposeEmailChange, nil
	default:
		return 0, ErrPurposeInvalid
	}
}

// Challenge is the descriptor returned by [Engine.Issue]. It never carries
// the raw code; that goes only to the [Mailer].
type Challenge struct {
	ChallengeID string
	IdentityKey string
	Purpose     Purpose
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Mailer delivers a freshly issued code to the identity being verified.
// A non-nil error is treated as a delivery failure: it counts toward the
// issuance lockout and is surfaced to the caller as retryable.
type Mailer interface {
	Send(ctx context.Context, identityKey, code string, purpose Purpose) error
}

// IdentityLookup answers the debounced duplicate-email availability check.
type IdentityLookup interface {
	Exists(ctx context.Context, identityKey string) (bool, error)
}

// MailerFunc adapts a function to the [Mailer] interface.
type MailerFunc func(ctx context.Context, identityKey, code string, purpose Purpose) error

// Send describes the send operation and its observable behavior.
func (f MailerFunc) Send(ctx context.Context, identityKey, code string, purpose Purpose) error {
	return f(ctx, identityKey, code, purpose)
}
