// Package verify implements the time-bound one-time verification code
// workflow used by the CampusLink portal: issuing 6-digit email codes,
// validating them with single-use and expiry semantics, and locking out
// identities after repeated delivery failures.
//
// The entry point is [Engine], constructed through [Builder]. All challenge
// and limiter state lives in Redis; callers supply a [Mailer] for outbound
// delivery and an [IdentityLookup] for the duplicate-email availability
// check. The engine never performs the downstream mutation (password reset,
// email change, registration completion) itself; a successful Confirm
// authorizes the caller to perform exactly one such mutation.
//
// Subpackages:
//   - flow: the reusable client-side state machine (debounce, countdown,
//     resend gating, lockout display) shared by the registration, password
//     recovery, and email change screens.
//   - httpapi: the JSON-over-HTTP protocol surface.
//   - smtpmail: an SMTP Mailer implementation.
//   - directory: a DynamoDB-backed IdentityLookup implementation.
//   - metrics/export/otel: OpenTelemetry export of engine counters.
package verify
