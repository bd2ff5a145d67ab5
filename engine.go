package verify

import (
	"strings"

	"github.com/campuslink/verify/internal/limiters"
	"github.com/campuslink/verify/internal/stores"
)

// Engine defines a public type used by verify APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config         Config
	challengeStore *stores.ChallengeStore
	issueLimiter   *limiters.IssueLimiter
	confirmLimiter *limiters.ConfirmLimiter
	mailer         Mailer
	lookup         IdentityLookup
	audit          *auditDispatcher
	metrics        *Metrics
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters: map[MetricID]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// normalizeIdentityKey canonicalizes an email so that case and padding
// variants of the same address share one challenge slot and one limiter slot.
func normalizeIdentityKey(identityKey string) string {
	return strings.ToLower(strings.TrimSpace(identityKey))
}
