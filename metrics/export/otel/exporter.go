// Package otel bridges verify metrics snapshots into OpenTelemetry
// observable instruments. The exporter registers a single callback that
// reads the engine snapshot on each collection cycle.
package otel

import (
	"context"
	"errors"
	"fmt"

	verify "github.com/campuslink/verify"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() verify.MetricsSnapshot
	AuditDropped() uint64
}

// counterDef binds a verify metric ID to its exported instrument name.
type counterDef struct {
	ID   verify.MetricID
	Name string
	Help string
}

var counterDefs = []counterDef{
	{ID: verify.MetricIssueRequest, Name: "verify_issue_request_total", Help: "Code issuance requests."},
	{ID: verify.MetricIssueDelivered, Name: "verify_issue_delivered_total", Help: "Codes delivered to the identity channel."},
	{ID: verify.MetricIssueDeliveryFailure, Name: "verify_issue_delivery_failure_total", Help: "Delivery attempts that failed."},
	{ID: verify.MetricIssueLockedOut, Name: "verify_issue_locked_out_total", Help: "Issuance requests rejected by the delivery lockout."},
	{ID: verify.MetricIssueSuperseded, Name: "verify_issue_superseded_total", Help: "Re-issues that replaced a live challenge."},
	{ID: verify.MetricConfirmSuccess, Name: "verify_confirm_success_total", Help: "Successful code confirmations."},
	{ID: verify.MetricConfirmFailure, Name: "verify_confirm_failure_total", Help: "Rejected code confirmations."},
	{ID: verify.MetricConfirmAttemptsExceeded, Name: "verify_confirm_attempts_exceeded_total", Help: "Challenges invalidated after too many confirm attempts."},
	{ID: verify.MetricAvailabilityCheck, Name: "verify_availability_check_total", Help: "Identity availability lookups."},
	{ID: verify.MetricRateLimitHit, Name: "verify_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}

type observedCounter struct {
	id         verify.MetricID
	instrument metric.Int64ObservableCounter
}

type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	auditDropped metric.Int64ObservableCounter
}

func NewOTelExporter(meter metric.Meter, engine *verify.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &OTelExporter{
		source:   source,
		counters: make([]observedCounter, 0, len(counterDefs)),
	}

	observables := make([]metric.Observable, 0, len(counterDefs)+1)

	for _, def := range counterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		"verify_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		snapshot := exporter.source.MetricsSnapshot()
		for _, c := range exporter.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
		}
		observer.ObserveInt64(exporter.auditDropped, int64(exporter.source.AuditDropped()))
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
