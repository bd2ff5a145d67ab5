package verify

import (
	"errors"

	"github.com/campuslink/verify/internal/limiters"
	"github.com/campuslink/verify/internal/stores"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by verify APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	mailer    Mailer
	lookup    IdentityLookup
	auditSink AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithMailer describes the withmailer operation and its observable behavior.
//
// WithMailer may return an error when input validation, dependency calls, or security checks fail.
// WithMailer does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithIdentityLookup describes the withidentitylookup operation and its observable behavior.
//
// WithIdentityLookup may return an error when input validation, dependency calls, or security checks fail.
// WithIdentityLookup does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithIdentityLookup(l IdentityLookup) *Builder {
	b.lookup = l
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = true
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	engine := &Engine{
		config:         b.config,
		challengeStore: stores.NewChallengeStore(b.redis, b.config.Challenge.RedisPrefix),
		issueLimiter: limiters.NewIssueLimiter(b.redis, limiters.IssueConfig{
			FailureThreshold: b.config.Lockout.FailureThreshold,
			LockoutDuration:  b.config.Lockout.LockoutDuration,
			FailureWindow:    b.config.Lockout.FailureWindow,
		}),
		confirmLimiter: limiters.NewConfirmLimiter(b.redis, limiters.ConfirmConfig{
			EnableIdentityThrottle: b.config.Confirm.EnableIdentityThrottle,
			EnableIPThrottle:       b.config.Confirm.EnableIPThrottle,
			Window:                 b.config.Confirm.Window,
			WindowAttempts:         b.config.Confirm.WindowAttempts,
		}),
		mailer:  b.mailer,
		lookup:  b.lookup,
		audit:   newAuditDispatcher(b.config.Audit, b.auditSink),
		metrics: NewMetrics(b.config.Metrics),
	}

	b.built = true
	return engine, nil
}
