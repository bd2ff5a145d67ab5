package verify

import (
	"errors"
	"time"
)

// Config defines a public type used by verify APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Challenge ChallengeConfig
	Lockout   LockoutConfig
	Confirm   ConfirmConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ChallengeConfig defines a public type used by verify APIs.
//
// ChallengeConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ChallengeConfig struct {
	// TTL is the lifetime of an issued code. expiresAt = issuedAt + TTL.
	TTL time.Duration
	// CodeDigits is the code length. Codes are drawn uniformly from the
	// [10^(n-1), 10^n - 1] range, so the first digit is never zero.
	CodeDigits int
	// RedisPrefix namespaces all challenge keys.
	RedisPrefix string
}

/*
====================================
ISSUANCE LOCKOUT CONFIG
====================================
*/

// LockoutConfig defines a public type used by verify APIs.
//
// LockoutConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LockoutConfig struct {
	// FailureThreshold is the number of consecutive delivery failures
	// after which issuance for an identity is refused.
	FailureThreshold int
	// LockoutDuration is how long issuance stays refused once the
	// threshold is reached. The failure counter resets when it elapses.
	LockoutDuration time.Duration
	// FailureWindow bounds how long stale failures keep counting.
	// 0 means failures only reset on success or lockout expiry.
	FailureWindow time.Duration
}

/*
====================================
CONFIRM THROTTLE CONFIG
====================================
*/

// ConfirmConfig controls throttling of the confirm path. The portal the
// engine was extracted from never limited wrong-code submissions at all;
// with 6-digit codes and a 5 minute window that left the confirm endpoint
// brute-forceable, so both guards default on.
type ConfirmConfig struct {
	// MaxAttempts caps wrong-code submissions against a single challenge
	// record. The record is deleted when the cap is reached.
	MaxAttempts int
	// EnableIdentityThrottle applies a fixed window per identity key.
	EnableIdentityThrottle bool
	// EnableIPThrottle applies a fixed window per client IP when the
	// caller attached one via WithClientIP.
	EnableIPThrottle bool
	// WindowAttempts and Window define the fixed throttle window.
	WindowAttempts int
	Window         time.Duration
}

// AuditConfig defines a public type used by verify APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by verify APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig may return an error when input validation, dependency calls, or security checks fail.
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Challenge: ChallengeConfig{
			TTL:         5 * time.Minute,
			CodeDigits:  6,
			RedisPrefix: "vc",
		},
		Lockout: LockoutConfig{
			FailureThreshold: 3,
			LockoutDuration:  5 * time.Minute,
			FailureWindow:    5 * time.Minute,
		},
		Confirm: ConfirmConfig{
			MaxAttempts:            5,
			EnableIdentityThrottle: true,
			EnableIPThrottle:       true,
			WindowAttempts:         10,
			Window:                 5 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	if c.Challenge.TTL <= 0 {
		return errors.New("Challenge TTL must be > 0")
	}
	if c.Challenge.CodeDigits < 4 || c.Challenge.CodeDigits > 10 {
		return errors.New("Challenge CodeDigits must be between 4 and 10")
	}
	if c.Challenge.RedisPrefix == "" {
		return errors.New("Challenge RedisPrefix must not be empty")
	}

	if c.Lockout.FailureThreshold <= 0 {
		return errors.New("Lockout FailureThreshold must be > 0")
	}
	if c.Lockout.LockoutDuration <= 0 {
		return errors.New("Lockout LockoutDuration must be > 0")
	}
	if c.Lockout.FailureWindow < 0 {
		return errors.New("Lockout FailureWindow must be >= 0")
	}

	if c.Confirm.MaxAttempts <= 0 {
		return errors.New("Confirm MaxAttempts must be > 0")
	}
	if c.Confirm.EnableIdentityThrottle || c.Confirm.EnableIPThrottle {
		if c.Confirm.WindowAttempts <= 0 {
			return errors.New("Confirm WindowAttempts must be > 0 when throttling is enabled")
		}
		if c.Confirm.Window <= 0 {
			return errors.New("Confirm Window must be > 0 when throttling is enabled")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
