package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrIssueLockedOut indicates the identity is inside an active lockout
	// window and issuance must be refused.
	ErrIssueLockedOut = errors.New("issuance locked out")
	// ErrIssueLimiterUnavailable indicates the limiter backend is unreachable.
	ErrIssueLimiterUnavailable = errors.New("issue limiter unavailable")
)

// IssueConfig holds configuration for the issuance lockout limiter.
type IssueConfig struct {
	FailureThreshold int
	LockoutDuration  time.Duration
	FailureWindow    time.Duration // 0 = failures only reset on success or lockout
}

// IssueLimiter tracks consecutive delivery failures per identity key and
// arms a temporary lockout when the configured threshold is reached.
// Failure counting and the lockout flag live in separate keys so the
// lockout's remaining time can be read without touching the counter.
type IssueLimiter struct {
	redis  redis.UniversalClient
	config IssueConfig
}

// NewIssueLimiter creates a new issuance lockout limiter.
func NewIssueLimiter(redisClient redis.UniversalClient, cfg IssueConfig) *IssueLimiter {
	return &IssueLimiter{redis: redisClient, config: cfg}
}

func (l *IssueLimiter) failureKey(identityKey string) string {
	return "vif:" + identityKey
}

func (l *IssueLimiter) lockoutKey(identityKey string) string {
	return "vil:" + identityKey
}

// CheckAllowed reports whether issuance is currently permitted for an
// identity. When locked out it returns ErrIssueLockedOut together with the
// remaining lockout time, rounded up to whole seconds so a displayed
// countdown never reads zero while the lockout still holds.
func (l *IssueLimiter) CheckAllowed(ctx context.Context, identityKey string) (time.Duration, error) {
	if l == nil || identityKey == "" {
		return 0, nil
	}

	remaining, err := l.redis.PTTL(ctx, l.lockoutKey(identityKey)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIssueLimiterUnavailable, err)
	}
	if remaining > 0 {
		return remaining.Round(time.Second), ErrIssueLockedOut
	}
	return 0, nil
}

// RecordFailure increments the consecutive-failure counter for an identity.
// Returns true when this failure armed the lockout; the counter is cleared
// at that point so the next window starts fresh once the lockout expires.
func (l *IssueLimiter) RecordFailure(ctx context.Context, identityKey string) (bool, error) {
	if l == nil || identityKey == "" {
		return false, nil
	}

	count, err := l.redis.Incr(ctx, l.failureKey(identityKey)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrIssueLimiterUnavailable, err)
	}

	if count == 1 && l.config.FailureWindow > 0 {
		// TTL on first failure makes the counter a rolling window, so an
		// abandoned half-failed flow does not count against the user forever.
		if err := l.redis.Expire(ctx, l.failureKey(identityKey), l.config.FailureWindow).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrIssueLimiterUnavailable, err)
		}
	}

	if count < int64(l.config.FailureThreshold) {
		return false, nil
	}

	if err := l.redis.Set(ctx, l.lockoutKey(identityKey), 1, l.config.LockoutDuration).Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrIssueLimiterUnavailable, err)
	}
	if err := l.redis.Del(ctx, l.failureKey(identityKey)).Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrIssueLimiterUnavailable, err)
	}
	return true, nil
}

// RecordSuccess clears the failure counter after a successful delivery.
func (l *IssueLimiter) RecordSuccess(ctx context.Context, identityKey string) error {
	if l == nil || identityKey == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.failureKey(identityKey)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrIssueLimiterUnavailable, err)
	}
	return nil
}

// FailureCount returns the current consecutive-failure count for an identity.
func (l *IssueLimiter) FailureCount(ctx context.Context, identityKey string) (int, error) {
	if l == nil || identityKey == "" {
		return 0, nil
	}

	count, err := l.redis.Get(ctx, l.failureKey(identityKey)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrIssueLimiterUnavailable, err)
	}
	return int(count), nil
}
