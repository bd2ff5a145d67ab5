package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrConfirmRateLimited indicates the confirm window for an identity or
	// IP is exhausted.
	ErrConfirmRateLimited = errors.New("confirm rate limited")
	// ErrConfirmLimiterUnavailable indicates the limiter backend is unreachable.
	ErrConfirmLimiterUnavailable = errors.New("confirm limiter unavailable")
)

// ConfirmConfig holds configuration for the confirm-path fixed window.
type ConfirmConfig struct {
	EnableIdentityThrottle bool
	EnableIPThrottle       bool
	Window                 time.Duration
	WindowAttempts         int
}

// ConfirmLimiter throttles code submissions with a fixed window per
// identity key and, optionally, per client IP. The per-record attempt cap
// in the challenge store bounds attacks against one challenge; this window
// bounds attacks that re-request codes to reset that cap.
type ConfirmLimiter struct {
	redis  redis.UniversalClient
	config ConfirmConfig
}

// NewConfirmLimiter creates a new confirm-path limiter.
func NewConfirmLimiter(redisClient redis.UniversalClient, cfg ConfirmConfig) *ConfirmLimiter {
	return &ConfirmLimiter{redis: redisClient, config: cfg}
}

// Check enforces the configured windows for one confirm attempt.
func (l *ConfirmLimiter) Check(ctx context.Context, identityKey, ip string) error {
	if l == nil {
		return nil
	}

	if l.config.EnableIdentityThrottle && identityKey != "" {
		if err := l.enforceFixedWindow(ctx, confirmIdentityKey(identityKey)); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, confirmIPKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *ConfirmLimiter) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfirmLimiterUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrConfirmLimiterUnavailable, err)
		}
	}

	if count > int64(l.config.WindowAttempts) {
		return ErrConfirmRateLimited
	}

	return nil
}

func confirmIdentityKey(identityKey string) string {
	return "vcf:" + identityKey
}

func confirmIPKey(ip string) string {
	return "vcfip:" + ip
}
