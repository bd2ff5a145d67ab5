package verify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/campuslink/verify/internal/limiters"
	"github.com/campuslink/verify/internal/stores"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

// mockMailer records every delivered code per identity key and can be armed
// to fail.
type mockMailer struct {
	mu      sync.Mutex
	sent    map[string][]string
	failErr error
}

func newMockMailer() *mockMailer {
	return &mockMailer{sent: map[string][]string{}}
}

func (m *mockMailer) Send(_ context.Context, identityKey, code string, _ Purpose) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.sent[identityKey] = append(m.sent[identityKey], code)
	return nil
}

func (m *mockMailer) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func (m *mockMailer) lastCode(identityKey string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := m.sent[identityKey]
	if len(codes) == 0 {
		return ""
	}
	return codes[len(codes)-1]
}

func (m *mockMailer) sendCount(identityKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent[identityKey])
}

type mockLookup struct {
	existing map[string]bool
	err      error
}

func (l *mockLookup) Exists(_ context.Context, identityKey string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	return l.existing[identityKey], nil
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEngine(t *testing.T, rdb *redis.Client, mailer Mailer, lookup IdentityLookup, cfg Config) *Engine {
	t.Helper()

	return &Engine{
		config:         cfg,
		challengeStore: stores.NewChallengeStore(rdb, cfg.Challenge.RedisPrefix),
		issueLimiter: limiters.NewIssueLimiter(rdb, limiters.IssueConfig{
			FailureThreshold: cfg.Lockout.FailureThreshold,
			LockoutDuration:  cfg.Lockout.LockoutDuration,
			FailureWindow:    cfg.Lockout.FailureWindow,
		}),
		confirmLimiter: limiters.NewConfirmLimiter(rdb, limiters.ConfirmConfig{
			EnableIdentityThrottle: cfg.Confirm.EnableIdentityThrottle,
			EnableIPThrottle:       cfg.Confirm.EnableIPThrottle,
			Window:                 cfg.Confirm.Window,
			WindowAttempts:         cfg.Confirm.WindowAttempts,
		}),
		mailer:  mailer,
		lookup:  lookup,
		metrics: NewMetrics(cfg.Metrics),
	}
}

func TestIssueDeliversCodeAndStoresChallenge(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	mailer := newMockMailer()
	engine := newTestEngine(t, rdb, mailer, nil, testConfig())

	challenge, err := engine.Issue(ctx, "alice@example.com", PurposeRegistration)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if challenge.ChallengeID == "" {
		t.Fatal("expected non-empty challenge ID")
	}
	if challenge.IdentityKey != "alice@example.com" {
		t.Fatalf("unexpected identity key %q", challenge.IdentityKey)
	}
	if !challenge.ExpiresAt.After(challenge.IssuedAt) {
		t.Fatal("expected ExpiresAt after IssuedAt")
	}

	code := mailer.lastCode("alice@example.com")
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			t.Fatalf("expected numeric code, got %q", code)
		}
	}

	if rdb.Exists(ctx, "vc:alice@example.com").Val() != 1 {
		t.Fatal("expected challenge record key to exist")
	}
}

func TestIssueNormalizesIdentityKey(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	mailer := newMockMailer()
	engine := newTestEngine(t, rdb, mailer, nil, testConfig())

	challenge, err := engine.Issue(context.Background(), "  Alice@Example.COM ", PurposeRegistration)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if challenge.IdentityKey != "alice@example.com" {
		t.Fatalf("expected normalized identity key, got %q", challenge.IdentityKey)
	}
	if mailer.lastCode("alice@example.com") == "" {
		t.Fatal("expected delivery under the normalized key")
	}
}

func TestIssueRejectsMalformedIdentity(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestEngine(t, rdb, newMockMailer(), nil, testConfig())

	for _, identity := range []string{"", "not-an-email", "Alice <alice@example.com>", "a@b@c"} {
		if _, err := engine.Issue(context.Background(), identity, PurposeRegistration); !errors.Is(err, ErrIdentityInvalid) {
			t.Fatalf("identity %q: expected ErrIdentityInvalid, got %v", identity, err)
		}
	}
}

func TestIssueRejectsUnknownPurpose(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestEngine(t, rdb, newMockMailer(), nil, testConfig())

	if _, err := engine.Issue(context.Background(), "alice@example.com", Purpose(99)); !errors.Is(err, ErrPurposeInvalid) {
		t.Fatalf("expected ErrPurposeInvalid, got %v", err)
	}
}

func TestIssueSupersedesOutstandingChallenge(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	mailer := newMockMailer()
	engine := newTestEngine(t, rdb, mailer, nil, testConfig())

	if _, err := engine.Issue(ctx, "alice@example.com", PurposeRegistration); err != nil {
		t.Fatalf("first Issue failed: %v", err)
	}
	firstCode := mailer.lastCode("alice@example.com")

	if _, err := engine.Issue(ctx, "alice@example.com", PurposeRegistration); err != nil {
		t.Fatalf("second Issue failed: %v", err)
	}
	secondCode := mailer.lastCode("alice@example.com")

	if err := engine.Confirm(ctx, "alice@example.com", PurposeRegistration, firstCode); !errors.Is(err, ErrCodeInvalid) {
		if firstCode == secondCode {
			t.Skip("codes collided, superseded check not observable")
		}
		t.Fatalf("expected superseded code rejection, got %v", err)
	}

	if err := engine.Confirm(ctx, "alice@example.com", PurposeRegistration, secondCode); err != nil {
		t.Fatalf("expected fresh code to confirm, got %v", err)
	}

	if got := engine.MetricsSnapshot().Counters[MetricIssueSuperseded]; got != 1 {
		t.Fatalf("expected 1 superseded issue, got %d", got)
	}
}

func TestIssueDeliveryFailureSurfacesAndCounts(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	mailer := newMockMailer()
	mailer.fail(errors.New("smtp connect refused"))
	engine := newTestEngine(t, rdb, mailer, nil, testConfig())

	if _, err := engine.Issue(ctx, "alice@example.com", PurposeRegistration); !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}

	count, err := engine.issueLimiter.FailureCount(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("FailureCount failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 recorded failure, got %d", count)
	}
}

func TestIssueLockoutAfterConsecutiveDeliveryFailures(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	mailer := newMockMailer()
	mailer.fail(errors.New("smtp connect refused"))
	engine := newTestEngine(t, rdb, mailer, nil, testConfig())

	for i := 0; i < 3; i++ {
		if _, err := engine.Issue(ctx, "alice@example.com", PurposeRegistration); !errors.Is(err, ErrDeliveryFailed) {
			t.Fatalf("failure %d: expected ErrDeliveryFailed, got %v", i+1, err)
		}
	}

	_, err := engine.Issue(ctx, "alice@example.com", PurposeRegistration)
	if !errors.Is(err, ErrIssueRateLimited) {
		t.Fatalf("expected ErrIssueRateLimited after threshold, got %v", err)
	}

	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected *RateLimitError, got %T", err)
	}
	if rateErr.RetryAfterSeconds() <= 0 {
		t.Fatalf("expected positive retry-after, got %d", rateErr.RetryAfterSeconds())
	}
	if rateErr.RetryAfter > 5*time.Minute {
		t.Fatalf("retry-after exceeds lockout duration: %v", rateErr.RetryAfter)
	}
}

func TestIssueLockoutExpiresAndRecovers(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	mailer := newMockMailer()
	mailer.fail(errors.New("smtp connect refused"))
	engine := newTestEngine(t, rdb, mailer, nil, testConfig())

	for i := 0; i < 3; i++ {
		if _, err := engine.Issue(ctx, "alice@example.com", PurposeRegistration); !errors.Is(err, ErrDeliveryFailed) {
			t.Fatalf("failure %d: expected ErrDeliveryFailed, got %v", i+1, err)
		}
	}
	if _, err := engine.Issue(ctx, "alice@example.com", PurposeRegistration); !errors.Is(err, ErrIssueRateLimited) {
		t.Fatalf("expected lockout, got %v", err)
	}

	mr.FastForward(5*time.Minute + time.Second)
	mailer.fail(nil)

	if _, err := engine.Issue(ctx, "alice@example.com", PurposeRegistration); err != nil {
		t.Fatalf("expected issuance after lockout expiry, got %v", err)
	}
	if mailer.sendCount("alice@example.com") != 1 {
		t.Fatalf("expected exactly one delivery, got %d", mailer.sendCount("alice@example.com"))
	}
}

func TestIssueSuccessResetsFailureCounter(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	mailer := newMockMailer()
	engine := newTestEngine(t, rdb, mailer, nil, testConfig())

	mailer.fail(errors.New("smtp connect refused"))
	for i := 0; i < 2; i++ {
		if _, err := engine.Issue(ctx, "alice@example.com", PurposeRegistration); !errors.Is(err, ErrDeliveryFailed) {
			t.Fatalf("failure %d: expected ErrDeliveryFailed, got %v", i+1, err)
		}
	}

	mailer.fail(nil)
	if _, err := engine.Issue(ctx, "alice@example.com", PurposeRegistration); err != nil {
		t.Fatalf("expected successful issue, got %v", err)
	}

	mailer.fail(errors.New("smtp connect refused"))
	for i := 0; i < 2; i++ {
		if _, err := engine.Issue(ctx, "alice@example.com", PurposeRegistration); !errors.Is(err, ErrDeliveryFailed) {
			t.Fatalf("post-reset failure %d: expected ErrDeliveryFailed, got %v", i+1, err)
		}
	}
}

func TestIssueFailsWhenRedisUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	engine := newTestEngine(t, rdb, newMockMailer(), nil, testConfig())

	mr.Close()

	if _, err := engine.Issue(context.Background(), "alice@example.com", PurposeRegistration); !errors.Is(err, ErrVerifyUnavailable) {
		t.Fatalf("expected ErrVerifyUnavailable, got %v", err)
	}
}

func TestCancelRemovesOutstandingChallenge(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	mailer := newMockMailer()
	engine := newTestEngine(t, rdb, mailer, nil, testConfig())

	if _, err := engine.Issue(ctx, "alice@example.com", PurposeRegistration); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := engine.Cancel(ctx, "alice@example.com"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	code := mailer.lastCode("alice@example.com")
	if err := engine.Confirm(ctx, "alice@example.com", PurposeRegistration, code); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected cancelled challenge rejection, got %v", err)
	}
}

func TestActiveChallengeIntrospection(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine := newTestEngine(t, rdb, newMockMailer(), nil, testConfig())

	issued, err := engine.Issue(ctx, "alice@example.com", PurposeRecovery)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	active, err := engine.ActiveChallenge(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("ActiveChallenge failed: %v", err)
	}
	if active.ChallengeID != issued.ChallengeID {
		t.Fatalf("expected challenge ID %q, got %q", issued.ChallengeID, active.ChallengeID)
	}
	if active.Purpose != PurposeRecovery {
		t.Fatalf("expected recovery purpose, got %v", active.Purpose)
	}

	if _, err := engine.ActiveChallenge(ctx, "nobody@example.com"); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid for missing challenge, got %v", err)
	}
}

func TestIssueNotReadyEngine(t *testing.T) {
	var engine *Engine
	if _, err := engine.Issue(context.Background(), "alice@example.com", PurposeRegistration); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}
