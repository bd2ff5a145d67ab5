package smtpmail

import (
	"context"
	"testing"

	"github.com/campuslink/verify"
	"github.com/stretchr/testify/assert"
)

func TestMessageForPurpose(t *testing.T) {
	subject, intro := messageFor(verify.PurposeRegistration)
	assert.Equal(t, "Confirm your email address", subject)
	assert.Contains(t, intro, "creating your account")

	subject, _ = messageFor(verify.PurposeRecovery)
	assert.Equal(t, "Password recovery code", subject)

	subject, intro = messageFor(verify.PurposeEmailChange)
	assert.Equal(t, "Confirm your new email address", subject)
	assert.Contains(t, intro, "change your account email")
}

func TestSendHonorsCancelledContext(t *testing.T) {
	m := New(Config{Host: "localhost", Port: "1025", From: "noreply@example.com"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Send(ctx, "alice@example.com", "123456", verify.PurposeRegistration)
	assert.ErrorIs(t, err, context.Canceled)
}
