// Package smtpmail delivers verification codes over plain SMTP.
package smtpmail

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/campuslink/verify"
)

// Config carries the SMTP connection settings.
type Config struct {
	Host     string
	Port     string
	From     string
	Username string
	Password string
}

// Mailer implements [verify.Mailer] over net/smtp. Send errors are returned
// as-is; the engine treats any non-nil error as a retryable delivery
// failure that counts toward the issuance lockout.
type Mailer struct {
	cfg Config
}

func New(cfg Config) *Mailer {
	return &Mailer{cfg: cfg}
}

func (m *Mailer) Send(ctx context.Context, identityKey, code string, purpose verify.Purpose) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, intro := messageFor(purpose)
	body := fmt.Sprintf(
		"%s\r\n\r\nYour verification code is: %s\r\n\r\nIt expires in 5 minutes. If you did not request it, ignore this message.",
		intro, code,
	)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", m.cfg.From, identityKey, subject, body)
	addr := fmt.Sprintf("%s:%s", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	return smtp.SendMail(addr, auth, m.cfg.From, []string{identityKey}, []byte(msg))
}

func messageFor(purpose verify.Purpose) (subject, intro string) {
	switch purpose {
	case verify.PurposeRecovery:
		return "Password recovery code", "A password recovery was requested for your account."
	case verify.PurposeEmailChange:
		return "Confirm your new email address", "A request was made to change your account email to this address."
	default:
		return "Confirm your email address", "Welcome! Confirm this address to finish creating your account."
	}
}
