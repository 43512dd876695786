package service

import (
	"arc/auth-api/config"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Mailer is the transactional email collaborator
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

// NewMailer returns an SMTP mailer, or a LogMailer when mail is disabled
func NewMailer(c config.Mail) Mailer {
	if !c.Enabled {
		zap.L().Warn("Mail delivery is disabled, outgoing mail will only be logged")
		return LogMailer{}
	}

	return NewSMTPMailer(c)
}

type SMTPMailer struct {
	from   string
	dialer *gomail.Dialer
}

func NewSMTPMailer(c config.Mail) *SMTPMailer {
	return &SMTPMailer{
		from:   c.SenderAddress,
		dialer: gomail.NewDialer(c.Host, c.Port, c.SenderAddress, c.Password),
	}
}

func (m *SMTPMailer) Send(to, subject, htmlBody string) error {
	if strings.EqualFold(to, m.from) {
		return errors.New("invalid email address")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send mail, %w", err)
	}

	return nil
}

// LogMailer drops mail and logs that it did. Recipient addresses and bodies
// are not logged.
type LogMailer struct{}

func (LogMailer) Send(to, subject, htmlBody string) error {
	zap.L().Info("Mail not delivered, transport disabled", zap.String("subject", subject))
	return nil
}

func tokenLink(publicURL, path, token string) string {
	return strings.TrimRight(publicURL, "/") + path + "?" + url.Values{"token": {token}}.Encode()
}

func VerificationMail(publicURL, firstName, token string, ttl time.Duration) (subject, body string) {
	link := tokenLink(publicURL, "/verify", token)

	return "Verify your ARC account", fmt.Sprintf(`<p>Hi %s,</p>
<p>Welcome to The Arc! Please verify your account by clicking the link below:</p>
<p><a href="%s" target="_blank">Verify my email</a></p>
<p>This link will expire in %s. If you did not sign up, you can ignore this email.</p>`,
		html.EscapeString(firstName), link, humanDuration(ttl))
}

func ResetPasswordMail(publicURL, firstName, token string, ttl time.Duration) (subject, body string) {
	link := tokenLink(publicURL, "/reset-password", token)

	return "Reset your password", fmt.Sprintf(`<p>Hi %s,</p>
<p>You requested to reset your password. Click the link below to reset it:</p>
<p><a href="%s" target="_blank">Reset password</a></p>
<p>This link will expire in %s. If you didn't request this, please ignore this email.</p>`,
		html.EscapeString(firstName), link, humanDuration(ttl))
}

func humanDuration(d time.Duration) string {
	unit, n := "minute", int64(d/time.Minute)
	if d >= time.Hour && d%time.Hour == 0 {
		unit, n = "hour", int64(d/time.Hour)
	}

	if n == 1 {
		return "1 " + unit
	}

	return fmt.Sprintf("%d %ss", n, unit)
}
