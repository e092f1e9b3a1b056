// Package notify delivers approval notifications over email and Slack.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/deskflow/itsm-approvals/internal/config"
)

// ErrChannelDisabled is returned by senders that have no configuration.
var ErrChannelDisabled = errors.New("notification channel disabled")

// Mailer sends HTML email through SMTP.
type Mailer struct {
	from    string
	host    string
	port    int
	user    string
	pass    string
	timeout time.Duration
}

// NewMailer builds a mailer from configuration. A blank SMTP host disables it.
func NewMailer(cfg config.NotificationConfig) *Mailer {
	return &Mailer{
		from:    cfg.EmailFrom,
		host:    cfg.SMTPHost,
		port:    cfg.SMTPPort,
		user:    cfg.SMTPUsername,
		pass:    cfg.SMTPPassword,
		timeout: 15 * time.Second,
	}
}

// Enabled reports whether an SMTP host is configured.
func (m *Mailer) Enabled() bool {
	return m != nil && m.host != ""
}

// Send delivers one message to all recipients.
func (m *Mailer) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	if !m.Enabled() {
		return ErrChannelDisabled
	}
	if len(to) == 0 {
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(to...); err != nil {
		return fmt.Errorf("set recipients: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	opts := []mail.Option{
		mail.WithPort(m.port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(m.timeout),
	}
	if m.user != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.user),
			mail.WithPassword(m.pass),
		)
	}

	client, err := mail.NewClient(m.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
