package notification

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	appbilling "github.com/saasops/backend/internal/application/billing"
	"github.com/saasops/backend/internal/infrastructure/config"
)

// SMTPNotifier delivers billing notifications to organization contacts over
// SMTP. When disabled in configuration it logs the message and drops it, so
// development environments never need a mail server.
type SMTPNotifier struct {
	config config.SMTPConfig
	logger *zap.Logger
}

// NewSMTPNotifier creates a notifier from SMTP configuration
func NewSMTPNotifier(cfg config.SMTPConfig, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		config: cfg,
		logger: logger,
	}
}

// Send delivers a plain-text email to a single recipient
func (n *SMTPNotifier) Send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("recipient address is empty")
	}

	if !n.config.Enabled {
		n.logger.Info("email delivery disabled, dropping notification",
			zap.String("to", to),
			zap.String("subject", subject),
		)
		return nil
	}

	msg := buildMessage(n.config.From, to, subject, body)
	addr := net.JoinHostPort(n.config.Host, fmt.Sprintf("%d", n.config.Port))

	var auth smtp.Auth
	if n.config.Username != "" {
		auth = smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
	}

	start := time.Now()
	if err := n.sendMail(ctx, addr, auth, to, msg); err != nil {
		n.logger.Error("failed to send email",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.String("smtp", addr),
			zap.Error(err),
		)
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Info("email sent",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// sendMail runs smtp.SendMail in a goroutine so a stuck SMTP server cannot
// hold a webhook request past its context deadline.
func (n *SMTPNotifier) sendMail(ctx context.Context, addr string, auth smtp.Auth, to string, msg []byte) error {
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, n.config.From, []string{to}, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

var _ appbilling.Notifier = (*SMTPNotifier)(nil)
