package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"sejf-plikow/internal/config"
)

type SMTPNotifier struct {
	cfg    config.SMTPConfig
	logger *slog.Logger
}

func NewSMTPNotifier(cfg config.SMTPConfig, logger *slog.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "notifier")),
	}
}

func (n *SMTPNotifier) Notify(ctx context.Context, address, filename string, expiryTime time.Time) error {
	from := n.cfg.From
	if from == "" {
		from = n.cfg.Username
	}

	msg := buildMessage(from, address, filename, expiryTime)

	auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	if err := smtp.SendMail(addr, auth, from, []string{address}, msg); err != nil {
		n.logger.Warn("failed to send expiry warning",
			slog.String("to", address),
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
		return err
	}

	n.logger.Info("expiry warning sent",
		slog.String("to", address),
		slog.String("filename", filename),
	)
	return nil
}

func buildMessage(from, to, filename string, expiryTime time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: Sejf: File %q Expiring Soon\r\n", filename)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b,
		"Hello,\r\n\r\n"+
			"This is an automated notification from your file vault.\r\n\r\n"+
			"Your file %q will expire on %s.\r\n\r\n"+
			"Please download it before it expires, as it will be automatically deleted.\r\n",
		filename, expiryTime.UTC().Format("2006-01-02 15:04:05 UTC"),
	)
	return []byte(b.String())
}

// Disabled is the notifier used when SMTP credentials are missing. Every send
// attempt fails with ErrNotConfigured, keeping records in the retry loop.
type Disabled struct {
	logger *slog.Logger
}

func NewDisabled(logger *slog.Logger) *Disabled {
	return &Disabled{logger: logger.With(slog.String("component", "notifier"))}
}

func (d *Disabled) Notify(ctx context.Context, address, filename string, expiryTime time.Time) error {
	d.logger.Warn("skipping expiry warning, smtp not configured",
		slog.String("to", address),
		slog.String("filename", filename),
	)
	return ErrNotConfigured
}
