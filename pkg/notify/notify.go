// pkg/notify/notify.go
package notify

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/xtechon/vatflow/pkg/vat"
)

// SMTPConfig carries the outbound mail settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Validate ensures the SMTP settings are usable
func (c SMTPConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if c.From == "" {
		return fmt.Errorf("SMTP from address is required")
	}
	if c.Port <= 0 {
		return fmt.Errorf("SMTP port must be positive")
	}
	return nil
}

// Mailer sends best-effort manual-review notifications. Delivery
// failures are logged, never propagated as pipeline failures.
type Mailer struct {
	cfg    SMTPConfig
	logger *zap.Logger
}

// NewMailer creates a Mailer
func NewMailer(cfg SMTPConfig, logger *zap.Logger) (*Mailer, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Mailer{cfg: cfg, logger: logger.Named("notify")}, nil
}

// SendManualReview emails the manual-review summary with the issues
// workbook attached. Always returns nil; failures only surface in the
// logs.
func (m *Mailer) SendManualReview(ctx context.Context, recipient string, result *vat.Result, attachment []byte, filename string) error {
	if recipient == "" {
		m.logger.Warn("Manual review notification skipped, no recipient configured")
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		m.logger.Error("Invalid sender address", zap.String("from", m.cfg.From), zap.Error(err))
		return nil
	}
	if err := msg.To(recipient); err != nil {
		m.logger.Error("Invalid recipient address", zap.String("to", recipient), zap.Error(err))
		return nil
	}

	msg.Subject(fmt.Sprintf("VAT processing: %d row(s) need manual review", result.ManualCount))
	msg.SetBodyString(mail.TypeTextPlain, SummaryText(result))

	if len(attachment) > 0 {
		if filename == "" {
			filename = "manual_review.xlsx"
		}
		if err := msg.AttachReader(filename, bytes.NewReader(attachment)); err != nil {
			m.logger.Error("Failed to attach review workbook", zap.Error(err))
			return nil
		}
	}

	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
	)
	if err != nil {
		m.logger.Error("Failed to create SMTP client", zap.Error(err))
		return nil
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		m.logger.Error("Manual review notification failed",
			zap.String("recipient", recipient),
			zap.Int("manualCount", result.ManualCount),
			zap.Error(err))
		return nil
	}

	m.logger.Info("Manual review notification sent",
		zap.String("recipient", recipient),
		zap.Int("manualCount", result.ManualCount))

	return nil
}

// SummaryText renders the human-readable notification body
func SummaryText(result *vat.Result) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%d row(s) could not be auto-processed because no VAT rule matched.\n\n", result.ManualCount)

	const previewLimit = 10
	shown := 0
	for _, row := range result.ManualRows {
		if shown >= previewLimit {
			fmt.Fprintf(&sb, "... and %d more row(s)\n", len(result.ManualRows)-previewLimit)
			break
		}
		fmt.Fprintf(&sb, "- product_type=%v country=%v net_price=%v\n",
			row[vat.ColProductType], row[vat.ColCountry], row[vat.ColNetPrice])
		shown++
	}

	sb.WriteString("\nThe affected rows are attached. Please add the missing VAT rules and re-run processing.\n")
	return sb.String()
}
