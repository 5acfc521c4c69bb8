// Package mail sends HTML notification emails with optional attachments.
package mail

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Attachment is a file carried inline in a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is a single-recipient HTML email.
type Message struct {
	To          string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NoopSender logs messages instead of delivering them. Used when no SMTP host
// is configured.
type NoopSender struct {
	logger *zap.Logger
}

// NewNoopSender returns a sender that only logs.
func NewNoopSender(logger *zap.Logger) *NoopSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoopSender{logger: logger}
}

// Send logs the message envelope.
func (s *NoopSender) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return ErrNoRecipient
	}
	s.logger.Info("mail delivery disabled, message dropped",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("attachments", len(msg.Attachments)),
	)
	return nil
}
