package notification

import (
	"context"

	"coursebook/models"

	"go.uber.org/zap"
)

// LogMailer renders emails and writes them to the log instead of sending.
// It is used when no SMTP host is configured.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, kind models.TemplateKind, recipient string, data EmailData) error {
	subject, body, err := Render(kind, data)
	if err != nil {
		return err
	}
	m.logger.Info("Email (not sent, no SMTP host)",
		zap.String("template", string(kind)),
		zap.String("booking_id", data.Booking.ID),
		zap.String("recipient", recipient),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}
