package notification

import (
	"context"
	"time"

	"coursebook/models"
)

// Mailer sends one templated email to one recipient.
type Mailer interface {
	Send(ctx context.Context, kind models.TemplateKind, recipient string, data EmailData) error
}

// EmailData is everything a template may reference. Course and Plan are nil
// for contact-form emails.
type EmailData struct {
	Booking    models.Booking
	Course     *models.Course
	Plan       *models.PaymentPlan
	Subject    string // Contact form subject line, already sanitized
	AmountDue  int64
	DueDate    time.Time
	PaymentURL string

	Session        *models.CourseSession // Session reminders only
	IsFirstSession bool
}
