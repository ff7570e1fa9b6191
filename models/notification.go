package models

// TemplateKind names an email template known to the mailer.
type TemplateKind string

const (
	TemplateBookingConfirmation TemplateKind = "booking_confirmation"
	TemplateAdminNotification   TemplateKind = "admin_booking_notification"
	TemplatePaymentDue          TemplateKind = "payment_due"
	TemplateCourseDetails       TemplateKind = "course_details"
	TemplateContactForm         TemplateKind = "contact_form"
	TemplateSessionReminder     TemplateKind = "session_reminder"
)

// ConfirmationPayload is the job payload for booking confirmation emails.
type ConfirmationPayload struct {
	BookingID string        `json:"bookingId"`
	Status    PaymentStatus `json:"status"`
	EventID   string        `json:"eventId"`
}
