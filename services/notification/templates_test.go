package notification

import (
	"context"
	"testing"
	"time"

	"coursebook/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func fixture() EmailData {
	start := time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)
	course := &models.Course{
		ID:        "c-1",
		Title:     "Wild Herbs Foundation",
		StartDate: start,
		Sessions: []models.CourseSession{
			{Number: 1, Date: start, StartTime: "10:00", EndTime: "13:00"},
			{Number: 2, Date: start.AddDate(0, 0, 7), StartTime: "10:00", EndTime: "13:00"},
		},
	}
	plan := &models.PaymentPlan{ID: "p-1", Kind: models.PlanInstallments, DepositPercent: 50, FinalDueDaysBefore: 14}
	return EmailData{
		Booking: models.Booking{
			ID:            "bk-1",
			CourseID:      "c-1",
			PlanKind:      models.PlanInstallments,
			Contact:       models.ContactDetails{FullName: "Ada Lovelace", Email: "ada@example.com"},
			Status:        models.StatusDepositPaid,
			TotalAmount:   32500,
			DepositAmount: 16250,
			FinalAmount:   16250,
			Currency:      "gbp",
		},
		Course:    course,
		Plan:      plan,
		AmountDue: 16250,
		DueDate:   plan.FinalDueDate(*course),
	}
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "£162.50", Money(16250, "gbp"))
	assert.Equal(t, "€0.05", Money(5, "EUR"))
	assert.Equal(t, "CHF 10.00", Money(1000, "chf"))
	assert.Equal(t, "-£1.20", Money(-120, "gbp"))
}

func TestRenderSubjects(t *testing.T) {
	data := fixture()
	tests := map[models.TemplateKind]string{
		models.TemplateBookingConfirmation: "Course Booking Confirmation - Wild Herbs Foundation",
		models.TemplateAdminNotification:   "New Booking Received - Wild Herbs Foundation",
		models.TemplatePaymentDue:          "Payment Reminder - Wild Herbs Foundation",
		models.TemplateCourseDetails:       "Course Details & Preparation - Wild Herbs Foundation",
		models.TemplateSessionReminder:     "Session Reminder - Wild Herbs Foundation",
	}
	data.Session = &data.Course.Sessions[0]
	for kind, want := range tests {
		subject, body, err := Render(kind, data)
		require.NoError(t, err, kind)
		assert.Equal(t, want, subject)
		assert.Contains(t, body, "bk-1")
	}
}

func TestRenderPaymentDue(t *testing.T) {
	data := fixture()
	data.PaymentURL = "https://example.com/bookings/bk-1/final-payment"
	_, body, err := Render(models.TemplatePaymentDue, data)
	require.NoError(t, err)
	assert.Contains(t, body, "Amount due: £162.50")
	assert.Contains(t, body, "Due date: 31 May 2025")
	assert.Contains(t, body, data.PaymentURL)
}

func TestRenderConfirmationByStatus(t *testing.T) {
	data := fixture()
	_, body, err := Render(models.TemplateBookingConfirmation, data)
	require.NoError(t, err)
	assert.Contains(t, body, "Remaining balance: £162.50, due by 31 May 2025")
	assert.Contains(t, body, "Session 2: 21 June 2025, 10:00 to 13:00")

	data.Booking.Status = models.StatusFullyPaid
	_, body, err = Render(models.TemplateBookingConfirmation, data)
	require.NoError(t, err)
	assert.Contains(t, body, "Paid in full")
	assert.NotContains(t, body, "Remaining balance")
}

func TestRenderSessionReminder(t *testing.T) {
	data := fixture()
	data.Session, data.IsFirstSession = &data.Course.Sessions[0], true
	_, body, err := Render(models.TemplateSessionReminder, data)
	require.NoError(t, err)
	assert.Contains(t, body, "Wild Herbs Foundation begins soon.")
	assert.Contains(t, body, "Date: 14 June 2025")

	data.Session, data.IsFirstSession = &data.Course.Sessions[1], false
	_, body, err = Render(models.TemplateSessionReminder, data)
	require.NoError(t, err)
	assert.Contains(t, body, "Session 2 of Wild Herbs Foundation is coming up.")
	assert.Contains(t, body, "Time: 10:00 to 13:00")

	data.Session = nil
	_, _, err = Render(models.TemplateSessionReminder, data)
	assert.Error(t, err)
}

func TestRenderHTMLEscapes(t *testing.T) {
	data := fixture()
	data.PaymentURL = "https://example.com/pay?booking=bk-1&step=2"
	html, err := renderHTML("Payment <Reminder>", "Dear Ada,\n\nLine one\nLine <b>two</b>\n", data)
	require.NoError(t, err)
	assert.Contains(t, html, "<title>Payment &lt;Reminder&gt;</title>")
	assert.Contains(t, html, "<p>Dear Ada,</p>")
	assert.Contains(t, html, "<p>Line one<br>Line &lt;b&gt;two&lt;/b&gt;</p>")
	assert.Contains(t, html, `href="https://example.com/pay?booking=bk-1&amp;step=2"`)

	data.PaymentURL = "javascript:alert(1)"
	html, err = renderHTML("s", "body", data)
	require.NoError(t, err)
	assert.NotContains(t, html, "javascript:")
}

func TestRenderContactForm(t *testing.T) {
	data := EmailData{
		Booking: models.Booking{
			ID:        "bk-2",
			Contact:   models.ContactDetails{FullName: "Grace Hopper", Email: "grace@example.com", Message: "Do you run weekend courses?"},
			CreatedAt: time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
		},
		Subject: "Weekend courses",
	}
	subject, body, err := Render(models.TemplateContactForm, data)
	require.NoError(t, err)
	assert.Equal(t, "New Contact Form - Weekend courses", subject)
	assert.Contains(t, body, "Phone: Not provided")
	assert.Contains(t, body, "Submitted: 01 March 2025, 09:30")
	assert.Contains(t, body, "Do you run weekend courses?")
}

func TestRenderErrors(t *testing.T) {
	_, _, err := Render("unknown", fixture())
	assert.Error(t, err)

	data := fixture()
	data.Course = nil
	_, _, err = Render(models.TemplatePaymentDue, data)
	assert.Error(t, err)
}

func TestLogMailer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewLogMailer(zap.New(core))

	require.NoError(t, m.Send(context.Background(), models.TemplatePaymentDue, "ada@example.com", fixture()))
	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "ada@example.com", fields["recipient"])
	assert.Equal(t, "Payment Reminder - Wild Herbs Foundation", fields["subject"])
}

func TestSMTPMailerMessage(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{From: "a@example.com"}, nil)
	assert.Error(t, err)

	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "bookings@example.com"}, nil)
	require.NoError(t, err)
	msg, err := m.message(models.TemplateCourseDetails, "ada@example.com", fixture())
	require.NoError(t, err)
	assert.Equal(t, []string{"Course Details & Preparation - Wild Herbs Foundation"}, msg.GetGenHeader(mail.HeaderSubject))

	parts := msg.GetParts()
	require.Len(t, parts, 2)
	assert.Equal(t, mail.TypeTextPlain, parts[0].GetContentType())
	assert.Equal(t, mail.TypeTextHTML, parts[1].GetContentType())
	html, err := parts[1].GetContent()
	require.NoError(t, err)
	assert.Contains(t, string(html), "<p>Dear Ada Lovelace,</p>")

	_, err = m.message(models.TemplateCourseDetails, "not an address", fixture())
	assert.Error(t, err)
}
