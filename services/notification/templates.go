package notification

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"coursebook/models"
)

var currencySymbols = map[string]string{
	"gbp": "£",
	"eur": "€",
	"usd": "$",
}

// Money formats an amount in minor units, e.g. 16250 gbp as £162.50.
func Money(amount int64, currency string) string {
	sym, ok := currencySymbols[strings.ToLower(currency)]
	if !ok {
		sym = strings.ToUpper(currency) + " "
	}
	sign := ""
	if amount < 0 {
		sign, amount = "-", -amount
	}
	return fmt.Sprintf("%s%s%d.%02d", sign, sym, amount/100, amount%100)
}

func longDate(t time.Time) string {
	if t.IsZero() {
		return "TBC"
	}
	return t.Format("02 January 2006")
}

var funcs = template.FuncMap{
	"money": Money,
	"date":  longDate,
	"orNone": func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "Not provided"
		}
		return s
	},
}

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

func mustTemplate(kind models.TemplateKind, subject, body string) emailTemplate {
	return emailTemplate{
		subject: template.Must(template.New(string(kind) + ".subject").Funcs(funcs).Parse(subject)),
		body:    template.Must(template.New(string(kind) + ".body").Funcs(funcs).Parse(body)),
	}
}

const sessionList = `{{range .Course.Sessions}}  Session {{.Number}}: {{date .Date}}, {{.StartTime}} to {{.EndTime}}
{{end}}`

var templates = map[models.TemplateKind]emailTemplate{
	models.TemplateBookingConfirmation: mustTemplate(models.TemplateBookingConfirmation,
		`Course Booking Confirmation - {{.Course.Title}}`,
		`Dear {{.Booking.Contact.FullName}},

Thank you for booking {{.Course.Title}}. Your place is confirmed.

Course starts: {{date .Course.StartDate}}
`+sessionList+`
Total: {{money .Booking.TotalAmount .Booking.Currency}}
{{- if eq .Booking.Status "deposit_paid"}}
Deposit received: {{money .Booking.DepositAmount .Booking.Currency}}
Remaining balance: {{money .Booking.FinalAmount .Booking.Currency}}, due by {{date .DueDate}}.
We will email you a payment link before it is due.
{{- else}}
Paid in full. Thank you.
{{- end}}

Booking reference: {{.Booking.ID}}
`),

	models.TemplateAdminNotification: mustTemplate(models.TemplateAdminNotification,
		`New Booking Received - {{.Course.Title}}`,
		`A new booking has been confirmed.

COURSE
------
{{.Course.Title}} ({{date .Course.StartDate}})

CUSTOMER
--------
Name: {{.Booking.Contact.FullName}}
Email: {{.Booking.Contact.Email}}
Phone: {{orNone .Booking.Contact.Phone}}
{{- if .Booking.Contact.Message}}
Message: {{.Booking.Contact.Message}}
{{- end}}

PAYMENT
-------
Plan: {{.Booking.PlanKind}}
Status: {{.Booking.Status}}
Total: {{money .Booking.TotalAmount .Booking.Currency}}

Booking reference: {{.Booking.ID}}
`),

	models.TemplatePaymentDue: mustTemplate(models.TemplatePaymentDue,
		`Payment Reminder - {{.Course.Title}}`,
		`Dear {{.Booking.Contact.FullName}},

This is a reminder that the remaining balance for {{.Course.Title}} is due.

Amount due: {{money .AmountDue .Booking.Currency}}
Due date: {{date .DueDate}}
Course starts: {{date .Course.StartDate}}
{{- if .PaymentURL}}

Pay the balance here: {{.PaymentURL}}
{{- end}}

Booking reference: {{.Booking.ID}}
`),

	models.TemplateCourseDetails: mustTemplate(models.TemplateCourseDetails,
		`Course Details & Preparation - {{.Course.Title}}`,
		`Dear {{.Booking.Contact.FullName}},

{{.Course.Title}} begins on {{date .Course.StartDate}}. Here are your session times:

`+sessionList+`
We look forward to seeing you.

Booking reference: {{.Booking.ID}}
`),

	models.TemplateSessionReminder: mustTemplate(models.TemplateSessionReminder,
		`Session Reminder - {{.Course.Title}}`,
		`Dear {{.Booking.Contact.FullName}},

{{if .IsFirstSession}}{{.Course.Title}} begins soon.{{else}}Session {{.Session.Number}} of {{.Course.Title}} is coming up.{{end}}

Date: {{date .Session.Date}}
Time: {{.Session.StartTime}} to {{.Session.EndTime}}

We look forward to seeing you.

Booking reference: {{.Booking.ID}}
`),

	models.TemplateContactForm: mustTemplate(models.TemplateContactForm,
		`New Contact Form - {{.Subject}}`,
		`A new contact form message has been received.

CONTACT DETAILS
---------------
Name: {{.Booking.Contact.FullName}}
Email: {{.Booking.Contact.Email}}
Phone: {{orNone .Booking.Contact.Phone}}
Submitted: {{.Booking.CreatedAt.Format "02 January 2006, 15:04"}}

SUBJECT
-------
{{.Subject}}

MESSAGE
-------
{{.Booking.Contact.Message}}
`),
}

// Render produces the subject and plain-text body for kind.
func Render(kind models.TemplateKind, data EmailData) (subject, body string, err error) {
	tmpl, ok := templates[kind]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", kind)
	}
	if kind != models.TemplateContactForm && data.Course == nil {
		return "", "", fmt.Errorf("template %q needs a course", kind)
	}
	if kind == models.TemplateSessionReminder && data.Session == nil {
		return "", "", fmt.Errorf("template %q needs a session", kind)
	}

	var buf bytes.Buffer
	if err := tmpl.subject.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", kind, err)
	}
	subject = strings.TrimSpace(buf.String())

	buf.Reset()
	if err := tmpl.body.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", kind, err)
	}
	return subject, buf.String(), nil
}
