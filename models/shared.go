package models

import (
	"fmt"
	"strings"
	"time"
)

// ReminderKind enumerates the once-per-booking reminder emails.
type ReminderKind string

const (
	ReminderPaymentDue    ReminderKind = "payment_due"
	ReminderCourseDetails ReminderKind = "course_details"
	ReminderSession       ReminderKind = "session" // Never stored; see SessionReminderKind
)

// SessionReminderKind is the marker kind for one numbered session, so a
// session reminder is once-only per (booking, session number).
func SessionReminderKind(number int) ReminderKind {
	return ReminderKind(fmt.Sprintf("%s:%d", ReminderSession, number))
}

// Base drops the session number from a per-session kind.
func (k ReminderKind) Base() ReminderKind {
	base, _, _ := strings.Cut(string(k), ":")
	return ReminderKind(base)
}

// Session reminder modes.
const (
	SessionsFirstOnly = "first_only"
	SessionsAll       = "all_sessions"
)

// ReminderMarker records that a reminder was sent. (BookingID, Kind) is unique.
type ReminderMarker struct {
	BookingID string       `bson:"booking_id" json:"booking_id"`
	Kind      ReminderKind `bson:"kind" json:"kind"`
	Recipient string       `bson:"recipient" json:"recipient"`
	SentAt    time.Time    `bson:"sent_at" json:"sent_at"`
}

// ReminderCandidate joins a booking with the course and plan needed to
// decide whether a reminder is due.
type ReminderCandidate struct {
	Booking Booking
	Course  Course
	Plan    PaymentPlan
}
