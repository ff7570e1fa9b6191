package repository

import (
	"context"
	"errors"
	"time"

	"coursebook/models"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
)

// Tx is the set of reads and writes available inside one store transaction.
// Lock* methods take a row-level lock held until the transaction ends.
type Tx interface {
	LockCourse(ctx context.Context, courseID string) (*models.Course, error)
	LockBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	// CountOccupied returns the confirmed bookings for a course and the
	// pending ones created at or after heldSince.
	CountOccupied(ctx context.Context, courseID string, heldSince time.Time) (confirmed, held int, err error)
	GetTier(ctx context.Context, tierID string) (*models.PricingTier, error)
	GetPlan(ctx context.Context, planID string) (*models.PaymentPlan, error)
	InsertBooking(ctx context.Context, b *models.Booking) error
	ListPaymentEvents(ctx context.Context, bookingID string) ([]models.PaymentEvent, error)
	PaymentEventExists(ctx context.Context, bookingID, gatewayEventID string) (bool, error)
	InsertPaymentEvent(ctx context.Context, ev *models.PaymentEvent) error
	UpdateBookingStatus(ctx context.Context, bookingID string, status models.PaymentStatus, at time.Time) error
}

// Store is the durable store behind the booking subsystem.
type Store interface {
	// WithTx runs fn in a transaction. A non-nil error from fn rolls back.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetCourse(ctx context.Context, courseID string) (*models.Course, error)
	GetTier(ctx context.Context, tierID string) (*models.PricingTier, error)
	GetPlan(ctx context.Context, planID string) (*models.PaymentPlan, error)
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	CountConfirmed(ctx context.Context, courseID string) (int, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	ListPaymentEvents(ctx context.Context, bookingID string) ([]models.PaymentEvent, error)

	// CreateContact stores a booking without a course.
	CreateContact(ctx context.Context, b *models.Booking) error

	// ListReminderCandidates returns course bookings in status (and plan kind,
	// when non-empty) that have no marker of the given kind.
	ListReminderCandidates(ctx context.Context, kind models.ReminderKind, status models.PaymentStatus, plan models.PlanKind) ([]models.ReminderCandidate, error)
	InsertReminderMarker(ctx context.Context, m *models.ReminderMarker) error
	// ListStalePending returns course bookings still pending that were created before cutoff.
	ListStalePending(ctx context.Context, cutoff time.Time) ([]models.Booking, error)

	// Operator configuration writes, used by seeding and admin tooling.
	SaveCourse(ctx context.Context, c *models.Course) error
	SaveTier(ctx context.Context, t *models.PricingTier) error
	SavePlan(ctx context.Context, p *models.PaymentPlan) error

	EnsureSchema(ctx context.Context) error
	Close(ctx context.Context) error
}
