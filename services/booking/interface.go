package booking

import (
	"context"
	"time"

	"coursebook/database/repository"
	"coursebook/metrics"
	"coursebook/models"
	"coursebook/services/notification"

	"go.uber.org/zap"
)

// BookingService is the customer-facing side of the booking subsystem.
type BookingService interface {
	RemainingSeats(ctx context.Context, courseID string) (int, error)
	Availability(ctx context.Context, courseID string) (*Availability, error)
	Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	FinalPayment(ctx context.Context, bookingID string) (*models.PaymentHandle, error)
	Contact(ctx context.Context, req ContactRequest) (*models.Booking, error)
}

// PaymentGateway opens a payment for one installment.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, req models.PaymentRequest) (*models.PaymentHandle, error)
}

// Policy holds the tunable admission rules.
type Policy struct {
	// HoldWindow is how long a pending booking keeps its seat while the
	// customer pays. Zero counts confirmed bookings only.
	HoldWindow time.Duration
	Currency   string
	// OperatorEmails receive contact-form submissions.
	OperatorEmails []string
}

// Availability separates confirmed seats from seats held by in-flight
// checkouts. Bookable is what TryAdmit would accept right now.
type Availability struct {
	Remaining int `json:"remaining_seats"`
	Held      int `json:"held_seats"`
	Bookable  int `json:"bookable_seats"`
}

// CheckoutRequest is a customer's seat and price selection.
type CheckoutRequest struct {
	CourseID string                `json:"course_id" binding:"required"`
	TierID   string                `json:"tier_id" binding:"required"`
	PlanID   string                `json:"plan_id" binding:"required"`
	Contact  models.ContactDetails `json:"contact" binding:"required"`
}

// CheckoutResult is returned once a seat is admitted and the first payment opened.
type CheckoutResult struct {
	Booking models.Booking        `json:"-"`
	Payment *models.PaymentHandle `json:"-"`
}

// ContactRequest is a contact-form submission.
type ContactRequest struct {
	FullName string `json:"full_name" binding:"required,min=2,max=100"`
	Email    string `json:"email" binding:"required,email,max=254"`
	Phone    string `json:"phone" binding:"max=20"`
	Subject  string `json:"subject" binding:"required,max=200"`
	Message  string `json:"message" binding:"required,max=1000"`

	TurnstileToken string `json:"cf-turnstile-response"`
}

// DefaultBookingService implements BookingService on a repository.Store.
type DefaultBookingService struct {
	store   repository.Store
	gateway PaymentGateway
	mailer  notification.Mailer
	metrics *metrics.Recorder
	policy  Policy
	logger  *zap.Logger
	now     func() time.Time
}

func NewDefaultBookingService(
	store repository.Store,
	gateway PaymentGateway,
	mailer notification.Mailer,
	rec *metrics.Recorder,
	policy Policy,
	logger *zap.Logger,
) *DefaultBookingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.Currency == "" {
		policy.Currency = "gbp"
	}
	return &DefaultBookingService{
		store:   store,
		gateway: gateway,
		mailer:  mailer,
		metrics: rec,
		policy:  policy,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}
