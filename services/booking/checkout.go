package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"coursebook/database/repository"
	"coursebook/models"
	"coursebook/services/notification"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxSubjectLen = 200

// Checkout admits a booking for the selected tier and plan and opens the
// first payment. The booking stays pending until the gateway reports success.
func (s *DefaultBookingService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	contact := normalizeContact(req.Contact)
	if req.CourseID == "" || req.TierID == "" || req.PlanID == "" {
		return nil, fmt.Errorf("%w: course, tier and plan are required", ErrInvalidRequest)
	}
	if contact.FullName == "" || contact.Email == "" {
		return nil, fmt.Errorf("%w: name and email are required", ErrInvalidRequest)
	}

	var title string
	now := s.now()
	b, err := s.TryAdmit(ctx, req.CourseID, func(ctx context.Context, tx repository.Tx, course *models.Course) (*models.Booking, error) {
		title = course.Title
		tier, err := tx.GetTier(ctx, req.TierID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownTier
		}
		if err != nil {
			return nil, err
		}
		if tier.CourseID != course.ID || tier.Amount <= 0 {
			return nil, ErrUnknownTier
		}

		plan, err := tx.GetPlan(ctx, req.PlanID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownPlan
		}
		if err != nil {
			return nil, err
		}
		if !validPlan(plan) {
			return nil, ErrUnknownPlan
		}

		deposit, final := plan.Split(tier.Amount)
		return &models.Booking{
			ID:            uuid.NewString(),
			TierID:        tier.ID,
			PlanID:        plan.ID,
			PlanKind:      plan.Kind,
			Contact:       contact,
			Status:        models.StatusPending,
			TotalAmount:   tier.Amount,
			DepositAmount: deposit,
			FinalAmount:   final,
			Currency:      s.policy.Currency,
			CreatedAt:     now,
			UpdatedAt:     now,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Booking admitted",
		zap.String("booking_id", b.ID),
		zap.String("course_id", b.CourseID),
		zap.String("plan", string(b.PlanKind)),
		zap.Int64("total", b.TotalAmount))

	handle, err := s.openPayment(ctx, *b, models.SequenceFirst, fmt.Sprintf("%s (%s)", title, b.PlanKind))
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{Booking: *b, Payment: handle}, nil
}

// FinalPayment opens the second installment of a deposit-paid booking.
func (s *DefaultBookingService) FinalPayment(ctx context.Context, bookingID string) (*models.PaymentHandle, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load booking %s: %w", bookingID, err)
	}
	if b.IsContact() || b.PlanKind != models.PlanInstallments || b.Status != models.StatusDepositPaid {
		return nil, fmt.Errorf("%w: booking %s is %s", ErrFinalPaymentNotDue, b.ID, b.Status)
	}
	return s.openPayment(ctx, *b, models.SequenceFinal, "Final installment")
}

func (s *DefaultBookingService) openPayment(ctx context.Context, b models.Booking, sequence int, description string) (*models.PaymentHandle, error) {
	if s.gateway == nil {
		return nil, fmt.Errorf("%w: no payment gateway configured", ErrPaymentUnavailable)
	}
	handle, err := s.gateway.CreatePayment(ctx, models.PaymentRequest{
		BookingID:      b.ID,
		Amount:         b.AmountFor(sequence),
		Currency:       b.Currency,
		Sequence:       sequence,
		PlanKind:       b.PlanKind,
		Email:          b.Contact.Email,
		Description:    description,
		IdempotencyKey: fmt.Sprintf("checkout-%s-%d", b.ID, sequence),
	})
	if err != nil {
		s.logger.Error("Failed to open payment",
			zap.String("booking_id", b.ID), zap.Int("sequence", sequence), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
	}
	return handle, nil
}

// Contact stores a contact-form submission as a booking with no course and
// notifies the operators. Notification failures are logged only.
func (s *DefaultBookingService) Contact(ctx context.Context, req ContactRequest) (*models.Booking, error) {
	subject := SanitizeSubject(req.Subject)
	message := strings.TrimSpace(req.Message)
	contact := normalizeContact(models.ContactDetails{FullName: req.FullName, Email: req.Email, Phone: req.Phone})
	if contact.FullName == "" || contact.Email == "" || subject == "" || message == "" {
		return nil, fmt.Errorf("%w: name, email, subject and message are required", ErrInvalidRequest)
	}

	now := s.now()
	contact.Message = fmt.Sprintf("Subject: %s\n\n%s", subject, message)
	b := &models.Booking{
		ID:        uuid.NewString(),
		Contact:   contact,
		Status:    models.StatusPending,
		Currency:  s.policy.Currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateContact(ctx, b); err != nil {
		return nil, fmt.Errorf("store contact submission: %w", err)
	}
	s.logger.Info("Contact form received", zap.String("booking_id", b.ID))

	if s.mailer == nil {
		return b, nil
	}
	data := notification.EmailData{Booking: *b, Subject: subject}
	data.Booking.Contact.Message = message
	for _, to := range s.policy.OperatorEmails {
		if err := s.mailer.Send(ctx, models.TemplateContactForm, to, data); err != nil {
			s.logger.Error("Failed to send contact notification",
				zap.String("booking_id", b.ID), zap.String("recipient", to), zap.Error(err))
		}
	}
	return b, nil
}

// SanitizeSubject strips characters that could inject mail headers and
// truncates to 200 characters.
func SanitizeSubject(subject string) string {
	subject = strings.NewReplacer("\n", " ", "\r", " ", "\x00", " ").Replace(subject)
	subject = strings.TrimSpace(subject)
	if utf8.RuneCountInString(subject) > maxSubjectLen {
		subject = string([]rune(subject)[:maxSubjectLen])
	}
	return subject
}

func normalizeContact(c models.ContactDetails) models.ContactDetails {
	c.FullName = strings.TrimSpace(c.FullName)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Phone = strings.TrimSpace(c.Phone)
	c.Message = strings.TrimSpace(c.Message)
	return c
}

func validPlan(p *models.PaymentPlan) bool {
	if !p.IsActive {
		return false
	}
	switch p.Kind {
	case models.PlanFull:
		return true
	case models.PlanInstallments:
		return p.DepositPercent > 0 && p.DepositPercent < 100
	}
	return false
}
