package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coursebook/database/repository"
	"coursebook/metrics"
	"coursebook/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Verifier authenticates a raw gateway notification.
type Verifier interface {
	VerifyEvent(payload []byte, signature string) (*models.GatewayEvent, error)
}

// ConfirmationQueue schedules the booking confirmation email.
type ConfirmationQueue interface {
	EnqueueConfirmation(ctx context.Context, p models.ConfirmationPayload) error
}

// Result classifies a reconciliation.
type Result string

const (
	Applied   Result = "applied"
	Duplicate Result = "duplicate"
	Ignored   Result = "ignored"
	Rejected  Result = "rejected"
)

// Outcome describes what a notification did to the ledger.
type Outcome struct {
	Result    Result
	Reason    error // one of the Err* rejections when Result is Rejected
	BookingID string
	EventID   string
	From      models.PaymentStatus
	To        models.PaymentStatus
}

// Reconciler turns gateway notifications into ledger entries and status
// transitions. It is the only writer of payment events and booking status.
type Reconciler struct {
	store    repository.Store
	verifier Verifier
	queue    ConfirmationQueue
	metrics  *metrics.Recorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewReconciler(store repository.Store, verifier Verifier, queue ConfirmationQueue, rec *metrics.Recorder, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:    store,
		verifier: verifier,
		queue:    queue,
		metrics:  rec,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile verifies a webhook delivery and applies it. The returned error is
// non-nil only for store failures; rejections are reported in the Outcome.
func (r *Reconciler) Reconcile(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	gev, err := r.verifier.VerifyEvent(payload, signature)
	if err != nil {
		reason := ErrMalformedEvent
		if errors.Is(err, ErrInvalidSignature) {
			reason = ErrInvalidSignature
		}
		r.logger.Warn("Rejected webhook delivery", zap.String("reason", ReasonCode(reason)), zap.Error(err))
		return r.record(Outcome{Result: Rejected, Reason: reason}), nil
	}

	out := Outcome{BookingID: gev.BookingID, EventID: gev.ID}
	if gev.Kind == "" {
		r.logger.Debug("Ignoring gateway event type", zap.String("event_id", gev.ID), zap.String("type", gev.Type))
		out.Result = Ignored
		return r.record(out), nil
	}
	if gev.BookingID == "" {
		r.logger.Info("Ignoring payment intent without booking metadata",
			zap.String("event_id", gev.ID), zap.String("payment_intent_id", gev.PaymentIntentID))
		out.Result = Ignored
		return r.record(out), nil
	}

	return r.Apply(ctx, models.PaymentEvent{
		BookingID:       gev.BookingID,
		GatewayEventID:  gev.ID,
		PaymentIntentID: gev.PaymentIntentID,
		Kind:            gev.Kind,
		Amount:          gev.Amount,
		Sequence:        gev.Sequence,
	})
}

// Apply appends ev to its booking's ledger and persists the resulting status
// in one transaction holding the booking lock.
func (r *Reconciler) Apply(ctx context.Context, ev models.PaymentEvent) (Outcome, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	out := Outcome{BookingID: ev.BookingID, EventID: ev.GatewayEventID}

	err := r.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.LockBooking(ctx, ev.BookingID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUnknownBooking
		}
		if err != nil {
			return err
		}
		out.From, out.To = b.Status, b.Status

		exists, err := tx.PaymentEventExists(ctx, ev.BookingID, ev.GatewayEventID)
		if err != nil {
			return err
		}
		if exists {
			return errRecorded
		}
		if b.IsContact() {
			return ErrNotPayable
		}

		history, err := tx.ListPaymentEvents(ctx, ev.BookingID)
		if err != nil {
			return err
		}
		next, err := Transition(b.PlanKind, b.TotalAmount, b.Status, history, ev)
		if err != nil {
			return err
		}
		if err := tx.InsertPaymentEvent(ctx, &ev); err != nil {
			return err
		}
		if next != b.Status {
			if err := tx.UpdateBookingStatus(ctx, b.ID, next, ev.CreatedAt); err != nil {
				return err
			}
		}
		out.To = next
		return nil
	})

	switch {
	case err == nil:
		out.Result = Applied
	case errors.Is(err, errRecorded), errors.Is(err, repository.ErrDuplicate):
		out.Result = Duplicate
		out.To = out.From
		r.logger.Info("Duplicate gateway event", zap.String("booking_id", ev.BookingID), zap.String("event_id", ev.GatewayEventID))
		return r.record(out), nil
	default:
		reason := rejection(err)
		if reason == nil {
			r.logger.Error("Reconciliation failed",
				zap.String("booking_id", ev.BookingID), zap.String("event_id", ev.GatewayEventID), zap.Error(err))
			r.metrics.Reconcile("error", "internal")
			return out, fmt.Errorf("reconcile event %s: %w", ev.GatewayEventID, err)
		}
		out.Result, out.Reason, out.To = Rejected, reason, out.From
		fields := []zap.Field{
			zap.String("booking_id", ev.BookingID),
			zap.String("event_id", ev.GatewayEventID),
			zap.Int("sequence", ev.Sequence),
			zap.Int64("amount", ev.Amount),
			zap.Error(err),
		}
		if integrityViolation(reason) {
			r.logger.Error("Payment ledger anomaly needs operator review", fields...)
			r.metrics.IntegrityViolation(ReasonCode(reason))
		} else {
			r.logger.Warn("Rejected payment event", fields...)
		}
		return r.record(out), nil
	}

	if out.From != out.To {
		r.logger.Info("Booking status transition",
			zap.String("booking_id", ev.BookingID),
			zap.String("event_id", ev.GatewayEventID),
			zap.String("from", string(out.From)),
			zap.String("to", string(out.To)))
		r.metrics.Transition(string(out.From), string(out.To))

		if !out.From.Confirmed() && out.To.Confirmed() {
			r.enqueueConfirmation(ctx, out)
		}
	}
	return r.record(out), nil
}

func (r *Reconciler) enqueueConfirmation(ctx context.Context, out Outcome) {
	if r.queue == nil {
		return
	}
	err := r.queue.EnqueueConfirmation(ctx, models.ConfirmationPayload{
		BookingID: out.BookingID,
		Status:    out.To,
		EventID:   out.EventID,
	})
	if err != nil {
		r.logger.Error("Failed to enqueue booking confirmation",
			zap.String("booking_id", out.BookingID), zap.String("event_id", out.EventID), zap.Error(err))
	}
}

func (r *Reconciler) record(out Outcome) Outcome {
	r.metrics.Reconcile(string(out.Result), ReasonCode(out.Reason))
	return out
}
