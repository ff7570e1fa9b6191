package payment

import (
	"context"
	"fmt"
	"time"

	"coursebook/database/repository"
	"coursebook/models"

	"go.uber.org/zap"
)

// LedgerReport compares a booking's cached status with its replayed ledger.
type LedgerReport struct {
	Booking       models.Booking        `json:"booking"`
	Events        []models.PaymentEvent `json:"events"`
	StoredStatus  models.PaymentStatus  `json:"stored_status"`
	DerivedStatus models.PaymentStatus  `json:"derived_status"`
	PaidAmount    int64                 `json:"paid_amount"`
	Consistent    bool                  `json:"consistent"`
	ReplayError   string                `json:"replay_error,omitempty"`
}

// AuditBooking loads one booking's ledger and replays it.
func AuditBooking(ctx context.Context, store repository.Store, bookingID string) (*LedgerReport, error) {
	b, err := store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	events, err := store.ListPaymentEvents(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	rep := &LedgerReport{Booking: *b, Events: events, StoredStatus: b.Status}
	_, rep.PaidAmount = succeededSoFar(events)
	if b.IsContact() {
		rep.DerivedStatus, rep.Consistent = b.Status, true
		return rep, nil
	}
	derived, err := Derive(b.PlanKind, b.TotalAmount, events)
	if err != nil {
		rep.ReplayError = err.Error()
	}
	rep.DerivedStatus = derived
	rep.Consistent = err == nil && derived == b.Status
	return rep, nil
}

// ExpireStale fails pending bookings older than expiry that never received a
// payment, by appending a sequence-0 failed event through Apply. It returns
// the number of bookings moved to failed.
func (r *Reconciler) ExpireStale(ctx context.Context, now time.Time, expiry time.Duration) (int, error) {
	if expiry <= 0 {
		return 0, nil
	}
	stale, err := r.store.ListStalePending(ctx, now.Add(-expiry))
	if err != nil {
		return 0, fmt.Errorf("list stale bookings: %w", err)
	}

	expired := 0
	for _, b := range stale {
		out, err := r.Apply(ctx, models.PaymentEvent{
			BookingID:      b.ID,
			GatewayEventID: "expiry:" + b.ID,
			Kind:           models.EventFailed,
			Sequence:       models.SequenceBooking,
			CreatedAt:      now,
		})
		if err != nil {
			return expired, err
		}
		if out.Result == Applied && out.To == models.StatusFailed {
			expired++
		}
	}
	if expired > 0 {
		r.logger.Info("Expired abandoned checkouts", zap.Int("count", expired), zap.Duration("expiry", expiry))
	}
	return expired, nil
}
