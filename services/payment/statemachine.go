package payment

import (
	"fmt"
	"sort"

	"coursebook/models"
)

// Transition returns the status a booking moves to when ev is appended to
// history. It never mutates anything; callers persist the result together
// with the event. total is the booking's frozen tier amount.
func Transition(plan models.PlanKind, total int64, current models.PaymentStatus, history []models.PaymentEvent, ev models.PaymentEvent) (models.PaymentStatus, error) {
	succeeded, paid := succeededSoFar(history)

	switch ev.Kind {
	case models.EventAttempt:
		return current, nil
	case models.EventFailed:
		// Only the abandoned-checkout sweep fails a booking as a whole. A
		// failed installment keeps whatever was already paid visible.
		if ev.Sequence == models.SequenceBooking && current == models.StatusPending && succeeded == 0 {
			return models.StatusFailed, nil
		}
		return current, nil
	case models.EventSucceeded:
	default:
		return current, fmt.Errorf("%w: unknown event kind %q", ErrMalformedEvent, ev.Kind)
	}

	var next models.PaymentStatus
	switch plan {
	case models.PlanFull:
		switch {
		case succeeded >= 1:
			return current, ErrAlreadyPaid
		case ev.Sequence != models.SequenceFirst:
			return current, fmt.Errorf("%w: sequence %d on full plan", ErrInvalidSequence, ev.Sequence)
		}
		next = models.StatusFullyPaid

	case models.PlanInstallments:
		switch {
		case ev.Sequence != models.SequenceFirst && ev.Sequence != models.SequenceFinal:
			return current, fmt.Errorf("%w: sequence %d on installments plan", ErrInvalidSequence, ev.Sequence)
		case succeeded >= 2:
			return current, ErrAlreadyPaid
		case ev.Sequence > succeeded+1:
			return current, fmt.Errorf("%w: got sequence %d with %d succeeded", ErrOutOfOrderPayment, ev.Sequence, succeeded)
		case ev.Sequence <= succeeded:
			return current, fmt.Errorf("%w: sequence %d", ErrDuplicateSequence, ev.Sequence)
		}
		next = models.StatusDepositPaid
		if succeeded == 1 {
			next = models.StatusFullyPaid
		}

	default:
		return current, fmt.Errorf("%w: unknown plan %q", ErrInvalidSequence, plan)
	}

	if paid+ev.Amount > total {
		return current, fmt.Errorf("%w: %d + %d > %d", ErrAmountExceeded, paid, ev.Amount, total)
	}
	return next, nil
}

// Derive replays a booking's ledger from pending. It is what the stored
// status must always equal.
func Derive(plan models.PlanKind, total int64, history []models.PaymentEvent) (models.PaymentStatus, error) {
	ordered := ReplayOrder(history)

	status := models.StatusPending
	for i, ev := range ordered {
		next, err := Transition(plan, total, status, ordered[:i], ev)
		if err != nil {
			return status, fmt.Errorf("replay event %s: %w", ev.GatewayEventID, err)
		}
		status = next
	}
	return status, nil
}

// ReplayOrder sorts events by sequence, then arrival. CreatedAt comes from
// whichever process reconciled the event, so it only breaks ties within a
// sequence; a sequence-0 expiry has the same effect wherever it lands.
func ReplayOrder(history []models.PaymentEvent) []models.PaymentEvent {
	ordered := append([]models.PaymentEvent(nil), history...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Sequence != ordered[j].Sequence {
			return ordered[i].Sequence < ordered[j].Sequence
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	return ordered
}

func succeededSoFar(history []models.PaymentEvent) (count int, sum int64) {
	for _, ev := range history {
		if ev.Kind == models.EventSucceeded {
			count++
			sum += ev.Amount
		}
	}
	return count, sum
}
