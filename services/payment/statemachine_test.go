package payment

import (
	"testing"
	"time"

	"coursebook/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func succeededEvent(id string, seq int, amount int64) models.PaymentEvent {
	return models.PaymentEvent{GatewayEventID: id, Kind: models.EventSucceeded, Sequence: seq, Amount: amount}
}

func TestTransition(t *testing.T) {
	deposit := succeededEvent("evt_1", 1, 16250)
	final := succeededEvent("evt_2", 2, 16250)

	tests := []struct {
		name    string
		plan    models.PlanKind
		current models.PaymentStatus
		history []models.PaymentEvent
		event   models.PaymentEvent
		want    models.PaymentStatus
		wantErr error
	}{
		{
			name: "full plan single payment", plan: models.PlanFull, current: models.StatusPending,
			event: succeededEvent("evt_1", 1, 32500), want: models.StatusFullyPaid,
		},
		{
			name: "full plan second success rejected", plan: models.PlanFull, current: models.StatusFullyPaid,
			history: []models.PaymentEvent{succeededEvent("evt_1", 1, 32500)},
			event:   succeededEvent("evt_9", 1, 32500), wantErr: ErrAlreadyPaid,
		},
		{
			name: "full plan rejects sequence 2", plan: models.PlanFull, current: models.StatusPending,
			event: succeededEvent("evt_1", 2, 32500), wantErr: ErrInvalidSequence,
		},
		{
			name: "deposit", plan: models.PlanInstallments, current: models.StatusPending,
			event: deposit, want: models.StatusDepositPaid,
		},
		{
			name: "final installment", plan: models.PlanInstallments, current: models.StatusDepositPaid,
			history: []models.PaymentEvent{deposit}, event: final, want: models.StatusFullyPaid,
		},
		{
			name: "final before deposit", plan: models.PlanInstallments, current: models.StatusPending,
			event: final, wantErr: ErrOutOfOrderPayment,
		},
		{
			name: "deposit twice under different event ids", plan: models.PlanInstallments, current: models.StatusDepositPaid,
			history: []models.PaymentEvent{deposit}, event: succeededEvent("evt_3", 1, 16250), wantErr: ErrDuplicateSequence,
		},
		{
			name: "third success", plan: models.PlanInstallments, current: models.StatusFullyPaid,
			history: []models.PaymentEvent{deposit, final}, event: succeededEvent("evt_3", 2, 1), wantErr: ErrAlreadyPaid,
		},
		{
			name: "installments sequence 3", plan: models.PlanInstallments, current: models.StatusPending,
			event: succeededEvent("evt_3", 3, 100), wantErr: ErrInvalidSequence,
		},
		{
			name: "amount above total", plan: models.PlanInstallments, current: models.StatusDepositPaid,
			history: []models.PaymentEvent{deposit}, event: succeededEvent("evt_2", 2, 16251), wantErr: ErrAmountExceeded,
		},
		{
			name: "attempt never moves status", plan: models.PlanInstallments, current: models.StatusPending,
			event: models.PaymentEvent{Kind: models.EventAttempt, Sequence: 1}, want: models.StatusPending,
		},
		{
			name: "failed installment keeps deposit", plan: models.PlanInstallments, current: models.StatusDepositPaid,
			history: []models.PaymentEvent{deposit},
			event:   models.PaymentEvent{Kind: models.EventFailed, Sequence: 2, Amount: 16250}, want: models.StatusDepositPaid,
		},
		{
			name: "gateway failure on first payment keeps pending", plan: models.PlanFull, current: models.StatusPending,
			event: models.PaymentEvent{Kind: models.EventFailed, Sequence: 1}, want: models.StatusPending,
		},
		{
			name: "expiry fails untouched booking", plan: models.PlanFull, current: models.StatusPending,
			event: models.PaymentEvent{Kind: models.EventFailed, Sequence: 0}, want: models.StatusFailed,
		},
		{
			name: "expiry does not touch paid deposit", plan: models.PlanInstallments, current: models.StatusDepositPaid,
			history: []models.PaymentEvent{deposit},
			event:   models.PaymentEvent{Kind: models.EventFailed, Sequence: 0}, want: models.StatusDepositPaid,
		},
		{
			name: "late payment after expiry still applies", plan: models.PlanInstallments, current: models.StatusFailed,
			history: []models.PaymentEvent{{Kind: models.EventFailed, Sequence: 0}},
			event:   deposit, want: models.StatusDepositPaid,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Transition(tc.plan, 32500, tc.current, tc.history, tc.event)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, tc.current, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDeriveReplaysInSequenceOrder(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	history := []models.PaymentEvent{
		{GatewayEventID: "evt_2", Kind: models.EventSucceeded, Sequence: 2, Amount: 16250, CreatedAt: t0.Add(2 * time.Hour)},
		{GatewayEventID: "evt_f", Kind: models.EventFailed, Sequence: 2, Amount: 16250, CreatedAt: t0.Add(time.Hour)},
		{GatewayEventID: "evt_1", Kind: models.EventSucceeded, Sequence: 1, Amount: 16250, CreatedAt: t0},
	}

	status, err := Derive(models.PlanInstallments, 32500, history)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFullyPaid, status)

	status, err = Derive(models.PlanInstallments, 32500, history[1:])
	require.NoError(t, err)
	assert.Equal(t, models.StatusDepositPaid, status)

	// Final installment stamped before the deposit by a lagging clock.
	skewed := []models.PaymentEvent{
		{GatewayEventID: "evt_2", Kind: models.EventSucceeded, Sequence: 2, Amount: 16250, CreatedAt: t0.Add(-2 * time.Second)},
		{GatewayEventID: "evt_1", Kind: models.EventSucceeded, Sequence: 1, Amount: 16250, CreatedAt: t0},
	}
	status, err = Derive(models.PlanInstallments, 32500, skewed)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFullyPaid, status)
}

func TestReplayOrder(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	got := ReplayOrder([]models.PaymentEvent{
		{GatewayEventID: "b", Sequence: 1, CreatedAt: t0.Add(time.Minute)},
		{GatewayEventID: "c", Sequence: 2, CreatedAt: t0.Add(-time.Hour)},
		{GatewayEventID: "expiry", Sequence: 0, CreatedAt: t0.Add(time.Hour)},
		{GatewayEventID: "a", Sequence: 1, CreatedAt: t0},
	})
	ids := make([]string, 0, len(got))
	for _, ev := range got {
		ids = append(ids, ev.GatewayEventID)
	}
	assert.Equal(t, []string{"expiry", "a", "b", "c"}, ids)
}

func TestDeriveSurfacesCorruptLedger(t *testing.T) {
	history := []models.PaymentEvent{
		{GatewayEventID: "evt_1", Kind: models.EventSucceeded, Sequence: 1, Amount: 32500},
		{GatewayEventID: "evt_2", Kind: models.EventSucceeded, Sequence: 1, Amount: 32500},
	}
	status, err := Derive(models.PlanFull, 32500, history)
	require.ErrorIs(t, err, ErrAlreadyPaid)
	assert.Equal(t, models.StatusFullyPaid, status)
}
