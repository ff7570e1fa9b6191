package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coursebook/models"
	"coursebook/services/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap/zaptest"
)

const testSecret = "whsec_test_secret"

func intentEvent(eventID, eventType, bookingID, sequence string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{
  "id": %q,
  "object": "event",
  "type": %q,
  "api_version": "2020-08-27",
  "data": {"object": {
    "id": "pi_123",
    "object": "payment_intent",
    "amount": %d,
    "amount_received": %d,
    "currency": "gbp",
    "metadata": {"booking_id": %q, "sequence": %q}
  }}
}`, eventID, eventType, amount, amount, bookingID, sequence))
}

func sign(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestVerifyEvent(t *testing.T) {
	g := NewStripeGateway("sk_test_123", testSecret, nil, zaptest.NewLogger(t))

	t.Run("succeeded intent", func(t *testing.T) {
		payload := intentEvent("evt_1", "payment_intent.succeeded", "bk-1", "2", 16250)
		ev, err := g.VerifyEvent(payload, sign(t, payload, testSecret))
		require.NoError(t, err)
		assert.Equal(t, "evt_1", ev.ID)
		assert.Equal(t, models.EventSucceeded, ev.Kind)
		assert.Equal(t, "bk-1", ev.BookingID)
		assert.Equal(t, "pi_123", ev.PaymentIntentID)
		assert.Equal(t, int64(16250), ev.Amount)
		assert.Equal(t, 2, ev.Sequence)
	})

	t.Run("failed intent", func(t *testing.T) {
		payload := intentEvent("evt_2", "payment_intent.payment_failed", "bk-1", "1", 16250)
		ev, err := g.VerifyEvent(payload, sign(t, payload, testSecret))
		require.NoError(t, err)
		assert.Equal(t, models.EventFailed, ev.Kind)
	})

	t.Run("wrong secret", func(t *testing.T) {
		payload := intentEvent("evt_3", "payment_intent.succeeded", "bk-1", "1", 16250)
		_, err := g.VerifyEvent(payload, sign(t, payload, "whsec_other"))
		assert.ErrorIs(t, err, payment.ErrInvalidSignature)
	})

	t.Run("missing header", func(t *testing.T) {
		payload := intentEvent("evt_4", "payment_intent.succeeded", "bk-1", "1", 16250)
		_, err := g.VerifyEvent(payload, "")
		assert.ErrorIs(t, err, payment.ErrInvalidSignature)
	})

	t.Run("untracked type", func(t *testing.T) {
		payload := intentEvent("evt_5", "charge.refunded", "bk-1", "1", 16250)
		ev, err := g.VerifyEvent(payload, sign(t, payload, testSecret))
		require.NoError(t, err)
		assert.Empty(t, ev.Kind)
	})

	t.Run("bad sequence metadata", func(t *testing.T) {
		payload := intentEvent("evt_6", "payment_intent.succeeded", "bk-1", "first", 16250)
		_, err := g.VerifyEvent(payload, sign(t, payload, testSecret))
		assert.ErrorIs(t, err, payment.ErrMalformedEvent)
	})
}

func TestCreatePayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "checkout-bk-1-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "16250", r.Form.Get("amount"))
		assert.Equal(t, "gbp", r.Form.Get("currency"))
		assert.Equal(t, "bk-1", r.Form.Get("metadata[booking_id]"))
		assert.Equal(t, "1", r.Form.Get("metadata[sequence]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","amount":16250,"currency":"gbp","client_secret":"pi_123_secret_abc"}`))
	}))
	defer srv.Close()

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
	})
	g := NewStripeGateway("sk_test_123", testSecret, &stripe.Backends{API: backend, Connect: backend, Uploads: backend}, zaptest.NewLogger(t))

	handle, err := g.CreatePayment(context.Background(), models.PaymentRequest{
		BookingID:      "bk-1",
		Amount:         16250,
		Currency:       "gbp",
		Sequence:       1,
		PlanKind:       models.PlanInstallments,
		Email:          "ada@example.com",
		IdempotencyKey: "checkout-bk-1-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", handle.PaymentIntentID)
	assert.Equal(t, "pi_123_secret_abc", handle.ClientSecret)
	assert.Equal(t, int64(16250), handle.Amount)
	assert.Equal(t, 1, handle.Sequence)
}
