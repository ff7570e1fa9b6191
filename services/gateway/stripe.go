package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"coursebook/models"
	"coursebook/services/payment"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// Metadata keys stamped on every PaymentIntent so webhooks can be tied back
// to a booking and installment.
const (
	MetaBookingID = "booking_id"
	MetaSequence  = "sequence"
	MetaPlan      = "plan"
)

// StripeGateway creates PaymentIntents and verifies Stripe webhooks.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	logger        *zap.Logger
}

// NewStripeGateway builds a gateway. backends may be nil to use Stripe's API.
func NewStripeGateway(apiKey, webhookSecret string, backends *stripe.Backends, logger *zap.Logger) *StripeGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StripeGateway{
		api:           client.New(apiKey, backends),
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// CreatePayment opens a PaymentIntent for one installment of a booking.
func (g *StripeGateway) CreatePayment(ctx context.Context, req models.PaymentRequest) (*models.PaymentHandle, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.Context = ctx
	params.AddMetadata(MetaBookingID, req.BookingID)
	params.AddMetadata(MetaSequence, strconv.Itoa(req.Sequence))
	params.AddMetadata(MetaPlan, string(req.PlanKind))
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent for booking %s: %w", req.BookingID, err)
	}
	g.logger.Info("Created payment intent",
		zap.String("booking_id", req.BookingID),
		zap.String("payment_intent_id", pi.ID),
		zap.Int("sequence", req.Sequence),
		zap.Int64("amount", req.Amount))

	return &models.PaymentHandle{
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
		Amount:          pi.Amount,
		Currency:        string(pi.Currency),
		Sequence:        req.Sequence,
	}, nil
}

// VerifyEvent checks the Stripe-Signature header and reduces a PaymentIntent
// event to a GatewayEvent. Other event types come back with an empty Kind.
func (g *StripeGateway) VerifyEvent(payload []byte, signature string) (*models.GatewayEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, fmt.Errorf("%w: %v", payment.ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", payment.ErrMalformedEvent, err)
	}

	out := &models.GatewayEvent{ID: event.ID, Type: string(event.Type)}
	switch event.Type {
	case "payment_intent.succeeded":
		out.Kind = models.EventSucceeded
	case "payment_intent.payment_failed":
		out.Kind = models.EventFailed
	case "payment_intent.created":
		out.Kind = models.EventAttempt
	default:
		return out, nil
	}

	if event.Data == nil {
		return nil, fmt.Errorf("%w: event %s has no data", payment.ErrMalformedEvent, event.ID)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: decode payment intent: %v", payment.ErrMalformedEvent, err)
	}

	out.PaymentIntentID = pi.ID
	out.Amount = pi.Amount
	if out.Kind == models.EventSucceeded && pi.AmountReceived > 0 {
		out.Amount = pi.AmountReceived
	}
	out.BookingID = pi.Metadata[MetaBookingID]
	if out.BookingID != "" {
		seq, err := strconv.Atoi(pi.Metadata[MetaSequence])
		if err != nil {
			return nil, fmt.Errorf("%w: sequence metadata %q on %s", payment.ErrMalformedEvent, pi.Metadata[MetaSequence], pi.ID)
		}
		out.Sequence = seq
	}
	return out, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrTooOld)
}
