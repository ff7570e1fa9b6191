package models

import "time"

// PaymentEventKind classifies ledger entries.
type PaymentEventKind string

const (
	EventAttempt   PaymentEventKind = "attempt"
	EventSucceeded PaymentEventKind = "succeeded"
	EventFailed    PaymentEventKind = "failed"
)

// Sequence numbers within a booking.
const (
	SequenceBooking = 0 // booking-level failure, written by the abandoned-checkout sweep
	SequenceFirst   = 1 // deposit or full payment
	SequenceFinal   = 2 // second installment
)

// PaymentEvent is one append-only entry of the payment ledger.
// (BookingID, GatewayEventID) is unique.
type PaymentEvent struct {
	ID              string           `bson:"id" json:"id"`
	BookingID       string           `bson:"booking_id" json:"booking_id"`
	GatewayEventID  string           `bson:"gateway_event_id" json:"gateway_event_id"`
	PaymentIntentID string           `bson:"payment_intent_id,omitempty" json:"payment_intent_id,omitempty"`
	Kind            PaymentEventKind `bson:"kind" json:"kind"`
	Amount          int64            `bson:"amount" json:"amount"`
	Sequence        int              `bson:"sequence" json:"sequence"`
	CreatedAt       time.Time        `bson:"created_at" json:"created_at"`
}

// PaymentRequest is what checkout forwards to the gateway.
type PaymentRequest struct {
	BookingID      string
	Amount         int64
	Currency       string
	Sequence       int
	PlanKind       PlanKind
	Email          string
	Description    string
	IdempotencyKey string
}

// PaymentHandle is the client-facing result of creating a payment.
type PaymentHandle struct {
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Sequence        int    `json:"sequence"`
}

// GatewayEvent is a verified gateway notification reduced to the fields the
// ledger needs. Kind is empty for event types the ledger does not track.
type GatewayEvent struct {
	ID              string
	Type            string
	Kind            PaymentEventKind
	PaymentIntentID string
	BookingID       string
	Amount          int64
	Sequence        int
}
