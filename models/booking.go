package models

import "time"

// PaymentStatus is the cached, ledger-derived payment state of a booking.
type PaymentStatus string

const (
	StatusPending     PaymentStatus = "pending"
	StatusDepositPaid PaymentStatus = "deposit_paid"
	StatusFullyPaid   PaymentStatus = "fully_paid"
	StatusFailed      PaymentStatus = "failed"
)

// Confirmed reports whether the status occupies a seat.
func (s PaymentStatus) Confirmed() bool {
	return s == StatusDepositPaid || s == StatusFullyPaid
}

// ContactDetails are the customer details captured at checkout.
type ContactDetails struct {
	FullName string `bson:"full_name" json:"full_name" binding:"required,min=2,max=100"`
	Email    string `bson:"email" json:"email" binding:"required,email,max=254"`
	Phone    string `bson:"phone" json:"phone,omitempty" binding:"max=20"`
	Message  string `bson:"message" json:"message,omitempty" binding:"max=1000"`
}

// Booking is a customer's intent to attend a course. A booking without a
// CourseID is a contact-form submission.
type Booking struct {
	ID            string         `bson:"id" json:"id"`
	CourseID      string         `bson:"course_id,omitempty" json:"course_id,omitempty"`
	TierID        string         `bson:"tier_id,omitempty" json:"tier_id,omitempty"`
	PlanID        string         `bson:"plan_id,omitempty" json:"plan_id,omitempty"`
	PlanKind      PlanKind       `bson:"plan_kind,omitempty" json:"plan_kind,omitempty"`
	Contact       ContactDetails `bson:"contact" json:"contact"`
	Status        PaymentStatus  `bson:"status" json:"status"`
	TotalAmount   int64          `bson:"total_amount" json:"total_amount"`     // Tier amount frozen at checkout
	DepositAmount int64          `bson:"deposit_amount" json:"deposit_amount"` // Sequence 1 amount
	FinalAmount   int64          `bson:"final_amount" json:"final_amount"`     // Sequence 2 amount, 0 for full plans
	Currency      string         `bson:"currency" json:"currency"`
	CreatedAt     time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `bson:"updated_at" json:"updated_at"`
}

// IsContact reports whether the booking is a contact-form submission.
func (b Booking) IsContact() bool {
	return b.CourseID == ""
}

// AmountFor returns the expected payment amount for a sequence number.
func (b Booking) AmountFor(sequence int) int64 {
	if sequence == 2 {
		return b.FinalAmount
	}
	return b.DepositAmount
}

// BookingFilter narrows admin and scheduler listings.
type BookingFilter struct {
	CourseID string
	Status   PaymentStatus
	PlanKind PlanKind
	Limit    int
	Offset   int
}
