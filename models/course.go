package models

import "time"

// DateLayout is the layout used for calendar dates on courses and sessions.
const DateLayout = "2006-01-02"

// Course is operator-managed; the booking subsystem only reads it.
type Course struct {
	ID              string          `bson:"id" json:"id"`
	Slug            string          `bson:"slug" json:"slug"`
	Title           string          `bson:"title" json:"title"`
	StartDate       time.Time       `bson:"start_date" json:"start_date"`             // Calendar date, midnight UTC
	MaxParticipants int             `bson:"max_participants" json:"max_participants"` // Seat capacity
	IsActive        bool            `bson:"is_active" json:"is_active"`
	Sessions        []CourseSession `bson:"sessions" json:"sessions"` // Ordered by Number
	CreatedAt       time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `bson:"updated_at" json:"updated_at"`
}

// CourseSession is one dated meeting of a course.
type CourseSession struct {
	Number    int       `bson:"number" json:"number"`
	Date      time.Time `bson:"date" json:"date"`
	StartTime string    `bson:"start_time" json:"start_time"` // "HH:MM"
	EndTime   string    `bson:"end_time" json:"end_time"`     // "HH:MM"
}

// Tier keys used by the three-tier pricing in practice. Any key is accepted.
const (
	TierBasic      = "basic"
	TierStandard   = "standard"
	TierSolidarity = "solidarity"
)

// PricingTier is one self-selected price for a course.
type PricingTier struct {
	ID       string `bson:"id" json:"id"`
	CourseID string `bson:"course_id" json:"course_id"`
	Tier     string `bson:"tier" json:"tier"`
	Name     string `bson:"name" json:"name"`
	Amount   int64  `bson:"amount" json:"amount"` // Minor units (pence)
}

// PlanKind enumerates the supported payment plans.
type PlanKind string

const (
	PlanFull         PlanKind = "full"
	PlanInstallments PlanKind = "installments"
)

// PaymentPlan describes how a tier amount is split into payments.
type PaymentPlan struct {
	ID                 string   `bson:"id" json:"id"`
	Kind               PlanKind `bson:"kind" json:"kind"`
	DepositPercent     int      `bson:"deposit_percent" json:"deposit_percent"`             // 0 for full plans
	FinalDueDaysBefore int      `bson:"final_due_days_before" json:"final_due_days_before"` // Remainder due this many days before course start
	IsActive           bool     `bson:"is_active" json:"is_active"`
}

// Split returns the deposit and remainder for total under this plan.
// For the full plan the deposit is the whole amount.
func (p PaymentPlan) Split(total int64) (deposit, remainder int64) {
	if p.Kind != PlanInstallments {
		return total, 0
	}
	deposit = total * int64(p.DepositPercent) / 100
	return deposit, total - deposit
}

// FinalDueDate is the date the second installment is due for course c.
func (p PaymentPlan) FinalDueDate(c Course) time.Time {
	return c.StartDate.AddDate(0, 0, -p.FinalDueDaysBefore)
}
