package booking

import "errors"

var (
	ErrCapacityExceeded   = errors.New("seats full")
	ErrCourseUnavailable  = errors.New("course is not open for booking")
	ErrCourseNotFound     = errors.New("course not found")
	ErrUnknownTier        = errors.New("pricing tier not offered for this course")
	ErrUnknownPlan        = errors.New("payment plan not available")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrFinalPaymentNotDue = errors.New("booking has no outstanding installment")
	ErrPaymentUnavailable = errors.New("payment could not be started")
	ErrInvalidRequest     = errors.New("invalid booking request")
)
