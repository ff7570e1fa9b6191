package payment

import "errors"

// Rejections. Each one leaves the ledger and booking untouched.
var (
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrMalformedEvent    = errors.New("malformed gateway event")
	ErrUnknownBooking    = errors.New("unknown booking")
	ErrNotPayable        = errors.New("booking does not take payments")
	ErrOutOfOrderPayment = errors.New("payment sequence arrived out of order")
	ErrAlreadyPaid       = errors.New("booking already fully paid")
	ErrAmountExceeded    = errors.New("payment would exceed booking total")
	ErrInvalidSequence   = errors.New("invalid payment sequence for plan")
	ErrDuplicateSequence = errors.New("payment sequence already succeeded")
)

// errRecorded reports that the gateway event is already in the ledger.
var errRecorded = errors.New("gateway event already recorded")

var rejections = []error{
	ErrInvalidSignature, ErrMalformedEvent, ErrUnknownBooking, ErrNotPayable,
	ErrOutOfOrderPayment, ErrAlreadyPaid, ErrAmountExceeded, ErrInvalidSequence, ErrDuplicateSequence,
}

// rejection returns the sentinel err matches, or nil for infrastructure errors.
func rejection(err error) error {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return r
		}
	}
	return nil
}

// integrityViolation reports rejections that indicate ledger anomalies an
// operator must review.
func integrityViolation(err error) bool {
	switch {
	case errors.Is(err, ErrUnknownBooking),
		errors.Is(err, ErrOutOfOrderPayment),
		errors.Is(err, ErrAlreadyPaid),
		errors.Is(err, ErrAmountExceeded),
		errors.Is(err, ErrDuplicateSequence),
		errors.Is(err, ErrInvalidSequence):
		return true
	}
	return false
}

// ReasonCode is the short label used in responses, logs and metrics.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrMalformedEvent):
		return "malformed_event"
	case errors.Is(err, ErrUnknownBooking):
		return "unknown_booking"
	case errors.Is(err, ErrNotPayable):
		return "not_payable"
	case errors.Is(err, ErrOutOfOrderPayment):
		return "out_of_order_payment"
	case errors.Is(err, ErrAlreadyPaid):
		return "already_paid"
	case errors.Is(err, ErrAmountExceeded):
		return "amount_exceeded"
	case errors.Is(err, ErrInvalidSequence):
		return "invalid_sequence"
	case errors.Is(err, ErrDuplicateSequence):
		return "duplicate_sequence"
	}
	return "internal"
}
