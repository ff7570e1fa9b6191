package handlers

import (
	"context"
	"errors"
	"net/http"

	"coursebook/models"
	"coursebook/services/booking"
	"coursebook/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HumanVerifier checks the bot-challenge token sent with a public form.
type HumanVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// BookingHandler serves the customer-facing booking endpoints. A nil
// Verifier accepts every contact form.
type BookingHandler struct {
	Service  booking.BookingService
	Verifier HumanVerifier
}

func NewBookingHandler(svc booking.BookingService) *BookingHandler {
	return &BookingHandler{Service: svc}
}

type paymentResponse struct {
	BookingID       string `json:"booking_id"`
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Sequence        int    `json:"sequence"`
}

func newPaymentResponse(bookingID string, h *models.PaymentHandle) paymentResponse {
	return paymentResponse{
		BookingID:       bookingID,
		ClientSecret:    h.ClientSecret,
		PaymentIntentID: h.PaymentIntentID,
		Amount:          h.Amount,
		Currency:        h.Currency,
		Sequence:        h.Sequence,
	}
}

// CheckoutHandler admits a booking and returns the first payment intent.
func (h *BookingHandler) CheckoutHandler(c *gin.Context) {
	var req booking.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid booking details", err.Error())
		return
	}

	res, err := h.Service.Checkout(c.Request.Context(), req)
	if err != nil {
		h.bookingError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newPaymentResponse(res.Booking.ID, res.Payment))
}

// FinalPaymentHandler opens the second installment of a booking.
func (h *BookingHandler) FinalPaymentHandler(c *gin.Context) {
	id := c.Param("id")
	handle, err := h.Service.FinalPayment(c.Request.Context(), id)
	if err != nil {
		h.bookingError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPaymentResponse(id, handle))
}

// AvailabilityHandler reports the seats left on a course. remaining_seats
// counts confirmed bookings only; held_seats are pending checkouts still in
// the hold window, and bookable_seats is what a new checkout can take now.
func (h *BookingHandler) AvailabilityHandler(c *gin.Context) {
	id := c.Param("id")
	a, err := h.Service.Availability(c.Request.Context(), id)
	if err != nil {
		h.bookingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"course_id":       id,
		"remaining_seats": a.Remaining,
		"held_seats":      a.Held,
		"bookable_seats":  a.Bookable,
	})
}

// ContactHandler stores a contact-form submission.
func (h *BookingHandler) ContactHandler(c *gin.Context) {
	var req booking.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid contact form", err.Error())
		return
	}
	if h.Verifier != nil {
		if err := h.Verifier.Verify(c.Request.Context(), req.TurnstileToken, c.ClientIP()); err != nil {
			getLogger(c).Info("Contact form failed verification", zap.String("ip", c.ClientIP()), zap.Error(err))
			utils.JSONError(c, http.StatusBadRequest, "Verification failed", "Please complete the verification challenge.")
			return
		}
	}
	b, err := h.Service.Contact(c.Request.Context(), req)
	if err != nil {
		h.bookingError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"booking_id": b.ID, "message": "Thank you, we will be in touch soon."})
}

func (h *BookingHandler) bookingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, booking.ErrCapacityExceeded):
		utils.JSONError(c, http.StatusConflict, "seats full", "This course is fully booked.")
	case errors.Is(err, booking.ErrCourseUnavailable):
		utils.JSONError(c, http.StatusConflict, "Course unavailable", "This course is not open for booking.")
	case errors.Is(err, booking.ErrFinalPaymentNotDue):
		utils.JSONError(c, http.StatusConflict, "No payment due", "This booking has no outstanding installment.")
	case errors.Is(err, booking.ErrCourseNotFound):
		utils.JSONError(c, http.StatusNotFound, "Course not found", "")
	case errors.Is(err, booking.ErrBookingNotFound):
		utils.JSONError(c, http.StatusNotFound, "Booking not found", "")
	case errors.Is(err, booking.ErrInvalidRequest),
		errors.Is(err, booking.ErrUnknownTier),
		errors.Is(err, booking.ErrUnknownPlan):
		utils.JSONError(c, http.StatusBadRequest, "Invalid booking details", err.Error())
	case errors.Is(err, booking.ErrPaymentUnavailable):
		utils.JSONError(c, http.StatusBadGateway, "Payment error", "We could not start your payment. Please try again.")
	default:
		getLogger(c).Error("Booking request failed", zap.String("path", c.FullPath()), zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "Internal Server Error", "")
	}
}
