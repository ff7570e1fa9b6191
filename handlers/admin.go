package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"coursebook/database/repository"
	"coursebook/models"
	"coursebook/services/payment"
	"coursebook/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// AdminHandler encapsulates operator read access to bookings and ledgers.
type AdminHandler struct {
	Store repository.Store
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(store repository.Store) *AdminHandler {
	return &AdminHandler{Store: store}
}

// ListBookingsHandler returns bookings filtered by course_id, status and plan.
func (ah *AdminHandler) ListBookingsHandler(c *gin.Context) {
	filter := models.BookingFilter{
		CourseID: c.Query("course_id"),
		Status:   models.PaymentStatus(c.Query("status")),
		PlanKind: models.PlanKind(c.Query("plan")),
		Limit:    defaultListLimit,
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			utils.JSONError(c, http.StatusBadRequest, "Invalid limit", v)
			return
		}
		filter.Limit = min(n, maxListLimit)
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			utils.JSONError(c, http.StatusBadRequest, "Invalid offset", v)
			return
		}
		filter.Offset = n
	}

	bookings, err := ah.Store.ListBookings(c.Request.Context(), filter)
	if err != nil {
		getLogger(c).Error("Failed to list bookings", zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "Failed to fetch bookings", "")
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "limit": filter.Limit, "offset": filter.Offset})
}

// LedgerHandler returns a booking's payment events with its stored and
// replayed status.
func (ah *AdminHandler) LedgerHandler(c *gin.Context) {
	report, err := payment.AuditBooking(c.Request.Context(), ah.Store, c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		utils.JSONError(c, http.StatusNotFound, "Booking not found", "")
		return
	}
	if err != nil {
		getLogger(c).Error("Failed to load ledger", zap.String("booking_id", c.Param("id")), zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "Failed to load ledger", "")
		return
	}
	if report.Events == nil {
		report.Events = []models.PaymentEvent{}
	}
	c.JSON(http.StatusOK, report)
}
