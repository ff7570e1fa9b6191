package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandlerBundle groups the endpoint handlers and the middleware that guards
// them.
type HandlerBundle struct {
	// Booking endpoints
	CheckoutHandler     gin.HandlerFunc
	FinalPaymentHandler gin.HandlerFunc
	AvailabilityHandler gin.HandlerFunc
	ContactHandler      gin.HandlerFunc

	// Gateway webhooks
	StripeWebhookHandler gin.HandlerFunc

	// Admin endpoints
	ListBookingsHandler gin.HandlerFunc
	LedgerHandler       gin.HandlerFunc

	// Middleware
	CheckoutLimiter gin.HandlerFunc
	AdminAuth       gin.HandlerFunc

	HealthHandler  gin.HandlerFunc
	MetricsHandler http.Handler
}
