package routes

import (
	"coursebook/handlers"

	"github.com/gin-gonic/gin"
)

// RegisterBookingRoutes registers the customer-facing booking endpoints.
func RegisterBookingRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api")
	{
		checkout := api.Group("")
		if hb.CheckoutLimiter != nil {
			checkout.Use(hb.CheckoutLimiter)
		}
		checkout.POST("/checkout", hb.CheckoutHandler)
		checkout.POST("/bookings/:id/final-payment", hb.FinalPaymentHandler)

		api.GET("/courses/:id/availability", hb.AvailabilityHandler)
		api.POST("/contact", hb.ContactHandler)
	}
}

// RegisterWebhookRoutes registers gateway callbacks. They are authenticated
// by signature, not by bearer token.
func RegisterWebhookRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.POST("/api/webhooks/stripe", hb.StripeWebhookHandler)
}
