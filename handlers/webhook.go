package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"coursebook/services/payment"
	"coursebook/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Stripe caps webhook payloads well below this.
const maxWebhookBytes = 64 << 10

// Reconciler applies a signed gateway notification.
type Reconciler interface {
	Reconcile(ctx context.Context, payload []byte, signature string) (payment.Outcome, error)
}

type WebhookHandler struct {
	Reconciler Reconciler
}

func NewWebhookHandler(r Reconciler) *WebhookHandler {
	return &WebhookHandler{Reconciler: r}
}

// StripeWebhookHandler feeds a Stripe delivery to the reconciler. Statuses
// the gateway retries on (404, 409, 5xx) are used where a later delivery can
// succeed.
func (h *WebhookHandler) StripeWebhookHandler(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes+1))
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Unreadable body", err.Error())
		return
	}
	if len(payload) > maxWebhookBytes {
		utils.JSONError(c, http.StatusRequestEntityTooLarge, "Payload too large", "")
		return
	}

	out, err := h.Reconciler.Reconcile(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		getLogger(c).Error("Webhook reconciliation failed", zap.String("event_id", out.EventID), zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	c.JSON(WebhookStatus(out), gin.H{
		"result": out.Result,
		"reason": payment.ReasonCode(out.Reason),
	})
}

// WebhookStatus maps a reconciliation outcome to the HTTP status returned
// to the gateway.
func WebhookStatus(out payment.Outcome) int {
	if out.Result != payment.Rejected {
		return http.StatusOK
	}
	switch {
	case errors.Is(out.Reason, payment.ErrInvalidSignature), errors.Is(out.Reason, payment.ErrMalformedEvent):
		return http.StatusBadRequest
	case errors.Is(out.Reason, payment.ErrUnknownBooking):
		return http.StatusNotFound
	case errors.Is(out.Reason, payment.ErrOutOfOrderPayment):
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}
