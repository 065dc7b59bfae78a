package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	appbilling "github.com/saasops/backend/internal/application/billing"
)

// Maximum webhook payload size. Stripe event payloads are small, 64KB
// leaves generous headroom.
const maxWebhookPayloadSize = 65536

// WebhookProcessor verifies and processes one webhook delivery
type WebhookProcessor interface {
	ProcessWebhook(ctx context.Context, payload []byte, signature string) (*appbilling.WebhookResult, error)
}

// PaymentWebhookHandler receives webhook deliveries from the payment
// processor. These endpoints are called by Stripe and carry their own
// signature authentication instead of JWTs.
type PaymentWebhookHandler struct {
	BaseHandler
	processor WebhookProcessor
}

// NewPaymentWebhookHandler creates a new PaymentWebhookHandler
func NewPaymentWebhookHandler(processor WebhookProcessor) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{processor: processor}
}

// PaymentWebhookResponse is the acknowledgement returned to the processor
type PaymentWebhookResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Message   string `json:"message,omitempty"`
}

// HandlePaymentWebhook receives one delivery. Signature failures are
// rejected with 401 so the processor retries once the secret is fixed.
// Everything past verification is acknowledged with 200 even when
// processing failed, because retrying a delivery our handlers could not
// apply will not produce a different outcome.
func (h *PaymentWebhookHandler) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayloadSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, PaymentWebhookResponse{
			Received: false,
			Message:  "Failed to read request body",
		})
		return
	}

	if len(payload) > maxWebhookPayloadSize {
		c.JSON(http.StatusRequestEntityTooLarge, PaymentWebhookResponse{
			Received: false,
			Message:  "Payload too large",
		})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		c.JSON(http.StatusUnauthorized, PaymentWebhookResponse{
			Received: false,
			Message:  "Missing Stripe-Signature header",
		})
		return
	}

	result, err := h.processor.ProcessWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		if result == nil {
			c.JSON(http.StatusUnauthorized, PaymentWebhookResponse{
				Received: false,
				Message:  "Webhook signature verification failed",
			})
			return
		}

		// Acknowledge so the processor does not retry. Internal details
		// stay out of the response.
		c.JSON(http.StatusOK, PaymentWebhookResponse{
			Received:  true,
			EventID:   result.EventID,
			EventType: result.EventType,
			Message:   "Webhook received but processing encountered an issue",
		})
		return
	}

	c.JSON(http.StatusOK, PaymentWebhookResponse{
		Received:  true,
		EventID:   result.EventID,
		EventType: result.EventType,
		Message:   result.Message,
	})
}
