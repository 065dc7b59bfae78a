package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appbilling "github.com/saasops/backend/internal/application/billing"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockWebhookProcessor struct {
	result    *appbilling.WebhookResult
	err       error
	payload   []byte
	signature string
	calls     int
}

func (m *mockWebhookProcessor) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*appbilling.WebhookResult, error) {
	m.calls++
	m.payload = payload
	m.signature = signature
	return m.result, m.err
}

func newWebhookRouter(processor WebhookProcessor) *gin.Engine {
	router := gin.New()
	handler := NewPaymentWebhookHandler(processor)
	router.POST("/webhooks/payments", handler.HandlePaymentWebhook)
	return router
}

func TestHandlePaymentWebhook_Success(t *testing.T) {
	processor := &mockWebhookProcessor{
		result: &appbilling.WebhookResult{
			EventID:   "evt_123",
			EventType: "invoice.paid",
			Processed: true,
			Message:   "processed",
		},
	}
	router := newWebhookRouter(processor)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(`{"id":"evt_123"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, processor.calls)
	assert.Equal(t, "t=1,v1=abc", processor.signature)

	var resp PaymentWebhookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Received)
	assert.Equal(t, "evt_123", resp.EventID)
	assert.Equal(t, "invoice.paid", resp.EventType)
}

func TestHandlePaymentWebhook_MissingSignature(t *testing.T) {
	processor := &mockWebhookProcessor{}
	router := newWebhookRouter(processor)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, processor.calls)
}

func TestHandlePaymentWebhook_SignatureVerificationFailed(t *testing.T) {
	processor := &mockWebhookProcessor{
		result: nil,
		err:    errors.New("signature mismatch"),
	}
	router := newWebhookRouter(processor)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp PaymentWebhookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Received)
}

func TestHandlePaymentWebhook_ProcessingErrorStillAcknowledged(t *testing.T) {
	processor := &mockWebhookProcessor{
		result: &appbilling.WebhookResult{
			EventID:   "evt_456",
			EventType: "customer.subscription.updated",
			Processed: false,
		},
		err: errors.New("plan lookup failed"),
	}
	router := newWebhookRouter(processor)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp PaymentWebhookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Received)
	assert.Equal(t, "evt_456", resp.EventID)
	assert.NotContains(t, resp.Message, "plan lookup failed")
}

func TestHandlePaymentWebhook_PayloadTooLarge(t *testing.T) {
	processor := &mockWebhookProcessor{}
	router := newWebhookRouter(processor)

	body := strings.NewReader(strings.Repeat("x", maxWebhookPayloadSize+1))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", body)
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, 0, processor.calls)
}
