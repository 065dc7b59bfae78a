package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appbilling "github.com/saasops/backend/internal/application/billing"
	"github.com/saasops/backend/internal/domain/billing"
	"github.com/saasops/backend/internal/domain/identity"
	"github.com/saasops/backend/internal/interfaces/http/dto"
	"github.com/saasops/backend/internal/interfaces/http/middleware"
)

// SubscriptionHandler exposes the internal billing management API
type SubscriptionHandler struct {
	BaseHandler
	subscriptions *appbilling.SubscriptionService
	seats         *appbilling.SeatService
	invoices      *appbilling.InvoiceService
	users         identity.UserRepository
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(
	subscriptions *appbilling.SubscriptionService,
	seats *appbilling.SeatService,
	invoices *appbilling.InvoiceService,
	users identity.UserRepository,
) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptions: subscriptions,
		seats:         seats,
		invoices:      invoices,
		users:         users,
	}
}

// CreateSubscriptionRequest is the payload for starting a subscription
type CreateSubscriptionRequest struct {
	Tier                 string `json:"tier" binding:"required,oneof=free starter pro enterprise"`
	Seats                int    `json:"seats" binding:"required,min=1"`
	StripeSubscriptionID string `json:"stripe_subscription_id"`
	StripeCustomerID     string `json:"stripe_customer_id"`
}

// ChangePlanRequest is the payload for moving to a different tier
type ChangePlanRequest struct {
	Tier string `json:"tier" binding:"required,oneof=free starter pro enterprise"`
}

// ResizeSeatsRequest is the payload for changing seat capacity
type ResizeSeatsRequest struct {
	Seats int `json:"seats" binding:"required,min=1"`
}

// SubscriptionResponse is the API view of a subscription
type SubscriptionResponse struct {
	ID                 string     `json:"id"`
	OrganizationID     string     `json:"organization_id"`
	PlanID             string     `json:"plan_id"`
	Status             string     `json:"status"`
	Seats              int        `json:"seats"`
	UsedSeats          int        `json:"used_seats"`
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	GracePeriodEnd     *time.Time `json:"grace_period_end,omitempty"`
	TrialEnd           *time.Time `json:"trial_end,omitempty"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
}

// InvoiceResponse is the API view of a ledger entry
type InvoiceResponse struct {
	ID              string     `json:"id"`
	StripeInvoiceID string     `json:"stripe_invoice_id"`
	Status          string     `json:"status"`
	Amount          string     `json:"amount"`
	Currency        string     `json:"currency"`
	PeriodStart     time.Time  `json:"period_start"`
	PeriodEnd       time.Time  `json:"period_end"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	FailureReason   string     `json:"failure_reason,omitempty"`
}

// FeatureCheckResponse reports whether the current plan includes a feature
type FeatureCheckResponse struct {
	Feature string `json:"feature"`
	Enabled bool   `json:"enabled"`
}

func toSubscriptionResponse(sub *billing.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:                 sub.ID.String(),
		OrganizationID:     sub.OrganizationID.String(),
		PlanID:             sub.PlanID.String(),
		Status:             string(sub.Status),
		Seats:              sub.Seats,
		UsedSeats:          sub.UsedSeats,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		GracePeriodEnd:     sub.GracePeriodEnd,
		TrialEnd:           sub.TrialEnd,
		CanceledAt:         sub.CanceledAt,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
}

func toInvoiceResponse(inv *billing.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:              inv.ID.String(),
		StripeInvoiceID: inv.StripeInvoiceID,
		Status:          string(inv.Status),
		Amount:          inv.Amount.Amount().String(),
		Currency:        string(inv.Amount.Currency()),
		PeriodStart:     inv.PeriodStart,
		PeriodEnd:       inv.PeriodEnd,
		DueDate:         inv.DueDate,
		PaidAt:          inv.PaidAt,
		FailureReason:   inv.FailureReason,
	}
}

// CreateSubscription starts a subscription for the caller's organization
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	orgID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID not found in token")
		return
	}

	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	// The billing period is anchored by the plan's interval; explicit period
	// overrides exist only for processor-reported windows.
	sub, err := h.subscriptions.CreateSubscription(c.Request.Context(), appbilling.CreateSubscriptionInput{
		OrganizationID:       orgID,
		Tier:                 billing.PlanTier(req.Tier),
		Seats:                req.Seats,
		StripeSubscriptionID: req.StripeSubscriptionID,
		StripeCustomerID:     req.StripeCustomerID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toSubscriptionResponse(sub))
}

// GetSubscription returns the organization's current subscription
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	orgID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID not found in token")
		return
	}

	sub, err := h.subscriptions.GetSubscription(c.Request.Context(), orgID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toSubscriptionResponse(sub))
}

// ChangePlan moves the subscription to a different tier
func (h *SubscriptionHandler) ChangePlan(c *gin.Context) {
	orgID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID not found in token")
		return
	}

	var req ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	sub, err := h.subscriptions.ChangePlan(c.Request.Context(), orgID, billing.PlanTier(req.Tier))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toSubscriptionResponse(sub))
}

// CancelSubscription cancels the subscription. With ?immediate=true the
// subscription is deleted now, otherwise it runs out at the period end.
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	orgID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID not found in token")
		return
	}

	immediate := c.Query("immediate") == "true"

	sub, err := h.subscriptions.CancelSubscription(c.Request.Context(), orgID, immediate)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toSubscriptionResponse(sub))
}

// ResizeSeats changes the subscription's seat capacity
func (h *SubscriptionHandler) ResizeSeats(c *gin.Context) {
	orgID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID not found in token")
		return
	}

	var req ResizeSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	sub, err := h.seats.ResizeSeats(c.Request.Context(), orgID, req.Seats)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toSubscriptionResponse(sub))
}

// AssignSeat occupies one seat for the given user
func (h *SubscriptionHandler) AssignSeat(c *gin.Context) {
	orgID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID not found in token")
		return
	}

	userID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		h.BadRequest(c, "Invalid user ID")
		return
	}

	if err := h.seats.AssignSeat(c.Request.Context(), orgID, userID); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// UnassignSeat releases the given user's seat
func (h *SubscriptionHandler) UnassignSeat(c *gin.Context) {
	orgID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID not found in token")
		return
	}

	userID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		h.BadRequest(c, "Invalid user ID")
		return
	}

	if err := h.seats.UnassignSeat(c.Request.Context(), orgID, userID); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// SeatUsageResponse reports seat capacity against actual seat holders.
// SeatedUsers counts users with a seat assignment; it must match UsedSeats,
// InSync flags any drift between the counter and the user records.
type SeatUsageResponse struct {
	Seats       int   `json:"seats"`
	UsedSeats   int   `json:"used_seats"`
	SeatedUsers int64 `json:"seated_users"`
	InSync      bool  `json:"in_sync"`
}

// GetSeatUsage returns the organization's seat capacity and usage
func (h *SubscriptionHandler) GetSeatUsage(c *gin.Context) {
	orgID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID not found in token")
		return
	}

	sub, err := h.subscriptions.GetSubscription(c.Request.Context(), orgID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	seated, err := h.users.CountSeated(c.Request.Context(), orgID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, SeatUsageResponse{
		Seats:       sub.Seats,
		UsedSeats:   sub.UsedSeats,
		SeatedUsers: seated,
		InSync:      seated == int64(sub.UsedSeats),
	})
}

// CheckFeature reports whether the organization's plan includes a feature
func (h *SubscriptionHandler) CheckFeature(c *gin.Context) {
	orgID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID not found in token")
		return
	}

	feature := c.Param("feature")
	if feature == "" {
		h.BadRequest(c, "Feature name is required")
		return
	}

	enabled := h.invoices.HasFeature(c.Request.Context(), orgID, feature)
	h.Success(c, FeatureCheckResponse{Feature: feature, Enabled: enabled})
}

// ListInvoices returns the organization's invoice ledger, newest period first
func (h *SubscriptionHandler) ListInvoices(c *gin.Context) {
	orgID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID not found in token")
		return
	}

	req := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "Invalid pagination parameters")
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 20
	}

	offset := (req.Page - 1) * req.PageSize
	invoices, total, err := h.invoices.ListInvoices(c.Request.Context(), orgID, req.PageSize, offset)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		items = append(items, toInvoiceResponse(inv))
	}

	h.SuccessWithMeta(c, items, total, req.Page, req.PageSize)
}
