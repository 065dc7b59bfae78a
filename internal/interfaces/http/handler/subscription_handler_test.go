package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appbilling "github.com/saasops/backend/internal/application/billing"
	"github.com/saasops/backend/internal/domain/billing"
	"github.com/saasops/backend/internal/domain/identity"
	"github.com/saasops/backend/internal/domain/shared"
	"github.com/saasops/backend/internal/domain/shared/valueobject"
	"github.com/saasops/backend/internal/interfaces/http/middleware"
)

// stubSubscriptionRepo is an in-memory billing.SubscriptionRepository
type stubSubscriptionRepo struct {
	sub       *billing.Subscription
	assignErr error
	resizeErr error
}

func (s *stubSubscriptionRepo) FindByID(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	if s.sub == nil || s.sub.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.sub, nil
}

func (s *stubSubscriptionRepo) FindByOrganizationID(ctx context.Context, organizationID uuid.UUID) (*billing.Subscription, error) {
	if s.sub == nil || s.sub.OrganizationID != organizationID {
		return nil, shared.ErrNotFound
	}
	return s.sub, nil
}

func (s *stubSubscriptionRepo) FindByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*billing.Subscription, error) {
	if s.sub == nil || s.sub.StripeSubscriptionID != stripeSubscriptionID {
		return nil, shared.ErrNotFound
	}
	return s.sub, nil
}

func (s *stubSubscriptionRepo) Save(ctx context.Context, sub *billing.Subscription) error {
	s.sub = sub
	return nil
}

func (s *stubSubscriptionRepo) AssignSeat(ctx context.Context, subscriptionID, organizationID, userID uuid.UUID) error {
	if s.assignErr != nil {
		return s.assignErr
	}
	s.sub.UsedSeats++
	return nil
}

func (s *stubSubscriptionRepo) UnassignSeat(ctx context.Context, subscriptionID, organizationID, userID uuid.UUID) error {
	if s.sub.UsedSeats > 0 {
		s.sub.UsedSeats--
	}
	return nil
}

func (s *stubSubscriptionRepo) ResizeSeats(ctx context.Context, subscriptionID uuid.UUID, newSeats int) error {
	if s.resizeErr != nil {
		return s.resizeErr
	}
	s.sub.Seats = newSeats
	return nil
}

// stubPlanRepo serves a fixed plan catalog
type stubPlanRepo struct {
	plans []*billing.SubscriptionPlan
}

func (s *stubPlanRepo) FindByID(ctx context.Context, id uuid.UUID) (*billing.SubscriptionPlan, error) {
	for _, p := range s.plans {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubPlanRepo) FindByTier(ctx context.Context, tier billing.PlanTier) (*billing.SubscriptionPlan, error) {
	for _, p := range s.plans {
		if p.Tier == tier {
			return p, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubPlanRepo) FindAll(ctx context.Context) ([]*billing.SubscriptionPlan, error) {
	return s.plans, nil
}

func (s *stubPlanRepo) Save(ctx context.Context, plan *billing.SubscriptionPlan) error {
	s.plans = append(s.plans, plan)
	return nil
}

// stubOrgRepo serves one organization
type stubOrgRepo struct {
	org *identity.Organization
}

func (s *stubOrgRepo) FindByID(ctx context.Context, id uuid.UUID) (*identity.Organization, error) {
	if s.org == nil || s.org.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.org, nil
}

func (s *stubOrgRepo) FindByCode(ctx context.Context, code string) (*identity.Organization, error) {
	return s.org, nil
}

func (s *stubOrgRepo) FindByStripeCustomerID(ctx context.Context, customerID string) (*identity.Organization, error) {
	return s.org, nil
}

func (s *stubOrgRepo) ExistsByCode(ctx context.Context, code string) (bool, error) {
	return s.org != nil, nil
}

func (s *stubOrgRepo) Save(ctx context.Context, org *identity.Organization) error {
	s.org = org
	return nil
}

// stubUserRepo reports a fixed seated-user count
type stubUserRepo struct {
	seated int64
}

func (s *stubUserRepo) FindByID(ctx context.Context, organizationID, id uuid.UUID) (*identity.User, error) {
	return nil, shared.ErrNotFound
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, organizationID uuid.UUID, email string) (*identity.User, error) {
	return nil, shared.ErrNotFound
}

func (s *stubUserRepo) CountSeated(ctx context.Context, organizationID uuid.UUID) (int64, error) {
	return s.seated, nil
}

func (s *stubUserRepo) Save(ctx context.Context, user *identity.User) error {
	return nil
}

// stubInvoiceRepo holds a fixed ledger
type stubInvoiceRepo struct {
	invoices []*billing.Invoice
}

func (s *stubInvoiceRepo) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	for _, inv := range s.invoices {
		if inv.ID == id {
			return inv, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubInvoiceRepo) FindByStripeInvoiceID(ctx context.Context, stripeInvoiceID string) (*billing.Invoice, error) {
	for _, inv := range s.invoices {
		if inv.StripeInvoiceID == stripeInvoiceID {
			return inv, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubInvoiceRepo) ListByOrganization(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*billing.Invoice, int64, error) {
	var matched []*billing.Invoice
	for _, inv := range s.invoices {
		if inv.OrganizationID == organizationID {
			matched = append(matched, inv)
		}
	}
	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (s *stubInvoiceRepo) Create(ctx context.Context, inv *billing.Invoice) error {
	s.invoices = append(s.invoices, inv)
	return nil
}

func (s *stubInvoiceRepo) Save(ctx context.Context, inv *billing.Invoice) error {
	return nil
}

type handlerFixture struct {
	orgID    uuid.UUID
	subRepo  *stubSubscriptionRepo
	invRepo  *stubInvoiceRepo
	userRepo *stubUserRepo
	router   *gin.Engine
}

func mustTestPlan(t *testing.T, tier billing.PlanTier) *billing.SubscriptionPlan {
	t.Helper()
	price, err := valueobject.NewMoneyFromCents(2900, valueobject.Currency("USD"))
	require.NoError(t, err)
	plan, err := billing.NewSubscriptionPlan(tier, strings.ToTitle(string(tier)), billing.PlanIntervalMonth, price)
	require.NoError(t, err)
	plan.Features = map[string]bool{"api_access": true, "sso": false}
	return plan
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	org, err := identity.NewOrganization("ACME", "Acme Inc")
	require.NoError(t, err)

	plan := mustTestPlan(t, billing.PlanTierStarter)
	sub, err := billing.NewSubscription(org.ID, plan, 5, time.Now().UTC())
	require.NoError(t, err)

	subRepo := &stubSubscriptionRepo{sub: sub}
	planRepo := &stubPlanRepo{plans: []*billing.SubscriptionPlan{plan, mustTestPlan(t, billing.PlanTierPro)}}
	orgRepo := &stubOrgRepo{org: org}
	invRepo := &stubInvoiceRepo{}
	userRepo := &stubUserRepo{}

	logger := zap.NewNop()
	subscriptionService := appbilling.NewSubscriptionService(appbilling.SubscriptionServiceConfig{
		SubscriptionRepo: subRepo,
		PlanRepo:         planRepo,
		OrganizationRepo: orgRepo,
		Logger:           logger,
		GraceDays:        7,
	})
	seatService := appbilling.NewSeatService(appbilling.SeatServiceConfig{
		SubscriptionRepo: subRepo,
		PlanRepo:         planRepo,
		Logger:           logger,
	})
	invoiceService := appbilling.NewInvoiceService(appbilling.InvoiceServiceConfig{
		InvoiceRepo:      invRepo,
		SubscriptionRepo: subRepo,
		PlanRepo:         planRepo,
		Logger:           logger,
	})

	handler := NewSubscriptionHandler(subscriptionService, seatService, invoiceService, userRepo)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.JWTOrganizationIDKey, org.ID.String())
		c.Set(middleware.JWTUserIDKey, uuid.New().String())
	})
	v1 := router.Group("/api/v1")
	v1.GET("/billing/subscription", handler.GetSubscription)
	v1.POST("/billing/subscription", handler.CreateSubscription)
	v1.PUT("/billing/subscription/plan", handler.ChangePlan)
	v1.DELETE("/billing/subscription", handler.CancelSubscription)
	v1.PUT("/billing/subscription/seats", handler.ResizeSeats)
	v1.GET("/billing/subscription/seats", handler.GetSeatUsage)
	v1.POST("/billing/seats/:userID", handler.AssignSeat)
	v1.DELETE("/billing/seats/:userID", handler.UnassignSeat)
	v1.GET("/billing/features/:feature", handler.CheckFeature)
	v1.GET("/billing/invoices", handler.ListInvoices)

	return &handlerFixture{
		orgID:    org.ID,
		subRepo:  subRepo,
		invRepo:  invRepo,
		userRepo: userRepo,
		router:   router,
	}
}

func (f *handlerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestSubscriptionHandler_GetSubscription(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodGet, "/api/v1/billing/subscription", "")

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                 `json:"success"`
		Data    SubscriptionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, f.orgID.String(), resp.Data.OrganizationID)
	assert.Equal(t, 5, resp.Data.Seats)
	assert.Equal(t, "active", resp.Data.Status)
}

func TestSubscriptionHandler_CreateSubscription_YearlyPlan(t *testing.T) {
	f := newHandlerFixture(t)
	f.subRepo.sub = nil

	w := f.do(http.MethodPost, "/api/v1/billing/subscription",
		`{"tier":"enterprise","seats":5,"stripe_subscription_id":"sub_yearly1"}`)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Data SubscriptionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "active", resp.Data.Status)
	assert.WithinDuration(t, resp.Data.CurrentPeriodStart.AddDate(1, 0, 0), resp.Data.CurrentPeriodEnd, time.Second)
}

func TestSubscriptionHandler_ChangePlan(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodPut, "/api/v1/billing/subscription/plan", `{"tier":"pro"}`)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data SubscriptionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, f.subRepo.sub.PlanID.String(), resp.Data.PlanID)
}

func TestSubscriptionHandler_ChangePlan_UnknownTier(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodPut, "/api/v1/billing/subscription/plan", `{"tier":"platinum"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscriptionHandler_CancelAtPeriodEnd(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodDelete, "/api/v1/billing/subscription", "")

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data SubscriptionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.CancelAtPeriodEnd)
	assert.Equal(t, "active", resp.Data.Status)
}

func TestSubscriptionHandler_CancelImmediate(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodDelete, "/api/v1/billing/subscription?immediate=true", "")

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data SubscriptionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "deleted", resp.Data.Status)
}

func TestSubscriptionHandler_ResizeSeats(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodPut, "/api/v1/billing/subscription/seats", `{"seats":10}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, f.subRepo.sub.Seats)
}

func TestSubscriptionHandler_ResizeSeats_BelowUsage(t *testing.T) {
	f := newHandlerFixture(t)
	f.subRepo.resizeErr = shared.ErrSeatBelowUsage

	w := f.do(http.MethodPut, "/api/v1/billing/subscription/seats", `{"seats":1}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_SEAT_BELOW_USAGE")
}

func TestSubscriptionHandler_AssignSeat(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodPost, "/api/v1/billing/seats/"+uuid.New().String(), "")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, f.subRepo.sub.UsedSeats)
}

func TestSubscriptionHandler_AssignSeat_LimitExceeded(t *testing.T) {
	f := newHandlerFixture(t)
	f.subRepo.assignErr = shared.ErrSeatLimitExceeded

	w := f.do(http.MethodPost, "/api/v1/billing/seats/"+uuid.New().String(), "")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_SEAT_LIMIT_EXCEEDED")
}

func TestSubscriptionHandler_AssignSeat_InvalidUserID(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodPost, "/api/v1/billing/seats/not-a-uuid", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscriptionHandler_UnassignSeat(t *testing.T) {
	f := newHandlerFixture(t)
	f.subRepo.sub.UsedSeats = 2

	w := f.do(http.MethodDelete, "/api/v1/billing/seats/"+uuid.New().String(), "")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, f.subRepo.sub.UsedSeats)
}

func TestSubscriptionHandler_GetSeatUsage(t *testing.T) {
	f := newHandlerFixture(t)
	f.subRepo.sub.UsedSeats = 3
	f.userRepo.seated = 3

	w := f.do(http.MethodGet, "/api/v1/billing/subscription/seats", "")

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data SeatUsageResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Data.Seats)
	assert.Equal(t, 3, resp.Data.UsedSeats)
	assert.Equal(t, int64(3), resp.Data.SeatedUsers)
	assert.True(t, resp.Data.InSync)
}

func TestSubscriptionHandler_GetSeatUsage_Drift(t *testing.T) {
	f := newHandlerFixture(t)
	f.subRepo.sub.UsedSeats = 3
	f.userRepo.seated = 2

	w := f.do(http.MethodGet, "/api/v1/billing/subscription/seats", "")

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data SeatUsageResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Data.InSync)
}

func TestSubscriptionHandler_CheckFeature(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodGet, "/api/v1/billing/features/api_access", "")

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data FeatureCheckResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Enabled)

	w = f.do(http.MethodGet, "/api/v1/billing/features/sso", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Data.Enabled)
}

func TestSubscriptionHandler_ListInvoices(t *testing.T) {
	f := newHandlerFixture(t)

	amount, err := valueobject.NewMoneyFromCents(2900, valueobject.Currency("USD"))
	require.NoError(t, err)
	for _, id := range []string{"in_001", "in_002", "in_003"} {
		inv, err := billing.NewInvoice(f.orgID, id, amount)
		require.NoError(t, err)
		f.invRepo.invoices = append(f.invRepo.invoices, inv)
	}

	w := f.do(http.MethodGet, "/api/v1/billing/invoices?page=1&page_size=2", "")

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []InvoiceResponse `json:"data"`
		Meta struct {
			Total    int64 `json:"total"`
			Page     int   `json:"page"`
			PageSize int   `json:"page_size"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
	assert.Equal(t, int64(3), resp.Meta.Total)
}

func TestSubscriptionHandler_NoSubscription(t *testing.T) {
	f := newHandlerFixture(t)
	f.subRepo.sub = nil

	w := f.do(http.MethodGet, "/api/v1/billing/subscription", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_NOT_FOUND")
}
