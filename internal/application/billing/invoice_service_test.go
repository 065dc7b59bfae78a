package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saasops/backend/internal/domain/billing"
	"github.com/saasops/backend/internal/domain/shared"
)

func newInvoiceService(invRepo *MockInvoiceRepository, subRepo *MockSubscriptionRepository, planRepo *MockPlanRepository) *InvoiceService {
	logger, _ := zap.NewDevelopment()
	return NewInvoiceService(InvoiceServiceConfig{
		InvoiceRepo:      invRepo,
		SubscriptionRepo: subRepo,
		PlanRepo:         planRepo,
		Logger:           logger,
	})
}

func TestInvoiceService_RecordPaid(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and settles a new invoice", func(t *testing.T) {
		invRepo := new(MockInvoiceRepository)
		service := newInvoiceService(invRepo, new(MockSubscriptionRepository), new(MockPlanRepository))

		org := newTestOrganization(t)

		invRepo.On("FindByStripeInvoiceID", ctx, "in_test123").Return(nil, shared.ErrNotFound)
		invRepo.On("Create", ctx, mock.AnythingOfType("*billing.Invoice")).Return(nil)
		invRepo.On("Save", ctx, mock.AnythingOfType("*billing.Invoice")).Return(nil)

		inv, err := service.RecordPaid(ctx, RecordInvoiceInput{
			OrganizationID: org.ID,
			StripeInvoice:  "in_test123",
			AmountCents:    4900,
			Currency:       "usd",
		})

		require.NoError(t, err)
		assert.True(t, inv.IsPaid())
		assert.Equal(t, "49.00 USD", inv.Amount.String())
		invRepo.AssertExpectations(t)
	})

	t.Run("a concurrent insert falls back to the stored invoice", func(t *testing.T) {
		invRepo := new(MockInvoiceRepository)
		service := newInvoiceService(invRepo, new(MockSubscriptionRepository), new(MockPlanRepository))

		org := newTestOrganization(t)
		stored, err := billing.NewInvoice(org.ID, "in_test123", mustTestMoney(t, 4900))
		require.NoError(t, err)
		stored.ClearDomainEvents()

		invRepo.On("FindByStripeInvoiceID", ctx, "in_test123").Return(nil, shared.ErrNotFound).Once()
		invRepo.On("Create", ctx, mock.AnythingOfType("*billing.Invoice")).Return(shared.ErrAlreadyExists)
		invRepo.On("FindByStripeInvoiceID", ctx, "in_test123").Return(stored, nil)
		invRepo.On("Save", ctx, stored).Return(nil)

		inv, err := service.RecordPaid(ctx, RecordInvoiceInput{
			OrganizationID: org.ID,
			StripeInvoice:  "in_test123",
			AmountCents:    4900,
			Currency:       "usd",
		})

		require.NoError(t, err)
		assert.Same(t, stored, inv)
	})
}

func TestInvoiceService_RecordFailed(t *testing.T) {
	ctx := context.Background()

	invRepo := new(MockInvoiceRepository)
	service := newInvoiceService(invRepo, new(MockSubscriptionRepository), new(MockPlanRepository))

	org := newTestOrganization(t)

	invRepo.On("FindByStripeInvoiceID", ctx, "in_fail").Return(nil, shared.ErrNotFound)
	invRepo.On("Create", ctx, mock.AnythingOfType("*billing.Invoice")).Return(nil)
	invRepo.On("Save", ctx, mock.AnythingOfType("*billing.Invoice")).Return(nil)

	inv, err := service.RecordFailed(ctx, RecordInvoiceInput{
		OrganizationID: org.ID,
		StripeInvoice:  "in_fail",
		AmountCents:    4900,
		Currency:       "usd",
	}, "card_declined")

	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusPaymentFailed, inv.Status)
	assert.Equal(t, "card_declined", inv.FailureReason)
}

func TestInvoiceService_HasFeature(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, status billing.SubscriptionStatus, graceEnd *time.Time) (*InvoiceService, *MockSubscriptionRepository, *MockPlanRepository, *billing.Subscription, *billing.SubscriptionPlan) {
		subRepo := new(MockSubscriptionRepository)
		planRepo := new(MockPlanRepository)
		service := newInvoiceService(new(MockInvoiceRepository), subRepo, planRepo)

		org := newTestOrganization(t)
		plan := newTestPlan(t, billing.PlanTierPro, 0)
		sub := newTestSubscription(t, org, plan, 5)
		sub.Status = status
		sub.GracePeriodEnd = graceEnd
		return service, subRepo, planRepo, sub, plan
	}

	t.Run("active subscription grants plan features", func(t *testing.T) {
		service, subRepo, planRepo, sub, plan := setup(t, billing.SubscriptionStatusActive, nil)
		subRepo.On("FindByOrganizationID", ctx, sub.OrganizationID).Return(sub, nil)
		planRepo.On("FindByID", ctx, plan.ID).Return(plan, nil)

		assert.True(t, service.HasFeature(ctx, sub.OrganizationID, "api_access"))
		assert.False(t, service.HasFeature(ctx, sub.OrganizationID, "audit_log"))
	})

	t.Run("past_due within grace keeps entitlement", func(t *testing.T) {
		graceEnd := time.Now().AddDate(0, 0, 3)
		service, subRepo, planRepo, sub, plan := setup(t, billing.SubscriptionStatusPastDue, &graceEnd)
		subRepo.On("FindByOrganizationID", ctx, sub.OrganizationID).Return(sub, nil)
		planRepo.On("FindByID", ctx, plan.ID).Return(plan, nil)

		assert.True(t, service.HasFeature(ctx, sub.OrganizationID, "api_access"))
	})

	t.Run("past_due after grace loses entitlement", func(t *testing.T) {
		graceEnd := time.Now().AddDate(0, 0, -1)
		service, subRepo, _, sub, _ := setup(t, billing.SubscriptionStatusPastDue, &graceEnd)
		subRepo.On("FindByOrganizationID", ctx, sub.OrganizationID).Return(sub, nil)

		assert.False(t, service.HasFeature(ctx, sub.OrganizationID, "api_access"))
	})

	t.Run("unpaid and deleted lose entitlement", func(t *testing.T) {
		for _, status := range []billing.SubscriptionStatus{billing.SubscriptionStatusUnpaid, billing.SubscriptionStatusDeleted} {
			service, subRepo, _, sub, _ := setup(t, status, nil)
			subRepo.On("FindByOrganizationID", ctx, sub.OrganizationID).Return(sub, nil)
			assert.False(t, service.HasFeature(ctx, sub.OrganizationID, "api_access"), string(status))
		}
	})

	t.Run("missing subscription reads as not entitled", func(t *testing.T) {
		subRepo := new(MockSubscriptionRepository)
		service := newInvoiceService(new(MockInvoiceRepository), subRepo, new(MockPlanRepository))

		org := newTestOrganization(t)
		subRepo.On("FindByOrganizationID", ctx, org.ID).Return(nil, shared.ErrNotFound)

		assert.False(t, service.HasFeature(ctx, org.ID, "api_access"))
	})
}
