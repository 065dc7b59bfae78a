package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saasops/backend/internal/domain/billing"
	"github.com/saasops/backend/internal/domain/shared"
	"github.com/saasops/backend/internal/domain/shared/valueobject"
)

// InvoiceService maintains the invoice ledger and answers feature
// entitlement checks
type InvoiceService struct {
	invoiceRepo billing.InvoiceRepository
	subRepo     billing.SubscriptionRepository
	planRepo    billing.PlanRepository
	eventBus    shared.EventBus
	logger      *zap.Logger
}

// InvoiceServiceConfig contains configuration for InvoiceService
type InvoiceServiceConfig struct {
	InvoiceRepo      billing.InvoiceRepository
	SubscriptionRepo billing.SubscriptionRepository
	PlanRepo         billing.PlanRepository
	EventBus         shared.EventBus
	Logger           *zap.Logger
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(cfg InvoiceServiceConfig) *InvoiceService {
	return &InvoiceService{
		invoiceRepo: cfg.InvoiceRepo,
		subRepo:     cfg.SubscriptionRepo,
		planRepo:    cfg.PlanRepo,
		eventBus:    cfg.EventBus,
		logger:      cfg.Logger,
	}
}

// RecordInvoiceInput describes a charge reported by the payment processor
type RecordInvoiceInput struct {
	OrganizationID uuid.UUID
	SubscriptionID *uuid.UUID
	StripeInvoice  string
	AmountCents    int64
	Currency       string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	DueDate        time.Time
}

// RecordPaid upserts an invoice and marks it paid. The ledger is keyed by
// the processor's invoice id, so replaying the same payment event changes
// nothing.
func (s *InvoiceService) RecordPaid(ctx context.Context, input RecordInvoiceInput) (*billing.Invoice, error) {
	inv, err := s.findOrCreate(ctx, input)
	if err != nil {
		return nil, err
	}

	if err := inv.MarkPaid(time.Now()); err != nil {
		return nil, err
	}
	if err := s.invoiceRepo.Save(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to save invoice: %w", err)
	}

	s.publishEvents(ctx, inv.GetDomainEvents())
	inv.ClearDomainEvents()

	s.logger.Info("Invoice recorded as paid",
		zap.String("stripe_invoice_id", inv.StripeInvoiceID),
		zap.String("amount", inv.Amount.String()))
	return inv, nil
}

// RecordFailed upserts an invoice and marks the charge attempt failed. A
// failure that arrives after the invoice settled is ignored.
func (s *InvoiceService) RecordFailed(ctx context.Context, input RecordInvoiceInput, reason string) (*billing.Invoice, error) {
	inv, err := s.findOrCreate(ctx, input)
	if err != nil {
		return nil, err
	}

	if err := inv.MarkPaymentFailed(reason); err != nil {
		return nil, err
	}
	if err := s.invoiceRepo.Save(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to save invoice: %w", err)
	}

	s.publishEvents(ctx, inv.GetDomainEvents())
	inv.ClearDomainEvents()

	s.logger.Warn("Invoice payment failed",
		zap.String("stripe_invoice_id", inv.StripeInvoiceID),
		zap.String("reason", reason))
	return inv, nil
}

// ListInvoices returns the organization's invoices, newest first
func (s *InvoiceService) ListInvoices(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*billing.Invoice, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.invoiceRepo.ListByOrganization(ctx, organizationID, limit, offset)
}

// HasFeature reports whether the organization's current plan grants a
// feature. Entitlement holds while the subscription is operational and,
// for past_due subscriptions, until the grace window closes. It never
// returns an error: any lookup failure reads as not entitled.
func (s *InvoiceService) HasFeature(ctx context.Context, organizationID uuid.UUID, feature string) bool {
	sub, err := s.subRepo.FindByOrganizationID(ctx, organizationID)
	if err != nil {
		if err != shared.ErrNotFound {
			s.logger.Warn("Feature check failed to load subscription",
				zap.String("organization_id", organizationID.String()),
				zap.Error(err))
		}
		return false
	}

	now := time.Now()
	if !sub.Status.IsOperational() && !sub.InGrace(now) {
		return false
	}

	plan, err := s.planRepo.FindByID(ctx, sub.PlanID)
	if err != nil {
		s.logger.Warn("Feature check failed to load plan",
			zap.String("plan_id", sub.PlanID.String()),
			zap.Error(err))
		return false
	}

	return plan.HasFeature(feature)
}

func (s *InvoiceService) findOrCreate(ctx context.Context, input RecordInvoiceInput) (*billing.Invoice, error) {
	inv, err := s.invoiceRepo.FindByStripeInvoiceID(ctx, input.StripeInvoice)
	if err == nil {
		return inv, nil
	}
	if err != shared.ErrNotFound {
		return nil, err
	}

	currency := valueobject.Currency(strings.ToUpper(input.Currency))
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}
	amount, err := valueobject.NewMoneyFromCents(input.AmountCents, currency)
	if err != nil {
		return nil, err
	}

	inv, err = billing.NewInvoice(input.OrganizationID, input.StripeInvoice, amount)
	if err != nil {
		return nil, err
	}
	inv.SubscriptionID = input.SubscriptionID
	inv.PeriodStart = input.PeriodStart
	inv.PeriodEnd = input.PeriodEnd
	if !input.DueDate.IsZero() {
		due := input.DueDate
		inv.DueDate = &due
	}

	if err := s.invoiceRepo.Create(ctx, inv); err != nil {
		// Another worker recorded the same invoice first; use theirs.
		if err == shared.ErrAlreadyExists {
			return s.invoiceRepo.FindByStripeInvoiceID(ctx, input.StripeInvoice)
		}
		return nil, err
	}
	return inv, nil
}

func (s *InvoiceService) publishEvents(ctx context.Context, events []shared.DomainEvent) {
	if s.eventBus == nil {
		return
	}
	for _, event := range events {
		if err := s.eventBus.Publish(ctx, event); err != nil {
			s.logger.Error("Failed to publish domain event",
				zap.String("event_type", event.EventType()),
				zap.Error(err))
		}
	}
}
