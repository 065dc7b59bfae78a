package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saasops/backend/internal/domain/billing"
	"github.com/saasops/backend/internal/domain/identity"
	"github.com/saasops/backend/internal/domain/shared"
)

// SubscriptionService manages the subscription lifecycle for organizations
type SubscriptionService struct {
	subRepo   billing.SubscriptionRepository
	planRepo  billing.PlanRepository
	orgRepo   identity.OrganizationRepository
	eventBus  shared.EventBus
	notifier  Notifier
	logger    *zap.Logger
	graceDays int
}

// SubscriptionServiceConfig contains configuration for SubscriptionService
type SubscriptionServiceConfig struct {
	SubscriptionRepo billing.SubscriptionRepository
	PlanRepo         billing.PlanRepository
	OrganizationRepo identity.OrganizationRepository
	EventBus         shared.EventBus
	Notifier         Notifier
	Logger           *zap.Logger
	GraceDays        int
}

// NewSubscriptionService creates a new SubscriptionService
func NewSubscriptionService(cfg SubscriptionServiceConfig) *SubscriptionService {
	return &SubscriptionService{
		subRepo:   cfg.SubscriptionRepo,
		planRepo:  cfg.PlanRepo,
		orgRepo:   cfg.OrganizationRepo,
		eventBus:  cfg.EventBus,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger,
		graceDays: cfg.GraceDays,
	}
}

// CreateSubscriptionInput is the request to start a subscription. PeriodStart
// and PeriodEnd override the locally anchored billing period when the payment
// processor already reported one.
type CreateSubscriptionInput struct {
	OrganizationID       uuid.UUID
	Tier                 billing.PlanTier
	Seats                int
	StripeSubscriptionID string
	StripeCustomerID     string
	PeriodStart          time.Time
	PeriodEnd            time.Time
	BillingCycleAnchor   time.Time
}

// CreateSubscription starts a subscription for an organization. When the
// organization already holds a subscription with the same external id the
// existing one is returned unchanged, so a replayed signup never creates a
// duplicate. A different live subscription is a conflict.
func (s *SubscriptionService) CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*billing.Subscription, error) {
	org, err := s.orgRepo.FindByID(ctx, input.OrganizationID)
	if err != nil {
		return nil, err
	}

	existing, err := s.subRepo.FindByOrganizationID(ctx, input.OrganizationID)
	if err != nil && err != shared.ErrNotFound {
		return nil, err
	}
	if existing != nil {
		if input.StripeSubscriptionID != "" && existing.StripeSubscriptionID == input.StripeSubscriptionID {
			s.logger.Info("Subscription already recorded, returning existing",
				zap.String("organization_id", org.ID.String()),
				zap.String("stripe_subscription_id", input.StripeSubscriptionID))
			return existing, nil
		}
		if !existing.Status.IsTerminal() {
			return nil, shared.ErrAlreadyExists
		}
	}

	plan, err := s.planForTier(ctx, input.Tier)
	if err != nil {
		return nil, err
	}

	sub, err := billing.NewSubscription(org.ID, plan, input.Seats, time.Now())
	if err != nil {
		return nil, err
	}
	sub.StripeSubscriptionID = input.StripeSubscriptionID
	sub.StripeCustomerID = input.StripeCustomerID
	if !input.PeriodStart.IsZero() {
		sub.CurrentPeriodStart = input.PeriodStart
	}
	if !input.PeriodEnd.IsZero() {
		sub.CurrentPeriodEnd = input.PeriodEnd
	}
	if !input.BillingCycleAnchor.IsZero() {
		sub.BillingCycleAnchor = input.BillingCycleAnchor
	}

	if input.StripeCustomerID != "" && org.StripeCustomerID != input.StripeCustomerID {
		org.SetStripeCustomerID(input.StripeCustomerID)
		if err := s.orgRepo.Save(ctx, org); err != nil {
			return nil, fmt.Errorf("failed to save organization: %w", err)
		}
	}

	if err := s.subRepo.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	s.publishEvents(ctx, sub.GetDomainEvents())
	sub.ClearDomainEvents()

	s.logger.Info("Subscription created",
		zap.String("organization_id", org.ID.String()),
		zap.String("tier", string(plan.Tier)),
		zap.String("status", string(sub.Status)),
		zap.Int("seats", sub.Seats))

	return sub, nil
}

// GetSubscription returns the organization's subscription
func (s *SubscriptionService) GetSubscription(ctx context.Context, organizationID uuid.UUID) (*billing.Subscription, error) {
	return s.subRepo.FindByOrganizationID(ctx, organizationID)
}

// ReconcileInput carries a lifecycle update reported by the payment processor
type ReconcileInput struct {
	StripeSubscriptionID string
	StripeCustomerID     string
	Status               billing.SubscriptionStatus
	PeriodStart          time.Time
	PeriodEnd            time.Time
}

// ReconcileStatus applies an externally reported status to the matching
// subscription. Updates describing an older billing period than the one on
// record are dropped. The organization's status follows the subscription:
// unpaid and deleted suspend it, recovery to an operational status
// reactivates it.
func (s *SubscriptionService) ReconcileStatus(ctx context.Context, input ReconcileInput) (*billing.Subscription, error) {
	sub, err := s.findByExternalIDs(ctx, input.StripeSubscriptionID, input.StripeCustomerID)
	if err != nil {
		return nil, err
	}

	if sub.IsStale(input.PeriodEnd) {
		s.logger.Warn("Dropping stale subscription update",
			zap.String("subscription_id", sub.ID.String()),
			zap.Time("incoming_period_end", input.PeriodEnd),
			zap.Time("recorded_period_end", sub.CurrentPeriodEnd))
		return sub, nil
	}

	if err := sub.ApplyExternalStatus(input.Status, input.PeriodStart, input.PeriodEnd, s.graceDays); err != nil {
		return nil, err
	}

	if input.StripeSubscriptionID != "" && sub.StripeSubscriptionID == "" {
		sub.StripeSubscriptionID = input.StripeSubscriptionID
	}

	if err := s.subRepo.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	s.syncOrganizationStatus(ctx, sub)

	s.publishEvents(ctx, sub.GetDomainEvents())
	sub.ClearDomainEvents()

	s.logger.Info("Subscription status reconciled",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("status", string(sub.Status)))

	return sub, nil
}

// CancelSubscription cancels the organization's subscription. Immediate
// cancellation takes effect now; otherwise the subscription runs out its
// current period.
func (s *SubscriptionService) CancelSubscription(ctx context.Context, organizationID uuid.UUID, immediate bool) (*billing.Subscription, error) {
	sub, err := s.subRepo.FindByOrganizationID(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	if err := sub.Cancel(immediate, time.Now()); err != nil {
		return nil, err
	}

	if err := s.subRepo.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	if immediate {
		s.syncOrganizationStatus(ctx, sub)
	}

	s.publishEvents(ctx, sub.GetDomainEvents())
	sub.ClearDomainEvents()

	s.notifyContact(ctx, organizationID, "Subscription canceled",
		"Your subscription has been canceled. You can resubscribe at any time.")

	return sub, nil
}

// ChangePlan moves the organization's subscription to a different tier
func (s *SubscriptionService) ChangePlan(ctx context.Context, organizationID uuid.UUID, tier billing.PlanTier) (*billing.Subscription, error) {
	sub, err := s.subRepo.FindByOrganizationID(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	plan, err := s.planForTier(ctx, tier)
	if err != nil {
		return nil, err
	}

	if err := sub.ChangePlan(plan); err != nil {
		return nil, err
	}

	if err := s.subRepo.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	s.publishEvents(ctx, sub.GetDomainEvents())
	sub.ClearDomainEvents()

	s.logger.Info("Subscription plan changed",
		zap.String("organization_id", organizationID.String()),
		zap.String("tier", string(tier)))

	return sub, nil
}

// planForTier loads a plan, seeding it from the built-in catalog when the
// tier is known but not yet persisted
func (s *SubscriptionService) planForTier(ctx context.Context, tier billing.PlanTier) (*billing.SubscriptionPlan, error) {
	plan, err := s.planRepo.FindByTier(ctx, tier)
	if err == nil {
		return plan, nil
	}
	if err != shared.ErrNotFound {
		return nil, err
	}

	for _, candidate := range billing.DefaultPlanCatalog() {
		if candidate.Tier == tier {
			if err := s.planRepo.Save(ctx, candidate); err != nil {
				return nil, fmt.Errorf("failed to seed plan %s: %w", tier, err)
			}
			return candidate, nil
		}
	}
	return nil, shared.NewDomainError("UNKNOWN_TIER", fmt.Sprintf("No plan exists for tier %s", tier))
}

func (s *SubscriptionService) findByExternalIDs(ctx context.Context, stripeSubscriptionID, stripeCustomerID string) (*billing.Subscription, error) {
	if stripeSubscriptionID != "" {
		sub, err := s.subRepo.FindByStripeSubscriptionID(ctx, stripeSubscriptionID)
		if err == nil {
			return sub, nil
		}
		if err != shared.ErrNotFound {
			return nil, err
		}
	}

	if stripeCustomerID != "" {
		org, err := s.orgRepo.FindByStripeCustomerID(ctx, stripeCustomerID)
		if err != nil {
			return nil, err
		}
		return s.subRepo.FindByOrganizationID(ctx, org.ID)
	}

	return nil, shared.ErrNotFound
}

// syncOrganizationStatus keeps the organization's status in step with its
// subscription. past_due leaves the organization untouched while the grace
// window runs.
func (s *SubscriptionService) syncOrganizationStatus(ctx context.Context, sub *billing.Subscription) {
	org, err := s.orgRepo.FindByID(ctx, sub.OrganizationID)
	if err != nil {
		s.logger.Warn("Failed to load organization for status sync",
			zap.String("organization_id", sub.OrganizationID.String()),
			zap.Error(err))
		return
	}

	var changed bool
	switch {
	case sub.Status == billing.SubscriptionStatusUnpaid || sub.Status == billing.SubscriptionStatusDeleted:
		if !org.IsSuspended() {
			if err := org.Suspend(); err == nil {
				changed = true
			}
		}
	case sub.Status.IsOperational():
		if org.IsSuspended() {
			if err := org.Activate(); err == nil {
				changed = true
			}
		}
	}

	if !changed {
		return
	}

	if err := s.orgRepo.Save(ctx, org); err != nil {
		s.logger.Error("Failed to save organization status",
			zap.String("organization_id", org.ID.String()),
			zap.Error(err))
		return
	}
	s.publishEvents(ctx, org.GetDomainEvents())
	org.ClearDomainEvents()
}

// notifyContact dispatches a billing email without blocking the caller. The
// send survives the request context ending but not its own timeout.
func (s *SubscriptionService) notifyContact(ctx context.Context, organizationID uuid.UUID, subject, body string) {
	if s.notifier == nil {
		return
	}
	org, err := s.orgRepo.FindByID(ctx, organizationID)
	if err != nil || org.ContactEmail == "" {
		return
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifySendTimeout)
		defer cancel()
		if err := s.notifier.Send(sendCtx, org.ContactEmail, subject, body); err != nil {
			s.logger.Warn("Failed to send billing notification",
				zap.String("organization_id", organizationID.String()),
				zap.Error(err))
		}
	}()
}

func (s *SubscriptionService) publishEvents(ctx context.Context, events []shared.DomainEvent) {
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
