package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saasops/backend/internal/domain/billing"
	"github.com/saasops/backend/internal/domain/shared"
)

// SeatService manages seat allocation against a subscription's capacity.
// The capacity checks run inside the repository as single conditional
// statements, so concurrent assignments can never oversubscribe.
type SeatService struct {
	subRepo  billing.SubscriptionRepository
	planRepo billing.PlanRepository
	eventBus shared.EventBus
	logger   *zap.Logger
}

// SeatServiceConfig contains configuration for SeatService
type SeatServiceConfig struct {
	SubscriptionRepo billing.SubscriptionRepository
	PlanRepo         billing.PlanRepository
	EventBus         shared.EventBus
	Logger           *zap.Logger
}

// NewSeatService creates a new SeatService
func NewSeatService(cfg SeatServiceConfig) *SeatService {
	return &SeatService{
		subRepo:  cfg.SubscriptionRepo,
		planRepo: cfg.PlanRepo,
		eventBus: cfg.EventBus,
		logger:   cfg.Logger,
	}
}

// AssignSeat gives a user one of the subscription's seats. Assigning a seat
// the user already holds is a no-op. Returns shared.ErrSeatLimitExceeded
// when no seats are free.
func (s *SeatService) AssignSeat(ctx context.Context, organizationID, userID uuid.UUID) error {
	sub, err := s.usableSubscription(ctx, organizationID)
	if err != nil {
		return err
	}

	if err := s.subRepo.AssignSeat(ctx, sub.ID, organizationID, userID); err != nil {
		return err
	}

	s.publish(ctx, billing.NewSeatAssignedEvent(sub.ID, organizationID, userID))
	s.logger.Info("Seat assigned",
		zap.String("organization_id", organizationID.String()),
		zap.String("user_id", userID.String()))
	return nil
}

// UnassignSeat releases a user's seat. Releasing a seat the user does not
// hold is a no-op.
func (s *SeatService) UnassignSeat(ctx context.Context, organizationID, userID uuid.UUID) error {
	sub, err := s.subRepo.FindByOrganizationID(ctx, organizationID)
	if err != nil {
		return err
	}

	if err := s.subRepo.UnassignSeat(ctx, sub.ID, organizationID, userID); err != nil {
		return err
	}

	s.publish(ctx, billing.NewSeatReleasedEvent(sub.ID, organizationID, userID))
	s.logger.Info("Seat released",
		zap.String("organization_id", organizationID.String()),
		zap.String("user_id", userID.String()))
	return nil
}

// ResizeSeats changes the subscription's seat capacity. The new capacity
// must cover the seats already in use and stay within the plan's ceiling.
func (s *SeatService) ResizeSeats(ctx context.Context, organizationID uuid.UUID, newSeats int) (*billing.Subscription, error) {
	if newSeats < 1 {
		return nil, shared.NewDomainError("INVALID_SEATS", "A subscription needs at least one seat")
	}

	sub, err := s.usableSubscription(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	plan, err := s.planRepo.FindByID(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	if ceiling := plan.SeatCeiling(); ceiling >= 0 && newSeats > ceiling {
		return nil, shared.NewDomainError("SEAT_LIMIT_EXCEEDED",
			fmt.Sprintf("Plan %s allows at most %d seats", plan.Tier, ceiling))
	}

	if err := s.subRepo.ResizeSeats(ctx, sub.ID, newSeats); err != nil {
		return nil, err
	}

	s.logger.Info("Seat capacity changed",
		zap.String("organization_id", organizationID.String()),
		zap.Int("seats", newSeats))

	return s.subRepo.FindByID(ctx, sub.ID)
}

func (s *SeatService) usableSubscription(ctx context.Context, organizationID uuid.UUID) (*billing.Subscription, error) {
	sub, err := s.subRepo.FindByOrganizationID(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if sub.Status.IsTerminal() {
		return nil, shared.NewDomainError("SUBSCRIPTION_DELETED", "The subscription has been deleted")
	}
	return sub, nil
}

func (s *SeatService) publish(ctx context.Context, event shared.DomainEvent) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish domain event",
			zap.String("event_type", event.EventType()),
			zap.Error(err))
	}
}
