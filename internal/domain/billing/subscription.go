package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saasops/backend/internal/domain/shared"
)

// SubscriptionStatus mirrors the payment processor's lifecycle states
type SubscriptionStatus string

const (
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusDeleted           SubscriptionStatus = "deleted"
)

// subscriptionTransitions lists the allowed status changes. Deleted is
// terminal; nothing leaves it.
var subscriptionTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusIncomplete:        {SubscriptionStatusIncompleteExpired, SubscriptionStatusTrialing, SubscriptionStatusActive, SubscriptionStatusDeleted},
	SubscriptionStatusIncompleteExpired: {SubscriptionStatusDeleted},
	SubscriptionStatusTrialing:          {SubscriptionStatusActive, SubscriptionStatusPastDue, SubscriptionStatusDeleted},
	SubscriptionStatusActive:            {SubscriptionStatusPastDue, SubscriptionStatusDeleted},
	SubscriptionStatusPastDue:           {SubscriptionStatusActive, SubscriptionStatusUnpaid, SubscriptionStatusDeleted},
	SubscriptionStatusUnpaid:            {SubscriptionStatusActive, SubscriptionStatusDeleted},
	SubscriptionStatusDeleted:           {},
}

// IsTerminal returns true for statuses that can never change again
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusDeleted
}

// IsOperational returns true when the organization should have full access
func (s SubscriptionStatus) IsOperational() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// Subscription is the billing state for one organization. An organization
// has at most one subscription at a time.
type Subscription struct {
	shared.OrgAggregateRoot
	PlanID               uuid.UUID          `gorm:"type:uuid;not null"`
	Status               SubscriptionStatus `gorm:"type:varchar(30);not null"`
	Seats                int                `gorm:"not null"`
	UsedSeats            int                `gorm:"not null;default:0"`
	CurrentPeriodStart   time.Time          `gorm:"not null"`
	CurrentPeriodEnd     time.Time          `gorm:"not null;index"`
	BillingCycleAnchor   time.Time          `gorm:"not null"`
	GracePeriodEnd       *time.Time         // set while past_due, nil otherwise
	TrialEnd             *time.Time
	CanceledAt           *time.Time
	CancelAtPeriodEnd    bool   `gorm:"not null;default:false"`
	StripeSubscriptionID string `gorm:"type:varchar(100);uniqueIndex"`
	StripeCustomerID     string `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (Subscription) TableName() string {
	return "subscriptions"
}

// NewSubscription starts a subscription on a plan. It begins trialing when
// the plan carries a trial, otherwise active. The first billing period is
// anchored at now.
func NewSubscription(organizationID uuid.UUID, plan *SubscriptionPlan, seats int, now time.Time) (*Subscription, error) {
	if seats < 1 {
		return nil, shared.NewDomainError("INVALID_SEATS", "A subscription needs at least one seat")
	}
	if ceiling := plan.SeatCeiling(); ceiling >= 0 && seats > ceiling {
		return nil, shared.NewDomainError("INVALID_SEATS",
			fmt.Sprintf("Plan %s allows at most %d seats", plan.Tier, ceiling))
	}

	sub := &Subscription{
		OrgAggregateRoot:   shared.NewOrgAggregateRoot(organizationID),
		PlanID:             plan.ID,
		Status:             SubscriptionStatusActive,
		Seats:              seats,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   addInterval(now, plan.Interval),
		BillingCycleAnchor: now,
	}

	if plan.TrialDays > 0 {
		sub.Status = SubscriptionStatusTrialing
		trialEnd := now.AddDate(0, 0, plan.TrialDays)
		sub.TrialEnd = &trialEnd
	}

	sub.AddDomainEvent(NewSubscriptionCreatedEvent(sub, plan.Tier))

	return sub, nil
}

// CanTransitionTo reports whether the status change is allowed
func (s *Subscription) CanTransitionTo(target SubscriptionStatus) bool {
	for _, allowed := range subscriptionTransitions[s.Status] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ApplyExternalStatus reconciles a status reported by the payment processor.
// Re-applying the current status only refreshes the period window. Grace
// tracking is kept consistent: entering past_due sets a grace deadline
// derived from the new period end, leaving past_due clears it.
func (s *Subscription) ApplyExternalStatus(target SubscriptionStatus, periodStart, periodEnd time.Time, graceDays int) error {
	if s.Status.IsTerminal() {
		return shared.NewDomainError("SUBSCRIPTION_DELETED", "A deleted subscription cannot change status")
	}

	if target == s.Status {
		s.setPeriod(periodStart, periodEnd, graceDays)
		s.Touch()
		return nil
	}

	if !s.CanTransitionTo(target) {
		return shared.NewDomainError("INVALID_TRANSITION",
			fmt.Sprintf("Cannot move subscription from %s to %s", s.Status, target))
	}

	oldStatus := s.Status
	s.Status = target
	s.setPeriod(periodStart, periodEnd, graceDays)
	if target != SubscriptionStatusTrialing {
		s.TrialEnd = nil
	}
	s.Touch()

	s.AddDomainEvent(NewSubscriptionStatusChangedEvent(s, oldStatus, target))
	return nil
}

func (s *Subscription) setPeriod(periodStart, periodEnd time.Time, graceDays int) {
	if !periodStart.IsZero() {
		s.CurrentPeriodStart = periodStart
	}
	if !periodEnd.IsZero() {
		s.CurrentPeriodEnd = periodEnd
	}
	if s.Status == SubscriptionStatusPastDue {
		grace := GraceEnd(s.CurrentPeriodEnd, graceDays)
		s.GracePeriodEnd = &grace
	} else {
		s.GracePeriodEnd = nil
	}
}

// IsStale reports whether an incoming update describes an older billing
// period than the one already recorded. Stale updates must be dropped, not
// applied, so late retries cannot rewind the subscription.
func (s *Subscription) IsStale(incomingPeriodEnd time.Time) bool {
	if incomingPeriodEnd.IsZero() {
		return false
	}
	return incomingPeriodEnd.Before(s.CurrentPeriodEnd)
}

// InGrace returns true while a past_due subscription is within its grace window
func (s *Subscription) InGrace(now time.Time) bool {
	return s.Status == SubscriptionStatusPastDue &&
		s.GracePeriodEnd != nil && now.Before(*s.GracePeriodEnd)
}

// Cancel ends the subscription. Immediate cancellation moves it straight to
// deleted; otherwise it keeps running and is flagged to end with the period.
func (s *Subscription) Cancel(immediate bool, now time.Time) error {
	if s.Status.IsTerminal() {
		return shared.NewDomainError("SUBSCRIPTION_DELETED", "Subscription is already deleted")
	}

	if !immediate {
		s.CancelAtPeriodEnd = true
		s.CanceledAt = &now
		s.Touch()
		s.AddDomainEvent(NewSubscriptionCanceledEvent(s, false))
		return nil
	}

	oldStatus := s.Status
	s.Status = SubscriptionStatusDeleted
	s.GracePeriodEnd = nil
	s.TrialEnd = nil
	s.CancelAtPeriodEnd = false
	s.CanceledAt = &now
	s.CurrentPeriodEnd = now
	s.Touch()
	s.AddDomainEvent(NewSubscriptionStatusChangedEvent(s, oldStatus, SubscriptionStatusDeleted))
	s.AddDomainEvent(NewSubscriptionCanceledEvent(s, true))
	return nil
}

// ChangePlan moves the subscription to a different plan. When the new plan
// caps seats below the current allocation, seats shrink to the cap but never
// below what is already in use.
func (s *Subscription) ChangePlan(plan *SubscriptionPlan) error {
	if s.Status.IsTerminal() {
		return shared.NewDomainError("SUBSCRIPTION_DELETED", "A deleted subscription cannot change plans")
	}
	if plan.ID == s.PlanID {
		return nil
	}

	if ceiling := plan.SeatCeiling(); ceiling >= 0 && s.Seats > ceiling {
		newSeats := ceiling
		if s.UsedSeats > newSeats {
			newSeats = s.UsedSeats
		}
		s.Seats = newSeats
	}

	oldPlanID := s.PlanID
	s.PlanID = plan.ID
	s.Touch()
	s.AddDomainEvent(NewSubscriptionPlanChangedEvent(s, oldPlanID, plan.ID, plan.Tier))
	return nil
}

// AvailableSeats returns how many seats are still unassigned
func (s *Subscription) AvailableSeats() int {
	return s.Seats - s.UsedSeats
}

func addInterval(t time.Time, interval PlanInterval) time.Time {
	if interval == PlanIntervalYear {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}
