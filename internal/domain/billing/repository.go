package billing

import (
	"context"

	"github.com/google/uuid"
)

// SubscriptionRepository defines persistence operations for subscriptions.
// The seat methods are atomic: they succeed or fail as a single statement so
// concurrent callers can never push usage past capacity.
type SubscriptionRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	FindByOrganizationID(ctx context.Context, organizationID uuid.UUID) (*Subscription, error)
	FindByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*Subscription, error)
	Save(ctx context.Context, sub *Subscription) error

	// AssignSeat gives a user a seat if one is free. It is a no-op when the
	// user already holds a seat, and returns shared.ErrSeatLimitExceeded
	// when the subscription is full.
	AssignSeat(ctx context.Context, subscriptionID, organizationID, userID uuid.UUID) error

	// UnassignSeat releases a user's seat. It is a no-op when the user holds
	// no seat.
	UnassignSeat(ctx context.Context, subscriptionID, organizationID, userID uuid.UUID) error

	// ResizeSeats changes the seat capacity. It returns
	// shared.ErrSeatBelowUsage when newSeats is less than the seats in use.
	ResizeSeats(ctx context.Context, subscriptionID uuid.UUID, newSeats int) error
}

// PlanRepository defines persistence operations for the plan catalog
type PlanRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*SubscriptionPlan, error)
	FindByTier(ctx context.Context, tier PlanTier) (*SubscriptionPlan, error)
	FindAll(ctx context.Context) ([]*SubscriptionPlan, error)
	Save(ctx context.Context, plan *SubscriptionPlan) error
}

// InvoiceRepository defines persistence operations for the invoice ledger
type InvoiceRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	FindByStripeInvoiceID(ctx context.Context, stripeInvoiceID string) (*Invoice, error)
	ListByOrganization(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*Invoice, int64, error)

	// Create inserts a new invoice and returns shared.ErrAlreadyExists when
	// an invoice with the same external id is already recorded.
	Create(ctx context.Context, inv *Invoice) error
	Save(ctx context.Context, inv *Invoice) error
}
