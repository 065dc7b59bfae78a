package billing

import (
	"github.com/google/uuid"

	"github.com/saasops/backend/internal/domain/shared"
)

const (
	EventTypeSubscriptionCreated       = "subscription.created"
	EventTypeSubscriptionStatusChanged = "subscription.status_changed"
	EventTypeSubscriptionCanceled      = "subscription.canceled"
	EventTypeSubscriptionPlanChanged   = "subscription.plan_changed"
	EventTypeSeatAssigned              = "subscription.seat_assigned"
	EventTypeSeatReleased              = "subscription.seat_released"
	EventTypeInvoiceRecorded           = "invoice.recorded"
	EventTypeInvoicePaid               = "invoice.paid"
	EventTypeInvoicePaymentFailed      = "invoice.payment_failed"
)

// SubscriptionCreatedEvent is published when an organization starts a subscription
type SubscriptionCreatedEvent struct {
	shared.BaseDomainEvent
	PlanTier PlanTier           `json:"plan_tier"`
	Status   SubscriptionStatus `json:"status"`
	Seats    int                `json:"seats"`
}

func NewSubscriptionCreatedEvent(sub *Subscription, tier PlanTier) *SubscriptionCreatedEvent {
	return &SubscriptionCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSubscriptionCreated, "Subscription", sub.ID, sub.OrganizationID),
		PlanTier:        tier,
		Status:          sub.Status,
		Seats:           sub.Seats,
	}
}

// SubscriptionStatusChangedEvent is published on every lifecycle transition
type SubscriptionStatusChangedEvent struct {
	shared.BaseDomainEvent
	OldStatus SubscriptionStatus `json:"old_status"`
	NewStatus SubscriptionStatus `json:"new_status"`
}

func NewSubscriptionStatusChangedEvent(sub *Subscription, oldStatus, newStatus SubscriptionStatus) *SubscriptionStatusChangedEvent {
	return &SubscriptionStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSubscriptionStatusChanged, "Subscription", sub.ID, sub.OrganizationID),
		OldStatus:       oldStatus,
		NewStatus:       newStatus,
	}
}

// SubscriptionCanceledEvent is published when a cancellation is requested
type SubscriptionCanceledEvent struct {
	shared.BaseDomainEvent
	Immediate bool `json:"immediate"`
}

func NewSubscriptionCanceledEvent(sub *Subscription, immediate bool) *SubscriptionCanceledEvent {
	return &SubscriptionCanceledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSubscriptionCanceled, "Subscription", sub.ID, sub.OrganizationID),
		Immediate:       immediate,
	}
}

// SubscriptionPlanChangedEvent is published when a subscription moves tiers
type SubscriptionPlanChangedEvent struct {
	shared.BaseDomainEvent
	OldPlanID uuid.UUID `json:"old_plan_id"`
	NewPlanID uuid.UUID `json:"new_plan_id"`
	NewTier   PlanTier  `json:"new_tier"`
}

func NewSubscriptionPlanChangedEvent(sub *Subscription, oldPlanID, newPlanID uuid.UUID, newTier PlanTier) *SubscriptionPlanChangedEvent {
	return &SubscriptionPlanChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSubscriptionPlanChanged, "Subscription", sub.ID, sub.OrganizationID),
		OldPlanID:       oldPlanID,
		NewPlanID:       newPlanID,
		NewTier:         newTier,
	}
}

// SeatChangedEvent is published when a seat is assigned or released
type SeatChangedEvent struct {
	shared.BaseDomainEvent
	UserID uuid.UUID `json:"user_id"`
}

func NewSeatAssignedEvent(subscriptionID, organizationID, userID uuid.UUID) *SeatChangedEvent {
	return &SeatChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSeatAssigned, "Subscription", subscriptionID, organizationID),
		UserID:          userID,
	}
}

func NewSeatReleasedEvent(subscriptionID, organizationID, userID uuid.UUID) *SeatChangedEvent {
	return &SeatChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSeatReleased, "Subscription", subscriptionID, organizationID),
		UserID:          userID,
	}
}

// InvoiceRecordedEvent is published when a new invoice enters the ledger
type InvoiceRecordedEvent struct {
	shared.BaseDomainEvent
	StripeInvoiceID string `json:"stripe_invoice_id"`
	Amount          string `json:"amount"`
}

func NewInvoiceRecordedEvent(inv *Invoice) *InvoiceRecordedEvent {
	return &InvoiceRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceRecorded, "Invoice", inv.ID, inv.OrganizationID),
		StripeInvoiceID: inv.StripeInvoiceID,
		Amount:          inv.Amount.String(),
	}
}

// InvoicePaidEvent is published when an invoice settles
type InvoicePaidEvent struct {
	shared.BaseDomainEvent
	StripeInvoiceID string `json:"stripe_invoice_id"`
	Amount          string `json:"amount"`
}

func NewInvoicePaidEvent(inv *Invoice) *InvoicePaidEvent {
	return &InvoicePaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoicePaid, "Invoice", inv.ID, inv.OrganizationID),
		StripeInvoiceID: inv.StripeInvoiceID,
		Amount:          inv.Amount.String(),
	}
}

// InvoicePaymentFailedEvent is published when a charge attempt fails
type InvoicePaymentFailedEvent struct {
	shared.BaseDomainEvent
	StripeInvoiceID string `json:"stripe_invoice_id"`
	Reason          string `json:"reason"`
}

func NewInvoicePaymentFailedEvent(inv *Invoice, reason string) *InvoicePaymentFailedEvent {
	return &InvoicePaymentFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoicePaymentFailed, "Invoice", inv.ID, inv.OrganizationID),
		StripeInvoiceID: inv.StripeInvoiceID,
		Reason:          reason,
	}
}
