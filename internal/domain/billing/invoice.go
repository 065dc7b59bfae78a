package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/saasops/backend/internal/domain/shared"
	"github.com/saasops/backend/internal/domain/shared/valueobject"
)

// InvoiceStatus tracks where an invoice sits in its payment lifecycle
type InvoiceStatus string

const (
	InvoiceStatusOpen          InvoiceStatus = "open"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusPaymentFailed InvoiceStatus = "payment_failed"
	InvoiceStatusVoid          InvoiceStatus = "void"
)

// Invoice is a ledger entry for one billing charge. Invoices are keyed by
// the payment processor's invoice id so the same charge is never recorded
// twice.
type Invoice struct {
	shared.OrgAggregateRoot
	SubscriptionID  *uuid.UUID        `gorm:"type:uuid;index"`
	StripeInvoiceID string            `gorm:"type:varchar(100);not null;uniqueIndex"`
	Amount          valueobject.Money `gorm:"type:jsonb"`
	Status          InvoiceStatus     `gorm:"type:varchar(20);not null"`
	PeriodStart     time.Time
	PeriodEnd       time.Time
	DueDate         *time.Time
	PaidAt          *time.Time
	FailureReason   string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (Invoice) TableName() string {
	return "invoices"
}

// NewInvoice records a charge reported by the payment processor
func NewInvoice(organizationID uuid.UUID, stripeInvoiceID string, amount valueobject.Money) (*Invoice, error) {
	if stripeInvoiceID == "" {
		return nil, shared.NewDomainError("INVALID_INVOICE", "Invoice external id cannot be empty")
	}
	if amount.IsNegative() {
		return nil, shared.NewDomainError("INVALID_INVOICE", "Invoice amount cannot be negative")
	}

	inv := &Invoice{
		OrgAggregateRoot: shared.NewOrgAggregateRoot(organizationID),
		StripeInvoiceID:  stripeInvoiceID,
		Amount:           amount,
		Status:           InvoiceStatusOpen,
	}
	inv.AddDomainEvent(NewInvoiceRecordedEvent(inv))
	return inv, nil
}

// MarkPaid settles the invoice. Marking an already paid invoice again is a
// no-op so replayed payment events stay harmless.
func (i *Invoice) MarkPaid(now time.Time) error {
	if i.Status == InvoiceStatusPaid {
		return nil
	}
	if i.Status == InvoiceStatusVoid {
		return shared.NewDomainError("INVOICE_VOID", "A void invoice cannot be paid")
	}
	i.Status = InvoiceStatusPaid
	i.PaidAt = &now
	i.FailureReason = ""
	i.Touch()
	i.AddDomainEvent(NewInvoicePaidEvent(i))
	return nil
}

// MarkPaymentFailed records a failed charge attempt. Paid invoices stay
// paid; a late failure event for a settled invoice is ignored.
func (i *Invoice) MarkPaymentFailed(reason string) error {
	if i.Status == InvoiceStatusPaid {
		return nil
	}
	if i.Status == InvoiceStatusVoid {
		return shared.NewDomainError("INVOICE_VOID", "A void invoice cannot fail payment")
	}
	i.Status = InvoiceStatusPaymentFailed
	i.FailureReason = reason
	i.Touch()
	i.AddDomainEvent(NewInvoicePaymentFailedEvent(i, reason))
	return nil
}

// IsPaid returns true once the invoice has settled
func (i *Invoice) IsPaid() bool {
	return i.Status == InvoiceStatusPaid
}
