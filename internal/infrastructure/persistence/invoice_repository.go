package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/saasops/backend/internal/domain/billing"
	"github.com/saasops/backend/internal/domain/shared"
)

// GormInvoiceRepository implements InvoiceRepository using GORM. The invoice
// ledger is append-mostly: Create relies on the unique index over the
// external invoice id to reject duplicates under concurrency.
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindByID finds an invoice by its ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	var inv billing.Invoice
	if err := r.db.WithContext(ctx).First(&inv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// FindByStripeInvoiceID finds an invoice by its external id
func (r *GormInvoiceRepository) FindByStripeInvoiceID(ctx context.Context, stripeInvoiceID string) (*billing.Invoice, error) {
	if stripeInvoiceID == "" {
		return nil, shared.ErrNotFound
	}
	var inv billing.Invoice
	if err := r.db.WithContext(ctx).
		Where("stripe_invoice_id = ?", stripeInvoiceID).
		First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// ListByOrganization returns a page of invoices for an organization, newest
// first, along with the total count.
func (r *GormInvoiceRepository) ListByOrganization(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*billing.Invoice, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&billing.Invoice{}).
		Where("organization_id = ?", organizationID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var invoices []*billing.Invoice
	if err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("period_end DESC, created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&invoices).Error; err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

// Create inserts a new invoice. A unique index violation on the external id
// is reported as shared.ErrAlreadyExists so callers can re-fetch the row the
// concurrent writer won with.
func (r *GormInvoiceRepository) Create(ctx context.Context, inv *billing.Invoice) error {
	if err := r.db.WithContext(ctx).Create(inv).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Save updates an existing invoice
func (r *GormInvoiceRepository) Save(ctx context.Context, inv *billing.Invoice) error {
	return r.db.WithContext(ctx).Save(inv).Error
}

var _ billing.InvoiceRepository = (*GormInvoiceRepository)(nil)
