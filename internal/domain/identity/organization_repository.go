package identity

import (
	"context"

	"github.com/google/uuid"
)

// OrganizationRepository defines persistence operations for organizations
type OrganizationRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	FindByCode(ctx context.Context, code string) (*Organization, error)
	FindByStripeCustomerID(ctx context.Context, customerID string) (*Organization, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Save(ctx context.Context, org *Organization) error
}
