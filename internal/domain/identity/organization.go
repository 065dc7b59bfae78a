package identity

import (
	"strings"

	"github.com/saasops/backend/internal/domain/shared"
)

// OrganizationStatus represents the status of an organization
type OrganizationStatus string

const (
	OrganizationStatusActive    OrganizationStatus = "active"
	OrganizationStatusInactive  OrganizationStatus = "inactive"
	OrganizationStatusSuspended OrganizationStatus = "suspended" // Suspended due to payment issues
)

// Organization is the billing tenant. It owns at most one Subscription and
// is the aggregate root for organization-level operations.
type Organization struct {
	shared.BaseAggregateRoot
	Code             string             `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name             string             `gorm:"type:varchar(200);not null"`
	Status           OrganizationStatus `gorm:"type:varchar(20);not null;default:'active'"`
	ContactEmail     string             `gorm:"type:varchar(200)"`
	StripeCustomerID string             `gorm:"type:varchar(100);uniqueIndex"`
	Notes            string             `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (Organization) TableName() string {
	return "organizations"
}

// NewOrganization creates a new organization with required fields
func NewOrganization(code, name string) (*Organization, error) {
	if err := validateOrgCode(code); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Organization name cannot be empty")
	}
	if len(name) > 200 {
		return nil, shared.NewDomainError("INVALID_NAME", "Organization name cannot exceed 200 characters")
	}

	org := &Organization{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              strings.ToUpper(code),
		Name:              name,
		Status:            OrganizationStatusActive,
	}

	org.AddDomainEvent(NewOrganizationCreatedEvent(org))

	return org, nil
}

// SetContactEmail sets the address billing notifications go to
func (o *Organization) SetContactEmail(email string) error {
	if email != "" && len(email) > 200 {
		return shared.NewDomainError("INVALID_EMAIL", "Email cannot exceed 200 characters")
	}
	o.ContactEmail = email
	o.Touch()
	return nil
}

// SetStripeCustomerID records the payment processor's customer handle
func (o *Organization) SetStripeCustomerID(customerID string) {
	o.StripeCustomerID = customerID
	o.Touch()
}

// Activate activates the organization
func (o *Organization) Activate() error {
	if o.Status == OrganizationStatusActive {
		return shared.NewDomainError("ALREADY_ACTIVE", "Organization is already active")
	}
	oldStatus := o.Status
	o.Status = OrganizationStatusActive
	o.Touch()
	o.AddDomainEvent(NewOrganizationStatusChangedEvent(o, oldStatus, OrganizationStatusActive))
	return nil
}

// Deactivate deactivates the organization
func (o *Organization) Deactivate() error {
	if o.Status == OrganizationStatusInactive {
		return shared.NewDomainError("ALREADY_INACTIVE", "Organization is already inactive")
	}
	oldStatus := o.Status
	o.Status = OrganizationStatusInactive
	o.Touch()
	o.AddDomainEvent(NewOrganizationStatusChangedEvent(o, oldStatus, OrganizationStatusInactive))
	return nil
}

// Suspend suspends the organization (e.g., the subscription went unpaid)
func (o *Organization) Suspend() error {
	if o.Status == OrganizationStatusSuspended {
		return shared.NewDomainError("ALREADY_SUSPENDED", "Organization is already suspended")
	}
	oldStatus := o.Status
	o.Status = OrganizationStatusSuspended
	o.Touch()
	o.AddDomainEvent(NewOrganizationStatusChangedEvent(o, oldStatus, OrganizationStatusSuspended))
	return nil
}

// IsActive returns true if the organization is active
func (o *Organization) IsActive() bool {
	return o.Status == OrganizationStatusActive
}

// IsSuspended returns true if the organization is suspended
func (o *Organization) IsSuspended() bool {
	return o.Status == OrganizationStatusSuspended
}

func validateOrgCode(code string) error {
	if code == "" {
		return shared.NewDomainError("INVALID_CODE", "Organization code cannot be empty")
	}
	if len(code) > 50 {
		return shared.NewDomainError("INVALID_CODE", "Organization code cannot exceed 50 characters")
	}
	for _, r := range code {
		if !((r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-') {
			return shared.NewDomainError("INVALID_CODE", "Organization code can only contain letters, numbers, underscores, and hyphens")
		}
	}
	return nil
}
