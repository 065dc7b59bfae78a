package identity

import (
	"github.com/saasops/backend/internal/domain/shared"
)

const (
	EventTypeOrganizationCreated       = "organization.created"
	EventTypeOrganizationStatusChanged = "organization.status_changed"
)

// OrganizationCreatedEvent is published when a new organization is registered
type OrganizationCreatedEvent struct {
	shared.BaseDomainEvent
	Code string `json:"code"`
	Name string `json:"name"`
}

func NewOrganizationCreatedEvent(org *Organization) *OrganizationCreatedEvent {
	return &OrganizationCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrganizationCreated, "Organization", org.ID, org.ID),
		Code:            org.Code,
		Name:            org.Name,
	}
}

// OrganizationStatusChangedEvent is published when an organization is
// activated, deactivated, or suspended
type OrganizationStatusChangedEvent struct {
	shared.BaseDomainEvent
	OldStatus OrganizationStatus `json:"old_status"`
	NewStatus OrganizationStatus `json:"new_status"`
}

func NewOrganizationStatusChangedEvent(org *Organization, oldStatus, newStatus OrganizationStatus) *OrganizationStatusChangedEvent {
	return &OrganizationStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrganizationStatusChanged, "Organization", org.ID, org.ID),
		OldStatus:       oldStatus,
		NewStatus:       newStatus,
	}
}
