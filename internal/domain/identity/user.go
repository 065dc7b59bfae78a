package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saasops/backend/internal/domain/shared"
)

// UserStatus represents the status of a user account
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// User is a member of an organization. A user only counts against the
// organization's subscription seats while SeatAssignedAt is set.
type User struct {
	shared.OrgAggregateRoot
	Email          string     `gorm:"type:varchar(200);not null"`
	DisplayName    string     `gorm:"type:varchar(100);not null"`
	Status         UserStatus `gorm:"type:varchar(20);not null;default:'active'"`
	SeatAssignedAt *time.Time `gorm:"index"`
}

// TableName returns the table name for GORM
func (User) TableName() string {
	return "users"
}

// NewUser creates a new user belonging to an organization
func NewUser(organizationID uuid.UUID, email, displayName string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, shared.NewDomainError("INVALID_EMAIL", "A valid email address is required")
	}
	if displayName == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Display name cannot be empty")
	}
	if len(displayName) > 100 {
		return nil, shared.NewDomainError("INVALID_NAME", "Display name cannot exceed 100 characters")
	}

	return &User{
		OrgAggregateRoot: shared.NewOrgAggregateRoot(organizationID),
		Email:            email,
		DisplayName:      displayName,
		Status:           UserStatusActive,
	}, nil
}

// HasSeat returns true if the user currently occupies a subscription seat
func (u *User) HasSeat() bool {
	return u.SeatAssignedAt != nil
}

// IsActive returns true if the user account is active
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// Deactivate disables the user account
func (u *User) Deactivate() {
	u.Status = UserStatusInactive
	u.Touch()
}
