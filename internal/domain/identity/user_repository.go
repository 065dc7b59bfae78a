package identity

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository defines persistence operations for users
type UserRepository interface {
	FindByID(ctx context.Context, organizationID, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, organizationID uuid.UUID, email string) (*User, error)
	CountSeated(ctx context.Context, organizationID uuid.UUID) (int64, error)
	Save(ctx context.Context, user *User) error
}
