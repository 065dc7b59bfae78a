package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/saasops/backend/internal/domain/billing"
	"github.com/saasops/backend/internal/domain/identity"
	"github.com/saasops/backend/internal/domain/shared"
)

// GormSubscriptionRepository implements SubscriptionRepository using GORM.
// Seat accounting uses conditional single-statement updates so concurrent
// assignments can never push used_seats past seats.
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// FindByID finds a subscription by its ID
func (r *GormSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	var sub billing.Subscription
	if err := r.db.WithContext(ctx).First(&sub, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// FindByOrganizationID finds the most recent subscription for an organization
func (r *GormSubscriptionRepository) FindByOrganizationID(ctx context.Context, organizationID uuid.UUID) (*billing.Subscription, error) {
	var sub billing.Subscription
	if err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("created_at DESC").
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// FindByStripeSubscriptionID finds a subscription by its external id
func (r *GormSubscriptionRepository) FindByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*billing.Subscription, error) {
	if stripeSubscriptionID == "" {
		return nil, shared.ErrNotFound
	}
	var sub billing.Subscription
	if err := r.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// Save creates or updates a subscription
func (r *GormSubscriptionRepository) Save(ctx context.Context, sub *billing.Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

// AssignSeat gives a user a seat if one is free. The user row is flagged
// first with a conditional update; the capacity counter is then incremented
// only while used_seats < seats, and a failed increment rolls the whole
// transaction back.
func (r *GormSubscriptionRepository) AssignSeat(ctx context.Context, subscriptionID, organizationID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		result := tx.Model(&identity.User{}).
			Where("organization_id = ? AND id = ? AND seat_assigned_at IS NULL", organizationID, userID).
			Updates(map[string]interface{}{
				"seat_assigned_at": now,
				"updated_at":       now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Either the user already holds a seat or does not exist
			var count int64
			if err := tx.Model(&identity.User{}).
				Where("organization_id = ? AND id = ?", organizationID, userID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return shared.ErrNotFound
			}
			return nil
		}

		result = tx.Model(&billing.Subscription{}).
			Where("id = ? AND organization_id = ? AND used_seats < seats", subscriptionID, organizationID).
			Updates(map[string]interface{}{
				"used_seats": gorm.Expr("used_seats + 1"),
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrSeatLimitExceeded
		}
		return nil
	})
}

// UnassignSeat releases a user's seat and decrements the capacity counter.
// A user without a seat is a no-op.
func (r *GormSubscriptionRepository) UnassignSeat(ctx context.Context, subscriptionID, organizationID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		result := tx.Model(&identity.User{}).
			Where("organization_id = ? AND id = ? AND seat_assigned_at IS NOT NULL", organizationID, userID).
			Updates(map[string]interface{}{
				"seat_assigned_at": nil,
				"updated_at":       now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&identity.User{}).
				Where("organization_id = ? AND id = ?", organizationID, userID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return shared.ErrNotFound
			}
			return nil
		}

		result = tx.Model(&billing.Subscription{}).
			Where("id = ? AND organization_id = ? AND used_seats > 0", subscriptionID, organizationID).
			Updates(map[string]interface{}{
				"used_seats": gorm.Expr("used_seats - 1"),
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		return nil
	})
}

// ResizeSeats changes the seat capacity, refusing to shrink below the seats
// currently in use.
func (r *GormSubscriptionRepository) ResizeSeats(ctx context.Context, subscriptionID uuid.UUID, newSeats int) error {
	result := r.db.WithContext(ctx).
		Model(&billing.Subscription{}).
		Where("id = ? AND used_seats <= ?", subscriptionID, newSeats).
		Updates(map[string]interface{}{
			"seats":      newSeats,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).
			Model(&billing.Subscription{}).
			Where("id = ?", subscriptionID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return shared.ErrNotFound
		}
		return shared.ErrSeatBelowUsage
	}
	return nil
}

var _ billing.SubscriptionRepository = (*GormSubscriptionRepository)(nil)
