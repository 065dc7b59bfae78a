package identity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrganization(t *testing.T) {
	t.Run("creates active organization with uppercased code", func(t *testing.T) {
		org, err := NewOrganization("acme-01", "Acme Inc")
		require.NoError(t, err)
		assert.Equal(t, "ACME-01", org.Code)
		assert.Equal(t, "Acme Inc", org.Name)
		assert.Equal(t, OrganizationStatusActive, org.Status)
		assert.True(t, org.IsActive())
		assert.Len(t, org.GetDomainEvents(), 1)
		assert.Equal(t, EventTypeOrganizationCreated, org.GetDomainEvents()[0].EventType())
	})

	t.Run("rejects empty code", func(t *testing.T) {
		_, err := NewOrganization("", "Acme Inc")
		assert.Error(t, err)
	})

	t.Run("rejects code with invalid characters", func(t *testing.T) {
		_, err := NewOrganization("acme inc!", "Acme Inc")
		assert.Error(t, err)
	})

	t.Run("rejects empty name", func(t *testing.T) {
		_, err := NewOrganization("ACME", "")
		assert.Error(t, err)
	})
}

func TestOrganizationStatusTransitions(t *testing.T) {
	t.Run("suspend then activate", func(t *testing.T) {
		org, err := NewOrganization("ACME", "Acme Inc")
		require.NoError(t, err)

		require.NoError(t, org.Suspend())
		assert.True(t, org.IsSuspended())

		require.NoError(t, org.Activate())
		assert.True(t, org.IsActive())
	})

	t.Run("activate is rejected when already active", func(t *testing.T) {
		org, err := NewOrganization("ACME", "Acme Inc")
		require.NoError(t, err)
		assert.Error(t, org.Activate())
	})

	t.Run("suspend is rejected when already suspended", func(t *testing.T) {
		org, err := NewOrganization("ACME", "Acme Inc")
		require.NoError(t, err)
		require.NoError(t, org.Suspend())
		assert.Error(t, org.Suspend())
	})

	t.Run("status changes emit events", func(t *testing.T) {
		org, err := NewOrganization("ACME", "Acme Inc")
		require.NoError(t, err)
		org.ClearDomainEvents()

		require.NoError(t, org.Deactivate())
		events := org.GetDomainEvents()
		require.Len(t, events, 1)
		changed, ok := events[0].(*OrganizationStatusChangedEvent)
		require.True(t, ok)
		assert.Equal(t, OrganizationStatusActive, changed.OldStatus)
		assert.Equal(t, OrganizationStatusInactive, changed.NewStatus)
	})
}

func TestNewUser(t *testing.T) {
	orgID := uuid.New()

	t.Run("creates user without a seat", func(t *testing.T) {
		user, err := NewUser(orgID, "Alice@Example.com", "Alice")
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.Equal(t, orgID, user.OrganizationID)
		assert.False(t, user.HasSeat())
		assert.True(t, user.IsActive())
	})

	t.Run("rejects invalid email", func(t *testing.T) {
		_, err := NewUser(orgID, "not-an-email", "Alice")
		assert.Error(t, err)
	})

	t.Run("rejects empty display name", func(t *testing.T) {
		_, err := NewUser(orgID, "alice@example.com", "")
		assert.Error(t, err)
	})
}
