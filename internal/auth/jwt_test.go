package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvahq/realtime-gateway/internal/core/domain"
)

func TestTokenManager_UsesConfiguredTTL(t *testing.T) {
	ttl := 2 * time.Hour
	tm := NewTokenManager("test-secret", ttl)

	userID := uuid.New()
	tenantID := uuid.New()

	start := time.Now()

	token, err := tm.GenerateToken(userID, tenantID, domain.RoleAgent)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	require.NotNil(t, claims.ExpiresAt)

	expectedExpiry := start.Add(ttl)
	assert.WithinDuration(t, expectedExpiry, claims.ExpiresAt.Time, 2*time.Second)
}

func TestTokenManager_RoundTripsIdentity(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	userID := uuid.New()
	tenantID := uuid.New()

	token, err := tm.GenerateToken(userID, tenantID, domain.RoleCustomer)
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)

	identity := claims.Identity()
	assert.Equal(t, userID, identity.UserID)
	assert.Equal(t, tenantID, identity.TenantID)
	assert.Equal(t, domain.RoleCustomer, identity.Role)
}

func TestTokenManager_RejectsWrongSecret(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	token, err := tm.GenerateToken(uuid.New(), uuid.New(), domain.RoleAgent)
	require.NoError(t, err)

	other := NewTokenManager("other-secret", time.Hour)
	_, err = other.ValidateToken(token)
	require.Error(t, err)
}

func TestTokenManager_RejectsExpiredToken(t *testing.T) {
	tm := NewTokenManager("test-secret", -time.Minute)

	token, err := tm.GenerateToken(uuid.New(), uuid.New(), domain.RoleAgent)
	require.NoError(t, err)

	_, err = tm.ValidateToken(token)
	require.Error(t, err)
}
