package jwt

import (
	"Receiptly-Backend/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateUserToken(t *testing.T) {
	svc := NewJWTService()

	token := svc.GenerateTokenUser("user-123", domain.RoleUser)
	require.NotEmpty(t, token)

	userID, role, err := svc.GetUserIDByToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
	assert.Equal(t, domain.RoleUser, role)
}

func TestGetUserIDByToken_Garbage(t *testing.T) {
	svc := NewJWTService()

	_, _, err := svc.GetUserIDByToken("not-a-token")
	require.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestTokenWithClaimsRoundTrip(t *testing.T) {
	svc := NewJWTService()

	token, err := svc.GenerateTokenWithClaims(map[string]any{
		"user_id": "user-123",
		"purpose": "reset_password",
	}, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateTokenWithClaims(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims["user_id"])
	assert.Equal(t, "reset_password", claims["purpose"])
}

func TestTokenWithClaims_Expired(t *testing.T) {
	svc := NewJWTService()

	token, err := svc.GenerateTokenWithClaims(map[string]any{"user_id": "user-123"}, -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateTokenWithClaims(token)
	require.ErrorIs(t, err, domain.ErrTokenExpired)
}
