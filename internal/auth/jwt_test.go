package auth

import (
	"testing"
	"time"

	"roshamble/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret")
	player := models.PlayerIdentity{ID: "p-1", Username: "rocky", SkillRating: 1337}

	token, err := svc.GenerateToken(player)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, player, claims.Identity())
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService("test-secret")
	player := models.PlayerIdentity{ID: "p-1", SkillRating: 1000}

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewJWTService("other").GenerateToken(player)
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		issuer := NewJWTService("test-secret")
		issuer.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
		token, err := issuer.GenerateToken(player)
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("missing player id", func(t *testing.T) {
		token, err := svc.GenerateToken(models.PlayerIdentity{SkillRating: 900})
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unexpected signing method", func(t *testing.T) {
		claims := PlayerClaims{PlayerID: "p-1"}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
