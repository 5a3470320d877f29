package auth

import (
	"errors"
	"strings"
	"time"

	"roshamble/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// JWTService validates player tokens issued by the account service. It can
// also mint them, which only dev tooling and tests do.
type JWTService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type PlayerClaims struct {
	PlayerID    string `json:"playerId"`
	Username    string `json:"username"`
	SkillRating int    `json:"skillRating"`
	jwt.RegisteredClaims
}

// Identity converts the claims into the identity the matchmaking core works with.
func (c *PlayerClaims) Identity() models.PlayerIdentity {
	return models.PlayerIdentity{
		ID:          c.PlayerID,
		Username:    c.Username,
		SkillRating: c.SkillRating,
	}
}

func NewJWTService(secret string) *JWTService {
	return &JWTService{
		secret: []byte(secret),
		ttl:    24 * time.Hour,
		now:    time.Now,
	}
}

// GenerateToken creates a signed token carrying the player's identity.
func (s *JWTService) GenerateToken(player models.PlayerIdentity) (string, error) {
	now := s.now()
	claims := PlayerClaims{
		PlayerID:    player.ID,
		Username:    player.Username,
		SkillRating: player.SkillRating,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   player.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken validates and parses a player token
func (s *JWTService) ValidateToken(tokenString string) (*PlayerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &PlayerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*PlayerClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.PlayerID) == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GetTTL returns the lifetime of minted tokens.
func (s *JWTService) GetTTL() time.Duration {
	return s.ttl
}
