package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"roshamble/internal/auth"
	"roshamble/internal/models"
)

type contextKey string

const (
	PlayerContextKey contextKey = "player"
)

type AuthMiddleware struct {
	jwtService *auth.JWTService
	cookieName string
}

func NewAuthMiddleware(jwtService *auth.JWTService, cookieName string) *AuthMiddleware {
	if cookieName == "" {
		cookieName = "token"
	}
	return &AuthMiddleware{
		jwtService: jwtService,
		cookieName: cookieName,
	}
}

// RequireIdentity validates the player token and puts the identity into the
// request context. Returns 401 if the token is missing or invalid.
func (m *AuthMiddleware) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := m.extractToken(r)
		if !ok {
			unauthorized(w, "Authorization required")
			return
		}

		claims, err := m.jwtService.ValidateToken(tokenString)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				unauthorized(w, "Token has expired")
				return
			}
			unauthorized(w, "Invalid token")
			return
		}

		player := claims.Identity()
		ctx := context.WithValue(r.Context(), PlayerContextKey, &player)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken reads a Bearer header first and falls back to the cookie.
// Browsers cannot set headers on a websocket upgrade, so the cookie path matters there.
func (m *AuthMiddleware) extractToken(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}

	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetPlayerFromContext retrieves the authenticated player from the request context
func GetPlayerFromContext(ctx context.Context) (*models.PlayerIdentity, bool) {
	player, ok := ctx.Value(PlayerContextKey).(*models.PlayerIdentity)
	return player, ok
}
