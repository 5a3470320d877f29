package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"roshamble/internal/auth"
	"roshamble/internal/models"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoPlayer(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		player, ok := GetPlayerFromContext(r.Context())
		require.True(t, ok)
		json.NewEncoder(w).Encode(player)
	})
}

func TestRequireIdentity(t *testing.T) {
	jwtSvc := auth.NewJWTService("secret")
	mw := NewAuthMiddleware(jwtSvc, "")
	handler := mw.RequireIdentity(echoPlayer(t))

	player := models.PlayerIdentity{ID: "p-9", Username: "paper", SkillRating: 1111}
	token, err := jwtSvc.GenerateToken(player)
	require.NoError(t, err)

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var got models.PlayerIdentity
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, player, got)
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "token", Value: token})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	cases := map[string]func(*http.Request){
		"missing":          func(*http.Request) {},
		"malformed header": func(r *http.Request) { r.Header.Set("Authorization", "Token "+token) },
		"bad token":        func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
		"wrong cookie":     func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "session", Value: token}) },
	}
	for name, prepare := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			prepare(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(clock)
	defer rl.Stop()

	cfg := RateLimitConfig{Name: "t", MaxRequests: 2, Window: time.Minute}

	ok, remaining, _ := rl.Allow("1.2.3.4", cfg)
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)
	ok, remaining, _ = rl.Allow("1.2.3.4", cfg)
	assert.True(t, ok)
	assert.Equal(t, 0, remaining)
	ok, _, _ = rl.Allow("1.2.3.4", cfg)
	assert.False(t, ok)

	ok, _, _ = rl.Allow("5.6.7.8", cfg)
	assert.True(t, ok, "other callers have their own window")

	other := RateLimitConfig{Name: "other", MaxRequests: 1, Window: time.Minute}
	ok, _, _ = rl.Allow("1.2.3.4", other)
	assert.True(t, ok, "routes count separately")

	clock.Advance(time.Minute + time.Second)
	ok, _, _ = rl.Allow("1.2.3.4", cfg)
	assert.True(t, ok)
}

func TestRateLimitMiddleware_Rejects(t *testing.T) {
	rl := NewRateLimiter(clockwork.NewFakeClock())
	defer rl.Stop()

	cfg := RateLimitConfig{Name: "t", MaxRequests: 1, Window: time.Minute}
	handler := rl.IPRateLimitMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	second := send()
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "remote addr", remote: "192.0.2.1:1234", want: "192.0.2.1"},
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, remote: "10.0.0.1:1", want: "203.0.113.5"},
		{name: "forwarded with port", headers: map[string]string{"X-Forwarded-For": "203.0.113.5:8080"}, remote: "10.0.0.1:1", want: "203.0.113.5"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.7"}, remote: "10.0.0.1:1", want: "198.51.100.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(req))
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}
