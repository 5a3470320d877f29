package handlers

import (
	"net/http"

	"roshamble/internal/middleware"

	"github.com/gorilla/mux"
)

// RouterDeps carries everything the HTTP surface needs. History may be nil
// when no match archive is configured.
type RouterDeps struct {
	Auth        *middleware.AuthMiddleware
	Limiter     *middleware.RateLimiter
	Matchmaking *MatchmakingHandler
	WebSocket   *WebSocketHandler
	History     *HistoryHandler
}

// NewRouter registers every route. Literal segments ("ready", "history") are
// registered before the {mode} patterns they would otherwise collide with.
func NewRouter(d RouterDeps) *mux.Router {
	router := mux.NewRouter()

	authed := func(fn http.HandlerFunc) http.Handler {
		return d.Auth.RequireIdentity(fn)
	}
	limited := func(cfg middleware.RateLimitConfig, fn http.HandlerFunc) http.Handler {
		return d.Limiter.IPRateLimitMiddleware(cfg)(authed(fn))
	}

	router.Handle("/ws/matchmaking/{player_id}",
		limited(middleware.WebSocketUpgradeLimit, d.WebSocket.HandleWebSocket)).Methods("GET")

	mm := d.Matchmaking
	router.Handle("/matchmaking/ready/{player_id}", authed(mm.Poll)).Methods("GET")
	router.Handle("/matchmaking/ready/{player_id}/{match_id}",
		limited(middleware.AcknowledgeLimit, mm.Acknowledge)).Methods("POST")

	if d.History != nil {
		router.Handle("/matchmaking/history/{player_id}", authed(d.History.GetHistory)).Methods("GET")
	}

	router.HandleFunc("/matchmaking/{mode}/count", mm.Count).Methods("GET")
	router.HandleFunc("/matchmaking/{mode}/queue", mm.Queue).Methods("GET")
	router.Handle("/matchmaking/{mode}/{player_id}", limited(middleware.EnqueueLimit, mm.Enqueue)).Methods("POST")
	router.Handle("/matchmaking/{mode}/{player_id}", limited(middleware.EnqueueLimit, mm.Cancel)).Methods("DELETE")
	router.Handle("/matchmaking/{mode}/{player_id}/leave", limited(middleware.EnqueueLimit, mm.Cancel)).Methods("POST")

	router.HandleFunc("/docs", ServeAPIDocs).Methods("GET")
	router.HandleFunc("/health", Health).Methods("GET")

	router.Use(middleware.SecurityHeaders)

	return router
}
