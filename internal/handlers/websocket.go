package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"roshamble/internal/logger"
	"roshamble/internal/matchmaking"
	"roshamble/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 32
)

// Hub tracks open websocket connections per player and pushes matchmaking
// events to them.
type Hub struct {
	// playerId -> open connections (a player may have several tabs)
	players map[string]map[*Client]struct{}
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	notify     chan *notification
	done       chan struct{}
	stopOnce   sync.Once
}

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	playerId string
	send     chan []byte
}

type notification struct {
	playerId string
	message  []byte
}

type WSMessage struct {
	Type          string             `json:"type"`
	Mode          models.GameMode    `json:"mode,omitempty"`
	MatchID       string             `json:"matchId,omitempty"`
	PlayerID      string             `json:"playerId,omitempty"`
	Opponents     []string           `json:"opponents,omitempty"`
	ReadyDeadline *time.Time         `json:"readyDeadline,omitempty"`
	Poll          *models.PollResult `json:"poll,omitempty"`
}

func NewHub() *Hub {
	return &Hub{
		players:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		notify:     make(chan *notification, 256),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.players[client.playerId] == nil {
				h.players[client.playerId] = make(map[*Client]struct{})
			}
			h.players[client.playerId][client] = struct{}{}
			h.mu.Unlock()
			logger.Debug("websocket client registered", "player_id", client.playerId)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()
			logger.Debug("websocket client unregistered", "player_id", client.playerId)

		case n := <-h.notify:
			h.mu.Lock()
			for client := range h.players[n.playerId] {
				select {
				case client.send <- n.message:
				default:
					// Slow consumer; drop the connection rather than stall every player.
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for _, clients := range h.players {
				for client := range clients {
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.players[client.playerId]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.players, client.playerId)
	}
}

// Stop closes every connection and ends Run.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Connected reports how many connections the player has open.
func (h *Hub) Connected(playerId string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.players[playerId])
}

// SendToPlayer queues a message for every connection of the player. It never
// blocks the caller, which is usually the matchmaking core.
func (h *Hub) SendToPlayer(playerId string, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("failed to marshal websocket message", "type", msg.Type, "error", err)
		return
	}
	select {
	case h.notify <- &notification{playerId: playerId, message: data}:
	case <-h.done:
	default:
		logger.Warn("websocket notify buffer full, message dropped", "player_id", playerId, "type", msg.Type)
	}
}

var queueMessageTypes = map[models.EventType]string{
	models.EventEnqueued:  "queued",
	models.EventCancelled: "left_queue",
	models.EventEvicted:   "evicted",
}

var matchMessageTypes = map[models.EventType]string{
	models.EventMatched:      "match_found",
	models.EventAcknowledged: "player_ready",
	models.EventReady:        "ready_confirmed",
	models.EventExpired:      "match_expired",
}

// HandleEvent turns a matchmaking event into pushes to the affected players.
func (h *Hub) HandleEvent(ev models.Event) {
	if msgType, ok := queueMessageTypes[ev.Type]; ok {
		if ev.Entry != nil {
			h.SendToPlayer(ev.Entry.Player.ID, WSMessage{Type: msgType, Mode: ev.Mode})
		}
		return
	}

	msgType, ok := matchMessageTypes[ev.Type]
	if !ok || ev.Match == nil {
		return
	}
	// The deadline only matters while the ready-check is open.
	var deadline *time.Time
	if ev.Type == models.EventMatched || ev.Type == models.EventAcknowledged {
		d := ev.Match.ReadyDeadline
		deadline = &d
	}
	for _, p := range ev.Match.Players {
		h.SendToPlayer(p.ID, WSMessage{
			Type:          msgType,
			Mode:          ev.Mode,
			MatchID:       ev.Match.ID,
			PlayerID:      ev.PlayerID,
			Opponents:     ev.Match.Opponents(p.ID),
			ReadyDeadline: deadline,
		})
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", "player_id", c.playerId, "error", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type WebSocketHandler struct {
	hub      *Hub
	svc      *matchmaking.Service
	upgrader websocket.Upgrader
}

// NewWebSocketHandler serves upgrades onto hub. allowedOrigins empty means any origin.
func NewWebSocketHandler(hub *Hub, svc *matchmaking.Service, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleWebSocket upgrades the connection and registers it for the player's
// pushes. The current state is sent straight away so the client need not poll.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	player, ok := selfFromPath(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "player_id", player.ID, "error", err)
		return
	}

	client := &Client{
		hub:      h.hub,
		conn:     conn,
		playerId: player.ID,
		send:     make(chan []byte, sendBuffer),
	}

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()

	status := WSMessage{Type: "status"}
	if result, err := h.svc.Poll(player.ID); err == nil {
		status.Mode = result.Mode
		status.MatchID = result.MatchID
		status.Poll = &result
	}
	h.hub.SendToPlayer(player.ID, status)
}
