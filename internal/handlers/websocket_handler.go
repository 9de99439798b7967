package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/example/trafficwatch/internal/metrics"
	"github.com/example/trafficwatch/internal/workspace"
)

// Message types the hub sends on its own behalf
const (
	MessageConnected    = "connected"
	MessageSubscribed   = "subscribed"
	MessageUnsubscribed = "unsubscribed"
	MessagePong         = "pong"
	MessageError        = "error"
	MessageShutdown     = "shutdown"
	MessageThemeChanged = "theme_changed"
)

const (
	maxMessageSize = 32 * 1024
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	writeWait      = 10 * time.Second
	sendBuffer     = 256
)

// ClientMessage represents a message from a client
type ClientMessage struct {
	Type        string `json:"type"`
	WorkspaceID string `json:"workspaceId,omitempty"`
}

// ServerMessage represents a message to a client
type ServerMessage struct {
	Type        string      `json:"type"`
	WorkspaceID string      `json:"workspaceId,omitempty"`
	Content     interface{} `json:"content,omitempty"`
	Timestamp   int64       `json:"timestamp"`
}

// Client represents a connected websocket client
type Client struct {
	conn        *websocket.Conn
	send        chan ServerMessage
	clientID    string
	remoteIP    string
	hub         *Hub
	connectedAt time.Time

	// workspaces is guarded by hub.mu
	workspaces map[string]struct{}
}

// Hub fans workspace events out to the clients subscribed to them. Messages
// without a workspace id go to every client.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan ServerMessage

	// subscriptions maps a workspace id to the ids of its clients
	subscriptions map[string]map[string]struct{}

	upgrader websocket.Upgrader
	metrics  *metrics.Metrics

	mu         sync.RWMutex
	shutdown   chan struct{}
	isShutdown bool
}

// NewHub creates a hub accepting connections from allowedOrigins
func NewHub(allowedOrigins []string, m *metrics.Metrics) *Hub {
	h := &Hub{
		clients:       make(map[string]*Client),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		broadcast:     make(chan ServerMessage, sendBuffer),
		subscriptions: make(map[string]map[string]struct{}),
		metrics:       m,
		shutdown:      make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients such as the CLI send no origin
				return r.Header.Get("Sec-WebSocket-Version") != ""
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			log.Warn().Str("origin", origin).Msg("Rejected WebSocket connection")
			return false
		},
	}
	return h
}

// Run starts the hub loop
func (h *Hub) Run() {
	go func() {
		for {
			select {
			case <-h.shutdown:
				h.closeAll()
				return

			case client := <-h.register:
				if h.isRateLimited(client.remoteIP) {
					client.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Too many connections"))
					client.conn.Close()
					continue
				}

				h.mu.Lock()
				h.clients[client.clientID] = client
				count := len(h.clients)
				h.mu.Unlock()
				h.metrics.SetWebSocketClients(count)

				client.send <- ServerMessage{
					Type: MessageConnected,
					Content: map[string]interface{}{
						"clientId":   client.clientID,
						"serverTime": nowMillis(),
					},
					Timestamp: nowMillis(),
				}

			case client := <-h.unregister:
				h.remove(client)

			case message := <-h.broadcast:
				h.deliver(message)
			}
		}
	}()
}

// deliver hands a message to its recipients. Clients whose buffer is full
// are dropped rather than stalling everyone else.
func (h *Hub) deliver(message ServerMessage) {
	h.mu.RLock()
	var targets []*Client
	if message.WorkspaceID != "" {
		for id := range h.subscriptions[message.WorkspaceID] {
			if c, ok := h.clients[id]; ok {
				targets = append(targets, c)
			}
		}
	} else {
		for _, c := range h.clients {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- message:
		default:
			log.Warn().Str("client", c.clientID).Msg("WebSocket client too slow, dropping")
			h.remove(c)
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.clientID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.clientID)
	for wsID := range client.workspaces {
		h.unsubscribeLocked(client.clientID, wsID)
	}
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetWebSocketClients(count)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		select {
		case c.send <- ServerMessage{Type: MessageShutdown, Content: map[string]string{"message": "Server shutting down"}, Timestamp: nowMillis()}:
		default:
		}
		h.remove(c)
	}
}

// isRateLimited allows at most ten connections per IP per minute
func (h *Hub) isRateLimited(ip string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	now := time.Now()
	for _, c := range h.clients {
		if c.remoteIP == ip && now.Sub(c.connectedAt) < time.Minute {
			count++
		}
	}
	return count >= 10
}

// Subscribe routes a workspace's events to a client
func (h *Hub) Subscribe(clientID, workspaceID string) {
	if clientID == "" || workspaceID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return
	}
	subs, ok := h.subscriptions[workspaceID]
	if !ok {
		subs = make(map[string]struct{})
		h.subscriptions[workspaceID] = subs
	}
	subs[clientID] = struct{}{}
	client.workspaces[workspaceID] = struct{}{}
}

// Unsubscribe stops routing a workspace's events to a client
func (h *Hub) Unsubscribe(clientID, workspaceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(clientID, workspaceID)
}

func (h *Hub) unsubscribeLocked(clientID, workspaceID string) {
	if subs, ok := h.subscriptions[workspaceID]; ok {
		delete(subs, clientID)
		if len(subs) == 0 {
			delete(h.subscriptions, workspaceID)
		}
	}
	if client, ok := h.clients[clientID]; ok {
		delete(client.workspaces, workspaceID)
	}
}

// Publish forwards a workspace event to its subscribers. It is the event
// sink handed to the workspace manager.
func (h *Hub) Publish(ev workspace.Event) {
	h.send(ServerMessage{Type: ev.Type, WorkspaceID: ev.WorkspaceID, Content: ev.Data, Timestamp: nowMillis()})
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(messageType string, content interface{}) {
	if messageType == "" {
		return
	}
	h.send(ServerMessage{Type: messageType, Content: content, Timestamp: nowMillis()})
}

func (h *Hub) send(msg ServerMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.shutdown:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Subscribers returns how many clients follow a workspace
func (h *Hub) Subscribers(workspaceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[workspaceID])
}

// Shutdown closes every client and stops the hub
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if !h.isShutdown {
		h.isShutdown = true
		close(h.shutdown)
	}
	h.mu.Unlock()
}

func (h *Hub) stopped() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isShutdown
}

// ServeWs upgrades the request and attaches a client
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	if h.stopped() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	ip := getClientIP(r)
	if h.isRateLimited(ip) {
		http.Error(w, "Too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Error upgrading connection")
		return
	}

	client := &Client{
		conn:        conn,
		send:        make(chan ServerMessage, sendBuffer),
		clientID:    uuid.NewString(),
		remoteIP:    ip,
		hub:         h,
		connectedAt: time.Now(),
		workspaces:  make(map[string]struct{}),
	}

	select {
	case h.register <- client:
	case <-h.shutdown:
		conn.Close()
		return
	}

	go client.readPump()
	go client.writePump()
}

// readPump handles subscription requests from the client
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				log.Warn().Err(err).Str("client", c.clientID).Msg("WebSocket error")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(ServerMessage{Type: MessageError, Content: map[string]string{"error": "Invalid message format"}})
			continue
		}

		switch msg.Type {
		case "subscribe":
			if msg.WorkspaceID == "" {
				c.reply(ServerMessage{Type: MessageError, Content: map[string]string{"error": "workspaceId is required"}})
				continue
			}
			c.hub.Subscribe(c.clientID, msg.WorkspaceID)
			c.reply(ServerMessage{Type: MessageSubscribed, WorkspaceID: msg.WorkspaceID})

		case "unsubscribe":
			c.hub.Unsubscribe(c.clientID, msg.WorkspaceID)
			c.reply(ServerMessage{Type: MessageUnsubscribed, WorkspaceID: msg.WorkspaceID})

		case "ping":
			c.reply(ServerMessage{Type: MessagePong})

		default:
			c.reply(ServerMessage{Type: MessageError, Content: map[string]string{"error": "Unknown message type"}})
		}
	}
}

// reply answers the client directly unless the hub already dropped it
func (c *Client) reply(msg ServerMessage) {
	msg.Timestamp = nowMillis()
	c.hub.mu.RLock()
	_, ok := c.hub.clients[c.clientID]
	if ok {
		select {
		case c.send <- msg:
		default:
		}
	}
	c.hub.mu.RUnlock()
}

// writePump pumps messages from the hub to the websocket
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
			if err := c.conn.WriteJSON(message); err != nil {
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

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	ip := r.RemoteAddr
	if i := strings.LastIndex(ip, ":"); i != -1 {
		ip = ip[:i]
	}
	return ip
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
