// Package realtime streams fraud alerts to WebSocket subscribers.
//
// Dashboards and case-management tools subscribe once and receive every
// alert as it fires, instead of polling the transactions API.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fraudguard-io/fraudguard/internal/alerts"
	"github.com/fraudguard-io/fraudguard/internal/idgen"
	"github.com/fraudguard-io/fraudguard/internal/metrics"
)

// normalCloseCodes are WebSocket close codes that indicate an expected disconnect.
var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Allow non-browser clients
		}
		// Allow same-host connections
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// Message types sent to subscribers.
const (
	MessageTypeConnection = "connection"
	MessageTypeFraudAlert = "fraud_alert"
)

// welcomeText is the first frame every subscriber reads.
const welcomeText = "Connected to fraud detection alert system"

// Message is the envelope for every frame written to a subscriber.
type Message struct {
	Type      string      `json:"type"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Client represents one WebSocket subscriber.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	id             string
	connectedAt    time.Time
	alertsReceived atomic.Int64
}

// MaxClients is the default cap on concurrent WebSocket connections.
const MaxClients = 10000

// Hub owns the subscriber set and fans alerts out to it. All membership
// changes flow through the Run loop's channels.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *slog.Logger
	done       chan struct{} // closed when Run exits; prevents upgrade race
	maxClients int

	// Stats
	totalAlerts  atomic.Int64
	totalClients atomic.Int64
	peakClients  atomic.Int64
}

// NewHub creates an alert fan-out hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		done:       make(chan struct{}),
		maxClients: MaxClients,
	}
}

// WithMaxClients overrides the connection cap.
func (h *Hub) WithMaxClients(n int) *Hub {
	if n > 0 {
		h.maxClients = n
	}
	return h
}

// Run owns the subscriber set until ctx is cancelled, then closes every
// connection before returning.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("realtime hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("realtime hub shutting down, closing client connections")
			h.mu.Lock()
			for client := range h.clients {
				close(client.send) // writePump sends CloseMessage on closed channel
				delete(h.clients, client)
			}
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(0)
			h.logger.Info("realtime hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.totalClients.Add(1)
			if current := int64(len(h.clients)); current > h.peakClients.Load() {
				h.peakClients.Store(current)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Info("alert subscriber connected", "client_id", client.id, "total", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Info("alert subscriber disconnected", "client_id", client.id, "total", n)

		case msg := <-h.broadcast:
			payload, err := json.Marshal(msg)
			if err != nil {
				h.logger.Error("failed to serialize alert message", "error", err)
				continue
			}
			h.totalAlerts.Add(1)

			h.mu.RLock()
			var slow []*Client
			for client := range h.clients {
				select {
				case client.send <- payload:
					client.alertsReceived.Add(1)
					rtAlertsDelivered.Inc()
				default:
					slow = append(slow, client)
					rtAlertsDropped.Inc()
				}
			}
			h.mu.RUnlock()
			// Remove slow clients under write lock
			if len(slow) > 0 {
				h.mu.Lock()
				for _, client := range slow {
					if _, ok := h.clients[client]; ok {
						close(client.send)
						delete(h.clients, client)
						h.logger.Warn("evicting slow alert subscriber", "client_id", client.id)
					}
				}
				n := len(h.clients)
				h.mu.Unlock()
				metrics.ActiveWebSocketClients.Set(float64(n))
			}
		}
	}
}

// BroadcastAlert fans one alert out to every connected subscriber.
// Non-blocking: a full hub buffer drops the alert rather than stalling
// the scoring path.
func (h *Hub) BroadcastAlert(alert alerts.Alert) {
	msg := &Message{
		Type:      MessageTypeFraudAlert,
		Data:      alert,
		Timestamp: time.Now().UTC(),
	}
	select {
	case h.broadcast <- msg:
	default:
		rtAlertsDropped.Inc()
		h.logger.Warn("broadcast channel full, dropping alert", "transaction_id", alert.TransactionID)
	}
}

// ConnectionStats describes one live subscriber.
type ConnectionStats struct {
	ClientID       string    `json:"client_id"`
	ConnectedAt    time.Time `json:"connected_at"`
	AlertsReceived int64     `json:"alerts_received"`
}

// Stats returns hub statistics including per-connection detail.
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := make([]ConnectionStats, 0, len(h.clients))
	for client := range h.clients {
		conns = append(conns, ConnectionStats{
			ClientID:       client.id,
			ConnectedAt:    client.connectedAt,
			AlertsReceived: client.alertsReceived.Load(),
		})
	}

	return map[string]interface{}{
		"active_connections":     len(h.clients),
		"total_alerts_delivered": h.totalAlerts.Load(),
		"total_clients":          h.totalClients.Load(),
		"peak_clients":           h.peakClients.Load(),
		"connections":            conns,
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades HTTP to WebSocket and registers the subscriber.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Reject upgrades after the hub has stopped to prevent orphaned connections.
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	// Enforce connection limit
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n >= h.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = idgen.WithPrefix("ws_")
	}

	client := &Client{
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, 256),
		id:          clientID,
		connectedAt: time.Now().UTC(),
	}

	// Welcome the subscriber before it enters the broadcast set, so the
	// first frame it reads is always the connection acknowledgement.
	welcome, _ := json.Marshal(Message{
		Type:      MessageTypeConnection,
		Message:   welcomeText,
		Timestamp: time.Now().UTC(),
	})
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
		h.logger.Warn("failed to send welcome message", "client_id", clientID, "error", err)
		_ = conn.Close()
		return
	}

	h.register <- client

	// Start goroutines for reading and writing
	go client.writePump()
	go client.readPump()
}

// readPump drains the connection. Subscribers don't speak a protocol;
// inbound frames only refresh liveness.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.logger.Warn("websocket read error", "client_id", c.id, "error", err)
			}
			break
		}
		// Client payloads are ignored; any frame refreshes the deadline.
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	}
}

// writePump drains the send channel onto the connection and keeps the
// subscriber alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Warn("websocket write error", "client_id", c.id, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("websocket ping failed", "client_id", c.id, "error", err)
				return
			}
		}
	}
}
