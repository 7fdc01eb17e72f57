package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/assurnet/vigil/internal/domain"
)

const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingPeriod     = 54 * time.Second // must be less than pongTimeout
	maxMessageSize = 4096
	sendBufferSize = 64
)

// wsMessage is the frame sent to websocket clients.
type wsMessage struct {
	Topic        string          `json:"topic"`
	Notification json.RawMessage `json:"notification"`
}

// Hub bridges the notification topics on the event bus to websocket
// clients. Every client receives every topic; slow clients are dropped.
type Hub struct {
	upgrader websocket.Upgrader
	bus      domain.EventBus
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*wsClient]bool
	subs    []domain.Subscription
	started bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a websocket hub.
func NewHub(bus domain.EventBus, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboard and service are typically served from different
			// origins in development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		bus:     bus,
		logger:  logger,
		clients: make(map[*wsClient]bool),
	}
}

// Start subscribes the hub to all notification topics.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return nil
	}

	topics := []string{
		domain.TopicFraudAlerts,
		domain.TopicAlertUpdates,
		domain.TopicStatistics,
		domain.TopicNotifications,
	}

	for _, topic := range topics {
		sub, err := h.bus.Subscribe(ctx, topic, h.forward)
		if err != nil {
			return err
		}
		h.subs = append(h.subs, sub)
	}

	h.started = true
	return nil
}

// forward fans a bus message out to every connected client.
func (h *Hub) forward(ctx context.Context, msg *domain.Message) error {
	frame, err := json.Marshal(wsMessage{
		Topic:        msg.Topic,
		Notification: msg.Payload,
	})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- frame:
		default:
			// Client too slow; writePump will notice the closed channel
			go h.drop(client)
		}
	}

	return nil
}

// ServeHTTP upgrades the connection and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "remote", conn.RemoteAddr().String())

	go h.writePump(client)
	go h.readPump(client)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop unsubscribes from the bus and disconnects all clients.
func (h *Hub) Stop() {
	h.mu.Lock()
	subs := h.subs
	h.subs = nil
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.started = false
	h.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	for _, client := range clients {
		h.drop(client)
	}
}

func (h *Hub) drop(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.mu.Unlock()

	_ = client.conn.Close()
}

// writePump sends queued frames and keeps the connection alive with pings.
func (h *Hub) writePump(client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.drop(client)
	}()

	for {
		select {
		case frame, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound messages; the hub is broadcast-only.
func (h *Hub) readPump(client *wsClient) {
	defer h.drop(client)

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
