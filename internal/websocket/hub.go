package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pubcrawl-badges/internal/config"
	"github.com/pubcrawl-badges/internal/domain"
)

// Message types
const (
	MessageTypeBadgeAwarded = "badge_awarded"
	MessageTypeSubscribe    = "subscribe"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	UserID    string      `json:"user_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// BadgeAwarded is the payload of a badge_awarded message
type BadgeAwarded struct {
	UserID      string                 `json:"user_id"`
	BadgeID     string                 `json:"badge_id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Emoji       string                 `json:"emoji,omitempty"`
	AwardedAt   time.Time              `json:"awarded_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Stats describes the hub's connections
type Stats struct {
	TotalConnections int `json:"total_connections"`
	SubscribedUsers  int `json:"subscribed_users"`
}

// Hub maintains the set of active clients and pushes badge events to them
type Hub struct {
	// Subscribed clients by user ID
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message

	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	cfg      *config.WebSocketConfig
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	userID string
}

// NewHub creates a new Hub
func NewHub(cfg *config.WebSocketConfig, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		cfg:         cfg,
		logger:      logger.With("component", "ws_hub"),
		ctx:         ctx,
		cancel:      cancel,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.allowOrigin,
	}
	return h
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.removeClient(client)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.allClients[req.client]; ok {
				if _, ok := h.clients[req.userID]; !ok {
					h.clients[req.userID] = make(map[*Client]bool)
				}
				h.clients[req.userID][req.client] = true
			}
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "user_id", req.userID)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			h.dropSubscription(req.client, req.userID)
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "user_id", req.userID)

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.allClients[client]; !ok {
		return
	}
	delete(h.allClients, client)
	for userID := range h.clients {
		h.dropSubscription(client, userID)
	}
	close(client.send)
	h.logger.Debug("client unregistered", "client_id", client.id)
}

// dropSubscription must be called with h.mu held
func (h *Hub) dropSubscription(client *Client, userID string) {
	clients, ok := h.clients[userID]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, userID)
	}
}

// deliver sends a message to the clients subscribed to its user
func (h *Hub) deliver(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.clients[message.UserID]
	if !ok {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	for client := range clients {
		select {
		case client.send <- data:
		default:
			// Client's buffer is full, skip
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// BroadcastBadgeAwarded pushes a newly earned badge to the user's subscribers
func (h *Hub) BroadcastBadgeAwarded(userID string, earned domain.EarnedBadge, def domain.Badge) {
	message := &Message{
		Type:   MessageTypeBadgeAwarded,
		UserID: userID,
		Data: BadgeAwarded{
			UserID:      userID,
			BadgeID:     earned.BadgeID,
			Name:        def.Name,
			Description: def.Description,
			Emoji:       def.Emoji,
			AwardedAt:   earned.AwardedAt,
			Metadata:    earned.Metadata,
		},
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "user_id", userID)
	}
}

// Register adds a client to the hub. It reports false once the hub has
// stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes a client from the hub. It is a no-op after Stop.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe adds a client to a user's badge events
func (h *Hub) Subscribe(client *Client, userID string) {
	select {
	case h.subscribe <- &subscriptionRequest{client: client, userID: userID}:
	case <-h.ctx.Done():
	}
}

// Unsubscribe removes a client from a user's badge events
func (h *Hub) Unsubscribe(client *Client, userID string) {
	select {
	case h.unsubscribe <- &subscriptionRequest{client: client, userID: userID}:
	case <-h.ctx.Done():
	}
}

// GetSubscriberCount returns the number of subscribers for a user
func (h *Hub) GetSubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// GetStats returns the current connection counts
func (h *Hub) GetStats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		TotalConnections: len(h.allClients),
		SubscribedUsers:  len(h.clients),
	}
}
