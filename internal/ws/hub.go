package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/quocanhngo/guardian/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the Redis channel shared by all instances
const DefaultChannel = "guardian:live"

// Hub manages WebSocket connections grouped into elder rooms.
// With Redis, every publish goes through Pub/Sub so that clients connected
// to any instance receive it; without Redis delivery is local only.
type Hub struct {
	// All connections on this instance
	clients map[*Client]bool
	// Map of elderID -> subscribed connections
	rooms map[uuid.UUID]map[*Client]bool
	mu    sync.RWMutex

	unregister chan *Client
	done       chan struct{}

	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

// NewHub creates a new WebSocket Hub. rdb may be nil for a single instance.
func NewHub(rdb *redis.Client, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		rdb:        rdb,
		channel:    DefaultChannel,
		logger:     logger.Named("hub"),
	}
}

// Run starts the Hub's main event loop
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	if h.rdb != nil {
		ready := make(chan struct{})
		go h.subscribeRedis(ctx, ready)
		<-ready
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// Register adds a client to the hub; it can join rooms right after
func (h *Hub) Register(client *Client) {
	h.addClient(client)
}

// Unregister removes a client and all its room memberships
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Client connected", zap.String("user_id", client.UserID.String()), zap.Int("connections", total))
}

// removeClient is idempotent; slow consumers may be removed twice
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if !h.clients[client] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	for elderID, members := range h.rooms {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, elderID)
		}
	}
	close(client.send)
	h.mu.Unlock()

	h.logger.Info("Client disconnected", zap.String("user_id", client.UserID.String()))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[*Client]bool)
	h.rooms = make(map[uuid.UUID]map[*Client]bool)
}

// Join adds a registered client to an elder room
func (h *Hub) Join(client *Client, elderID uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client] {
		return false
	}
	if _, ok := h.rooms[elderID]; !ok {
		h.rooms[elderID] = make(map[*Client]bool)
	}
	h.rooms[elderID][client] = true
	return true
}

// Leave removes a client from an elder room
func (h *Hub) Leave(client *Client, elderID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[elderID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, elderID)
		}
	}
}

// RoomSize returns how many local connections watch an elder
func (h *Hub) RoomSize(elderID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[elderID])
}

// PublishToElder delivers an event to every client in the elder's room,
// on all instances when Redis is configured.
func (h *Hub) PublishToElder(ctx context.Context, elderID uuid.UUID, event *model.WSEvent) error {
	if h.rdb == nil {
		h.sendToLocalRoom(elderID, event)
		return nil
	}

	data, err := json.Marshal(&RoomEvent{ElderID: elderID, Event: event})
	if err != nil {
		return fmt.Errorf("marshal room event: %w", err)
	}
	if err := h.rdb.Publish(ctx, h.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

// sendToLocalRoom sends an event to the room members on this instance only.
// Clients whose buffer is full are dropped.
func (h *Hub) sendToLocalRoom(elderID uuid.UUID, event *model.WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Error marshaling event", zap.Error(err))
		return
	}
	h.deliverRaw(elderID, data)
}

func (h *Hub) deliverRaw(elderID uuid.UUID, data []byte) {
	var slow []*Client

	h.mu.RLock()
	for client := range h.rooms[elderID] {
		select {
		case client.send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Dropping slow client", zap.String("user_id", client.UserID.String()))
		h.removeClient(client)
	}
}

// ========== Redis Pub/Sub for Horizontal Scaling ==========

// RoomEvent wraps an event with the elder room it is addressed to
type RoomEvent struct {
	ElderID uuid.UUID      `json:"elder_id"`
	Event   *model.WSEvent `json:"event"`
}

// roomEnvelope keeps the inner event raw so it is forwarded without re-encoding
type roomEnvelope struct {
	ElderID uuid.UUID       `json:"elder_id"`
	Event   json.RawMessage `json:"event"`
}

// subscribeRedis subscribes to Redis and delivers events to local rooms
func (h *Hub) subscribeRedis(ctx context.Context, ready chan<- struct{}) {
	pubsub := h.rdb.Subscribe(ctx, h.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before publishing starts
	if _, err := pubsub.Receive(ctx); err != nil {
		h.logger.Error("Redis subscribe failed", zap.Error(err))
	}
	close(ready)

	ch := pubsub.Channel()
	h.logger.Info("Redis Pub/Sub subscriber started", zap.String("channel", h.channel))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env roomEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				h.logger.Warn("Error unmarshaling Redis message", zap.Error(err))
				continue
			}
			if env.ElderID == uuid.Nil || len(env.Event) == 0 {
				continue
			}
			h.deliverRaw(env.ElderID, env.Event)
		}
	}
}
