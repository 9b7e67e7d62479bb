package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quocanhngo/guardian/internal/middleware"
	"github.com/quocanhngo/guardian/internal/model"
	"github.com/quocanhngo/guardian/internal/service"
	"github.com/quocanhngo/guardian/internal/ws"
	"github.com/quocanhngo/guardian/pkg/auth"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Mobile clients send no Origin
	},
}

// WSHandler handles live channel connections
type WSHandler struct {
	hub        *ws.Hub
	caregivers service.CaregiverChecker
	jwtManager *auth.JWTManager
	rdb        *redis.Client
	logger     *zap.Logger
}

func NewWSHandler(hub *ws.Hub, caregivers service.CaregiverChecker, jwtManager *auth.JWTManager, rdb *redis.Client, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:        hub,
		caregivers: caregivers,
		jwtManager: jwtManager,
		rdb:        rdb,
		logger:     logger.Named("ws"),
	}
}

// HandleWebSocket upgrades HTTP to WebSocket and manages the connection
// Client connects with: ws://host/ws?token=<jwt_token>
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	// WebSocket clients can't set the Authorization header
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		return
	}

	revoked, err := middleware.IsRevoked(c, h.rdb, tokenString)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Auth server error"})
		return
	}
	claims, err := h.jwtManager.ValidateToken(tokenString)
	if revoked || err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn, claims.UserID)
	h.hub.Register(client)
	h.logger.Debug("WS connected", zap.String("user_id", claims.UserID.String()))

	go client.WritePump()
	go client.ReadPump(h.handleWSMessage)
}

// handleWSMessage processes incoming messages; only room membership is client driven
func (h *WSHandler) handleWSMessage(client *ws.Client, event model.WSEvent) {
	switch event.Type {
	case model.WSEventSubscribe:
		h.handleSubscribe(client, event)
	case model.WSEventUnsubscribe:
		if req, ok := h.parseSubscribe(client, event); ok {
			h.hub.Leave(client, req.ElderID)
		}
	default:
		client.Send(errorEvent("unknown message type " + event.Type))
	}
}

func (h *WSHandler) parseSubscribe(client *ws.Client, event model.WSEvent) (model.SubscribeRequest, bool) {
	var req model.SubscribeRequest
	payloadBytes, _ := json.Marshal(event.Payload)
	if err := json.Unmarshal(payloadBytes, &req); err != nil || req.ElderID == uuid.Nil {
		client.Send(errorEvent("elderId required"))
		return req, false
	}
	return req, true
}

func (h *WSHandler) handleSubscribe(client *ws.Client, event model.WSEvent) {
	req, ok := h.parseSubscribe(client, event)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	allowed, err := h.caregivers.IsCaregiver(ctx, req.ElderID, client.UserID)
	if err != nil {
		h.logger.Error("Caregiver lookup failed", zap.Error(err))
		client.Send(errorEvent("subscription unavailable"))
		return
	}
	if !allowed {
		client.Send(errorEvent("not a caregiver of this elder"))
		return
	}

	if h.hub.Join(client, req.ElderID) {
		client.Send(&model.WSEvent{Type: model.WSEventSubscribed, Payload: req})
	}
}

func errorEvent(message string) *model.WSEvent {
	return &model.WSEvent{
		Type:    model.WSEventError,
		Payload: gin.H{"message": message},
	}
}
