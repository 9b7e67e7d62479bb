package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quocanhngo/guardian/internal/middleware"
	"github.com/quocanhngo/guardian/internal/model"
	"github.com/quocanhngo/guardian/internal/repository"
	"github.com/quocanhngo/guardian/internal/service"
	"github.com/quocanhngo/guardian/internal/testutil"
	"github.com/quocanhngo/guardian/internal/ws"
	"github.com/quocanhngo/guardian/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeBroker struct {
	topics []string
}

func (f *fakeBroker) Publish(topic string, _ byte, _ bool, _ []byte) error {
	f.topics = append(f.topics, topic)
	return nil
}

type apiFixture struct {
	db      *gorm.DB
	mr      *miniredis.Miniredis
	hub     *ws.Hub
	jwt     *auth.JWTManager
	broker  *fakeBroker
	router  *gin.Engine
	house   *testutil.Household
	aliceID uuid.UUID
}

func newAPIFixture(t *testing.T) *apiFixture {
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	mr, rdb := testutil.NewRedis(t)
	hub := ws.NewHub(nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	f := &apiFixture{
		db:     db,
		mr:     mr,
		hub:    hub,
		jwt:    auth.NewJWTManager("test-secret", time.Hour),
		broker: &fakeBroker{},
		house:  testutil.SeedHousehold(t, db, "D1", testutil.CaregiverSpec{Name: "alice"}),
	}
	f.aliceID = f.house.Caregivers[0].ID

	devices := repository.NewDeviceRepository(db)
	elders := repository.NewElderRepository(db)
	events := repository.NewEventRepository(db)
	notifications := repository.NewNotificationRepository(db)
	users := repository.NewUserRepository(db)

	eventHandler := NewEventHandler(service.NewEventService(events, elders, hub, zap.NewNop()))
	notificationHandler := NewNotificationHandler(service.NewNotificationService(notifications, users))
	deviceHandler := NewDeviceHandler(service.NewDeviceService(devices, elders, f.broker,
		func(code string) string { return "device/" + code + "/config" }, 1, zap.NewNop()))
	wsHandler := NewWSHandler(hub, elders, f.jwt, rdb, zap.NewNop())

	r := gin.New()
	api := r.Group("/api/v1", middleware.AuthMiddleware(f.jwt, rdb))
	api.GET("/elders/:id/events", eventHandler.ListEvents)
	api.POST("/events/:id/cancel", eventHandler.CancelEvent)
	api.GET("/notifications", notificationHandler.ListNotifications)
	api.POST("/notifications/:id/read", notificationHandler.MarkRead)
	api.POST("/push-tokens", notificationHandler.RegisterPushToken)
	api.POST("/devices/:code/config", deviceHandler.UpdateConfig)
	r.GET("/ws", wsHandler.HandleWebSocket)
	f.router = r
	return f
}

func (f *apiFixture) token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := f.jwt.GenerateToken(userID, "user@guardian.test", "User")
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(t *testing.T, method, path string, userID uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+f.token(t, userID))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) seedEvent(t *testing.T, at time.Time) *model.Event {
	t.Helper()
	event := &model.Event{
		ElderID:       f.house.Elder.ID,
		DeviceID:      f.house.Device.ID,
		Type:          model.EventTypeFall,
		Severity:      model.SeverityCritical,
		Timestamp:     at,
		OccurrenceKey: model.OccurrenceKeyFor(f.house.Device.ID, model.EventTypeFall, at),
	}
	require.NoError(t, f.db.Create(event).Error)
	return event
}

func TestAuth_RejectsMissingAndRevokedTokens(t *testing.T) {
	f := newAPIFixture(t)
	path := "/api/v1/notifications"

	w := f.do(t, http.MethodGet, path, uuid.Nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := f.token(t, f.aliceID)
	require.NoError(t, f.mr.Set(middleware.BlacklistPrefix+token, "1"))
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "revoked")
}

func TestEventHandler_List(t *testing.T) {
	f := newAPIFixture(t)
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	f.seedEvent(t, base)
	f.seedEvent(t, base.Add(time.Minute))

	path := "/api/v1/elders/" + f.house.Elder.ID.String() + "/events"
	w := f.do(t, http.MethodGet, path+"?limit=1", f.aliceID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var events []model.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.True(t, events[0].Timestamp.Equal(base.Add(time.Minute)))

	w = f.do(t, http.MethodGet, path+"?before=yesterday", f.aliceID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, path, uuid.New(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/elders/not-a-uuid/events", f.aliceID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventHandler_Cancel(t *testing.T) {
	f := newAPIFixture(t)
	event := f.seedEvent(t, time.Now().UTC())

	w := f.do(t, http.MethodPost, "/api/v1/events/"+event.ID.String()+"/cancel", f.aliceID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got model.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.IsCancelled)

	w = f.do(t, http.MethodPost, "/api/v1/events/"+uuid.NewString()+"/cancel", f.aliceID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotificationHandler_InboxAndPushTokens(t *testing.T) {
	f := newAPIFixture(t)
	event := f.seedEvent(t, time.Now().UTC())
	n := &model.Notification{UserID: f.aliceID, EventID: event.ID, Type: event.Type, Title: "Fall detected"}
	require.NoError(t, f.db.Create(n).Error)

	w := f.do(t, http.MethodGet, "/api/v1/notifications", f.aliceID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.False(t, list[0].IsRead)

	w = f.do(t, http.MethodPost, "/api/v1/notifications/"+n.ID.String()+"/read", uuid.New(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(t, http.MethodPost, "/api/v1/notifications/"+n.ID.String()+"/read", f.aliceID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/push-tokens", f.aliceID, model.RegisterPushTokenRequest{Token: "t1", Platform: "pager"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(t, http.MethodPost, "/api/v1/push-tokens", f.aliceID, model.RegisterPushTokenRequest{Token: "t1", Platform: "android"})
	assert.Equal(t, http.StatusOK, w.Code)

	var count int64
	require.NoError(t, f.db.Model(&model.PushToken{}).Where("user_id = ?", f.aliceID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDeviceHandler_UpdateConfig(t *testing.T) {
	f := newAPIFixture(t)
	path := "/api/v1/devices/D1/config"

	w := f.do(t, http.MethodPost, path, f.aliceID, model.UpdateDeviceConfigRequest{
		FallThreshold: 2.5, HRLowThreshold: 130, HRHighThreshold: 60,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "high must exceed low")

	w = f.do(t, http.MethodPost, path, uuid.New(), model.UpdateDeviceConfigRequest{
		FallThreshold: 2.5, HRLowThreshold: 45, HRHighThreshold: 130,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, path, f.aliceID, model.UpdateDeviceConfigRequest{
		FallThreshold: 2.5, HRLowThreshold: 45, HRHighThreshold: 130,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"device/D1/config"}, f.broker.topics)

	w = f.do(t, http.MethodPost, "/api/v1/devices/nope/config", f.aliceID, model.UpdateDeviceConfigRequest{
		FallThreshold: 2.5, HRLowThreshold: 45, HRHighThreshold: 130,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
