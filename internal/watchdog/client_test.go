package watchdog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quocanhngo/guardian/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// liveServer is a minimal live channel: it records subscriptions and hands
// each connection to the test
type liveServer struct {
	t     *testing.T
	srv   *httptest.Server
	conns chan *websocket.Conn

	mu         sync.Mutex
	subscribes int
	tokens     []string
}

func newLiveServer(t *testing.T) *liveServer {
	s := &liveServer{t: t, conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.tokens = append(s.tokens, r.URL.Query().Get("token"))
		s.mu.Unlock()

		var sub model.WSEvent
		if err := conn.ReadJSON(&sub); err != nil || sub.Type != model.WSEventSubscribe {
			conn.Close()
			return
		}
		s.mu.Lock()
		s.subscribes++
		s.mu.Unlock()
		s.conns <- conn
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *liveServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
}

func (s *liveServer) next() *websocket.Conn {
	select {
	case conn := <-s.conns:
		return conn
	case <-time.After(3 * time.Second):
		s.t.Fatal("client did not connect")
		return nil
	}
}

func (s *liveServer) subscribeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribes
}

func waitState(t *testing.T, m *Monitor, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.Snapshot().State == want },
		3*time.Second, 10*time.Millisecond, "want state %s", want)
}

func TestClient_TracksDeviceAndReconnects(t *testing.T) {
	server := newLiveServer(t)
	elderID := uuid.New()
	monitor := NewMonitor(time.Minute, nil)
	client := NewClient(Config{
		URL:            server.url(),
		Token:          "tok",
		ElderID:        elderID,
		CheckInterval:  20 * time.Millisecond,
		ReconnectDelay: 20 * time.Millisecond,
	}, monitor, zap.NewNop())
	client.Start(context.Background())
	defer client.Close()

	conn := server.next()
	waitState(t, monitor, StateNoDevice)

	// Messages for another elder are ignored
	require.NoError(t, conn.WriteJSON(model.WSEvent{
		Type:    model.WSEventHeartRateUpdate,
		Payload: model.HeartRateUpdateEvent{ElderID: uuid.New(), HeartRate: 99},
	}))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(
		`{"type":"subscribed","payload":{}}`+"\n"+
			`{"type":"heart_rate_update","payload":{"elderId":"`+elderID.String()+`","heartRate":71}}`)))
	waitState(t, monitor, StateDeviceOnline)
	snap := monitor.Snapshot()
	require.NotNil(t, snap.HeartRate)
	assert.Equal(t, 71.0, *snap.HeartRate)

	conn.Close()
	second := server.next()
	defer second.Close()
	waitState(t, monitor, StateNoDevice)
	assert.Equal(t, 2, server.subscribeCount())
	server.mu.Lock()
	assert.Equal(t, []string{"tok", "tok"}, server.tokens)
	server.mu.Unlock()
}

func TestClient_StalenessWhileConnected(t *testing.T) {
	server := newLiveServer(t)
	elderID := uuid.New()
	monitor := NewMonitor(300*time.Millisecond, nil)
	client := NewClient(Config{
		URL:           server.url(),
		ElderID:       elderID,
		CheckInterval: 10 * time.Millisecond,
	}, monitor, zap.NewNop())
	client.Start(context.Background())
	defer client.Close()

	conn := server.next()
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(model.WSEvent{
		Type:    model.WSEventDeviceStatusUpdate,
		Payload: model.DeviceStatusUpdateEvent{ElderID: elderID, Online: true},
	}))
	waitState(t, monitor, StateDeviceOnline)

	// Connection stays up, the device goes quiet
	waitState(t, monitor, StateNoDevice)
	assert.True(t, client.connected())
}

func TestClient_ForegroundResubscribes(t *testing.T) {
	server := newLiveServer(t)
	monitor := NewMonitor(time.Minute, nil)
	client := NewClient(Config{URL: server.url(), ElderID: uuid.New()}, monitor, zap.NewNop())
	client.Start(context.Background())
	defer client.Close()

	conn := server.next()
	defer conn.Close()
	waitState(t, monitor, StateNoDevice)

	client.Background()
	client.Foreground()

	var again model.WSEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	require.NoError(t, conn.ReadJSON(&again))
	assert.Equal(t, model.WSEventSubscribe, again.Type)
	assert.Equal(t, StateNoDevice, monitor.Snapshot().State)
}

func TestClient_CloseStopsEverything(t *testing.T) {
	server := newLiveServer(t)
	monitor := NewMonitor(time.Minute, nil)
	client := NewClient(Config{URL: server.url(), ElderID: uuid.New(), ReconnectDelay: 10 * time.Millisecond}, monitor, zap.NewNop())
	client.Start(context.Background())

	conn := server.next()
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		client.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.Equal(t, StateDisconnected, monitor.Snapshot().State)
	assert.Equal(t, 1, server.subscribeCount())
}

func TestClient_SilentServerTriggersReconnect(t *testing.T) {
	server := newLiveServer(t)
	monitor := NewMonitor(time.Minute, nil)
	client := NewClient(Config{
		URL:            server.url(),
		ElderID:        uuid.New(),
		ReconnectDelay: 10 * time.Millisecond,
		PingWait:       150 * time.Millisecond,
	}, monitor, zap.NewNop())
	client.Start(context.Background())
	defer client.Close()

	// Half-open: the socket stays up but nothing arrives
	first := server.next()
	defer first.Close()

	second := server.next()
	defer second.Close()
	assert.Equal(t, 2, server.subscribeCount())
}

func TestClient_PingsKeepConnectionAlive(t *testing.T) {
	server := newLiveServer(t)
	monitor := NewMonitor(time.Minute, nil)
	client := NewClient(Config{
		URL:            server.url(),
		ElderID:        uuid.New(),
		ReconnectDelay: 10 * time.Millisecond,
		PingWait:       150 * time.Millisecond,
	}, monitor, zap.NewNop())
	client.Start(context.Background())
	defer client.Close()

	conn := server.next()
	defer conn.Close()

	pongs := make(chan struct{}, 16)
	conn.SetPongHandler(func(string) error {
		select {
		case pongs <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		// Control frames are only processed while reading
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < 10; i++ {
		require.NoError(t, conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)))
		time.Sleep(50 * time.Millisecond)
	}

	assert.Equal(t, 1, server.subscribeCount())
	assert.True(t, client.connected())
	assert.NotEmpty(t, pongs)
}
