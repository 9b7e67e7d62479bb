package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quocanhngo/guardian/internal/metrics"
	"github.com/quocanhngo/guardian/internal/model"
	"github.com/quocanhngo/guardian/internal/service"
	"github.com/quocanhngo/guardian/internal/testutil"
	"github.com/quocanhngo/guardian/pkg/mqtt"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSubscriber struct {
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if f.handlers == nil {
		f.handlers = map[string]mqtt.MessageHandler{}
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeSubscriber) Unsubscribe(topics ...string) error {
	f.unsubscribed = append(f.unsubscribed, topics...)
	return nil
}

// deliver simulates the broker invoking the wildcard subscription
func (f *fakeSubscriber) deliver(t *testing.T, filter, topic, payload string) {
	t.Helper()
	handler, ok := f.handlers[filter]
	require.True(t, ok, "no subscription for %s", filter)
	require.NoError(t, handler(topic, []byte(payload)))
}

type call struct {
	kind       model.TelemetryKind
	code       string
	reading    any
	receivedAt time.Time
}

type fakeHandler struct {
	mu    sync.Mutex
	calls []call
	// errs are returned in order, then nil
	errs []error
}

func (f *fakeHandler) record(kind model.TelemetryKind, code string, reading any, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{kind: kind, code: code, reading: reading, receivedAt: at})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func (f *fakeHandler) HandleFall(_ context.Context, code string, r model.FallReading, at time.Time) error {
	return f.record(model.TelemetryFall, code, r, at)
}

func (f *fakeHandler) HandleHeartRate(_ context.Context, code string, r model.HeartRateReading, at time.Time) error {
	return f.record(model.TelemetryHeartRate, code, r, at)
}

func (f *fakeHandler) HandleStatus(_ context.Context, code string, r model.StatusReading, at time.Time) error {
	return f.record(model.TelemetryStatus, code, r, at)
}

type routerFixture struct {
	sub       *fakeSubscriber
	handler   *fakeHandler
	rdb       *redis.Client
	collector *metrics.Collector
	router    *Router
}

func newRouterFixture(t *testing.T, handlerErrs ...error) *routerFixture {
	_, rdb := testutil.NewRedis(t)
	f := &routerFixture{
		sub:       &fakeSubscriber{},
		handler:   &fakeHandler{errs: handlerErrs},
		rdb:       rdb,
		collector: metrics.NewCollector("test", nil, zap.NewNop()),
	}
	f.router = NewRouter(RouterConfig{
		TopicPrefix: "device",
		QoS:         1,
		Workers:     4,
		QueueSize:   16,
		Retry: RetryPolicy{
			MaxRetries:     2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			BackoffFactor:  2,
		},
	}, f.sub, f.handler, NewRedisDeadLetters(rdb, "deadletter"), f.collector, zap.NewNop())
	require.NoError(t, f.router.Start(context.Background()))
	return f
}

func (f *routerFixture) deadLetters(t *testing.T) []redis.XMessage {
	msgs, err := f.rdb.XRange(context.Background(), "deadletter", "-", "+").Result()
	require.NoError(t, err)
	return msgs
}

func TestRouter_SubscribesToEveryKind(t *testing.T) {
	f := newRouterFixture(t)
	defer f.router.Stop()

	assert.Len(t, f.sub.handlers, 3)
	assert.Contains(t, f.sub.handlers, "device/+/fall")
	assert.Contains(t, f.sub.handlers, "device/+/heartrate")
	assert.Contains(t, f.sub.handlers, "device/+/status")
}

func TestRouter_StopUnsubscribesOnce(t *testing.T) {
	f := newRouterFixture(t)

	f.router.Stop()
	f.router.Stop()
	assert.ElementsMatch(t, []string{"device/+/fall", "device/+/heartrate", "device/+/status"}, f.sub.unsubscribed)
}

func TestRouter_RoutesByKind(t *testing.T) {
	f := newRouterFixture(t)

	f.sub.deliver(t, "device/+/fall", "device/D1/fall",
		`{"timestamp":1714550400000,"accelerationX":1,"accelerationY":2,"accelerationZ":3,"magnitude":3.7}`)
	f.sub.deliver(t, "device/+/heartrate", "device/D2/heartrate", `{"timestamp":5,"heartRate":72}`)
	f.sub.deliver(t, "device/+/status", "device/D3/status", `{"timestamp":1714550400000,"online":true}`)
	f.router.Stop()

	require.Len(t, f.handler.calls, 3)
	byKind := map[model.TelemetryKind]call{}
	for _, c := range f.handler.calls {
		byKind[c.kind] = c
		assert.False(t, c.receivedAt.IsZero())
	}
	assert.Equal(t, "D1", byKind[model.TelemetryFall].code)
	assert.Equal(t, 3.7, byKind[model.TelemetryFall].reading.(model.FallReading).Magnitude)
	assert.Equal(t, "D2", byKind[model.TelemetryHeartRate].code)
	assert.Equal(t, "D3", byKind[model.TelemetryStatus].code)
	assert.Equal(t, uint64(3), f.collector.Value(metrics.MessagesProcessed))
}

func TestRouter_DropsInvalidTopic(t *testing.T) {
	f := newRouterFixture(t)

	f.sub.deliver(t, "device/+/fall", "device//fall", `{}`)
	f.router.Stop()

	assert.Empty(t, f.handler.calls)
	assert.Equal(t, uint64(1), f.collector.Value(metrics.MessagesDropped))
}

func TestRouter_MalformedPayloadIsDeadLettered(t *testing.T) {
	f := newRouterFixture(t)

	f.sub.deliver(t, "device/+/heartrate", "device/D1/heartrate", `{"heartRate":"fast"`)
	f.router.Stop()

	assert.Empty(t, f.handler.calls)
	letters := f.deadLetters(t)
	require.Len(t, letters, 1)
	assert.Equal(t, ReasonMalformed, letters[0].Values["reason"])
	assert.Equal(t, "device/D1/heartrate", letters[0].Values["topic"])
}

func TestRouter_RetriesPersistenceFailures(t *testing.T) {
	transient := &service.PersistenceError{Op: "create event", Err: errors.New("connection reset")}
	f := newRouterFixture(t, transient, transient)

	f.sub.deliver(t, "device/+/fall", "device/D1/fall",
		`{"timestamp":1714550400000,"accelerationX":0,"accelerationY":0,"accelerationZ":0,"magnitude":3}`)
	f.router.Stop()

	require.Len(t, f.handler.calls, 3)
	// Every attempt sees the same receive time, so the occurrence key is stable
	assert.Equal(t, f.handler.calls[0].receivedAt, f.handler.calls[2].receivedAt)
	assert.Empty(t, f.deadLetters(t))
	assert.Equal(t, uint64(1), f.collector.Value(metrics.MessagesProcessed))
}

func TestRouter_DeadLettersAfterMaxRetries(t *testing.T) {
	transient := &service.PersistenceError{Op: "create event", Err: errors.New("connection reset")}
	f := newRouterFixture(t, transient, transient, transient, transient)

	f.sub.deliver(t, "device/+/fall", "device/D1/fall",
		`{"timestamp":1714550400000,"accelerationX":0,"accelerationY":0,"accelerationZ":0,"magnitude":3}`)
	f.router.Stop()

	assert.Len(t, f.handler.calls, 3)
	letters := f.deadLetters(t)
	require.Len(t, letters, 1)
	assert.Equal(t, ReasonPersistence, letters[0].Values["reason"])
	assert.Equal(t, "3", letters[0].Values["attempts"])
	assert.Equal(t, uint64(1), f.collector.Value(metrics.MessagesDeadLettered))
}

func TestRouter_UnresolvableDeviceIsNotRetried(t *testing.T) {
	f := newRouterFixture(t, service.ErrDeviceUnpaired)

	f.sub.deliver(t, "device/+/fall", "device/D9/fall",
		`{"timestamp":1714550400000,"accelerationX":0,"accelerationY":0,"accelerationZ":0,"magnitude":3}`)
	f.router.Stop()

	assert.Len(t, f.handler.calls, 1)
	assert.Empty(t, f.deadLetters(t))
}
