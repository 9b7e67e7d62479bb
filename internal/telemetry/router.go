// Package telemetry routes device telemetry from the MQTT broker to the
// telemetry handlers.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quocanhngo/guardian/internal/metrics"
	"github.com/quocanhngo/guardian/internal/model"
	"github.com/quocanhngo/guardian/internal/service"
	"github.com/quocanhngo/guardian/pkg/mqtt"
	"go.uber.org/zap"
)

// Subscriber is the broker side of the router; *mqtt.Client implements it
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// Handler processes decoded telemetry; *service.TelemetryService implements it
type Handler interface {
	HandleFall(ctx context.Context, code string, r model.FallReading, receivedAt time.Time) error
	HandleHeartRate(ctx context.Context, code string, r model.HeartRateReading, receivedAt time.Time) error
	HandleStatus(ctx context.Context, code string, r model.StatusReading, receivedAt time.Time) error
}

// RouterConfig tunes the router
type RouterConfig struct {
	TopicPrefix string
	QoS         byte
	Workers     int
	QueueSize   int
	Retry       RetryPolicy
}

// Router subscribes to the telemetry topics and feeds the worker pool.
// The broker callback only parses the topic and enqueues.
type Router struct {
	sub         Subscriber
	topics      Topics
	qos         byte
	handler     Handler
	pool        *Pool
	subscribed  []string
	retry       RetryPolicy
	deadLetters DeadLetterSink
	metrics     *metrics.Collector
	logger      *zap.Logger
	now         func() time.Time
}

// NewRouter creates a router. deadLetters may be nil.
func NewRouter(cfg RouterConfig, sub Subscriber, handler Handler, deadLetters DeadLetterSink, collector *metrics.Collector, logger *zap.Logger) *Router {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "device"
	}
	r := &Router{
		sub:         sub,
		topics:      Topics{Prefix: cfg.TopicPrefix},
		qos:         cfg.QoS,
		handler:     handler,
		retry:       cfg.Retry,
		deadLetters: deadLetters,
		metrics:     collector,
		logger:      logger.Named("router"),
		now:         time.Now,
	}
	r.pool = NewPool(cfg.Workers, cfg.QueueSize, r.process)
	return r
}

// Start launches the workers and subscribes to every telemetry kind
func (r *Router) Start(ctx context.Context) error {
	r.pool.Start(ctx)

	for _, kind := range Kinds {
		topic := r.topics.Subscription(kind)
		if err := r.sub.Subscribe(topic, r.qos, r.onMessage); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		r.subscribed = append(r.subscribed, topic)
	}
	r.logger.Info("Telemetry router started",
		zap.String("prefix", r.topics.Prefix),
		zap.Int("workers", len(r.pool.shards)))
	return nil
}

// Stop unsubscribes from the broker, then drains queued messages
func (r *Router) Stop() {
	if len(r.subscribed) > 0 {
		if err := r.sub.Unsubscribe(r.subscribed...); err != nil {
			r.logger.Warn("Failed to unsubscribe telemetry topics", zap.Error(err))
		}
		r.subscribed = nil
	}
	r.pool.Stop()
	r.logger.Info("Telemetry router stopped")
}

// onMessage runs on the broker receive goroutine and never blocks
func (r *Router) onMessage(topic string, payload []byte) error {
	receivedAt := r.now().UTC()
	r.metrics.Inc(metrics.MessagesReceived)

	code, kind, err := r.topics.Parse(topic)
	if err != nil {
		r.metrics.Inc(metrics.MessagesDropped)
		r.logger.Warn("Dropping message", zap.String("topic", topic), zap.Error(err))
		return nil
	}

	job := Job{
		Topic:      topic,
		DeviceCode: code,
		Kind:       kind,
		Payload:    append([]byte(nil), payload...),
		ReceivedAt: receivedAt,
	}
	if !r.pool.Submit(job) {
		r.metrics.Inc(metrics.MessagesDropped)
		r.logger.Error("Worker queue full, dead-lettering message", zap.String("topic", topic))
		r.deadLetter(context.Background(), job, ReasonQueueFull, errors.New("worker queue full"), 0)
	}
	return nil
}

// process decodes, handles with retry and classifies the outcome of one job
func (r *Router) process(ctx context.Context, job Job) {
	start := time.Now()
	defer func() { r.metrics.ObserveLatency(time.Since(start)) }()

	log := r.logger.With(
		zap.String("device", job.DeviceCode),
		zap.String("kind", string(job.Kind)))

	reading, err := Decode(job.Kind, job.Payload)
	if err != nil {
		r.metrics.Inc(metrics.MessagesDropped)
		log.Warn("Dropping malformed payload", zap.Error(err))
		r.deadLetter(ctx, job, ReasonMalformed, err, 0)
		return
	}

	attempts, err := withRetry(ctx, r.retry, log, func() error {
		return r.dispatch(ctx, job, reading)
	})

	var fanoutErr *service.FanoutError
	switch {
	case err == nil:
		r.metrics.Inc(metrics.MessagesProcessed)
	case service.IsUnresolvable(err):
		r.metrics.Inc(metrics.MessagesDropped)
		log.Info("Ignoring telemetry from unresolvable device", zap.Error(err))
	case service.IsRetryable(err):
		r.metrics.Inc(metrics.ProcessingErrors)
		log.Error("Giving up on telemetry after persistence failures",
			zap.Int("attempts", attempts), zap.Error(err))
		r.deadLetter(ctx, job, ReasonPersistence, err, attempts)
	case errors.As(err, &fanoutErr):
		// The event is stored; delivery problems are not retried.
		r.metrics.Inc(metrics.MessagesProcessed)
		log.Warn("Fan-out incomplete", zap.String("event_id", fanoutErr.EventID.String()), zap.Error(err))
	default:
		r.metrics.Inc(metrics.ProcessingErrors)
		log.Error("Telemetry handling failed", zap.Error(err))
	}
}

func (r *Router) dispatch(ctx context.Context, job Job, reading any) error {
	switch v := reading.(type) {
	case model.FallReading:
		return r.handler.HandleFall(ctx, job.DeviceCode, v, job.ReceivedAt)
	case model.HeartRateReading:
		return r.handler.HandleHeartRate(ctx, job.DeviceCode, v, job.ReceivedAt)
	case model.StatusReading:
		return r.handler.HandleStatus(ctx, job.DeviceCode, v, job.ReceivedAt)
	default:
		return fmt.Errorf("no handler for %T", reading)
	}
}

func (r *Router) deadLetter(ctx context.Context, job Job, reason string, cause error, attempts int) {
	if r.deadLetters == nil {
		return
	}
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err := r.deadLetters.Publish(ctx, DeadLetter{
		Topic:      job.Topic,
		Payload:    job.Payload,
		Reason:     reason,
		Error:      cause.Error(),
		Attempts:   attempts,
		ReceivedAt: job.ReceivedAt,
	})
	if err != nil {
		r.logger.Error("Failed to write dead letter", zap.String("topic", job.Topic), zap.Error(err))
		return
	}
	r.metrics.Inc(metrics.MessagesDeadLettered)
}
