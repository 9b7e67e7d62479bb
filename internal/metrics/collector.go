// Package metrics keeps in-process counters for the pipeline and
// periodically writes a snapshot to Redis.
package metrics

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// KeyPrefix is the Redis key prefix for service snapshots
	KeyPrefix = "guardian:metrics:"
	// TTL is how long a snapshot stays in Redis if not refreshed
	TTL = 2 * time.Minute
	// DefaultReportInterval is how often snapshots are written
	DefaultReportInterval = 30 * time.Second
)

// Counter names
const (
	MessagesReceived      = "messages_received"
	MessagesProcessed     = "messages_processed"
	MessagesDropped       = "messages_dropped"
	MessagesDeadLettered  = "messages_dead_lettered"
	ProcessingErrors      = "processing_errors"
	EventsCreated         = "events_created"
	LiveMessagesPublished = "live_messages_published"
	NotificationsCreated  = "notifications_created"
	PushDelivered         = "push_delivered"
	PushFailed            = "push_failed"
)

// Snapshot is what gets written to Redis
type Snapshot struct {
	ServiceName string            `json:"service_name"`
	StartedAt   time.Time         `json:"started_at"`
	LastUpdated time.Time         `json:"last_updated"`
	Counters    map[string]uint64 `json:"counters"`
	// Average handling latency in nanoseconds
	AvgLatencyNs float64 `json:"avg_latency_ns"`
}

// Collector collects counters. A nil *Collector is valid and records nothing.
type Collector struct {
	serviceName    string
	redis          *redis.Client
	logger         *zap.Logger
	startedAt      time.Time
	reportInterval time.Duration

	mu       sync.RWMutex
	counters map[string]*atomic.Uint64

	totalLatencyNs atomic.Uint64
	latencyCount   atomic.Uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a collector. redisClient may be nil to keep counters local.
func NewCollector(serviceName string, redisClient *redis.Client, logger *zap.Logger) *Collector {
	return &Collector{
		serviceName:    serviceName,
		redis:          redisClient,
		logger:         logger.Named("metrics"),
		startedAt:      time.Now().UTC(),
		reportInterval: DefaultReportInterval,
		counters:       make(map[string]*atomic.Uint64),
		stopCh:         make(chan struct{}),
	}
}

// SetReportInterval sets the interval for writing snapshots to Redis
func (c *Collector) SetReportInterval(interval time.Duration) {
	c.reportInterval = interval
}

// Start begins periodic reporting until ctx is done or Stop is called
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.write(context.Background())
				return
			case <-c.stopCh:
				c.write(context.Background())
				return
			case <-ticker.C:
				c.write(ctx)
			}
		}
	}()
}

// Stop stops reporting and writes a final snapshot
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// Inc increments a named counter
func (c *Collector) Inc(name string) {
	c.Add(name, 1)
}

// Add adds a value to a named counter
func (c *Collector) Add(name string, value uint64) {
	if c == nil {
		return
	}
	c.mu.RLock()
	counter, ok := c.counters[name]
	c.mu.RUnlock()

	if !ok {
		c.mu.Lock()
		if counter, ok = c.counters[name]; !ok {
			counter = &atomic.Uint64{}
			c.counters[name] = counter
		}
		c.mu.Unlock()
	}
	counter.Add(value)
}

// ObserveLatency records how long one message took to handle
func (c *Collector) ObserveLatency(d time.Duration) {
	if c == nil {
		return
	}
	c.totalLatencyNs.Add(uint64(d.Nanoseconds()))
	c.latencyCount.Add(1)
}

// Value returns the current value of a counter
func (c *Collector) Value(name string) uint64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if counter, ok := c.counters[name]; ok {
		return counter.Load()
	}
	return 0
}

// Snapshot returns the current counters without writing them
func (c *Collector) Snapshot() *Snapshot {
	c.mu.RLock()
	counters := make(map[string]uint64, len(c.counters))
	for name, counter := range c.counters {
		counters[name] = counter.Load()
	}
	c.mu.RUnlock()

	var avg float64
	if n := c.latencyCount.Load(); n > 0 {
		avg = float64(c.totalLatencyNs.Load()) / float64(n)
	}

	return &Snapshot{
		ServiceName:  c.serviceName,
		StartedAt:    c.startedAt,
		LastUpdated:  time.Now().UTC(),
		Counters:     counters,
		AvgLatencyNs: avg,
	}
}

func (c *Collector) write(ctx context.Context) {
	if c.redis == nil {
		return
	}

	data, err := json.Marshal(c.Snapshot())
	if err != nil {
		c.logger.Error("Failed to marshal metrics", zap.Error(err))
		return
	}

	key := KeyPrefix + c.serviceName
	if err := c.redis.Set(ctx, key, data, TTL).Err(); err != nil {
		c.logger.Error("Failed to write metrics to Redis", zap.String("key", key), zap.Error(err))
		return
	}
	c.logger.Debug("Metrics written to Redis", zap.String("key", key))
}
