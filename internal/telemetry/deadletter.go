package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dead-letter reasons
const (
	ReasonMalformed   = "malformed_payload"
	ReasonPersistence = "persistence_failure"
	ReasonQueueFull   = "queue_full"
)

// DeadLetter is a message the router gave up on
type DeadLetter struct {
	Topic      string
	Payload    []byte
	Reason     string
	Error      string
	Attempts   int
	ReceivedAt time.Time
}

// DeadLetterSink stores undeliverable messages for inspection or replay
type DeadLetterSink interface {
	Publish(ctx context.Context, dl DeadLetter) error
}

// RedisDeadLetters appends dead letters to a capped Redis stream
type RedisDeadLetters struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisDeadLetters(client *redis.Client, stream string) *RedisDeadLetters {
	return &RedisDeadLetters{client: client, stream: stream, maxLen: 10000}
}

// Publish adds the dead letter to the stream with XADD
func (d *RedisDeadLetters) Publish(ctx context.Context, dl DeadLetter) error {
	return d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: d.stream,
		MaxLen: d.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"topic":       dl.Topic,
			"payload":     string(dl.Payload),
			"reason":      dl.Reason,
			"error":       dl.Error,
			"attempts":    strconv.Itoa(dl.Attempts),
			"received_at": dl.ReceivedAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
}
