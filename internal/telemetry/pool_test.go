package telemetry

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPool_PreservesPerDeviceOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string][]int{}
	)
	pool := NewPool(4, 1000, func(_ context.Context, job Job) {
		var seq int
		_, _ = fmt.Sscanf(string(job.Payload), "%d", &seq)
		mu.Lock()
		seen[job.DeviceCode] = append(seen[job.DeviceCode], seq)
		mu.Unlock()
	})
	pool.Start(context.Background())

	devices := []string{"D1", "D2", "D3", "D4", "D5", "D6"}
	for i := 0; i < 100; i++ {
		for _, d := range devices {
			assert.True(t, pool.Submit(Job{DeviceCode: d, Payload: []byte(fmt.Sprint(i))}))
		}
	}
	pool.Stop()

	for _, d := range devices {
		got := seen[d]
		assert.Len(t, got, 100, d)
		for i := range got {
			assert.Equal(t, i, got[i], "device %s out of order", d)
		}
	}
}

func TestPool_SameDeviceSameShard(t *testing.T) {
	pool := NewPool(8, 1, func(context.Context, Job) {})

	assert.Equal(t, pool.shardFor("D1"), pool.shardFor("D1"))
	for _, code := range []string{"a", "b", "c", "device-42"} {
		shard := pool.shardFor(code)
		assert.GreaterOrEqual(t, shard, 0)
		assert.Less(t, shard, 8)
	}
}

func TestPool_SubmitNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(context.Context, Job) { <-release })
	pool.Start(context.Background())

	// First job occupies the worker, second fills the queue
	accepted := 0
	for i := 0; i < 5; i++ {
		if pool.Submit(Job{DeviceCode: "D1"}) {
			accepted++
		}
	}
	assert.GreaterOrEqual(t, accepted, 1)
	assert.LessOrEqual(t, accepted, 2)

	close(release)
	pool.Stop()
	assert.False(t, pool.Submit(Job{DeviceCode: "D1"}))
}
