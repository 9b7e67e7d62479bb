package telemetry

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/quocanhngo/guardian/internal/model"
)

// Job is one inbound message waiting for a worker
type Job struct {
	Topic      string
	DeviceCode string
	Kind       model.TelemetryKind
	Payload    []byte
	ReceivedAt time.Time
}

// Pool runs jobs on a fixed set of shards. A device always hashes to the
// same shard and each shard works sequentially, so jobs of one device are
// handled in arrival order while different devices proceed in parallel.
type Pool struct {
	shards []chan Job
	handle func(context.Context, Job)

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(workers, queueSize int, handle func(context.Context, Job)) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	shards := make([]chan Job, workers)
	for i := range shards {
		shards[i] = make(chan Job, queueSize)
	}
	return &Pool{shards: shards, handle: handle}
}

// Start launches one goroutine per shard
func (p *Pool) Start(ctx context.Context) {
	for _, shard := range p.shards {
		p.wg.Add(1)
		go func(jobs <-chan Job) {
			defer p.wg.Done()
			for job := range jobs {
				p.handle(ctx, job)
			}
		}(shard)
	}
}

// Submit enqueues without blocking. It returns false when the device's
// shard is full or the pool is stopped.
func (p *Pool) Submit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.shards[p.shardFor(job.DeviceCode)] <- job:
		return true
	default:
		return false
	}
}

// Stop rejects new jobs, then waits for queued ones to finish
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		for _, shard := range p.shards {
			close(shard)
		}
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) shardFor(deviceCode string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceCode))
	return int(h.Sum32() % uint32(len(p.shards)))
}
