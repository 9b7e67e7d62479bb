package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/quocanhngo/guardian/internal/model"
)

type publishedMessage struct {
	ElderID uuid.UUID
	Event   *model.WSEvent
}

// fakeLive records live messages instead of writing to sockets
type fakeLive struct {
	mu   sync.Mutex
	msgs []publishedMessage
	err  error
}

func (f *fakeLive) PublishToElder(_ context.Context, elderID uuid.UUID, event *model.WSEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, publishedMessage{ElderID: elderID, Event: event})
	return nil
}

func (f *fakeLive) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, m.Event.Type)
	}
	return out
}

// recordingFanout captures what the telemetry handlers hand to the dispatcher
type recordingFanout struct {
	mu     sync.Mutex
	alerts []Alert
	live   []*model.WSEvent
}

func (r *recordingFanout) Dispatch(_ context.Context, alert Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return nil
}

func (r *recordingFanout) Live(_ context.Context, _ uuid.UUID, msg *model.WSEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = append(r.live, msg)
	return nil
}
