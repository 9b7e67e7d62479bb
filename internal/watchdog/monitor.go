// Package watchdog tracks whether an elder's device is really alive from
// the point of view of a live-channel client.
package watchdog

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quocanhngo/guardian/internal/model"
)

// State of one elder subscription
type State int

const (
	StateDisconnected State = iota
	StateNoDevice
	StateDeviceOnline
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateNoDevice:
		return "connected-no-device"
	case StateDeviceOnline:
		return "connected-device-online"
	default:
		return "unknown"
	}
}

// Snapshot is what a display shows
type Snapshot struct {
	State     State
	HeartRate *float64
	LastHeard time.Time
}

// Monitor is the state machine. Message callbacks and the staleness ticker
// run on different goroutines: lastHeard is an atomic cell, the rest is
// guarded by mu.
type Monitor struct {
	staleAfter time.Duration
	onChange   func(Snapshot)
	now        func() time.Time

	lastHeard atomic.Int64 // unix nanos, 0 = never

	mu        sync.Mutex
	state     State
	heartRate *float64

	// notifyMu orders onChange calls the same way transitions were applied
	notifyMu sync.Mutex
}

// NewMonitor creates a monitor. staleAfter must be strictly larger than the
// device heartbeat interval. onChange may be nil; it may call Snapshot but
// must not drive transitions itself.
func NewMonitor(staleAfter time.Duration, onChange func(Snapshot)) *Monitor {
	return &Monitor{
		staleAfter: staleAfter,
		onChange:   onChange,
		now:        time.Now,
		state:      StateDisconnected,
	}
}

// Snapshot returns the current state
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Monitor) snapshotLocked() Snapshot {
	s := Snapshot{State: m.state}
	if m.heartRate != nil {
		hr := *m.heartRate
		s.HeartRate = &hr
	}
	if ns := m.lastHeard.Load(); ns != 0 {
		s.LastHeard = time.Unix(0, ns)
	}
	return s
}

// transition applies fn under mu. notifyMu is taken before mu is released,
// so callbacks run one at a time and in transition order.
func (m *Monitor) transition(fn func() bool) {
	m.mu.Lock()
	changed := fn()
	if !changed || m.onChange == nil {
		m.mu.Unlock()
		return
	}
	snap := m.snapshotLocked()
	m.notifyMu.Lock()
	m.mu.Unlock()

	defer m.notifyMu.Unlock()
	m.onChange(snap)
}

// Connected is called when the live channel is (re)established. It never
// assumes the device is online.
func (m *Monitor) Connected() {
	m.transition(func() bool {
		if m.state != StateDisconnected {
			return false
		}
		m.state = StateNoDevice
		return true
	})
}

// Disconnected is called when the live channel drops
func (m *Monitor) Disconnected() {
	m.transition(func() bool {
		if m.state == StateDisconnected {
			return false
		}
		m.state = StateDisconnected
		m.heartRate = nil
		return true
	})
}

// Observe feeds one live message. It reports whether the type is one the
// monitor tracks.
func (m *Monitor) Observe(msgType string, payload json.RawMessage) bool {
	var body struct {
		Online    *bool    `json:"online"`
		HeartRate *float64 `json:"heartRate"`
	}
	switch msgType {
	case model.WSEventDeviceStatusUpdate, model.WSEventHeartRateUpdate, model.WSEventHeartRateAlert:
		_ = json.Unmarshal(payload, &body)
	case model.WSEventFallDetected, model.WSEventStatusChanged:
	default:
		return false
	}

	m.lastHeard.Store(m.now().UnixNano())

	m.transition(func() bool {
		prev, prevHR := m.state, m.heartRate
		if msgType == model.WSEventDeviceStatusUpdate && body.Online != nil && !*body.Online {
			m.state = StateNoDevice
			m.heartRate = nil
			return prev != m.state || prevHR != nil
		}
		m.state = StateDeviceOnline
		if body.HeartRate != nil && msgType != model.WSEventDeviceStatusUpdate {
			hr := *body.HeartRate
			m.heartRate = &hr
			return true
		}
		return prev != m.state
	})
	return true
}

// Check is one staleness tick: an online device that has been silent for
// longer than staleAfter is marked gone even if the channel is still up.
func (m *Monitor) Check() {
	m.transition(func() bool {
		last := m.lastHeard.Load()
		if m.state != StateDeviceOnline || last == 0 || m.now().Sub(time.Unix(0, last)) <= m.staleAfter {
			return false
		}
		m.state = StateNoDevice
		m.heartRate = nil
		return true
	})
}

// Run ticks Check until done is closed
func (m *Monitor) Run(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.Check()
		}
	}
}
