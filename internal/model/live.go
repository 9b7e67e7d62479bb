package model

import (
	"time"

	"github.com/google/uuid"
)

// WSEvent is the envelope of every message on the live channel
type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Server -> client live message types
const (
	WSEventFallDetected       = "fall_detected"
	WSEventHeartRateUpdate    = "heart_rate_update"
	WSEventHeartRateAlert     = "heart_rate_alert"
	WSEventDeviceStatusUpdate = "device_status_update"
	WSEventStatusChanged      = "event_status_changed"
)

// Client -> server live message types
const (
	WSEventSubscribe   = "subscribe"
	WSEventUnsubscribe = "unsubscribe"
	WSEventSubscribed  = "subscribed"
	WSEventError       = "error"
)

// Heart-rate threshold directions recorded in event metadata
const (
	DirectionLow  = "LOW"
	DirectionHigh = "HIGH"
)

type SubscribeRequest struct {
	ElderID uuid.UUID `json:"elderId"`
}

type FallDetectedEvent struct {
	ElderID       uuid.UUID `json:"elderId"`
	DeviceID      uuid.UUID `json:"deviceId"`
	DeviceCode    string    `json:"deviceCode"`
	EventID       uuid.UUID `json:"eventId"`
	Severity      Severity  `json:"severity"`
	AccelerationX float64   `json:"accelerationX"`
	AccelerationY float64   `json:"accelerationY"`
	AccelerationZ float64   `json:"accelerationZ"`
	Magnitude     float64   `json:"magnitude"`
	Timestamp     time.Time `json:"timestamp"`
}

type HeartRateUpdateEvent struct {
	ElderID    uuid.UUID `json:"elderId"`
	DeviceID   uuid.UUID `json:"deviceId"`
	DeviceCode string    `json:"deviceCode"`
	HeartRate  float64   `json:"heartRate"`
	Timestamp  time.Time `json:"timestamp"`
}

type HeartRateAlertEvent struct {
	ElderID    uuid.UUID `json:"elderId"`
	DeviceID   uuid.UUID `json:"deviceId"`
	DeviceCode string    `json:"deviceCode"`
	EventID    uuid.UUID `json:"eventId"`
	EventType  EventType `json:"eventType"`
	Severity   Severity  `json:"severity"`
	HeartRate  float64   `json:"heartRate"`
	Threshold  float64   `json:"threshold"`
	Direction  string    `json:"direction"`
	Timestamp  time.Time `json:"timestamp"`
}

type DeviceStatusUpdateEvent struct {
	ElderID         uuid.UUID  `json:"elderId"`
	DeviceID        uuid.UUID  `json:"deviceId"`
	DeviceCode      string     `json:"deviceCode"`
	Online          bool       `json:"online"`
	SignalStrength  *float64   `json:"signalStrength,omitempty"`
	FirmwareVersion *string    `json:"firmwareVersion,omitempty"`
	EventID         *uuid.UUID `json:"eventId,omitempty"`
	EventType       EventType  `json:"eventType,omitempty"`
	Severity        Severity   `json:"severity,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

type EventStatusChangedEvent struct {
	ElderID     uuid.UUID `json:"elderId"`
	EventID     uuid.UUID `json:"eventId"`
	EventType   EventType `json:"eventType"`
	IsCancelled bool      `json:"isCancelled"`
	Timestamp   time.Time `json:"timestamp"`
}
