package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventType is the kind of alertable occurrence
type EventType string

const (
	EventTypeFall          EventType = "FALL"
	EventTypeHeartRateLow  EventType = "HEART_RATE_LOW"
	EventTypeHeartRateHigh EventType = "HEART_RATE_HIGH"
	EventTypeDeviceOffline EventType = "DEVICE_OFFLINE"
	EventTypeDeviceOnline  EventType = "DEVICE_ONLINE"
)

// Severity of an event
type Severity string

const (
	SeverityNormal   Severity = "NORMAL"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Event is an immutable record of an alertable occurrence.
// IsCancelled is the only column ever flipped after insert.
type Event struct {
	ID            uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	ElderID       uuid.UUID         `json:"elder_id" gorm:"type:uuid;not null;index:idx_events_elder_ts,priority:1"`
	DeviceID      uuid.UUID         `json:"device_id" gorm:"type:uuid;not null;index"`
	Type          EventType         `json:"type" gorm:"type:varchar(20);not null"`
	Severity      Severity          `json:"severity" gorm:"type:varchar(10);not null"`
	Timestamp     time.Time         `json:"timestamp" gorm:"not null;index:idx_events_elder_ts,priority:2"`
	Value         *float64          `json:"value,omitempty"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
	IsCancelled   bool              `json:"is_cancelled" gorm:"default:false"`
	OccurrenceKey string            `json:"-" gorm:"size:128;uniqueIndex;not null"`
	CreatedAt     time.Time         `json:"created_at"`
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// OccurrenceKeyFor builds the idempotency key of an occurrence.
// The same device, type and instant always map to the same key.
func OccurrenceKeyFor(deviceID uuid.UUID, t EventType, at time.Time) string {
	return fmt.Sprintf("%s:%s:%d", deviceID, t, at.UnixMilli())
}
