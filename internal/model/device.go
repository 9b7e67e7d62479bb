package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeviceStatus is the lifecycle status of a monitoring device
type DeviceStatus string

const (
	DeviceStatusActive      DeviceStatus = "ACTIVE"
	DeviceStatusInactive    DeviceStatus = "INACTIVE"
	DeviceStatusMaintenance DeviceStatus = "MAINTENANCE"
	DeviceStatusPaired      DeviceStatus = "PAIRED"
	DeviceStatusUnpaired    DeviceStatus = "UNPAIRED"
)

// Heart-rate thresholds used when a device has none configured
const (
	DefaultHeartRateLow  = 50.0
	DefaultHeartRateHigh = 120.0
)

// Device is a wearable or stationary safety device.
// Code is the opaque identifier the device uses in its MQTT topics.
type Device struct {
	ID              uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	Code            string       `json:"code" gorm:"size:64;uniqueIndex;not null"`
	ElderID         *uuid.UUID   `json:"elder_id" gorm:"type:uuid;index"` // NULL = unpaired
	Status          DeviceStatus `json:"status" gorm:"type:varchar(20);default:'UNPAIRED'"`
	LastOnline      *time.Time   `json:"last_online"`
	FirmwareVersion string       `json:"firmware_version" gorm:"size:50"`
	Config          DeviceConfig `json:"config" gorm:"embedded"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`

	Elder *Elder `json:"elder,omitempty" gorm:"foreignKey:ElderID"`
}

// DeviceConfig holds per-device alert thresholds. NULL columns mean "not configured".
type DeviceConfig struct {
	FallThreshold   *float64 `json:"fall_threshold"`
	HRLowThreshold  *float64 `json:"hr_low_threshold" gorm:"column:hr_low_threshold"`
	HRHighThreshold *float64 `json:"hr_high_threshold" gorm:"column:hr_high_threshold"`
	SampleInterval  *int     `json:"sample_interval"` // seconds
}

// HeartRateThresholds returns the configured low/high thresholds, falling back to defaults
func (c DeviceConfig) HeartRateThresholds() (low, high float64) {
	low, high = DefaultHeartRateLow, DefaultHeartRateHigh
	if c.HRLowThreshold != nil {
		low = *c.HRLowThreshold
	}
	if c.HRHighThreshold != nil {
		high = *c.HRHighThreshold
	}
	return low, high
}

// IsPaired reports whether the device is currently assigned to an elder
func (d *Device) IsPaired() bool {
	return d.ElderID != nil && *d.ElderID != uuid.Nil
}

func (d *Device) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
