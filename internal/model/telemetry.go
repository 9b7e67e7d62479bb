package model

import "time"

// TelemetryKind is the last topic segment of an ingress message
type TelemetryKind string

const (
	TelemetryFall      TelemetryKind = "fall"
	TelemetryHeartRate TelemetryKind = "heartrate"
	TelemetryStatus    TelemetryKind = "status"
)

// FallReading is a decoded device/{id}/fall payload
type FallReading struct {
	Timestamp     time.Time // device clock, trusted
	AccelerationX float64
	AccelerationY float64
	AccelerationZ float64
	Magnitude     float64
}

// HeartRateReading is a decoded device/{id}/heartrate payload.
// DeviceTimestamp may be boot-relative and is never used as event time.
type HeartRateReading struct {
	DeviceTimestamp time.Time
	HeartRate       float64
}

// StatusReading is a decoded device/{id}/status payload
type StatusReading struct {
	Timestamp       time.Time // device clock, trusted
	Online          bool
	SignalStrength  *float64
	FirmwareVersion *string
}

// DeviceConfigCommand is published on device/{id}/config
type DeviceConfigCommand struct {
	FallThreshold   float64 `json:"fallThreshold"`
	HRLowThreshold  float64 `json:"hrLowThreshold"`
	HRHighThreshold float64 `json:"hrHighThreshold"`
	SampleInterval  *int    `json:"sampleInterval,omitempty"`
	WifiSSID        string  `json:"wifiSSID,omitempty"`
	WifiPassword    string  `json:"wifiPassword,omitempty"`
}
