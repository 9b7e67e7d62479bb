package service

import (
	"time"

	"github.com/quocanhngo/guardian/internal/model"
)

// OnlineWindow is how recent lastOnline must be for a device to count as online
const OnlineWindow = 5 * time.Minute

// Decision is the outcome of evaluating one telemetry sample
type Decision struct {
	Alertable bool
	Type      model.EventType
	Severity  model.Severity
	// Durable is false when the event is fanned out to live clients only
	Durable bool

	// Heart-rate alerts only
	Threshold float64
	Direction string
}

// EvaluateFall always yields a critical FALL event: the device already decided it fell.
func EvaluateFall(model.FallReading) Decision {
	return Decision{
		Alertable: true,
		Type:      model.EventTypeFall,
		Severity:  model.SeverityCritical,
		Durable:   true,
	}
}

// EvaluateHeartRate compares a sample against the device thresholds.
func EvaluateHeartRate(bpm float64, cfg model.DeviceConfig) Decision {
	low, high := cfg.HeartRateThresholds()
	switch {
	case bpm < low:
		return Decision{
			Alertable: true,
			Type:      model.EventTypeHeartRateLow,
			Severity:  model.SeverityCritical,
			Durable:   true,
			Threshold: low,
			Direction: model.DirectionLow,
		}
	case bpm > high:
		return Decision{
			Alertable: true,
			Type:      model.EventTypeHeartRateHigh,
			Severity:  model.SeverityCritical,
			Durable:   true,
			Threshold: high,
			Direction: model.DirectionHigh,
		}
	default:
		return Decision{}
	}
}

// WasOnline applies the staleness window to the stored lastOnline
func WasOnline(lastOnline *time.Time, now time.Time, window time.Duration) bool {
	return lastOnline != nil && now.Sub(*lastOnline) < window
}

// EvaluateStatus maps {wasOnline, online} onto the transition table:
//
//	online -> offline : DEVICE_OFFLINE, WARNING, live + durable
//	offline -> online : DEVICE_ONLINE, NORMAL, live only
//	unchanged         : no event
func EvaluateStatus(wasOnline, online bool) Decision {
	switch {
	case wasOnline && !online:
		return Decision{
			Alertable: true,
			Type:      model.EventTypeDeviceOffline,
			Severity:  model.SeverityWarning,
			Durable:   true,
		}
	case !wasOnline && online:
		// Recovery is live-only to keep caregiver notifications quiet.
		return Decision{
			Alertable: true,
			Type:      model.EventTypeDeviceOnline,
			Severity:  model.SeverityNormal,
			Durable:   false,
		}
	default:
		return Decision{}
	}
}
