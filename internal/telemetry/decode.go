package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	z "github.com/Oudwins/zog"
	"github.com/quocanhngo/guardian/internal/model"
)

// ErrMalformedPayload means a payload failed to decode or validate
var ErrMalformedPayload = errors.New("malformed telemetry payload")

type fallPayload struct {
	Timestamp     float64 `zog:"timestamp"`
	AccelerationX float64 `zog:"accelerationX"`
	AccelerationY float64 `zog:"accelerationY"`
	AccelerationZ float64 `zog:"accelerationZ"`
	Magnitude     float64 `zog:"magnitude"`
}

var fallSchema = z.Struct(z.Shape{
	"timestamp":     z.Float64().GTE(0),
	"accelerationX": z.Float64(),
	"accelerationY": z.Float64(),
	"accelerationZ": z.Float64(),
	"magnitude":     z.Float64().GTE(0),
})

type heartRatePayload struct {
	Timestamp float64 `zog:"timestamp"`
	HeartRate float64 `zog:"heartRate"`
}

var heartRateSchema = z.Struct(z.Shape{
	"timestamp": z.Float64(),
	"heartRate": z.Float64().GTE(0),
})

type statusPayload struct {
	Timestamp       float64 `zog:"timestamp"`
	Online          bool    `zog:"online"`
	SignalStrength  float64 `zog:"signalStrength"`
	FirmwareVersion string  `zog:"firmwareVersion"`
}

var statusSchema = z.Struct(z.Shape{
	"timestamp":       z.Float64().GTE(0),
	"online":          z.Bool(),
	"signalStrength":  z.Float64(),
	"firmwareVersion": z.String(),
})

// Required keys are checked on the raw document; a zero value such as
// online=false must still count as present.
var requiredKeys = map[model.TelemetryKind][]string{
	model.TelemetryFall:      {"timestamp", "accelerationX", "accelerationY", "accelerationZ", "magnitude"},
	model.TelemetryHeartRate: {"timestamp", "heartRate"},
	model.TelemetryStatus:    {"timestamp", "online"},
}

// Decode validates a payload and returns the matching reading:
// model.FallReading, model.HeartRateReading or model.StatusReading.
func Decode(kind model.TelemetryKind, payload []byte) (any, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedPayload)
	}
	for _, key := range requiredKeys[kind] {
		if v, ok := raw[key]; !ok || v == nil {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformedPayload, key)
		}
	}

	switch kind {
	case model.TelemetryFall:
		var p fallPayload
		if errs := fallSchema.Parse(raw, &p); len(errs) > 0 {
			return nil, issues(errs)
		}
		return model.FallReading{
			Timestamp:     fromUnixMillis(p.Timestamp),
			AccelerationX: p.AccelerationX,
			AccelerationY: p.AccelerationY,
			AccelerationZ: p.AccelerationZ,
			Magnitude:     p.Magnitude,
		}, nil

	case model.TelemetryHeartRate:
		var p heartRatePayload
		if errs := heartRateSchema.Parse(raw, &p); len(errs) > 0 {
			return nil, issues(errs)
		}
		return model.HeartRateReading{
			DeviceTimestamp: fromUnixMillis(p.Timestamp),
			HeartRate:       p.HeartRate,
		}, nil

	case model.TelemetryStatus:
		if _, ok := raw["online"].(bool); !ok {
			return nil, fmt.Errorf("%w: online must be a boolean", ErrMalformedPayload)
		}
		var p statusPayload
		if errs := statusSchema.Parse(raw, &p); len(errs) > 0 {
			return nil, issues(errs)
		}
		reading := model.StatusReading{
			Timestamp: fromUnixMillis(p.Timestamp),
			Online:    p.Online,
		}
		if v, ok := raw["signalStrength"]; ok && v != nil {
			signal := p.SignalStrength
			reading.SignalStrength = &signal
		}
		if firmware := strings.TrimSpace(p.FirmwareVersion); firmware != "" {
			reading.FirmwareVersion = &firmware
		}
		return reading, nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedPayload, kind)
	}
}

func issues[T any](errs T) error {
	return fmt.Errorf("%w: %v", ErrMalformedPayload, errs)
}

// fromUnixMillis maps 0 to the zero time so callers fall back to the receive time
func fromUnixMillis(ms float64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms)).UTC()
}
