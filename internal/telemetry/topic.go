package telemetry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/quocanhngo/guardian/internal/model"
)

// ErrInvalidTopic means the topic does not carry a usable device identifier
var ErrInvalidTopic = errors.New("invalid telemetry topic")

// Kinds lists the telemetry kinds the router subscribes to
var Kinds = []model.TelemetryKind{
	model.TelemetryFall,
	model.TelemetryHeartRate,
	model.TelemetryStatus,
}

// Topics holds the topic layout {prefix}/{device}/{kind}
type Topics struct {
	Prefix string
}

// Subscription returns the single-level wildcard filter for a kind
func (t Topics) Subscription(kind model.TelemetryKind) string {
	return t.Prefix + "/+/" + string(kind)
}

// Config returns the egress topic for device configuration
func (t Topics) Config(deviceCode string) string {
	return t.Prefix + "/" + deviceCode + "/config"
}

// Parse extracts the device identifier and kind from an inbound topic
func (t Topics) Parse(topic string) (string, model.TelemetryKind, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != t.Prefix {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}

	code := strings.TrimSpace(parts[1])
	if code == "" || code == "+" || code == "#" {
		return "", "", fmt.Errorf("%w: missing device identifier in %q", ErrInvalidTopic, topic)
	}

	kind := model.TelemetryKind(parts[2])
	switch kind {
	case model.TelemetryFall, model.TelemetryHeartRate, model.TelemetryStatus:
		return code, kind, nil
	default:
		return "", "", fmt.Errorf("%w: unknown kind %q", ErrInvalidTopic, parts[2])
	}
}
