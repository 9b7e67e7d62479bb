package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/guardian/internal/metrics"
	"github.com/quocanhngo/guardian/internal/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DeviceDirectory is the device side of the directory collaborator
type DeviceDirectory interface {
	FindByCode(ctx context.Context, code string) (*model.Device, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, lastOnline time.Time, status model.DeviceStatus, firmware *string) error
}

// AlertFanout is implemented by *Dispatcher
type AlertFanout interface {
	Dispatch(ctx context.Context, alert Alert) error
	Live(ctx context.Context, elderID uuid.UUID, msg *model.WSEvent) error
}

// TelemetryService turns decoded device telemetry into events and fan-out
type TelemetryService struct {
	devices DeviceDirectory
	writer  *EventWriter
	fanout  AlertFanout
	limiter *RateLimiterStore
	metrics *metrics.Collector
	logger  *zap.Logger
}

func NewTelemetryService(
	devices DeviceDirectory,
	writer *EventWriter,
	fanout AlertFanout,
	limiter *RateLimiterStore,
	collector *metrics.Collector,
	logger *zap.Logger,
) *TelemetryService {
	return &TelemetryService{
		devices: devices,
		writer:  writer,
		fanout:  fanout,
		limiter: limiter,
		metrics: collector,
		logger:  logger.Named("telemetry"),
	}
}

// findDevice maps directory errors onto the handler error taxonomy
func (s *TelemetryService) findDevice(ctx context.Context, code string) (*model.Device, error) {
	device, err := s.devices.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, code)
		}
		return nil, &PersistenceError{Op: "find device", Err: err}
	}
	return device, nil
}

// resolvePaired returns the device only when it is paired with an elder
func (s *TelemetryService) resolvePaired(ctx context.Context, code string) (*model.Device, error) {
	device, err := s.findDevice(ctx, code)
	if err != nil {
		return nil, err
	}
	if !device.IsPaired() {
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnpaired, code)
	}
	return device, nil
}

// persist writes the event and reports whether fan-out should follow
func (s *TelemetryService) persist(ctx context.Context, event *model.Event) (bool, error) {
	created, err := s.writer.Write(ctx, event)
	if err != nil {
		return false, err
	}
	if created {
		s.metrics.Inc(metrics.EventsCreated)
	}
	return created, nil
}

// HandleFall materializes a FALL event. The device already decided it fell,
// so no threshold is applied and severity is always CRITICAL.
func (s *TelemetryService) HandleFall(ctx context.Context, code string, r model.FallReading, receivedAt time.Time) error {
	device, err := s.resolvePaired(ctx, code)
	if err != nil {
		return err
	}

	d := EvaluateFall(r)
	ts := r.Timestamp
	if ts.IsZero() {
		ts = receivedAt
	}

	magnitude := r.Magnitude
	event := &model.Event{
		ElderID:   *device.ElderID,
		DeviceID:  device.ID,
		Type:      d.Type,
		Severity:  d.Severity,
		Timestamp: ts,
		Value:     &magnitude,
		Metadata: datatypes.JSONMap{
			"accelerationX": r.AccelerationX,
			"accelerationY": r.AccelerationY,
			"accelerationZ": r.AccelerationZ,
			"magnitude":     r.Magnitude,
		},
	}
	created, err := s.persist(ctx, event)
	if err != nil || !created {
		return err
	}

	s.logger.Warn("Fall detected",
		zap.String("device", code),
		zap.String("elder_id", event.ElderID.String()),
		zap.Float64("magnitude", r.Magnitude))

	return s.fanout.Dispatch(ctx, Alert{
		Event: event,
		Live: &model.WSEvent{
			Type: model.WSEventFallDetected,
			Payload: model.FallDetectedEvent{
				ElderID:       event.ElderID,
				DeviceID:      device.ID,
				DeviceCode:    device.Code,
				EventID:       event.ID,
				Severity:      event.Severity,
				AccelerationX: r.AccelerationX,
				AccelerationY: r.AccelerationY,
				AccelerationZ: r.AccelerationZ,
				Magnitude:     r.Magnitude,
				Timestamp:     event.Timestamp,
			},
		},
		Title:   "Fall detected",
		Body:    fmt.Sprintf("%s may have fallen. Please check on them.", elderName(device)),
		Durable: d.Durable,
	})
}

// HandleHeartRate evaluates one sample. Device clocks may be boot-relative,
// so the event time is always receivedAt.
func (s *TelemetryService) HandleHeartRate(ctx context.Context, code string, r model.HeartRateReading, receivedAt time.Time) error {
	device, err := s.resolvePaired(ctx, code)
	if err != nil {
		return err
	}
	elderID := *device.ElderID

	d := EvaluateHeartRate(r.HeartRate, device.Config)
	if !d.Alertable {
		if !s.limiter.Allow(device.Code) {
			s.metrics.Inc(metrics.MessagesDropped)
			return nil
		}
		return s.fanout.Live(ctx, elderID, &model.WSEvent{
			Type: model.WSEventHeartRateUpdate,
			Payload: model.HeartRateUpdateEvent{
				ElderID:    elderID,
				DeviceID:   device.ID,
				DeviceCode: device.Code,
				HeartRate:  r.HeartRate,
				Timestamp:  receivedAt,
			},
		})
	}

	bpm := r.HeartRate
	event := &model.Event{
		ElderID:   elderID,
		DeviceID:  device.ID,
		Type:      d.Type,
		Severity:  d.Severity,
		Timestamp: receivedAt,
		Value:     &bpm,
		Metadata: datatypes.JSONMap{
			"threshold": d.Threshold,
			"direction": d.Direction,
			"heartRate": bpm,
		},
	}
	created, err := s.persist(ctx, event)
	if err != nil || !created {
		return err
	}

	title := "High heart rate"
	if d.Direction == model.DirectionLow {
		title = "Low heart rate"
	}

	return s.fanout.Dispatch(ctx, Alert{
		Event: event,
		Live: &model.WSEvent{
			Type: model.WSEventHeartRateAlert,
			Payload: model.HeartRateAlertEvent{
				ElderID:    elderID,
				DeviceID:   device.ID,
				DeviceCode: device.Code,
				EventID:    event.ID,
				EventType:  event.Type,
				Severity:   event.Severity,
				HeartRate:  bpm,
				Threshold:  d.Threshold,
				Direction:  d.Direction,
				Timestamp:  event.Timestamp,
			},
		},
		Title:   title,
		Body:    fmt.Sprintf("%s's heart rate is %.0f bpm (threshold %.0f bpm).", elderName(device), bpm, d.Threshold),
		Durable: d.Durable,
	})
}

// HandleStatus applies the online/offline hysteresis against the stored
// lastOnline. The device row is always updated, after any event has been
// written and fanned out, so a retried message re-evaluates the same
// transition and the occurrence key suppresses the duplicate.
func (s *TelemetryService) HandleStatus(ctx context.Context, code string, r model.StatusReading, receivedAt time.Time) error {
	device, err := s.findDevice(ctx, code)
	if err != nil {
		return err
	}

	wasOnline := WasOnline(device.LastOnline, receivedAt, OnlineWindow)
	status := model.DeviceStatusInactive
	if r.Online {
		status = model.DeviceStatusActive
	}

	var fanoutErr error
	if device.IsPaired() {
		fanoutErr, err = s.statusFanout(ctx, device, r, wasOnline, receivedAt)
		if err != nil {
			return err
		}
	} else {
		s.logger.Debug("Status from unpaired device", zap.String("device", code), zap.Bool("online", r.Online))
	}

	if err := s.devices.UpdateStatus(ctx, device.ID, receivedAt, status, r.FirmwareVersion); err != nil {
		return errors.Join(&PersistenceError{Op: "update device status", Err: err}, fanoutErr)
	}
	return fanoutErr
}

// statusFanout returns the fan-out error separately from a persistence error
// so that the device row is still updated when only delivery failed.
func (s *TelemetryService) statusFanout(ctx context.Context, device *model.Device, r model.StatusReading, wasOnline bool, receivedAt time.Time) (fanoutErr, err error) {
	elderID := *device.ElderID
	ts := r.Timestamp
	if ts.IsZero() {
		ts = receivedAt
	}

	payload := model.DeviceStatusUpdateEvent{
		ElderID:         elderID,
		DeviceID:        device.ID,
		DeviceCode:      device.Code,
		Online:          r.Online,
		SignalStrength:  r.SignalStrength,
		FirmwareVersion: r.FirmwareVersion,
		Timestamp:       ts,
	}
	live := &model.WSEvent{Type: model.WSEventDeviceStatusUpdate}

	d := EvaluateStatus(wasOnline, r.Online)
	if !d.Alertable {
		live.Payload = payload
		return s.fanout.Live(ctx, elderID, live), nil
	}

	event := &model.Event{
		ElderID:   elderID,
		DeviceID:  device.ID,
		Type:      d.Type,
		Severity:  d.Severity,
		Timestamp: ts,
		Metadata: datatypes.JSONMap{
			"online": r.Online,
		},
	}
	if r.SignalStrength != nil {
		event.Metadata["signalStrength"] = *r.SignalStrength
	}
	created, err := s.persist(ctx, event)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, nil
	}

	s.logger.Info("Device status transition",
		zap.String("device", device.Code),
		zap.String("event_type", string(d.Type)),
		zap.Bool("was_online", wasOnline))

	payload.EventID = &event.ID
	payload.EventType = event.Type
	payload.Severity = event.Severity
	live.Payload = payload

	title, body := "Device offline", fmt.Sprintf("%s's device stopped reporting.", elderName(device))
	if d.Type == model.EventTypeDeviceOnline {
		title, body = "Device online", fmt.Sprintf("%s's device is reporting again.", elderName(device))
	}

	return s.fanout.Dispatch(ctx, Alert{
		Event:   event,
		Live:    live,
		Title:   title,
		Body:    body,
		Durable: d.Durable,
	}), nil
}

func elderName(device *model.Device) string {
	if device.Elder != nil && device.Elder.Name != "" {
		return device.Elder.Name
	}
	return "Your elder"
}
