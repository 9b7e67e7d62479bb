package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/quocanhngo/guardian/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ConfigPublisher sends commands to devices; *mqtt.Client implements it
type ConfigPublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// DeviceConfigStore is the device side needed to change thresholds
type DeviceConfigStore interface {
	FindByCode(ctx context.Context, code string) (*model.Device, error)
	UpdateConfig(ctx context.Context, id uuid.UUID, cfg model.DeviceConfig) error
}

// CaregiverChecker answers whether a user looks after an elder
type CaregiverChecker interface {
	IsCaregiver(ctx context.Context, elderID, userID uuid.UUID) (bool, error)
}

// DeviceService handles caregiver changes to device configuration
type DeviceService struct {
	devices     DeviceConfigStore
	caregivers  CaregiverChecker
	publisher   ConfigPublisher
	configTopic func(code string) string
	qos         byte
	logger      *zap.Logger
}

func NewDeviceService(
	devices DeviceConfigStore,
	caregivers CaregiverChecker,
	publisher ConfigPublisher,
	configTopic func(code string) string,
	qos byte,
	logger *zap.Logger,
) *DeviceService {
	return &DeviceService{
		devices:     devices,
		caregivers:  caregivers,
		publisher:   publisher,
		configTopic: configTopic,
		qos:         qos,
		logger:      logger.Named("devices"),
	}
}

// UpdateConfig stores new thresholds and pushes them to the device.
// Thresholds are retained so a device that is offline picks them up on
// reconnect. Wi-Fi settings follow in a separate message that is not retained.
func (s *DeviceService) UpdateConfig(ctx context.Context, userID uuid.UUID, code string, req model.UpdateDeviceConfigRequest) (*model.Device, error) {
	device, err := s.devices.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("device %s: %w", code, ErrNotFound)
		}
		return nil, err
	}
	if !device.IsPaired() {
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnpaired, code)
	}
	ok, err := s.caregivers.IsCaregiver(ctx, *device.ElderID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}

	cfg := model.DeviceConfig{
		FallThreshold:   &req.FallThreshold,
		HRLowThreshold:  &req.HRLowThreshold,
		HRHighThreshold: &req.HRHighThreshold,
		SampleInterval:  req.SampleInterval,
	}
	if err := s.devices.UpdateConfig(ctx, device.ID, cfg); err != nil {
		return nil, err
	}
	device.Config = cfg

	cmd := model.DeviceConfigCommand{
		FallThreshold:   req.FallThreshold,
		HRLowThreshold:  req.HRLowThreshold,
		HRHighThreshold: req.HRHighThreshold,
		SampleInterval:  req.SampleInterval,
	}
	topic := s.configTopic(device.Code)
	if err := s.publish(topic, true, cmd); err != nil {
		return device, err
	}

	if req.WifiSSID != "" || req.WifiPassword != "" {
		cmd.WifiSSID = req.WifiSSID
		cmd.WifiPassword = req.WifiPassword
		if err := s.publish(topic, false, cmd); err != nil {
			return device, err
		}
	}

	s.logger.Info("Device config published",
		zap.String("device", device.Code),
		zap.String("user_id", userID.String()))
	return device, nil
}

func (s *DeviceService) publish(topic string, retained bool, cmd model.DeviceConfigCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(topic, s.qos, retained, payload); err != nil {
		return fmt.Errorf("publish config to %s: %w", topic, err)
	}
	return nil
}
