package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/guardian/internal/model"
	"gorm.io/gorm"
)

// DeviceRepository handles database operations for Device
type DeviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Create inserts a new device
func (r *DeviceRepository) Create(ctx context.Context, device *model.Device) error {
	return r.db.WithContext(ctx).Create(device).Error
}

// FindByCode resolves the opaque identifier used in MQTT topics, with the paired elder joined
func (r *DeviceRepository) FindByCode(ctx context.Context, code string) (*model.Device, error) {
	var device model.Device
	err := r.db.WithContext(ctx).
		Preload("Elder").
		Where("code = ?", code).
		First(&device).Error
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// UpdateStatus writes the heartbeat fields of a device in a single-row update.
// firmware is left untouched when nil.
func (r *DeviceRepository) UpdateStatus(ctx context.Context, id uuid.UUID, lastOnline time.Time, status model.DeviceStatus, firmware *string) error {
	updates := map[string]interface{}{
		"last_online": lastOnline,
		"status":      status,
		"updated_at":  time.Now(),
	}
	if firmware != nil {
		updates["firmware_version"] = *firmware
	}
	return r.db.WithContext(ctx).Model(&model.Device{}).Where("id = ?", id).Updates(updates).Error
}

// UpdateConfig stores the alert thresholds of a device
func (r *DeviceRepository) UpdateConfig(ctx context.Context, id uuid.UUID, cfg model.DeviceConfig) error {
	return r.db.WithContext(ctx).Model(&model.Device{}).Where("id = ?", id).Updates(map[string]interface{}{
		"fall_threshold":    cfg.FallThreshold,
		"hr_low_threshold":  cfg.HRLowThreshold,
		"hr_high_threshold": cfg.HRHighThreshold,
		"sample_interval":   cfg.SampleInterval,
		"updated_at":        time.Now(),
	}).Error
}
