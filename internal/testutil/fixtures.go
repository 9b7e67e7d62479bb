package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/quocanhngo/guardian/internal/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Household is an elder with a paired device and ordered caregivers
type Household struct {
	Elder      model.Elder
	Device     model.Device
	Caregivers []model.User
}

// CaregiverSpec describes one caregiver to seed
type CaregiverSpec struct {
	Name   string
	Tokens []string
}

// SeedHousehold creates caregivers, an elder and a device paired to it
// with thresholds low=50 high=120.
func SeedHousehold(t *testing.T, db *gorm.DB, deviceCode string, caregivers ...CaregiverSpec) *Household {
	t.Helper()

	h := &Household{Elder: model.Elder{Name: "Grandma " + deviceCode}}
	require.NoError(t, db.Omit(clause.Associations).Create(&h.Elder).Error)

	for i, spec := range caregivers {
		user := model.User{
			Name:  spec.Name,
			Email: fmt.Sprintf("%s-%s@guardian.test", spec.Name, deviceCode),
		}
		require.NoError(t, db.Omit(clause.Associations).Create(&user).Error)

		for _, token := range spec.Tokens {
			require.NoError(t, db.Create(&model.PushToken{
				UserID:       user.ID,
				Token:        token,
				Platform:     "android",
				LastActiveAt: time.Now(),
			}).Error)
		}

		require.NoError(t, db.Omit(clause.Associations).Create(&model.ElderCaregiver{
			ElderID:     h.Elder.ID,
			UserID:      user.ID,
			AccessLevel: model.AccessLevelViewer,
			Position:    i,
		}).Error)
		h.Caregivers = append(h.Caregivers, user)
	}

	low, high := 50.0, 120.0
	h.Device = model.Device{
		Code:    deviceCode,
		ElderID: &h.Elder.ID,
		Status:  model.DeviceStatusPaired,
		Config: model.DeviceConfig{
			HRLowThreshold:  &low,
			HRHighThreshold: &high,
		},
	}
	require.NoError(t, db.Omit(clause.Associations).Create(&h.Device).Error)
	return h
}

// SeedUnpairedDevice creates a device with no elder
func SeedUnpairedDevice(t *testing.T, db *gorm.DB, deviceCode string) *model.Device {
	t.Helper()

	device := &model.Device{Code: deviceCode, Status: model.DeviceStatusUnpaired}
	require.NoError(t, db.Omit(clause.Associations).Create(device).Error)
	return device
}

// SetLastOnline rewinds a device's heartbeat marker
func SetLastOnline(t *testing.T, db *gorm.DB, device *model.Device, at time.Time) {
	t.Helper()
	require.NoError(t, db.Model(&model.Device{}).Where("id = ?", device.ID).Update("last_online", at).Error)
}
