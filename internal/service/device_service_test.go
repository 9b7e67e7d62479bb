package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/quocanhngo/guardian/internal/model"
	"github.com/quocanhngo/guardian/internal/repository"
	"github.com/quocanhngo/guardian/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type publishedCommand struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublisher struct {
	sent []publishedCommand
	err  error
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, publishedCommand{topic, qos, retained, payload})
	return nil
}

func configTopic(code string) string { return "device/" + code + "/config" }

func TestDeviceService_UpdateConfigStoresAndPublishes(t *testing.T) {
	db := testutil.NewDB(t)
	h := testutil.SeedHousehold(t, db, "D1", testutil.CaregiverSpec{Name: "alice"})
	pub := &fakePublisher{}
	svc := NewDeviceService(repository.NewDeviceRepository(db), repository.NewElderRepository(db), pub, configTopic, 1, zap.NewNop())

	interval := 30
	device, err := svc.UpdateConfig(context.Background(), h.Caregivers[0].ID, "D1", model.UpdateDeviceConfigRequest{
		FallThreshold:   2.5,
		HRLowThreshold:  45,
		HRHighThreshold: 130,
		SampleInterval:  &interval,
		WifiSSID:        "home",
	})
	require.NoError(t, err)
	assert.Equal(t, 45.0, *device.Config.HRLowThreshold)

	stored, err := repository.NewDeviceRepository(db).FindByCode(context.Background(), "D1")
	require.NoError(t, err)
	low, high := stored.Config.HeartRateThresholds()
	assert.Equal(t, 45.0, low)
	assert.Equal(t, 130.0, high)
	require.NotNil(t, stored.Config.SampleInterval)
	assert.Equal(t, 30, *stored.Config.SampleInterval)

	require.Len(t, pub.sent, 2)
	for _, sent := range pub.sent {
		assert.Equal(t, "device/D1/config", sent.topic)
		assert.Equal(t, byte(1), sent.qos)
	}

	retained := decodeCommand(t, pub.sent[0])
	assert.True(t, pub.sent[0].retained)
	assert.Equal(t, 2.5, retained["fallThreshold"])
	assert.Equal(t, 45.0, retained["hrLowThreshold"])
	assert.Equal(t, 130.0, retained["hrHighThreshold"])
	assert.Equal(t, 30.0, retained["sampleInterval"])
	assert.NotContains(t, retained, "wifiSSID")

	wifi := decodeCommand(t, pub.sent[1])
	assert.False(t, pub.sent[1].retained)
	assert.Equal(t, "home", wifi["wifiSSID"])
	assert.NotContains(t, wifi, "wifiPassword")
}

func TestDeviceService_WifiPasswordIsNeverRetained(t *testing.T) {
	db := testutil.NewDB(t)
	h := testutil.SeedHousehold(t, db, "D1", testutil.CaregiverSpec{Name: "alice"})
	pub := &fakePublisher{}
	svc := NewDeviceService(repository.NewDeviceRepository(db), repository.NewElderRepository(db), pub, configTopic, 1, zap.NewNop())

	_, err := svc.UpdateConfig(context.Background(), h.Caregivers[0].ID, "D1", model.UpdateDeviceConfigRequest{
		FallThreshold:   2,
		HRLowThreshold:  50,
		HRHighThreshold: 120,
		WifiSSID:        "home",
		WifiPassword:    "hunter2",
	})
	require.NoError(t, err)

	require.Len(t, pub.sent, 2)
	for _, sent := range pub.sent {
		if sent.retained {
			assert.NotContains(t, string(sent.payload), "hunter2")
			continue
		}
		assert.Equal(t, "hunter2", decodeCommand(t, sent)["wifiPassword"])
	}
}

func TestDeviceService_ThresholdsOnlyPublishesOnce(t *testing.T) {
	db := testutil.NewDB(t)
	h := testutil.SeedHousehold(t, db, "D1", testutil.CaregiverSpec{Name: "alice"})
	pub := &fakePublisher{}
	svc := NewDeviceService(repository.NewDeviceRepository(db), repository.NewElderRepository(db), pub, configTopic, 1, zap.NewNop())

	_, err := svc.UpdateConfig(context.Background(), h.Caregivers[0].ID, "D1", model.UpdateDeviceConfigRequest{
		FallThreshold: 2, HRLowThreshold: 50, HRHighThreshold: 120,
	})
	require.NoError(t, err)
	require.Len(t, pub.sent, 1)
	assert.True(t, pub.sent[0].retained)
}

func decodeCommand(t *testing.T, sent publishedCommand) map[string]any {
	t.Helper()
	var cmd map[string]any
	require.NoError(t, json.Unmarshal(sent.payload, &cmd))
	return cmd
}

func TestDeviceService_UpdateConfigRejections(t *testing.T) {
	db := testutil.NewDB(t)
	h := testutil.SeedHousehold(t, db, "D1", testutil.CaregiverSpec{Name: "alice"})
	testutil.SeedUnpairedDevice(t, db, "U1")
	pub := &fakePublisher{}
	svc := NewDeviceService(repository.NewDeviceRepository(db), repository.NewElderRepository(db), pub, configTopic, 1, zap.NewNop())
	req := model.UpdateDeviceConfigRequest{FallThreshold: 2, HRLowThreshold: 50, HRHighThreshold: 120}
	ctx := context.Background()

	_, err := svc.UpdateConfig(ctx, h.Caregivers[0].ID, "missing", req)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.UpdateConfig(ctx, h.Caregivers[0].ID, "U1", req)
	assert.ErrorIs(t, err, ErrDeviceUnpaired)

	_, err = svc.UpdateConfig(ctx, uuid.New(), "D1", req)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Empty(t, pub.sent)
}

func TestDeviceService_PublishFailureKeepsStoredThresholds(t *testing.T) {
	db := testutil.NewDB(t)
	h := testutil.SeedHousehold(t, db, "D1", testutil.CaregiverSpec{Name: "alice"})
	pub := &fakePublisher{err: errors.New("not connected")}
	svc := NewDeviceService(repository.NewDeviceRepository(db), repository.NewElderRepository(db), pub, configTopic, 1, zap.NewNop())

	_, err := svc.UpdateConfig(context.Background(), h.Caregivers[0].ID, "D1", model.UpdateDeviceConfigRequest{
		FallThreshold: 2, HRLowThreshold: 40, HRHighThreshold: 140,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device/D1/config")

	stored, err := repository.NewDeviceRepository(db).FindByCode(context.Background(), "D1")
	require.NoError(t, err)
	low, _ := stored.Config.HeartRateThresholds()
	assert.Equal(t, 40.0, low)
}
