package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/quocanhngo/guardian/internal/config"
	"github.com/quocanhngo/guardian/internal/model"
	"github.com/quocanhngo/guardian/internal/repository"
	"github.com/quocanhngo/guardian/migrations"
	"github.com/quocanhngo/guardian/pkg/auth"
	applog "github.com/quocanhngo/guardian/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Seeds a demo household: two caregivers, one elder and a paired device,
// then prints tokens usable against /ws and the REST API.
func main() {
	rollback := flag.Bool("rollback", false, "roll back the last migration and exit")
	deviceCode := flag.String("device", "demo-device-01", "code of the paired device")
	flag.Parse()

	cfg := config.Load()
	log := applog.New(applog.Config{Level: "info", Format: "console", ServiceName: "guardian-seeder"})
	defer log.Sync()

	if *rollback {
		if err := migrations.Rollback(cfg.DB.URL(), log); err != nil {
			log.Fatal("Rollback failed", zap.Error(err))
		}
		return
	}

	// Force DB logging off to avoid noise
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := migrations.Run(cfg.DB.URL(), log); err != nil {
		log.Fatal("Migration failed", zap.Error(err))
	}

	ctx := context.Background()
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)

	var caregivers []model.User
	for i := 1; i <= 2; i++ {
		email := fmt.Sprintf("caregiver%d@guardian.local", i)
		user := model.User{Name: fmt.Sprintf("Caregiver %d", i), Email: email}
		if err := db.Where(model.User{Email: email}).FirstOrCreate(&user).Error; err != nil {
			log.Fatal("Failed to seed user", zap.String("email", email), zap.Error(err))
		}
		caregivers = append(caregivers, user)
	}

	devices := repository.NewDeviceRepository(db)
	device, err := devices.FindByCode(ctx, *deviceCode)
	switch {
	case err == nil:
		log.Info("Device already seeded", zap.String("device", device.Code))
	case errors.Is(err, gorm.ErrRecordNotFound):
		elder := &model.Elder{Name: "Grandma Demo"}
		for i, cg := range caregivers {
			level := model.AccessLevelViewer
			if i == 0 {
				level = model.AccessLevelOwner
			}
			elder.Caregivers = append(elder.Caregivers, model.ElderCaregiver{UserID: cg.ID, AccessLevel: level, Position: i})
		}
		if err := repository.NewElderRepository(db).Create(ctx, elder); err != nil {
			log.Fatal("Failed to seed elder", zap.Error(err))
		}

		low, high := model.DefaultHeartRateLow, model.DefaultHeartRateHigh
		device = &model.Device{
			Code:    *deviceCode,
			ElderID: &elder.ID,
			Status:  model.DeviceStatusPaired,
			Config:  model.DeviceConfig{HRLowThreshold: &low, HRHighThreshold: &high},
		}
		if err := devices.Create(ctx, device); err != nil {
			log.Fatal("Failed to seed device", zap.Error(err))
		}
		log.Info("Seeded household", zap.String("elder_id", elder.ID.String()), zap.String("device", device.Code))
	default:
		log.Fatal("Failed to look up device", zap.Error(err))
	}

	for _, cg := range caregivers {
		token, err := jwtManager.GenerateToken(cg.ID, cg.Email, cg.Name)
		if err != nil {
			log.Fatal("Failed to sign token", zap.Error(err))
		}
		fmt.Printf("%s\t%s\n", cg.Email, token)
	}
	if device.ElderID != nil {
		fmt.Printf("elder\t%s\n", device.ElderID)
	}
}
