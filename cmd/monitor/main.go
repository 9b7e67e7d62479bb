package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/guardian/internal/config"
	"github.com/quocanhngo/guardian/internal/watchdog"
	applog "github.com/quocanhngo/guardian/pkg/logger"
	"go.uber.org/zap"
)

// Terminal watchdog for one elder. SIGUSR1 simulates the app going to the
// background, SIGUSR2 bringing it back.
func main() {
	cfg := config.Load()
	log := applog.New(applog.Config{
		Level:       cfg.Log.Level,
		Format:      "console",
		ServiceName: "guardian-monitor",
	})
	defer log.Sync()

	elderID, err := uuid.Parse(cfg.Watchdog.ElderID)
	if err != nil {
		log.Fatal("WATCHDOG_ELDER_ID must be a UUID", zap.Error(err))
	}

	monitor := watchdog.NewMonitor(cfg.Watchdog.StaleAfter, func(s watchdog.Snapshot) {
		hr := "--"
		if s.HeartRate != nil {
			hr = fmt.Sprintf("%.0f bpm", *s.HeartRate)
		}
		fmt.Printf("%s  %-24s  heart rate %s\n", time.Now().Format(time.TimeOnly), s.State, hr)
	})

	client := watchdog.NewClient(watchdog.Config{
		URL:            cfg.Watchdog.ServerURL,
		Token:          cfg.Watchdog.Token,
		ElderID:        elderID,
		CheckInterval:  cfg.Watchdog.CheckInterval,
		ReconnectDelay: cfg.Watchdog.ReconnectDelay,
		PingWait:       cfg.Watchdog.PingWait,
	}, monitor, log)
	client.Start(context.Background())
	log.Info("Watching elder", zap.String("elder_id", elderID.String()), zap.String("server", cfg.Watchdog.ServerURL))

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	for sig := range sigs {
		switch sig {
		case syscall.SIGUSR1:
			client.Background()
		case syscall.SIGUSR2:
			client.Foreground()
		default:
			client.Close()
			return
		}
	}
}
