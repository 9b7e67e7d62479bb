package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig
	Log       LogConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	MQTT      MQTTConfig
	Firebase  FirebaseConfig
	Telemetry TelemetryConfig
	Fanout    FanoutConfig
	Watchdog  WatchdogConfig
}

type AppConfig struct {
	Env  string
	Port string
}

type LogConfig struct {
	Level  string
	Format string // json or console
	File   string // optional rotated log file
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns the PostgreSQL connection string
func (d DBConfig) DSN() string {
	return "host=" + d.Host +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" port=" + d.Port +
		" sslmode=" + d.SSLMode +
		" TimeZone=UTC"
}

// URL returns the PostgreSQL connection URL (for golang-migrate)
func (d DBConfig) URL() string {
	return "postgres://" + d.User + ":" + d.Password +
		"@" + d.Host + ":" + d.Port +
		"/" + d.Name + "?sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

// Addr returns the Redis address
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

type CORSConfig struct {
	Origins []string
	MaxAge  time.Duration // how long browsers may cache a preflight
}

type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	// TopicPrefix is the first topic segment, "device" gives device/{id}/fall
	TopicPrefix string
}

type FirebaseConfig struct {
	CredentialsFile string
}

// TelemetryConfig tunes the router's worker pool and retry policy
type TelemetryConfig struct {
	Workers         int
	QueueSize       int
	MaxRetries      int
	RetryBackoff    time.Duration
	DeadLetter      string  // Redis stream for undeliverable messages
	LiveUpdateRate  float64 // heart_rate_update messages per second per device, <= 0 (default) disables throttling
	LiveUpdateBurst int
}

type FanoutConfig struct {
	PushTimeout time.Duration
}

// WatchdogConfig is read by cmd/monitor
type WatchdogConfig struct {
	ServerURL      string
	Token          string
	ElderID        string
	CheckInterval  time.Duration
	StaleAfter     time.Duration
	ReconnectDelay time.Duration
	PingWait       time.Duration
}

// Load reads configuration from .env file and environment variables
func Load() *Config {
	// Load .env file (ignore error if not exists - e.g. in Docker)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment variables")
	}

	return &Config{
		App: AppConfig{
			Env:  getEnv("APP_ENV", "development"),
			Port: getEnv("APP_PORT", "8080"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "guardian"),
			Password: getEnv("DB_PASSWORD", "guardian"),
			Name:     getEnv("DB_NAME", "guardian"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "default-secret"),
			Expiry: getDuration("JWT_EXPIRY", 24*time.Hour),
		},
		CORS: CORSConfig{
			Origins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
			MaxAge:  getDuration("CORS_MAX_AGE", 12*time.Hour),
		},
		MQTT: MQTTConfig{
			Broker:      getEnv("MQTT_BROKER", "tcp://localhost:1883"),
			ClientID:    getEnv("MQTT_CLIENT_ID", "guardian-server"),
			Username:    getEnv("MQTT_USERNAME", ""),
			Password:    getEnv("MQTT_PASSWORD", ""),
			QoS:         byte(getInt("MQTT_QOS", 1)),
			TopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "device"),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Telemetry: TelemetryConfig{
			Workers:         getInt("TELEMETRY_WORKERS", 16),
			QueueSize:       getInt("TELEMETRY_QUEUE_SIZE", 256),
			MaxRetries:      getInt("TELEMETRY_MAX_RETRIES", 3),
			RetryBackoff:    getDuration("TELEMETRY_RETRY_BACKOFF", 200*time.Millisecond),
			DeadLetter:      getEnv("TELEMETRY_DEAD_LETTER_STREAM", "guardian:telemetry:deadletter"),
			LiveUpdateRate:  getFloat("TELEMETRY_LIVE_UPDATE_RATE", 0),
			LiveUpdateBurst: getInt("TELEMETRY_LIVE_UPDATE_BURST", 10),
		},
		Fanout: FanoutConfig{
			PushTimeout: getDuration("FANOUT_PUSH_TIMEOUT", 10*time.Second),
		},
		Watchdog: WatchdogConfig{
			ServerURL:      getEnv("WATCHDOG_SERVER_URL", "ws://localhost:8080/ws"),
			Token:          getEnv("WATCHDOG_TOKEN", ""),
			ElderID:        getEnv("WATCHDOG_ELDER_ID", ""),
			CheckInterval:  getDuration("WATCHDOG_CHECK_INTERVAL", 10*time.Second),
			StaleAfter:     getDuration("WATCHDOG_STALE_AFTER", 90*time.Second),
			ReconnectDelay: getDuration("WATCHDOG_RECONNECT_DELAY", 3*time.Second),
			PingWait:       getDuration("WATCHDOG_PING_WAIT", 60*time.Second),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}
