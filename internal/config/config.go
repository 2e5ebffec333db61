package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN builds the lib/pq connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis connection settings (telemetry store)
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT broker settings (optional radar ingress)
type MQTTConfig struct {
	Enabled  bool
	Broker   string
	ClientID string
	Username string
	Password string
	// Topic pattern for radar samples, e.g. "radar/+/data"
	RadarTopic string
}

// AlerterConfig outbound alert gateway settings
type AlerterConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
}

// Config sensor service configuration
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig
	Alerter  AlerterConfig

	HTTP struct {
		ListenAddr string
	}

	// API key expected on inbound device-cloud webhooks
	WebhookAPIKey string

	Sensor struct {
		// Number of most recent radar samples used for the movement average
		RadarWindowSize int

		// A non-completed session older than this is treated as stale and a
		// fresh alert starts a new session
		SessionResetThreshold time.Duration

		// Published-alert count at or above which a session becomes resettable
		AlertsToAcceptReset int
	}

	Vitals struct {
		// Heartbeat sweep interval
		HeartbeatInterval time.Duration
		// Per-channel silence thresholds before a location counts as disconnected
		DoorThreshold  time.Duration
		RadarThreshold time.Duration
		// Cool-down between a disconnection alert and its reminder
		SubsequentAlertThreshold time.Duration
		// Cool-down between low battery alerts for one location
		LowBatteryAlertTimeout time.Duration

		// Internal problems sweep interval
		InternalProblemsInterval time.Duration
		// More stillness sessions than this within AlertCheckWindow flags a
		// malfunctioning sensor
		MaxStillnessAlerts int
		AlertCheckWindow   time.Duration
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "sensors")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 25)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Enabled = getEnvBool("MQTT_ENABLED", false)
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "brave-sensor-server")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.RadarTopic = getEnv("MQTT_RADAR_TOPIC", "radar/+/data")

	cfg.Alerter.BaseURL = getEnv("ALERTER_BASE_URL", "http://localhost:8081")
	cfg.Alerter.APIKey = getEnv("ALERTER_API_KEY", "")
	cfg.Alerter.Timeout = getEnvDuration("ALERTER_TIMEOUT_SECONDS", 10)
	cfg.Alerter.RetryCount = getEnvInt("ALERTER_RETRY_COUNT", 3)

	cfg.HTTP.ListenAddr = getEnv("HTTP_LISTEN_ADDR", ":8080")

	cfg.WebhookAPIKey = getEnv("WEBHOOK_API_KEY", "")
	if cfg.WebhookAPIKey == "" {
		return nil, fmt.Errorf("WEBHOOK_API_KEY must be set")
	}

	cfg.Sensor.RadarWindowSize = getEnvInt("RADAR_WINDOW_SIZE", 15)
	cfg.Sensor.SessionResetThreshold = getEnvDuration("SESSION_RESET_THRESHOLD_SECONDS", 2*60*60)
	cfg.Sensor.AlertsToAcceptReset = getEnvInt("ALERTS_TO_ACCEPT_RESET_REQUEST", 3)

	cfg.Vitals.HeartbeatInterval = getEnvDuration("HEARTBEAT_INTERVAL_SECONDS", 60)
	cfg.Vitals.DoorThreshold = getEnvDuration("DOOR_THRESHOLD_SECONDS", 300)
	cfg.Vitals.RadarThreshold = getEnvDuration("RADAR_THRESHOLD_SECONDS", 60)
	cfg.Vitals.SubsequentAlertThreshold = getEnvDuration("SUBSEQUENT_VITALS_ALERT_THRESHOLD_SECONDS", 120*60)
	cfg.Vitals.LowBatteryAlertTimeout = getEnvDuration("LOW_BATTERY_ALERT_TIMEOUT_SECONDS", 24*60*60)
	cfg.Vitals.InternalProblemsInterval = getEnvDuration("INTERNAL_PROBLEMS_INTERVAL_SECONDS", 10*60)
	cfg.Vitals.MaxStillnessAlerts = getEnvInt("MAX_STILLNESS_ALERTS", 5)
	cfg.Vitals.AlertCheckWindow = getEnvDuration("INTERVAL_TO_CHECK_ALERTS_SECONDS", 20*60)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration reads a seconds value and returns it as a time.Duration
func getEnvDuration(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}
