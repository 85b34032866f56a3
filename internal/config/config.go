// Package config loads server configuration from .env and the environment.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server ServerConfig
	IoTDB  IoTDBConfig
	MQTT   MQTTConfig
	JWT    JWTConfig
	SMTP   SMTPConfig
	Tuning TuningConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type IoTDBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
}

type MQTTConfig struct {
	Broker   string
	Port     string
	ClientID string
	Username string
	Password string
	QoS      byte
}

type JWTConfig struct {
	Secret     string
	ExpireTime time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// TuningConfig holds every timing/sizing knob named in the external
// interfaces: poll interval and offline threshold, reconnect backoff, alert
// auto-resolve idle window, broadcast tick periods, email queue
// behavior, and WebSocket keep-alive parameters.
type TuningConfig struct {
	PollInterval         time.Duration
	OfflineThreshold     time.Duration
	ReconnectBase        time.Duration
	ReconnectCap         time.Duration
	AlertAutoResolveIdle time.Duration
	HealthTick           time.Duration
	AnalyticsTick        time.Duration
	EmailBatchSize       int
	EmailMaxRetries      int
	EmailBackoffBase     time.Duration
	EmailBackoffCap      time.Duration
	WSPingInterval       time.Duration
	WSPingTimeout        time.Duration
	SendBufferHighWater  int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		IoTDB: IoTDBConfig{
			Host:     getEnv("IOTDB_HOST", "127.0.0.1"),
			Port:     getEnv("IOTDB_PORT", "6667"),
			Username: getEnv("IOTDB_USERNAME", "root"),
			Password: getEnv("IOTDB_PASSWORD", "root"),
		},
		MQTT: MQTTConfig{
			Broker:   getEnv("MQTT_BROKER", "tcp://127.0.0.1:1883"),
			Port:     getEnv("MQTT_PORT", "1883"),
			ClientID: getEnv("MQTT_CLIENT_ID", "puretrack_server"),
			Username: getEnv("MQTT_USERNAME", ""),
			Password: getEnv("MQTT_PASSWORD", ""),
			QoS:      byte(getEnvInt("MQTT_QOS", 1)),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "puretrack-dev-secret-change-in-production"),
			ExpireTime: getEnvDuration("JWT_EXPIRE", 24*time.Hour),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "alerts@puretrack.local"),
		},
		Tuning: TuningConfig{
			PollInterval:         getEnvDuration("POLL_INTERVAL", 30*time.Second),
			OfflineThreshold:     getEnvDuration("OFFLINE_THRESHOLD", 90*time.Second),
			ReconnectBase:        getEnvDuration("RECONNECT_BASE", 1*time.Second),
			ReconnectCap:         getEnvDuration("RECONNECT_CAP", 60*time.Second),
			AlertAutoResolveIdle: getEnvDuration("ALERT_AUTO_RESOLVE_IDLE", 10*time.Minute),
			HealthTick:           getEnvDuration("HEALTH_TICK", 10*time.Second),
			AnalyticsTick:        getEnvDuration("ANALYTICS_TICK", 45*time.Second),
			EmailBatchSize:       getEnvInt("EMAIL_BATCH_SIZE", 10),
			EmailMaxRetries:      getEnvInt("EMAIL_MAX_RETRIES", 3),
			EmailBackoffBase:     getEnvDuration("EMAIL_BACKOFF_BASE", 1*time.Second),
			EmailBackoffCap:      getEnvDuration("EMAIL_BACKOFF_CAP", 30*time.Second),
			WSPingInterval:       getEnvDuration("WS_PING_INTERVAL", 25*time.Second),
			WSPingTimeout:        getEnvDuration("WS_PING_TIMEOUT", 60*time.Second),
			SendBufferHighWater:  getEnvInt("SEND_BUFFER_HIGH_WATER", 256*1024),
		},
	}
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
