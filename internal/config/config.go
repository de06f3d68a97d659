// Package config centralises configuration parsing for the session
// service.
package config

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"example.com/fitsession/internal/domain"
)

// Config captures runtime configuration for both binaries.
type Config struct {
	HTTPAddress    string
	MetricsAddress string

	PostgresURL   string
	RedisAddr     string
	RedisPassword string

	KafkaBrokers   []string
	TelemetryTopic string
	ConsumerGroup  string

	JWTSecret string
	JWTIssuer string

	CoinUnit         time.Duration
	SnapshotInterval time.Duration
	AutosaveInterval time.Duration
	RemovalTimeout   time.Duration
	CadenceTimeout   time.Duration

	Zones         []domain.Zone
	ZoneOverrides map[string]map[string]int
}

// Load reads environment variables into Config, applying sensible
// defaults for local dev.
func Load() Config {
	cfg := Config{
		HTTPAddress:    getEnv("HTTP_ADDRESS", ":8080"),
		MetricsAddress: getEnv("METRICS_ADDRESS", ":9091"),

		PostgresURL:   getEnv("POSTGRES_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		TelemetryTopic: getEnv("TELEMETRY_TOPIC", "device_telemetry"),
		ConsumerGroup:  getEnv("CONSUMER_GROUP", "fitsession"),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTIssuer: getEnv("JWT_ISSUER", "fitsession"),

		CoinUnit:         getDurationEnv("COIN_UNIT", 5*time.Second),
		SnapshotInterval: getDurationEnv("SNAPSHOT_INTERVAL", 5*time.Second),
		AutosaveInterval: getDurationEnv("AUTOSAVE_INTERVAL", 15*time.Second),
		RemovalTimeout:   getDurationEnv("REMOVAL_TIMEOUT", 3*time.Minute),
		CadenceTimeout:   getDurationEnv("CADENCE_TIMEOUT", 12*time.Second),
	}

	cfg.KafkaBrokers = splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092"))
	cfg.Zones = loadZones(getEnv("ZONES_JSON", ""))
	cfg.ZoneOverrides = loadOverrides(getEnv("ZONE_OVERRIDES_JSON", ""))
	return cfg
}

// ZoneConfig builds the zone ladder from the loaded values.
func (c Config) ZoneConfig() *domain.ZoneConfig {
	zc := domain.NewZoneConfig(c.Zones)
	zc.SetOverrides(c.ZoneOverrides)
	return zc
}

// loadZones parses a JSON zone ladder, falling back to the built-in
// defaults on empty or malformed input.
func loadZones(raw string) []domain.Zone {
	if raw == "" {
		return nil
	}
	var zones []domain.Zone
	if err := json.Unmarshal([]byte(raw), &zones); err != nil || len(zones) == 0 {
		return nil
	}
	return zones
}

func loadOverrides(raw string) map[string]map[string]int {
	if raw == "" {
		return nil
	}
	var overrides map[string]map[string]int
	if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
		return nil
	}
	return overrides
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

