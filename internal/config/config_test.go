package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, "device_telemetry", cfg.TelemetryTopic)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 5*time.Second, cfg.SnapshotInterval)
	require.Nil(t, cfg.Zones)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", ":9999")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092 ,")
	t.Setenv("SNAPSHOT_INTERVAL", "2s")
	t.Setenv("ZONES_JSON", `[{"id":"cool","name":"Cool","min":0,"color":"blue","coins":1}]`)
	t.Setenv("ZONE_OVERRIDES_JSON", `{"alice":{"cool":10}}`)

	cfg := Load()
	require.Equal(t, ":9999", cfg.HTTPAddress)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 2*time.Second, cfg.SnapshotInterval)
	require.Len(t, cfg.Zones, 1)
	require.Equal(t, "cool", cfg.Zones[0].ID)
	require.Equal(t, 10, cfg.ZoneOverrides["alice"]["cool"])

	zc := cfg.ZoneConfig()
	zone := zc.Resolve("alice", 60)
	require.NotNil(t, zone)
	require.Equal(t, "cool", zone.ID)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SNAPSHOT_INTERVAL", "soon")
	t.Setenv("ZONES_JSON", "{broken")

	cfg := Load()
	require.Equal(t, 5*time.Second, cfg.SnapshotInterval)
	require.Nil(t, cfg.Zones)
}
