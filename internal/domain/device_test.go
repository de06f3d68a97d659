package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewDeviceSelectsKindByProfile(t *testing.T) {
	cases := map[string]DeviceKind{
		"heart_rate": DeviceHeartRate,
		"HR":         DeviceHeartRate,
		"speed":      DeviceSpeed,
		"cadence":    DeviceCadence,
		"CAD":        DeviceCadence,
		"power":      DevicePower,
	}
	for profile, kind := range cases {
		d, err := NewDevice("dev-1", profile)
		require.NoError(t, err, profile)
		require.Equal(t, kind, d.Kind, profile)
	}

	_, err := NewDevice("dev-1", "thermometer")
	require.Error(t, err)
}

func TestDeviceActivityTimeout(t *testing.T) {
	now := time.Date(2026, time.March, 1, 18, 0, 0, 0, time.UTC)

	d, err := NewDevice("hr-1", "heart_rate")
	require.NoError(t, err)
	require.False(t, d.Active(now, DefaultRemovalTimeout))

	d.Update(Reading{HeartRate: 140}, now)
	require.True(t, d.Active(now.Add(time.Minute), DefaultRemovalTimeout))
	require.False(t, d.Active(now.Add(DefaultRemovalTimeout), DefaultRemovalTimeout))
	require.Equal(t, 140, d.HeartRate)
}

func TestPowerDeviceCarriesCadence(t *testing.T) {
	now := time.Now().UTC()

	d, err := NewDevice("pwr-1", "power")
	require.NoError(t, err)

	d.Update(Reading{Power: 210, Cadence: 85}, now)
	require.Equal(t, 210, d.Power)
	require.Equal(t, 85, d.Cadence)

	// Cadence sticks when the next frame omits it.
	d.Update(Reading{Power: 220}, now.Add(time.Second))
	require.Equal(t, 85, d.Cadence)
}

func TestEffectiveCadenceFadesToZero(t *testing.T) {
	at := time.Date(2026, time.March, 1, 18, 0, 0, 0, time.UTC)

	require.Equal(t, 90, EffectiveCadence(90, at, at.Add(5*time.Second), DefaultCadenceTimeout))
	require.Equal(t, 0, EffectiveCadence(90, at, at.Add(DefaultCadenceTimeout), DefaultCadenceTimeout))
	require.Equal(t, 0, EffectiveCadence(90, time.Time{}, at, DefaultCadenceTimeout))
}
