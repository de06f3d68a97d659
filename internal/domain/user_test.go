package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUserGatesReadingsOnConfiguredDevices(t *testing.T) {
	now := time.Now().UTC()
	cfg := NewZoneConfig(DefaultZones())

	u := NewUser("alice", cfg)
	u.HRDeviceID = "hr-1"
	u.CadenceDeviceID = "cad-1"

	mine, err := NewDevice("hr-1", "heart_rate")
	require.NoError(t, err)
	mine.Update(Reading{HeartRate: 150}, now)

	other, err := NewDevice("hr-2", "heart_rate")
	require.NoError(t, err)
	other.Update(Reading{HeartRate: 90}, now)

	u.UpdateFromDevice(mine, now)
	u.UpdateFromDevice(other, now)

	require.Equal(t, 150, u.LastHeartRate())
	require.Equal(t, 1, u.Stats().SampleCount)
}

func TestUserAcceptsAnyPowerDevice(t *testing.T) {
	now := time.Now().UTC()
	u := NewUser("alice", NewZoneConfig(DefaultZones()))

	pwr, err := NewDevice("pwr-9", "power")
	require.NoError(t, err)
	pwr.Update(Reading{Power: 250, Cadence: 92}, now)

	u.UpdateFromDevice(pwr, now)

	stats := u.Stats()
	require.Equal(t, 250, stats.MaxPower)
	require.Equal(t, 92, stats.MaxCadence)
	require.Equal(t, 92, u.EffectiveCadence(now.Add(time.Second), DefaultCadenceTimeout))
	require.Equal(t, 0, u.EffectiveCadence(now.Add(time.Minute), DefaultCadenceTimeout))
}

func TestUserBufferCapDropsOldestFirst(t *testing.T) {
	now := time.Now().UTC()
	u := NewUser("alice", NewZoneConfig(DefaultZones()))
	u.HRDeviceID = "hr-1"

	d, err := NewDevice("hr-1", "heart_rate")
	require.NoError(t, err)

	for i := 0; i < readingBufferCap+100; i++ {
		d.Update(Reading{HeartRate: 60 + i%100}, now.Add(time.Duration(i)*time.Second))
		u.UpdateFromDevice(d, now.Add(time.Duration(i)*time.Second))
	}

	samples := u.HeartRates()
	require.Len(t, samples, readingBufferCap)
	// Oldest retained sample is the 101st pushed (i=100, hr=60).
	require.Equal(t, 60, samples[0])
	// Averages still cover every sample seen.
	require.Equal(t, readingBufferCap+100, u.Stats().SampleCount)
}

func TestUserStatsAndDwell(t *testing.T) {
	now := time.Now().UTC()
	u := NewUser("alice", NewZoneConfig(DefaultZones()))
	u.HRDeviceID = "hr-1"

	d, err := NewDevice("hr-1", "heart_rate")
	require.NoError(t, err)

	for _, hr := range []int{110, 140, 170} {
		d.Update(Reading{HeartRate: hr}, now)
		u.UpdateFromDevice(d, now)
	}

	stats := u.Stats()
	require.Equal(t, 170, stats.MaxHeartRate)
	require.Equal(t, 110, stats.MinHeartRate)
	require.InDelta(t, 140.0, stats.AvgHeartRate, 1e-9)

	dwell := u.DwellCounts()
	require.Equal(t, 1, dwell["active"])
	require.Equal(t, 1, dwell["warm"])
	require.Equal(t, 1, dwell["hot"])

	// Dropout readings update display state but not statistics.
	d.Update(Reading{HeartRate: 0}, now)
	u.UpdateFromDevice(d, now)
	require.Equal(t, 0, u.LastHeartRate())
	require.Equal(t, 3, u.Stats().SampleCount)
}

func TestReadingBufferWrapAround(t *testing.T) {
	b := NewReadingBuffer(3)
	b.Push(1)
	b.Push(2)
	require.Equal(t, []int{1, 2}, b.Values())

	b.Push(3)
	b.Push(4)
	require.Equal(t, []int{2, 3, 4}, b.Values())

	last, ok := b.Last()
	require.True(t, ok)
	require.Equal(t, 4, last)
}
