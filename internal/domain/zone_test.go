package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveReturnsHighestZoneMet(t *testing.T) {
	cfg := NewZoneConfig(DefaultZones())

	z := cfg.Resolve("alice", 150)
	require.NotNil(t, z)
	require.Equal(t, "warm", z.ID)

	z = cfg.Resolve("alice", 175)
	require.NotNil(t, z)
	require.Equal(t, "fire", z.ID)

	z = cfg.Resolve("alice", 99)
	require.NotNil(t, z)
	require.Equal(t, "cool", z.ID)
}

func TestResolveNilForInvalidInput(t *testing.T) {
	cfg := NewZoneConfig(DefaultZones())

	require.Nil(t, cfg.Resolve("alice", 0))
	require.Nil(t, cfg.Resolve("alice", -10))
	// Below the baseline noise floor.
	require.Nil(t, cfg.Resolve("alice", LowestZoneBaseline-1))
}

func TestResolveBelowLowestConfiguredFloor(t *testing.T) {
	cfg := NewZoneConfig([]Zone{
		{ID: "active", Name: "Active", Min: 100, Color: "green", Coins: 2},
		{ID: "warm", Name: "Warm", Min: 130, Color: "yellow", Coins: 5},
	})

	require.Nil(t, cfg.Resolve("bob", 80))

	z := cfg.Resolve("bob", 100)
	require.NotNil(t, z)
	require.Equal(t, "active", z.ID)
}

func TestResolveMonotonicity(t *testing.T) {
	cfg := NewZoneConfig(DefaultZones())

	// Brute-force replay: for every reading, Resolve must return the zone
	// with the greatest effective threshold <= reading, or nil below the
	// floor.
	for hr := 1; hr <= 220; hr++ {
		var want string
		switch {
		case hr >= 175:
			want = "fire"
		case hr >= 160:
			want = "hot"
		case hr >= 130:
			want = "warm"
		case hr >= 100:
			want = "active"
		case hr >= LowestZoneBaseline:
			want = "cool"
		}

		got := cfg.Resolve("u", hr)
		if want == "" {
			require.Nil(t, got, "hr=%d", hr)
			continue
		}
		require.NotNil(t, got, "hr=%d", hr)
		require.Equal(t, want, got.ID, "hr=%d", hr)
	}
}

func TestOverridesAdjustThresholdOnly(t *testing.T) {
	cfg := NewZoneConfig(DefaultZones())
	cfg.SetOverride("alice", "warm", 120)

	z := cfg.Resolve("alice", 125)
	require.NotNil(t, z)
	require.Equal(t, "warm", z.ID)
	require.Equal(t, 120, z.EffectiveMin)
	// Configured threshold stays visible alongside the effective one.
	require.Equal(t, 130, z.Min)
	require.Equal(t, "yellow", z.Color)
	require.Equal(t, 5, z.Coins)

	// Other users keep the global ladder.
	other := cfg.Resolve("bob", 125)
	require.NotNil(t, other)
	require.Equal(t, "active", other.ID)
}

func TestProgressLowestZoneSynthesizesWindow(t *testing.T) {
	cfg := NewZoneConfig(DefaultZones())

	snap := cfg.Progress("alice", 90)
	require.NotNil(t, snap.Zone)
	require.Equal(t, "cool", snap.Zone.ID)
	require.NotNil(t, snap.Next)
	require.Equal(t, "active", snap.Next.ID)
	require.Equal(t, 100-ProgressMargin, snap.RangeMin)
	require.Equal(t, 100, snap.RangeMax)
	require.InDelta(t, float64(90-60)/40.0, snap.Progress, 1e-9)
	require.False(t, snap.IsMaxZone)
}

func TestProgressMiddleZoneUsesOwnFloor(t *testing.T) {
	cfg := NewZoneConfig(DefaultZones())

	snap := cfg.Progress("alice", 145)
	require.Equal(t, "warm", snap.Zone.ID)
	require.Equal(t, "hot", snap.Next.ID)
	require.Equal(t, 130, snap.RangeMin)
	require.Equal(t, 160, snap.RangeMax)
	require.InDelta(t, 0.5, snap.Progress, 1e-9)
}

func TestProgressTopZoneHasNoWindow(t *testing.T) {
	cfg := NewZoneConfig(DefaultZones())

	snap := cfg.Progress("alice", 190)
	require.True(t, snap.IsMaxZone)
	require.Nil(t, snap.Next)
	require.Zero(t, snap.Progress)
}

func TestProgressSingleZoneConfig(t *testing.T) {
	cfg := NewZoneConfig([]Zone{{ID: "only", Name: "Only", Min: 0, Color: "blue", Coins: 1}})

	// The only zone is the max zone once reached.
	snap := cfg.Progress("alice", 120)
	require.True(t, snap.IsMaxZone)
	require.Equal(t, "only", snap.Zone.ID)

	// Below the baseline-clamped floor it is the next target.
	snap = cfg.Progress("alice", 20)
	require.Nil(t, snap.Zone)
	require.NotNil(t, snap.Next)
	require.Equal(t, "only", snap.Next.ID)
	require.Equal(t, LowestZoneBaseline, snap.RangeMax)
}

func TestProgressClampedToUnitRange(t *testing.T) {
	cfg := NewZoneConfig(DefaultZones())

	snap := cfg.Progress("alice", 30)
	require.Nil(t, snap.Zone)
	require.GreaterOrEqual(t, snap.Progress, 0.0)
	require.LessOrEqual(t, snap.Progress, 1.0)
}
