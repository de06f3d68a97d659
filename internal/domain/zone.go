// Package domain defines the core fitness tracking model: heart-rate
// zones, device readings and per-participant aggregates.
package domain

import "sort"

const (
	// LowestZoneBaseline is the noise floor applied to the lowest zone's
	// threshold. Readings under it never resolve to a zone, which keeps
	// sensor warm-up jitter from registering as dwell time.
	LowestZoneBaseline = 40

	// ProgressMargin is the synthetic window width used when the current
	// zone has no natural lower bound.
	ProgressMargin = 40
)

// Zone is a configured heart-rate zone. Zones are defined globally and
// evaluated against override-adjusted thresholds per user.
type Zone struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Min   int    `json:"min"`
	Color string `json:"color"`
	Coins int    `json:"coins"`
}

// ResolvedZone is the outcome of a zone lookup. EffectiveMin is the
// threshold that was actually applied (override- and baseline-adjusted);
// Min always carries the configured value.
type ResolvedZone struct {
	Zone
	EffectiveMin int
}

// ZoneProgressSnapshot describes where a reading sits relative to the
// zone ladder, for progress-bar style display.
type ZoneProgressSnapshot struct {
	Zone      *ResolvedZone `json:"zone,omitempty"`
	Next      *Zone         `json:"next,omitempty"`
	RangeMin  int           `json:"range_min"`
	RangeMax  int           `json:"range_max"`
	Progress  float64       `json:"progress"`
	IsMaxZone bool          `json:"is_max_zone"`
}

// ZoneConfig holds the global zone ladder plus per-user threshold
// overrides. Overrides adjust Min only; color and coin value always come
// from the global definition.
type ZoneConfig struct {
	zones     []Zone
	overrides map[string]map[string]int
}

// DefaultZones returns the standard five-zone ladder.
func DefaultZones() []Zone {
	return []Zone{
		{ID: "cool", Name: "Cool", Min: 0, Color: "blue", Coins: 1},
		{ID: "active", Name: "Active", Min: 100, Color: "green", Coins: 2},
		{ID: "warm", Name: "Warm", Min: 130, Color: "yellow", Coins: 5},
		{ID: "hot", Name: "Hot", Min: 160, Color: "orange", Coins: 10},
		{ID: "fire", Name: "Fire", Min: 175, Color: "red", Coins: 20},
	}
}

// NewZoneConfig builds a config from the provided ladder, sorted
// ascending by Min. An empty ladder falls back to DefaultZones.
func NewZoneConfig(zones []Zone) *ZoneConfig {
	if len(zones) == 0 {
		zones = DefaultZones()
	}
	sorted := make([]Zone, len(zones))
	copy(sorted, zones)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })
	return &ZoneConfig{
		zones:     sorted,
		overrides: make(map[string]map[string]int),
	}
}

// Zones returns a copy of the configured ladder, ascending by Min.
func (c *ZoneConfig) Zones() []Zone {
	out := make([]Zone, len(c.zones))
	copy(out, c.zones)
	return out
}

// SetOverride replaces the threshold of one zone for one user.
func (c *ZoneConfig) SetOverride(userID, zoneID string, min int) {
	if c.overrides[userID] == nil {
		c.overrides[userID] = make(map[string]int)
	}
	c.overrides[userID][zoneID] = min
}

// SetOverrides installs a full userID -> zoneID -> threshold map, as
// supplied by configuration.
func (c *ZoneConfig) SetOverrides(overrides map[string]map[string]int) {
	for userID, zones := range overrides {
		for zoneID, min := range zones {
			c.SetOverride(userID, zoneID, min)
		}
	}
}

// effectiveMin returns the threshold applied for the zone at idx. An
// explicit override wins; otherwise the lowest zone is clamped to the
// baseline noise floor.
func (c *ZoneConfig) effectiveMin(userID string, idx int) int {
	z := c.zones[idx]
	if user, ok := c.overrides[userID]; ok {
		if min, ok := user[z.ID]; ok {
			return min
		}
	}
	if idx == 0 && z.Min < LowestZoneBaseline {
		return LowestZoneBaseline
	}
	return z.Min
}

// Resolve maps a heart-rate reading to the zone with the greatest
// effective threshold the reading meets or exceeds. It returns nil for
// non-positive readings, an empty ladder, or readings below the lowest
// effective floor.
func (c *ZoneConfig) Resolve(userID string, heartRate int) *ResolvedZone {
	if heartRate <= 0 || len(c.zones) == 0 {
		return nil
	}
	for i := len(c.zones) - 1; i >= 0; i-- {
		min := c.effectiveMin(userID, i)
		if heartRate >= min {
			return &ResolvedZone{Zone: c.zones[i], EffectiveMin: min}
		}
	}
	return nil
}

// Progress derives the current zone, the next zone up, and a progress
// window for the reading. The lowest zone (and the sub-floor region) gets
// a synthesized [next-margin, next] window because it has no natural
// lower bound; the topmost zone has no window at all.
func (c *ZoneConfig) Progress(userID string, heartRate int) ZoneProgressSnapshot {
	if len(c.zones) == 0 {
		return ZoneProgressSnapshot{}
	}

	current := c.Resolve(userID, heartRate)

	// Index of the current zone within the ladder; -1 below the floor.
	idx := -1
	if current != nil {
		for i, z := range c.zones {
			if z.ID == current.ID {
				idx = i
				break
			}
		}
	}

	if idx == len(c.zones)-1 {
		return ZoneProgressSnapshot{Zone: current, IsMaxZone: true}
	}

	nextIdx := idx + 1
	next := c.zones[nextIdx]
	nextMin := c.effectiveMin(userID, nextIdx)

	var rangeMin, rangeMax int
	if idx <= 0 {
		rangeMin, rangeMax = nextMin-ProgressMargin, nextMin
	} else {
		rangeMin, rangeMax = current.EffectiveMin, nextMin
	}

	progress := 0.0
	if rangeMax > rangeMin {
		progress = float64(heartRate-rangeMin) / float64(rangeMax-rangeMin)
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	return ZoneProgressSnapshot{
		Zone:     current,
		Next:     &next,
		RangeMin: rangeMin,
		RangeMax: rangeMax,
		Progress: progress,
	}
}
