package domain

import "time"

// readingBufferCap bounds per-metric sample retention for long sessions.
const readingBufferCap = 1000

// UserStats is the derived cumulative view over a user's readings.
// Averages cover every sample seen, including ones evicted from the
// bounded buffers.
type UserStats struct {
	SampleCount  int     `json:"sample_count"`
	AvgHeartRate float64 `json:"avg_heart_rate"`
	MaxHeartRate int     `json:"max_heart_rate"`
	MinHeartRate int     `json:"min_heart_rate"`
	AvgCadence   float64 `json:"avg_cadence"`
	MaxCadence   int     `json:"max_cadence"`
	MaxPower     int     `json:"max_power"`
}

// User accumulates per-participant readings and display state. Heart-rate
// and cadence updates are gated on the configured source device IDs;
// power devices are accepted unconditionally since a power meter can be
// the authoritative source for both power and cadence.
type User struct {
	ID              string
	Name            string
	HRDeviceID      string
	CadenceDeviceID string

	zones *ZoneConfig

	heartRates *ReadingBuffer
	cadences   *ReadingBuffer
	powers     *ReadingBuffer

	hrSum, hrCount           int
	maxHR, minHR             int
	cadenceSum, cadenceCount int
	maxCadence               int
	maxPower                 int

	lastHeartRate int
	lastCadence   int
	lastCadenceAt time.Time

	dwell    map[string]int
	progress ZoneProgressSnapshot
}

// NewUser constructs a User resolving zones against the given config.
func NewUser(id string, zones *ZoneConfig) *User {
	return &User{
		ID:         id,
		zones:      zones,
		heartRates: NewReadingBuffer(readingBufferCap),
		cadences:   NewReadingBuffer(readingBufferCap),
		powers:     NewReadingBuffer(readingBufferCap),
		dwell:      make(map[string]int),
	}
}

// UpdateFromDevice folds one device record into the aggregate, dispatching
// on the device kind.
func (u *User) UpdateFromDevice(d *Device, at time.Time) {
	switch d.Kind {
	case DeviceHeartRate:
		if d.ID == u.HRDeviceID {
			u.recordHeartRate(d.HeartRate, at)
		}
	case DeviceCadence:
		if d.ID == u.CadenceDeviceID {
			u.recordCadence(d.Cadence, at)
		}
	case DevicePower:
		u.recordPower(d.Power)
		if d.Cadence > 0 {
			u.recordCadence(d.Cadence, at)
		}
	}
}

func (u *User) recordHeartRate(hr int, at time.Time) {
	u.lastHeartRate = hr
	u.progress = u.zones.Progress(u.ID, hr)
	if hr <= 0 {
		return
	}

	u.heartRates.Push(hr)
	u.hrSum += hr
	u.hrCount++
	if hr > u.maxHR {
		u.maxHR = hr
	}
	if u.minHR == 0 || hr < u.minHR {
		u.minHR = hr
	}
	if z := u.zones.Resolve(u.ID, hr); z != nil {
		u.dwell[z.ID]++
	}
}

func (u *User) recordCadence(cadence int, at time.Time) {
	if cadence > 0 {
		u.lastCadence = cadence
		u.lastCadenceAt = at
		u.cadences.Push(cadence)
		u.cadenceSum += cadence
		u.cadenceCount++
		if cadence > u.maxCadence {
			u.maxCadence = cadence
		}
	}
}

func (u *User) recordPower(power int) {
	if power <= 0 {
		return
	}
	u.powers.Push(power)
	if power > u.maxPower {
		u.maxPower = power
	}
}

// LastHeartRate returns the most recent reading, zero meaning dropout.
func (u *User) LastHeartRate() int { return u.lastHeartRate }

// EffectiveCadence fades to zero once the cadence source has been silent
// past the timeout.
func (u *User) EffectiveCadence(now time.Time, timeout time.Duration) int {
	return EffectiveCadence(u.lastCadence, u.lastCadenceAt, now, timeout)
}

// Progress returns the zone progress snapshot from the latest reading.
func (u *User) Progress() ZoneProgressSnapshot { return u.progress }

// Stats derives the cumulative statistics view.
func (u *User) Stats() UserStats {
	stats := UserStats{
		SampleCount:  u.hrCount,
		MaxHeartRate: u.maxHR,
		MinHeartRate: u.minHR,
		MaxCadence:   u.maxCadence,
		MaxPower:     u.maxPower,
	}
	if u.hrCount > 0 {
		stats.AvgHeartRate = float64(u.hrSum) / float64(u.hrCount)
	}
	if u.cadenceCount > 0 {
		stats.AvgCadence = float64(u.cadenceSum) / float64(u.cadenceCount)
	}
	return stats
}

// DwellCounts returns per-zone sample counts keyed by zone ID.
func (u *User) DwellCounts() map[string]int {
	out := make(map[string]int, len(u.dwell))
	for id, n := range u.dwell {
		out[id] = n
	}
	return out
}

// HeartRates exposes the retained heart-rate samples, oldest first.
func (u *User) HeartRates() []int { return u.heartRates.Values() }

// UserSnapshot is an immutable copy of a user's live display state.
// Aggregates are only mutated under the ingest lock; readers get
// snapshots so they never touch the live maps.
type UserSnapshot struct {
	ID              string
	HRDeviceID      string
	CadenceDeviceID string
	HeartRate       int
	Cadence         int
	Progress        ZoneProgressSnapshot
	Stats           UserStats
	Dwell           map[string]int
}

// Snapshot copies the user's current state. The caller must hold
// whatever lock guards mutation.
func (u *User) Snapshot(now time.Time, cadenceTimeout time.Duration) UserSnapshot {
	return UserSnapshot{
		ID:              u.ID,
		HRDeviceID:      u.HRDeviceID,
		CadenceDeviceID: u.CadenceDeviceID,
		HeartRate:       u.lastHeartRate,
		Cadence:         u.EffectiveCadence(now, cadenceTimeout),
		Progress:        u.progress,
		Stats:           u.Stats(),
		Dwell:           u.DwellCounts(),
	}
}
