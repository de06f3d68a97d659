package domain

import (
	"fmt"
	"strings"
	"time"
)

// DeviceKind discriminates the supported broadcast profiles.
type DeviceKind int

const (
	DeviceUnknown DeviceKind = iota
	DeviceHeartRate
	DeviceSpeed
	DeviceCadence
	DevicePower
)

// String returns the canonical profile name for the kind.
func (k DeviceKind) String() string {
	switch k {
	case DeviceHeartRate:
		return "heart_rate"
	case DeviceSpeed:
		return "speed"
	case DeviceCadence:
		return "cadence"
	case DevicePower:
		return "power"
	default:
		return "unknown"
	}
}

// KindFromProfile maps a broadcast profile string to a DeviceKind. Short
// ANT+ style aliases are accepted alongside the canonical names.
func KindFromProfile(profile string) DeviceKind {
	switch strings.ToLower(strings.TrimSpace(profile)) {
	case "heart_rate", "heartrate", "hr":
		return DeviceHeartRate
	case "speed", "spd":
		return DeviceSpeed
	case "cadence", "cad":
		return DeviceCadence
	case "power", "pwr":
		return DevicePower
	default:
		return DeviceUnknown
	}
}

// DefaultRemovalTimeout is how long a device may stay silent before it is
// considered gone from the session.
const DefaultRemovalTimeout = 3 * time.Minute

// DefaultCadenceTimeout is how long a cadence value stays trustworthy
// without a fresh sample.
const DefaultCadenceTimeout = 12 * time.Second

// Reading carries one decoded broadcast frame's metric values. Fields not
// applicable to the device kind are left zero.
type Reading struct {
	HeartRate int
	Cadence   int
	Power     int
	Speed     float64
}

// Device is a typed record for one broadcasting sensor.
type Device struct {
	ID   string
	Kind DeviceKind

	HeartRate int
	Cadence   int
	Power     int
	Speed     float64

	FirstSeen  time.Time
	LastUpdate time.Time
}

// NewDevice builds a Device for the given broadcast profile.
func NewDevice(id, profile string) (*Device, error) {
	kind := KindFromProfile(profile)
	if kind == DeviceUnknown {
		return nil, fmt.Errorf("unknown device profile %q", profile)
	}
	return &Device{ID: id, Kind: kind}, nil
}

// Update folds a reading into the device record.
func (d *Device) Update(r Reading, at time.Time) {
	if d.FirstSeen.IsZero() {
		d.FirstSeen = at
	}
	d.LastUpdate = at

	switch d.Kind {
	case DeviceHeartRate:
		d.HeartRate = r.HeartRate
	case DeviceSpeed:
		d.Speed = r.Speed
	case DeviceCadence:
		d.Cadence = r.Cadence
	case DevicePower:
		// Power meters double as cadence sources.
		d.Power = r.Power
		if r.Cadence > 0 {
			d.Cadence = r.Cadence
		}
	}
}

// Active reports whether the device has broadcast within the timeout.
func (d *Device) Active(now time.Time, timeout time.Duration) bool {
	return activeWithin(d.LastUpdate, now, timeout)
}

func activeWithin(last, now time.Time, timeout time.Duration) bool {
	if last.IsZero() {
		return false
	}
	return now.Sub(last) < timeout
}

// DeviceSnapshot is an immutable copy of a device record. Records are
// only mutated under the ingest lock; readers get snapshots.
type DeviceSnapshot struct {
	ID   string
	Kind DeviceKind

	HeartRate int
	Cadence   int
	Power     int
	Speed     float64

	FirstSeen  time.Time
	LastUpdate time.Time
}

// Snapshot copies the device's current state. The caller must hold
// whatever lock guards mutation.
func (d *Device) Snapshot() DeviceSnapshot {
	return DeviceSnapshot{
		ID:         d.ID,
		Kind:       d.Kind,
		HeartRate:  d.HeartRate,
		Cadence:    d.Cadence,
		Power:      d.Power,
		Speed:      d.Speed,
		FirstSeen:  d.FirstSeen,
		LastUpdate: d.LastUpdate,
	}
}

// Active reports whether the device had broadcast within the timeout at
// snapshot time.
func (d DeviceSnapshot) Active(now time.Time, timeout time.Duration) bool {
	return activeWithin(d.LastUpdate, now, timeout)
}

// EffectiveCadence reports the cadence value a reader should display:
// the last recorded value while samples are fresh, zero once the sensor
// has been silent past the timeout. The stored value is kept so history
// is not rewritten by silence.
func EffectiveCadence(last int, lastAt, now time.Time, timeout time.Duration) int {
	if lastAt.IsZero() || now.Sub(lastAt) >= timeout {
		return 0
	}
	return last
}
