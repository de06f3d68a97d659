// Package events defines the telemetry payloads shared between the
// ingest transports and the session core.
package events

import "time"

// FrameTypeDevice is the frame_type header value for device broadcasts.
const FrameTypeDevice = "device_frame"

// DeviceFrame is one raw device broadcast. Metric fields not applicable
// to the profile are omitted. UserID is optional: frames from paired
// devices carry it, anonymous broadcasts do not.
type DeviceFrame struct {
	DeviceID   string    `json:"device_id"`
	Profile    string    `json:"profile"`
	UserID     string    `json:"user_id,omitempty"`
	HeartRate  int       `json:"heart_rate,omitempty"`
	Cadence    int       `json:"cadence,omitempty"`
	Power      int       `json:"power,omitempty"`
	Speed      float64   `json:"speed,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}
