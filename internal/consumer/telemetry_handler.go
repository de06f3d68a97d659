package consumer

import (
	"context"
	"encoding/json"

	"example.com/fitsession/internal/events"
)

// FrameSink accepts decoded device frames. The ingest coordinator
// satisfies it.
type FrameSink interface {
	HandleFrame(events.DeviceFrame) error
}

// TelemetryHandler decodes device frames and feeds them to the session
// core. Records carrying other frame types are ignored.
type TelemetryHandler struct {
	sink FrameSink
}

// NewTelemetryHandler constructs a handler backed by the provided sink.
func NewTelemetryHandler(sink FrameSink) Handler {
	return &TelemetryHandler{sink: sink}
}

// Handle routes one telemetry record into the frame sink.
func (h *TelemetryHandler) Handle(ctx context.Context, msg Message) error {
	if ft, ok := msg.Headers["frame_type"]; ok && ft != events.FrameTypeDevice {
		return nil
	}

	var frame events.DeviceFrame
	if err := json.Unmarshal(msg.Payload, &frame); err != nil {
		return err
	}
	if frame.RecordedAt.IsZero() {
		frame.RecordedAt = msg.Timestamp
	}

	if err := h.sink.HandleFrame(frame); err != nil {
		return err
	}
	RecordProcessed(msg)
	return nil
}
