package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fitsession/internal/events"
)

func TestTelemetryHandlerDecodesFrame(t *testing.T) {
	sink := &stubSink{}
	h := NewTelemetryHandler(sink)

	at := time.Date(2026, time.March, 1, 18, 0, 0, 0, time.UTC)
	payload, err := json.Marshal(events.DeviceFrame{
		DeviceID:   "hr-1",
		Profile:    "heart_rate",
		UserID:     "alice",
		HeartRate:  144,
		RecordedAt: at,
	})
	require.NoError(t, err)

	err = h.Handle(context.Background(), Message{
		Topic:   "device_telemetry",
		Payload: payload,
		Headers: map[string]string{"frame_type": events.FrameTypeDevice},
	})
	require.NoError(t, err)
	require.Len(t, sink.frames, 1)
	require.Equal(t, "hr-1", sink.frames[0].DeviceID)
	require.Equal(t, 144, sink.frames[0].HeartRate)
	require.Equal(t, at, sink.frames[0].RecordedAt)
}

func TestTelemetryHandlerFillsMissingTimestamp(t *testing.T) {
	sink := &stubSink{}
	h := NewTelemetryHandler(sink)

	at := time.Date(2026, time.March, 1, 18, 0, 5, 0, time.UTC)
	err := h.Handle(context.Background(), Message{
		Payload:   json.RawMessage(`{"device_id":"hr-1","profile":"heart_rate","heart_rate":120}`),
		Timestamp: at,
	})
	require.NoError(t, err)
	require.Len(t, sink.frames, 1)
	require.Equal(t, at, sink.frames[0].RecordedAt)
}

func TestTelemetryHandlerIgnoresOtherFrameTypes(t *testing.T) {
	sink := &stubSink{}
	h := NewTelemetryHandler(sink)

	err := h.Handle(context.Background(), Message{
		Payload: json.RawMessage(`{"kind":"heartbeat"}`),
		Headers: map[string]string{"frame_type": "control"},
	})
	require.NoError(t, err)
	require.Empty(t, sink.frames)
}

func TestTelemetryHandlerRejectsMalformedPayload(t *testing.T) {
	sink := &stubSink{}
	h := NewTelemetryHandler(sink)

	err := h.Handle(context.Background(), Message{
		Payload: json.RawMessage(`{"device_id":`),
		Headers: map[string]string{"frame_type": events.FrameTypeDevice},
	})
	require.Error(t, err)
	require.Empty(t, sink.frames)
}

type stubSink struct {
	frames []events.DeviceFrame
	err    error
}

func (s *stubSink) HandleFrame(frame events.DeviceFrame) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame)
	return nil
}
