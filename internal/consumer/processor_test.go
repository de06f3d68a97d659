package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestProcessorCommitsMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := kafka.Message{
		Topic:     "device_telemetry",
		Partition: 0,
		Offset:    12,
		Value:     json.RawMessage(`{"device_id":"hr-1","profile":"heart_rate","heart_rate":140}`),
		Time:      time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "frame_type", Value: []byte("device_frame")},
		},
	}

	reader := &stubReader{msgs: []kafka.Message{msg}, errAfter: context.Canceled}
	handler := &recordingHandler{}
	proc := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))

	err := proc.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, handler.count)
	require.Equal(t, 1, reader.commitCount)

	require.Equal(t, "device_telemetry", handler.last.Topic)
	require.Equal(t, "device_frame", handler.last.Headers["frame_type"])
}

func TestProcessorCommitsOnHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := kafka.Message{
		Topic: "device_telemetry",
		Value: json.RawMessage(`not json`),
	}

	reader := &stubReader{msgs: []kafka.Message{msg}, errAfter: context.Canceled}
	handler := &recordingHandler{err: errors.New("decode failure")}
	proc := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))

	err := proc.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, handler.count)
	// The poisoned record is still committed so the partition advances.
	require.Equal(t, 1, reader.commitCount)
}

func TestProcessorSkipsFetchErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{
		fetchErrs: []error{errors.New("broker hiccup")},
		msgs:      []kafka.Message{{Topic: "device_telemetry"}},
		errAfter:  context.Canceled,
	}
	handler := &recordingHandler{}
	proc := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))

	err := proc.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, handler.count)
}

type stubReader struct {
	fetchErrs   []error
	msgs        []kafka.Message
	idx         int
	commitCount int
	errAfter    error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		return kafka.Message{}, err
	}
	if r.idx >= len(r.msgs) {
		return kafka.Message{}, r.errAfter
	}
	msg := r.msgs[r.idx]
	r.idx++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCount++
	return nil
}

func (r *stubReader) Close() error { return nil }

type recordingHandler struct {
	count int
	last  Message
	err   error
}

func (h *recordingHandler) Handle(_ context.Context, msg Message) error {
	h.count++
	h.last = msg
	return h.err
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}
