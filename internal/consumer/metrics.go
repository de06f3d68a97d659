package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	framesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitsession",
		Subsystem: "consumer",
		Name:      "frames_processed_total",
		Help:      "Number of telemetry frames handled by the consumer.",
	}, []string{"topic", "frame_type"})

	framesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitsession",
		Subsystem: "consumer",
		Name:      "frames_dropped_total",
		Help:      "Number of telemetry frames skipped due to handler errors.",
	}, []string{"topic"})

	lastFrameGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fitsession",
		Subsystem: "consumer",
		Name:      "last_frame_timestamp_seconds",
		Help:      "Timestamp of the most recent telemetry frame handled.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(framesProcessed, framesDropped, lastFrameGauge)
}

// RecordProcessed updates counters for successfully handled frames.
func RecordProcessed(msg Message) {
	frameType := msg.Headers["frame_type"]
	framesProcessed.WithLabelValues(msg.Topic, frameType).Inc()
	if !msg.Timestamp.IsZero() {
		lastFrameGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordDropped(msg Message) {
	framesDropped.WithLabelValues(msg.Topic).Inc()
}
