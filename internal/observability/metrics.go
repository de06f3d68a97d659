// Package observability holds cross-cutting Prometheus instruments for
// the session core.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fitsession",
		Subsystem: "lifecycle",
		Name:      "sessions_started_total",
		Help:      "Number of sessions started.",
	})
	sessionsEnded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fitsession",
		Subsystem: "lifecycle",
		Name:      "sessions_ended_total",
		Help:      "Number of sessions ended and queued for persistence.",
	})
	activeDevicesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fitsession",
		Subsystem: "devices",
		Name:      "active",
		Help:      "Devices currently inside the removal timeout.",
	})
	lastPersistedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fitsession",
		Subsystem: "persistence",
		Name:      "last_session_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful summary persist.",
	})
)

func init() {
	prometheus.MustRegister(sessionsStarted, sessionsEnded, activeDevicesGauge, lastPersistedGauge)
}

// RecordSessionStarted bumps the session start counter.
func RecordSessionStarted() { sessionsStarted.Inc() }

// RecordSessionEnded bumps the session end counter.
func RecordSessionEnded() { sessionsEnded.Inc() }

// SetActiveDevices updates the active device gauge.
func SetActiveDevices(n int) { activeDevicesGauge.Set(float64(n)) }

// RecordSessionPersisted updates the persistence watermark gauge.
func RecordSessionPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastPersistedGauge.Set(float64(ts.Unix()))
}
