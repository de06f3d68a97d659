package session

import (
	"example.com/fitsession/internal/domain"
)

// Device series metric names.
const (
	metricHeartRate = "heart_rate"
	metricCadence   = "cadence"
	metricPower     = "power"
	metricSpeed     = "speed"
)

// CurrentTick returns the tick index the clock sits in now, -1 when no
// session is active.
func (s *Session) CurrentTick() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == "" {
		return -1
	}
	return int(s.now().Sub(s.startTime) / s.cfg.SnapshotInterval)
}

// UpdateSnapshot folds the current users and devices into the
// tick-indexed series anchored at session start. Series grow lazily and
// trailing nulls are trimmed only at summary time, so indices stay
// stable during accumulation.
func (s *Session) UpdateSnapshot(users []domain.UserSnapshot, devices map[string]domain.DeviceSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == "" {
		return
	}

	tick := int(s.now().Sub(s.startTime) / s.cfg.SnapshotInterval)
	if tick < 0 {
		return
	}
	if tick+1 > s.intervalCount {
		s.intervalCount = tick + 1
	}

	for _, u := range users {
		series := ensureIntSeries(s.participantHR[u.ID], tick)
		if u.HeartRate > 0 {
			v := u.HeartRate
			series[tick] = &v
		}
		s.participantHR[u.ID] = series
	}

	for id, d := range devices {
		metrics := s.deviceSeries[id]
		if metrics == nil {
			metrics = make(map[string][]*float64)
			s.deviceSeries[id] = metrics
		}

		switch d.Kind {
		case domain.DeviceHeartRate:
			metrics[metricHeartRate] = setFloatSample(metrics[metricHeartRate], tick, float64(d.HeartRate), d.HeartRate > 0)
		case domain.DeviceCadence:
			metrics[metricCadence] = setFloatSample(metrics[metricCadence], tick, float64(d.Cadence), d.Cadence > 0)
		case domain.DeviceSpeed:
			metrics[metricSpeed] = setFloatSample(metrics[metricSpeed], tick, d.Speed, d.Speed > 0)
		case domain.DevicePower:
			metrics[metricPower] = setFloatSample(metrics[metricPower], tick, float64(d.Power), d.Power > 0)
			metrics[metricCadence] = setFloatSample(metrics[metricCadence], tick, float64(d.Cadence), d.Cadence > 0)
		}
	}
}

// ensureIntSeries grows the series so index tick is addressable.
func ensureIntSeries(series []*int, tick int) []*int {
	for len(series) <= tick {
		series = append(series, nil)
	}
	return series
}

func ensureFloatSeries(series []*float64, tick int) []*float64 {
	for len(series) <= tick {
		series = append(series, nil)
	}
	return series
}

func setFloatSample(series []*float64, tick int, value float64, ok bool) []*float64 {
	series = ensureFloatSeries(series, tick)
	if ok {
		v := value
		series[tick] = &v
	}
	return series
}
