// Package activity tracks per-participant presence over the session tick
// clock: a small state machine per participant plus an append-only period
// history used for dropout visualization.
package activity

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// Status is the presence state of one participant.
type Status string

const (
	StatusAbsent  Status = "absent"
	StatusActive  Status = "active"
	StatusIdle    Status = "idle"
	StatusRemoved Status = "removed"
)

const (
	// DefaultIdleThresholdTicks is how many consecutive no-data ticks move
	// an active participant to idle.
	DefaultIdleThresholdTicks = 2
	// DefaultRemoveThresholdTicks is how many further no-data ticks move
	// an idle participant to removed (~3 minutes at 5s ticks).
	DefaultRemoveThresholdTicks = 36
)

// Period is one contiguous run of a status over tick time. The range is
// half-open [StartTick, EndTick); a nil EndTick marks the open period.
type Period struct {
	StartTick int        `json:"start_tick"`
	EndTick   *int       `json:"end_tick,omitempty"`
	Status    Status     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Transition describes one status change, delivered to subscribers.
type Transition struct {
	ParticipantID string
	From, To      Status
	Tick          int
	At            time.Time
}

// Subscriber receives transitions synchronously. Returned errors are
// logged and never abort the triggering state change.
type Subscriber func(Transition) error

// TickResult summarizes one batch tick.
type TickResult struct {
	DroppedOut  []string
	ActiveCount int
}

type participant struct {
	status        Status
	firstSeenTick int
	lastActive    int
	lastProcessed int
	missed        int
	periods       []Period
}

// Monitor is the per-session activity state machine. It tracks
// participant identifiers only; it never owns device or user objects.
type Monitor struct {
	mu              sync.Mutex
	idleThreshold   int
	removeThreshold int
	currentTick     int
	participants    map[string]*participant
	prevActive      map[string]struct{}
	subscribers     []Subscriber
	logger          *log.Logger
}

// Option configures optional Monitor behaviour.
type Option func(*Monitor)

// WithLogger overrides the logger used for subscriber failures.
func WithLogger(logger *log.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// WithThresholds overrides the idle/remove tick thresholds.
func WithThresholds(idle, remove int) Option {
	return func(m *Monitor) {
		if idle > 0 {
			m.idleThreshold = idle
		}
		if remove > 0 {
			m.removeThreshold = remove
		}
	}
}

// NewMonitor constructs a Monitor with default thresholds.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		idleThreshold:   DefaultIdleThresholdTicks,
		removeThreshold: DefaultRemoveThresholdTicks,
		participants:    make(map[string]*participant),
		prevActive:      make(map[string]struct{}),
		logger:          log.New(log.Writer(), "[activity] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers a synchronous transition callback.
func (m *Monitor) Subscribe(fn Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// RecordActivity advances one participant's state for one tick. It is
// idempotent per (participant, tick) and tolerates out-of-order ticks:
// the monitor clock only moves forward and history is never rewound.
func (m *Monitor) RecordActivity(id string, tick int, hasData bool, at time.Time) {
	if id == "" || tick < 0 {
		return
	}

	m.mu.Lock()
	transition := m.record(id, tick, hasData, at)
	subs := m.subscribers
	m.mu.Unlock()

	if transition != nil {
		m.notify(subs, *transition)
	}
}

func (m *Monitor) record(id string, tick int, hasData bool, at time.Time) *Transition {
	if tick > m.currentTick {
		m.currentTick = tick
	}

	p, ok := m.participants[id]
	if !ok {
		p = &participant{status: StatusAbsent, lastProcessed: -1}
		m.participants[id] = p
	}
	if tick <= p.lastProcessed {
		return nil
	}
	p.lastProcessed = tick

	switch p.status {
	case StatusAbsent:
		if hasData {
			p.firstSeenTick = tick
			p.lastActive = tick
			p.missed = 0
			return m.transition(id, p, StatusActive, tick, at)
		}
	case StatusActive:
		if hasData {
			p.lastActive = tick
			p.missed = 0
			return nil
		}
		p.missed++
		if p.missed >= m.idleThreshold {
			p.missed = 0
			return m.transition(id, p, StatusIdle, tick, at)
		}
	case StatusIdle:
		if hasData {
			p.lastActive = tick
			p.missed = 0
			return m.transition(id, p, StatusActive, tick, at)
		}
		p.missed++
		if p.missed >= m.removeThreshold {
			p.missed = 0
			return m.transition(id, p, StatusRemoved, tick, at)
		}
	case StatusRemoved:
		// Terminal for this participant ID.
	}
	return nil
}

// transition closes the open period at tick and opens a new one.
func (m *Monitor) transition(id string, p *participant, to Status, tick int, at time.Time) *Transition {
	from := p.status
	p.status = to

	if n := len(p.periods); n > 0 && p.periods[n-1].EndTick == nil {
		end := tick
		endedAt := at
		p.periods[n-1].EndTick = &end
		p.periods[n-1].EndedAt = &endedAt
	}
	p.periods = append(p.periods, Period{StartTick: tick, Status: to, StartedAt: at})

	return &Transition{ParticipantID: id, From: from, To: to, Tick: tick, At: at}
}

func (m *Monitor) notify(subs []Subscriber, t Transition) {
	for _, fn := range subs {
		if err := fn(t); err != nil {
			m.logger.Printf("subscriber error (participant=%s, %s->%s): %v", t.ParticipantID, t.From, t.To, err)
		}
	}
}

// RecordTick is the batch entry point: it diffs activeIDs against the
// previous tick's active set, records every known plus newly-active
// participant, and reports dropouts.
func (m *Monitor) RecordTick(tick int, activeIDs []string, at time.Time) TickResult {
	active := make(map[string]struct{}, len(activeIDs))
	for _, id := range activeIDs {
		if id != "" {
			active[id] = struct{}{}
		}
	}

	m.mu.Lock()
	var droppedOut []string
	for id := range m.prevActive {
		if _, still := active[id]; !still {
			droppedOut = append(droppedOut, id)
		}
	}
	sort.Strings(droppedOut)

	ids := make(map[string]struct{}, len(m.participants)+len(active))
	for id := range m.participants {
		ids[id] = struct{}{}
	}
	for id := range active {
		ids[id] = struct{}{}
	}

	var transitions []Transition
	for id := range ids {
		_, hasData := active[id]
		if t := m.record(id, tick, hasData, at); t != nil {
			transitions = append(transitions, *t)
		}
	}
	m.prevActive = active
	subs := m.subscribers
	m.mu.Unlock()

	sort.Slice(transitions, func(i, j int) bool {
		return transitions[i].ParticipantID < transitions[j].ParticipantID
	})
	for _, t := range transitions {
		m.notify(subs, t)
	}

	return TickResult{DroppedOut: droppedOut, ActiveCount: len(active)}
}

// Status reports the participant's current status, absent if unknown.
func (m *Monitor) Status(id string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.participants[id]; ok {
		return p.status
	}
	return StatusAbsent
}

// CurrentTick returns the highest tick the monitor has seen.
func (m *Monitor) CurrentTick() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTick
}

// KnownParticipants lists participants that have ever recorded data,
// sorted by ID. Absent entries are excluded.
func (m *Monitor) KnownParticipants() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.participants))
	for id, p := range m.participants {
		if p.status != StatusAbsent {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// ActivityPeriods returns the participant's period history, ordered by
// start tick. At most the last period is open.
func (m *Monitor) ActivityPeriods(id string) []Period {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[id]
	if !ok {
		return nil
	}
	out := make([]Period, len(p.periods))
	copy(out, p.periods)
	return out
}

// ActivityMask replays the period history into a per-tick status slice of
// length n, used by presence charts.
func (m *Monitor) ActivityMask(id string, n int) []Status {
	periods := m.ActivityPeriods(id)

	mask := make([]Status, n)
	for i := range mask {
		mask[i] = StatusAbsent
	}
	for _, period := range periods {
		end := n
		if period.EndTick != nil && *period.EndTick < end {
			end = *period.EndTick
		}
		for t := period.StartTick; t < end && t < n; t++ {
			if t >= 0 {
				mask[t] = period.Status
			}
		}
	}
	return mask
}

// ReconstructFromTimeline rebuilds a participant's history from a stored
// sample series starting at startTick. Non-positive samples count as no
// data; the series replaces any existing history for the participant.
func (m *Monitor) ReconstructFromTimeline(id string, startTick int, series []float64) {
	if id == "" || startTick < 0 {
		return
	}

	m.mu.Lock()
	delete(m.participants, id)
	for i, sample := range series {
		m.record(id, startTick+i, sample > 0, time.Time{})
	}
	m.mu.Unlock()
}

// TransferActivity merges the history recorded under from into to, used
// when a guest identity is later resolved to a named participant. The
// merged period sequence stays ordered and non-overlapping.
func (m *Monitor) TransferActivity(from, to string) error {
	if from == to {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.participants[from]
	if !ok {
		return fmt.Errorf("no activity recorded for %q", from)
	}

	dst, ok := m.participants[to]
	if !ok {
		m.participants[to] = src
		delete(m.participants, from)
		if _, was := m.prevActive[from]; was {
			delete(m.prevActive, from)
			m.prevActive[to] = struct{}{}
		}
		return nil
	}

	merged := append(append([]Period(nil), dst.periods...), src.periods...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].StartTick < merged[j].StartTick })

	// Stitch: close overlaps and any open period that is not the last.
	for i := 0; i < len(merged)-1; i++ {
		next := merged[i+1].StartTick
		if merged[i].EndTick == nil || *merged[i].EndTick > next {
			end := next
			merged[i].EndTick = &end
			if merged[i].EndedAt == nil {
				endedAt := merged[i+1].StartedAt
				merged[i].EndedAt = &endedAt
			}
		}
	}

	dst.periods = merged
	if len(merged) > 0 {
		dst.status = merged[len(merged)-1].Status
	}
	if src.firstSeenTick < dst.firstSeenTick {
		dst.firstSeenTick = src.firstSeenTick
	}
	if src.lastActive > dst.lastActive {
		dst.lastActive = src.lastActive
	}
	if src.lastProcessed > dst.lastProcessed {
		dst.lastProcessed = src.lastProcessed
	}

	delete(m.participants, from)
	delete(m.prevActive, from)
	return nil
}

// Reset clears all participant state and rewinds the tick clock.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participants = make(map[string]*participant)
	m.prevActive = make(map[string]struct{})
	m.currentTick = 0
}
