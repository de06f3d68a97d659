// Package session coordinates the fitness session lifecycle: start/end
// detection from device activity, periodic snapshotting, reward
// accounting, and persistence of the final summary.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/fitsession/internal/domain"
	"example.com/fitsession/internal/observability"
	"example.com/fitsession/internal/treasure"
)

const (
	// DefaultSnapshotInterval is the width of one session tick.
	DefaultSnapshotInterval = 5 * time.Second
	// DefaultAutosaveInterval bounds how often in-flight sessions persist.
	DefaultAutosaveInterval = 15 * time.Second

	maxEventLog    = 500
	maxVoiceMemos  = 200
	maxScreenshots = 200

	persistTimeout = 10 * time.Second
)

// Persister stores a session summary. Implementations must be safe for
// concurrent use; failures are logged by the session, never retried.
type Persister interface {
	PersistSession(ctx context.Context, summary Summary) error
}

// Config carries the tunables supplied at configure time.
type Config struct {
	Zones            *domain.ZoneConfig
	CoinUnit         time.Duration
	SnapshotInterval time.Duration
	AutosaveInterval time.Duration
	RemovalTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Zones == nil {
		c.Zones = domain.NewZoneConfig(nil)
	}
	if c.CoinUnit <= 0 {
		c.CoinUnit = treasure.DefaultCoinUnit
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = DefaultSnapshotInterval
	}
	if c.AutosaveInterval <= 0 {
		c.AutosaveInterval = DefaultAutosaveInterval
	}
	if c.RemovalTimeout <= 0 {
		c.RemovalTimeout = domain.DefaultRemovalTimeout
	}
	return c
}

// Event is one bounded event-log entry, observable via the API but not a
// durable audit record.
type Event struct {
	Type    string            `json:"type"`
	At      time.Time         `json:"at"`
	Payload map[string]string `json:"payload,omitempty"`
}

// VoiceMemo is an attached recording, positioned at summary time by its
// offset from session start.
type VoiceMemo struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	DurationSec float64   `json:"duration_sec"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Screenshot is captured frame metadata attached to the session.
type Screenshot struct {
	ID  string    `json:"id"`
	URL string    `json:"url"`
	At  time.Time `json:"at"`
}

// PlaylistItem is a sanitized media queue entry folded into snapshots.
type PlaylistItem struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Position int    `json:"position"`
}

// Session is the top-level lifecycle coordinator. It is single-shot: once
// ended and persisted it resets to the empty state and a fresh session
// starts on the next device activity.
type Session struct {
	mu        sync.Mutex
	cfg       Config
	persister Persister
	logger    *log.Logger
	now       func() time.Time

	id           string
	startTime    time.Time
	endTime      time.Time
	lastActivity time.Time

	activeDevices map[string]struct{}
	events        *eventRing
	memos         []VoiceMemo
	screenshots   []Screenshot
	box           *treasure.Box

	participantHR map[string][]*int
	deviceSeries  map[string]map[string][]*float64
	playlists     []PlaylistItem
	intervalCount int

	autosaveTicker *time.Ticker
	autosaveStop   chan struct{}
	saveInFlight   bool
	lastAutosave   time.Time
}

// Option configures optional Session behaviour.
type Option func(*Session)

// WithLogger overrides the session logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New constructs an empty Session. No session is active until device
// activity arrives.
func New(cfg Config, persister Persister, opts ...Option) *Session {
	s := &Session{
		cfg:           cfg.withDefaults(),
		persister:     persister,
		logger:        log.New(log.Writer(), "[session] ", log.LstdFlags),
		now:           time.Now,
		activeDevices: make(map[string]struct{}),
		events:        newEventRing(maxEventLog),
		participantHR: make(map[string][]*int),
		deviceSeries:  make(map[string]map[string][]*float64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Active reports whether a session is currently running.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id != ""
}

// ID returns the current session identifier, empty when inactive.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Elapsed returns time since session start, zero when inactive.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == "" {
		return 0
	}
	return s.now().Sub(s.startTime)
}

// EnsureStarted assigns session identity and timestamps on first device
// activity. Idempotent; reports whether it newly started the session.
func (s *Session) EnsureStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureStartedLocked(s.now())
}

func (s *Session) ensureStartedLocked(at time.Time) bool {
	if s.id != "" {
		return false
	}

	s.id = "session-" + at.UTC().Format("20060102-150405")
	s.startTime = at
	s.endTime = time.Time{}
	s.lastActivity = at

	s.participantHR = make(map[string][]*int)
	s.deviceSeries = make(map[string]map[string][]*float64)
	s.playlists = nil
	s.intervalCount = 0
	s.memos = nil
	s.screenshots = nil
	s.events = newEventRing(maxEventLog)

	s.box = treasure.NewBox(s.cfg.Zones, s.cfg.CoinUnit,
		treasure.WithLogger(s.logger), treasure.WithClock(s.now))
	s.box.Start(at)

	s.startAutosaveLocked()

	s.appendEventLocked("session_started", at, map[string]string{"session_id": s.id})
	s.logger.Printf("session started (id=%s)", s.id)
	observability.RecordSessionStarted()
	return true
}

// RecordDeviceActivity is called on every inbound device frame. It keeps
// the activity watermark fresh, tracks the active set, and starts the
// session if none is running.
func (s *Session) RecordDeviceActivity(d domain.DeviceSnapshot) {
	if d.ID == "" {
		return
	}

	s.mu.Lock()
	at := s.now()
	s.ensureStartedLocked(at)
	s.lastActivity = at

	if _, known := s.activeDevices[d.ID]; !known {
		s.activeDevices[d.ID] = struct{}{}
		s.appendEventLocked("device_active", at, map[string]string{
			"device_id": d.ID,
			"profile":   d.Kind.String(),
		})
	}
	active := len(s.activeDevices)
	s.mu.Unlock()

	observability.SetActiveDevices(active)
}

// RecordUserHeartRate forwards a heart-rate sample to the coin
// accumulator. No-op while no session is active.
func (s *Session) RecordUserHeartRate(userID string, heartRate int) {
	s.mu.Lock()
	box := s.box
	at := s.now()
	s.mu.Unlock()

	if box != nil {
		box.RecordUserHeartRate(userID, heartRate, at)
	}
}

// RenameParticipant migrates reward and snapshot state from a
// provisional identity to a resolved one.
func (s *Session) RenameParticipant(from, to string) {
	s.mu.Lock()
	if series, ok := s.participantHR[from]; ok {
		if _, exists := s.participantHR[to]; !exists {
			s.participantHR[to] = series
		}
		delete(s.participantHR, from)
	}
	box := s.box
	s.mu.Unlock()

	if box != nil {
		box.RenameUser(from, to)
	}
}

// UpdateActiveDevices reconciles the active set against the devices map:
// a device past the removal timeout is dropped and logged. If the set
// empties, the session may end. Removal detection always happens before
// the end check so the session never closes over stale device state.
func (s *Session) UpdateActiveDevices(devices map[string]domain.DeviceSnapshot) {
	s.mu.Lock()
	if s.id == "" {
		s.mu.Unlock()
		return
	}
	at := s.now()

	next := make(map[string]struct{})
	for id, d := range devices {
		if d.Active(at, s.cfg.RemovalTimeout) {
			next[id] = struct{}{}
		}
	}
	for id := range s.activeDevices {
		if _, still := next[id]; !still {
			s.appendEventLocked("device_removed", at, map[string]string{"device_id": id})
			s.logger.Printf("device removed (id=%s)", id)
		}
	}
	s.activeDevices = next
	empty := len(next) == 0
	s.mu.Unlock()

	observability.SetActiveDevices(len(next))
	if empty {
		s.MaybeEnd()
	}
}

// MaybeEnd closes the session once no device is active and the last
// activity is at least the removal timeout in the past. On end it stops
// the coin accumulator, persists the final summary asynchronously, and
// resets to the empty state.
func (s *Session) MaybeEnd() {
	s.mu.Lock()
	if s.id == "" || len(s.activeDevices) > 0 {
		s.mu.Unlock()
		return
	}
	at := s.now()
	if at.Sub(s.lastActivity) < s.cfg.RemovalTimeout {
		s.mu.Unlock()
		return
	}

	s.endTime = at
	if s.box != nil {
		s.box.Stop()
	}
	summary := s.summaryLocked()
	id := s.id
	s.resetLocked()
	s.mu.Unlock()

	s.logger.Printf("session ended (id=%s, participants=%d, coins=%d)",
		id, len(summary.Participants), summary.TreasureBox.TotalCoins)
	observability.RecordSessionEnded()

	s.persistAsync(summary, true)
}

// Reset synchronously discards all session state and cancels timers.
func (s *Session) Reset() {
	s.mu.Lock()
	if s.box != nil {
		s.box.Stop()
	}
	s.resetLocked()
	s.mu.Unlock()
}

// resetLocked clears state for the next session. Timer handles are
// canceled before the owning references are dropped so no callback fires
// against discarded state.
func (s *Session) resetLocked() {
	s.stopAutosaveLocked()

	s.id = ""
	s.startTime = time.Time{}
	s.endTime = time.Time{}
	s.lastActivity = time.Time{}
	s.activeDevices = make(map[string]struct{})
	s.events = newEventRing(maxEventLog)
	s.memos = nil
	s.screenshots = nil
	s.box = nil
	s.participantHR = make(map[string][]*int)
	s.deviceSeries = make(map[string]map[string][]*float64)
	s.playlists = nil
	s.intervalCount = 0
	s.lastAutosave = time.Time{}
}

// AddVoiceMemo attaches a recording to the running session. The memo
// list is bounded; the oldest entry is dropped on overflow.
func (s *Session) AddVoiceMemo(url string, durationSec float64) (VoiceMemo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == "" {
		return VoiceMemo{}, false
	}

	memo := VoiceMemo{
		ID:          uuid.NewString(),
		URL:         url,
		DurationSec: durationSec,
		RecordedAt:  s.now(),
	}
	s.memos = append(s.memos, memo)
	if len(s.memos) > maxVoiceMemos {
		s.memos = s.memos[len(s.memos)-maxVoiceMemos:]
	}
	s.appendEventLocked("voice_memo", memo.RecordedAt, map[string]string{"memo_id": memo.ID})
	return memo, true
}

// AddScreenshot attaches screenshot metadata to the running session.
func (s *Session) AddScreenshot(url string) (Screenshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == "" {
		return Screenshot{}, false
	}

	shot := Screenshot{ID: uuid.NewString(), URL: url, At: s.now()}
	s.screenshots = append(s.screenshots, shot)
	if len(s.screenshots) > maxScreenshots {
		s.screenshots = s.screenshots[len(s.screenshots)-maxScreenshots:]
	}
	return shot, true
}

// SetPlaylists replaces the media queue folded into the next summary.
// Entries without a URL are dropped.
func (s *Session) SetPlaylists(items []PlaylistItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sanitized := make([]PlaylistItem, 0, len(items))
	for _, item := range items {
		if item.URL == "" {
			continue
		}
		sanitized = append(sanitized, item)
	}
	s.playlists = sanitized
}

// Events returns a copy of the bounded event log, oldest first.
func (s *Session) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events.values()
}

// TreasureSummary exposes the coin accumulator view, empty when no
// session is active.
func (s *Session) TreasureSummary() treasure.Summary {
	s.mu.Lock()
	box := s.box
	s.mu.Unlock()

	if box == nil {
		return treasure.Summary{CoinUnitMs: s.cfg.CoinUnit.Milliseconds()}
	}
	return box.Summary()
}

func (s *Session) appendEventLocked(eventType string, at time.Time, payload map[string]string) {
	s.events.push(Event{Type: eventType, At: at, Payload: payload})
}

// Autosave persists the current summary at most once per configured
// interval, unless forced. Overlapping saves are suppressed by the
// in-flight guard.
func (s *Session) Autosave(force bool) {
	s.mu.Lock()
	if s.id == "" {
		s.mu.Unlock()
		return
	}
	at := s.now()
	if !force {
		if s.saveInFlight || (!s.lastAutosave.IsZero() && at.Sub(s.lastAutosave) < s.cfg.AutosaveInterval) {
			s.mu.Unlock()
			return
		}
	}
	s.lastAutosave = at
	summary := s.summaryLocked()
	s.mu.Unlock()

	s.persistAsync(summary, force)
}

// FlushSync persists the current summary inline and only returns once
// the store call has completed. Shutdown paths use it so the process
// never exits with the final save still in flight. No-op when no
// session is active or no persister is configured.
func (s *Session) FlushSync(ctx context.Context) error {
	s.mu.Lock()
	if s.id == "" || s.persister == nil {
		s.mu.Unlock()
		return nil
	}
	summary := s.summaryLocked()
	s.mu.Unlock()

	if err := s.persister.PersistSession(ctx, summary); err != nil {
		return err
	}
	observability.RecordSessionPersisted(s.now())
	return nil
}

// persistAsync fires a non-blocking persistence call. The in-flight flag
// is always released when the call completes, success or failure.
func (s *Session) persistAsync(summary Summary, force bool) {
	if s.persister == nil {
		return
	}

	s.mu.Lock()
	if s.saveInFlight && !force {
		s.mu.Unlock()
		return
	}
	s.saveInFlight = true
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := s.persister.PersistSession(ctx, summary); err != nil {
			s.logger.Printf("persist failed (session=%s): %v", summary.SessionID, err)
		} else {
			observability.RecordSessionPersisted(s.now())
		}

		s.mu.Lock()
		s.saveInFlight = false
		s.mu.Unlock()
	}()
}

func (s *Session) startAutosaveLocked() {
	s.autosaveTicker = time.NewTicker(s.cfg.AutosaveInterval)
	s.autosaveStop = make(chan struct{})

	go func(ticker *time.Ticker, stop chan struct{}) {
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Autosave(false)
			}
		}
	}(s.autosaveTicker, s.autosaveStop)
}

func (s *Session) stopAutosaveLocked() {
	if s.autosaveTicker != nil {
		s.autosaveTicker.Stop()
		s.autosaveTicker = nil
	}
	if s.autosaveStop != nil {
		close(s.autosaveStop)
		s.autosaveStop = nil
	}
}
