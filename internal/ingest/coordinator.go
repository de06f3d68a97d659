// Package ingest routes decoded device frames through the session core:
// device records, user aggregates, the activity monitor and the coin
// accumulator.
package ingest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"example.com/fitsession/internal/activity"
	"example.com/fitsession/internal/domain"
	"example.com/fitsession/internal/events"
	"example.com/fitsession/internal/session"
)

// guestPrefix marks provisional identities for anonymous heart-rate
// broadcasts until a frame binds the device to a user.
const guestPrefix = "guest:"

// Coordinator owns the device registry and user aggregates and fans
// every frame out to the session, monitor and treasure box.
type Coordinator struct {
	mu       sync.Mutex
	zones    *domain.ZoneConfig
	session  *session.Session
	monitor  *activity.Monitor
	devices  map[string]*domain.Device
	users    map[string]*domain.User
	bindings map[string]string // deviceID -> participantID

	snapshotInterval time.Duration
	removalTimeout   time.Duration
	cadenceTimeout   time.Duration

	now    func() time.Time
	logger *log.Logger
}

// Option configures optional Coordinator behaviour.
type Option func(*Coordinator)

// WithLogger overrides the coordinator logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithTimeouts overrides the reconciliation tunables.
func WithTimeouts(snapshotInterval, removalTimeout, cadenceTimeout time.Duration) Option {
	return func(c *Coordinator) {
		if snapshotInterval > 0 {
			c.snapshotInterval = snapshotInterval
		}
		if removalTimeout > 0 {
			c.removalTimeout = removalTimeout
		}
		if cadenceTimeout > 0 {
			c.cadenceTimeout = cadenceTimeout
		}
	}
}

// NewCoordinator wires the session core components together.
func NewCoordinator(zones *domain.ZoneConfig, sess *session.Session, monitor *activity.Monitor, opts ...Option) *Coordinator {
	c := &Coordinator{
		zones:            zones,
		session:          sess,
		monitor:          monitor,
		devices:          make(map[string]*domain.Device),
		users:            make(map[string]*domain.User),
		bindings:         make(map[string]string),
		snapshotInterval: session.DefaultSnapshotInterval,
		removalTimeout:   domain.DefaultRemovalTimeout,
		cadenceTimeout:   domain.DefaultCadenceTimeout,
		now:              time.Now,
		logger:           log.New(log.Writer(), "[ingest] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleFrame ingests one device broadcast. Unknown profiles are
// rejected; everything else degrades to no-op rather than erroring.
func (c *Coordinator) HandleFrame(frame events.DeviceFrame) error {
	if frame.DeviceID == "" {
		return fmt.Errorf("frame missing device_id")
	}

	at := frame.RecordedAt
	if at.IsZero() {
		at = c.now()
	}

	c.mu.Lock()
	device, ok := c.devices[frame.DeviceID]
	if !ok {
		var err error
		device, err = domain.NewDevice(frame.DeviceID, frame.Profile)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		c.devices[frame.DeviceID] = device
	}
	device.Update(domain.Reading{
		HeartRate: frame.HeartRate,
		Cadence:   frame.Cadence,
		Power:     frame.Power,
		Speed:     frame.Speed,
	}, at)

	participantID := c.resolveParticipantLocked(device, frame.UserID)
	user := c.users[participantID]
	if user != nil {
		user.UpdateFromDevice(device, at)
	}
	snap := device.Snapshot()
	c.mu.Unlock()

	c.session.RecordDeviceActivity(snap)
	if snap.Kind == domain.DeviceHeartRate && participantID != "" {
		c.session.RecordUserHeartRate(participantID, snap.HeartRate)
	}
	return nil
}

// resolveParticipantLocked binds the device to a participant. Heart-rate
// devices without a user binding get a provisional guest identity; a
// later frame carrying the real user migrates history across.
func (c *Coordinator) resolveParticipantLocked(device *domain.Device, userID string) string {
	bound := c.bindings[device.ID]

	if userID == "" {
		if bound != "" {
			return bound
		}
		if device.Kind != domain.DeviceHeartRate {
			return ""
		}
		guest := guestPrefix + device.ID
		c.bindings[device.ID] = guest
		c.ensureUserLocked(guest, device)
		return guest
	}

	if bound == userID {
		return userID
	}

	c.bindings[device.ID] = userID
	if bound != "" && bound != userID {
		// A provisional identity resolved to a named participant.
		// Migrate before ensureUserLocked so the guest's aggregate is
		// renamed rather than shadowed by a fresh one.
		c.migrateLocked(bound, userID)
	}
	c.ensureUserLocked(userID, device)
	return userID
}

func (c *Coordinator) ensureUserLocked(id string, device *domain.Device) {
	user, ok := c.users[id]
	if !ok {
		user = domain.NewUser(id, c.zones)
		c.users[id] = user
	}
	switch device.Kind {
	case domain.DeviceHeartRate:
		if user.HRDeviceID == "" {
			user.HRDeviceID = device.ID
		}
	case domain.DeviceCadence:
		if user.CadenceDeviceID == "" {
			user.CadenceDeviceID = device.ID
		}
	}
}

func (c *Coordinator) migrateLocked(from, to string) {
	if old, ok := c.users[from]; ok {
		if _, exists := c.users[to]; !exists {
			old.ID = to
			c.users[to] = old
		}
		delete(c.users, from)
	}

	c.session.RenameParticipant(from, to)
	if err := c.monitor.TransferActivity(from, to); err != nil {
		c.logger.Printf("activity transfer skipped (%s -> %s): %v", from, to, err)
	}
}

// Reconcile runs one pass of the periodic loop: device removal first,
// then the activity tick, then the snapshot. The session end check must
// see the reconciled device set, so the order is fixed.
func (c *Coordinator) Reconcile() {
	c.mu.Lock()
	now := c.now()

	// Copy value snapshots under the lock: the session and monitor read
	// them outside it while frames keep mutating the live records.
	devices := make(map[string]domain.DeviceSnapshot, len(c.devices))
	for id, d := range c.devices {
		devices[id] = d.Snapshot()
	}
	users := make([]domain.UserSnapshot, 0, len(c.users))
	for _, u := range c.users {
		users = append(users, u.Snapshot(now, c.cadenceTimeout))
	}

	activeIDs := make([]string, 0, len(c.bindings))
	for deviceID, participantID := range c.bindings {
		if participantID == "" {
			continue
		}
		if d, ok := c.devices[deviceID]; ok && d.Kind == domain.DeviceHeartRate && d.Active(now, c.snapshotInterval*2) {
			activeIDs = append(activeIDs, participantID)
		}
	}
	c.mu.Unlock()

	c.session.UpdateActiveDevices(devices)

	if tick := c.session.CurrentTick(); tick >= 0 {
		result := c.monitor.RecordTick(tick, activeIDs, now)
		for _, id := range result.DroppedOut {
			c.logger.Printf("participant dropped out (id=%s, tick=%d)", id, tick)
		}
		c.session.UpdateSnapshot(users, devices)
	} else {
		// Session ended: the monitor starts fresh with the next one.
		c.monitor.Reset()
		c.pruneStale(now)
	}
}

// pruneStale drops device and user records once a session has
// ended and the hardware has been silent past the removal timeout, so a
// household dashboard running for weeks does not accrete dead entries.
func (c *Coordinator) pruneStale(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, d := range c.devices {
		if !d.Active(now, c.removalTimeout) {
			delete(c.devices, id)
			if participantID, ok := c.bindings[id]; ok {
				delete(c.users, participantID)
				delete(c.bindings, id)
			}
		}
	}
}

// RunReconciler drives Reconcile on the snapshot tick clock until the
// context is cancelled.
func (c *Coordinator) RunReconciler(ctx context.Context) {
	ticker := time.NewTicker(c.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Reconcile()
		}
	}
}

// Users returns value snapshots of the current user aggregates, for
// snapshot consumers.
func (c *Coordinator) Users() []domain.UserSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make([]domain.UserSnapshot, 0, len(c.users))
	for _, u := range c.users {
		out = append(out, u.Snapshot(now, c.cadenceTimeout))
	}
	return out
}

// Device returns a value snapshot of the device record for id, if known.
func (c *Coordinator) Device(id string) (domain.DeviceSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.devices[id]; ok {
		return d.Snapshot(), true
	}
	return domain.DeviceSnapshot{}, false
}
