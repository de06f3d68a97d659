// Package treasure converts heart-rate zone dwell into a coin reward
// timeline. Coins are awarded per completed interval, never prorated.
package treasure

import (
	"log"
	"sync"
	"time"

	"example.com/fitsession/internal/domain"
)

const (
	// DefaultCoinUnit is the interval a participant must hold a zone to
	// earn its coins.
	DefaultCoinUnit = 5 * time.Second

	minTickerPeriod = time.Second
	maxTickerPeriod = 5 * time.Second
)

// Award describes one interval close that paid out.
type Award struct {
	UserID string
	Zone   domain.Zone
	Coins  int
	Index  int
	At     time.Time
}

// AwardFunc observes awards synchronously. Errors are logged and never
// block the award itself.
type AwardFunc func(Award) error

// Summary is the serializable view of the accumulator. CurrentColors
// maps each user to the color of the zone their latest sample resolved
// to; users whose reading fell outside the ladder are omitted.
type Summary struct {
	TotalCoins    int               `json:"total_coins"`
	CoinsByColor  map[string]int    `json:"coins_by_color"`
	CoinsByUser   map[string]int    `json:"coins_by_user"`
	CurrentColors map[string]string `json:"current_colors"`
	Timelines     map[string][]int  `json:"timelines"`
	CoinUnitMs    int64             `json:"coin_unit_ms"`
}

// accumulator is the per-user "best zone reached this open interval"
// state.
type accumulator struct {
	intervalStart time.Time
	highest       *domain.ResolvedZone
	lastHeartRate int
	currentColor  string
}

// Box is the session's coin accumulator. An autonomous ticker closes
// intervals for users who stop sending samples, so the timeline keeps
// progressing regardless of sample arrival jitter.
type Box struct {
	mu    sync.Mutex
	zones *domain.ZoneConfig
	unit  time.Duration

	startedAt    time.Time
	perUser      map[string]*accumulator
	totalCoins   int
	coinsByColor map[string]int
	coinsByUser  map[string]int
	timelines    map[string][]int

	ticker  *time.Ticker
	stop    chan struct{}
	stopped bool

	onAward AwardFunc
	now     func() time.Time
	logger  *log.Logger
}

// Option configures optional Box behaviour.
type Option func(*Box)

// WithLogger overrides the logger used for award callback failures.
func WithLogger(logger *log.Logger) Option {
	return func(b *Box) { b.logger = logger }
}

// WithClock overrides the wall clock used by the interval ticker.
func WithClock(now func() time.Time) Option {
	return func(b *Box) { b.now = now }
}

// WithAwardFunc registers a synchronous award observer.
func WithAwardFunc(fn AwardFunc) Option {
	return func(b *Box) { b.onAward = fn }
}

// NewBox constructs a Box. A non-positive unit falls back to the default.
func NewBox(zones *domain.ZoneConfig, unit time.Duration, opts ...Option) *Box {
	if unit <= 0 {
		unit = DefaultCoinUnit
	}
	b := &Box{
		zones:        zones,
		unit:         unit,
		perUser:      make(map[string]*accumulator),
		coinsByColor: make(map[string]int),
		coinsByUser:  make(map[string]int),
		timelines:    make(map[string][]int),
		now:          time.Now,
		logger:       log.New(log.Writer(), "[treasure] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start anchors the timeline at the given instant and launches the
// interval ticker. Calling Start twice is a no-op.
func (b *Box) Start(at time.Time) {
	b.mu.Lock()
	if !b.startedAt.IsZero() || b.stopped {
		b.mu.Unlock()
		return
	}
	b.startedAt = at

	period := b.unit / 2
	if period < minTickerPeriod {
		period = minTickerPeriod
	}
	if period > maxTickerPeriod {
		period = maxTickerPeriod
	}
	b.ticker = time.NewTicker(period)
	b.stop = make(chan struct{})
	b.mu.Unlock()

	go b.run()
}

func (b *Box) run() {
	for {
		select {
		case <-b.stop:
			return
		case <-b.ticker.C:
			b.CloseElapsedIntervals(b.now())
		}
	}
}

// Stop cancels the interval ticker. No awards fire after Stop returns.
func (b *Box) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	if b.ticker != nil {
		b.ticker.Stop()
	}
	if b.stop != nil {
		close(b.stop)
	}
}

// RecordUserHeartRate folds one heart-rate sample into the user's open
// interval. A non-positive reading is a device dropout: the interval
// resets and its partial progress is discarded, not prorated.
func (b *Box) RecordUserHeartRate(userID string, heartRate int, at time.Time) {
	b.mu.Lock()
	award := b.recordLocked(userID, heartRate, at)
	b.mu.Unlock()

	if award != nil {
		b.deliver(*award)
	}
}

func (b *Box) recordLocked(userID string, heartRate int, at time.Time) *Award {
	if b.stopped || b.startedAt.IsZero() || userID == "" {
		return nil
	}

	acc, ok := b.perUser[userID]
	if !ok {
		acc = &accumulator{intervalStart: at}
		b.perUser[userID] = acc
	}
	acc.lastHeartRate = heartRate

	if heartRate <= 0 {
		acc.intervalStart = at
		acc.highest = nil
		acc.currentColor = ""
		return nil
	}

	var award *Award
	if at.Sub(acc.intervalStart) >= b.unit {
		award = b.closeInterval(userID, acc, at)
	}

	if z := b.zones.Resolve(userID, heartRate); z != nil {
		if acc.highest == nil || z.Min > acc.highest.Min {
			acc.highest = z
		}
		acc.currentColor = z.Color
	} else {
		acc.currentColor = ""
	}
	return award
}

// closeInterval awards the interval's highest zone, if any, and opens a
// fresh window at the close instant.
func (b *Box) closeInterval(userID string, acc *accumulator, at time.Time) *Award {
	var award *Award
	if acc.highest != nil {
		award = b.awardCoins(userID, acc.highest.Zone, at)
	}
	acc.intervalStart = at
	acc.highest = nil
	return award
}

// awardCoins bumps the global total, the per-color bucket, and the
// per-color cumulative timeline. Index gaps are backfilled by carrying
// the previous value forward so a touched timeline has no holes.
func (b *Box) awardCoins(userID string, z domain.Zone, at time.Time) *Award {
	b.totalCoins += z.Coins
	b.coinsByColor[z.Color] += z.Coins
	b.coinsByUser[userID] += z.Coins

	idx := int(at.Sub(b.startedAt) / b.unit)
	if idx < 0 {
		idx = 0
	}

	tl := b.timelines[z.Color]
	carry := 0
	if len(tl) > 0 {
		carry = tl[len(tl)-1]
	}
	for len(tl) <= idx {
		tl = append(tl, carry)
	}
	tl[idx] = b.coinsByColor[z.Color]
	b.timelines[z.Color] = tl

	coinsAwarded.WithLabelValues(z.Color).Add(float64(z.Coins))

	return &Award{UserID: userID, Zone: z, Coins: z.Coins, Index: idx, At: at}
}

func (b *Box) deliver(a Award) {
	if b.onAward == nil {
		return
	}
	if err := b.onAward(a); err != nil {
		b.logger.Printf("award callback error (user=%s, zone=%s): %v", a.UserID, a.Zone.ID, err)
	}
}

// CloseElapsedIntervals closes every user's interval that has run past
// the coin unit, awarding as needed. Driven by the autonomous ticker;
// exported so the event loop can force a pass. New users are never added
// mid-iteration.
func (b *Box) CloseElapsedIntervals(now time.Time) {
	b.mu.Lock()
	var awards []Award
	if !b.stopped && !b.startedAt.IsZero() {
		for userID, acc := range b.perUser {
			if now.Sub(acc.intervalStart) >= b.unit {
				if a := b.closeInterval(userID, acc, now); a != nil {
					awards = append(awards, *a)
				}
			}
		}
	}
	b.mu.Unlock()

	for _, a := range awards {
		b.deliver(a)
	}
}

// RenameUser migrates accumulator state and earned totals from a
// provisional identity to a resolved one without re-triggering awards.
func (b *Box) RenameUser(from, to string) {
	if from == to || from == "" || to == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if acc, ok := b.perUser[from]; ok {
		if _, exists := b.perUser[to]; !exists {
			b.perUser[to] = acc
		}
		delete(b.perUser, from)
	}
	if coins, ok := b.coinsByUser[from]; ok {
		b.coinsByUser[to] += coins
		delete(b.coinsByUser, from)
	}
}

// Summary returns a deep copy of the accumulated totals and timelines.
// Per-color timelines are padded to a common length, carrying the last
// cumulative value forward.
func (b *Box) Summary() Summary {
	b.mu.Lock()
	defer b.mu.Unlock()

	maxLen := 0
	for _, tl := range b.timelines {
		if len(tl) > maxLen {
			maxLen = len(tl)
		}
	}

	out := Summary{
		TotalCoins:    b.totalCoins,
		CoinsByColor:  make(map[string]int, len(b.coinsByColor)),
		CoinsByUser:   make(map[string]int, len(b.coinsByUser)),
		CurrentColors: make(map[string]string, len(b.perUser)),
		Timelines:     make(map[string][]int, len(b.timelines)),
		CoinUnitMs:    b.unit.Milliseconds(),
	}
	for color, coins := range b.coinsByColor {
		out.CoinsByColor[color] = coins
	}
	for user, coins := range b.coinsByUser {
		out.CoinsByUser[user] = coins
	}
	for user, acc := range b.perUser {
		if acc.currentColor != "" {
			out.CurrentColors[user] = acc.currentColor
		}
	}
	for color, tl := range b.timelines {
		padded := make([]int, maxLen)
		copy(padded, tl)
		carry := 0
		if len(tl) > 0 {
			carry = tl[len(tl)-1]
		}
		for i := len(tl); i < maxLen; i++ {
			padded[i] = carry
		}
		out.Timelines[color] = padded
	}
	return out
}

// LastHeartRate reports the most recent sample seen for the user.
func (b *Box) LastHeartRate(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if acc, ok := b.perUser[userID]; ok {
		return acc.lastHeartRate
	}
	return 0
}
