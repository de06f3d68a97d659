package session

import (
	"strconv"
	"strings"
	"time"

	"example.com/fitsession/internal/domain"
	"example.com/fitsession/internal/treasure"
)

// Timebase anchors every series in the summary to a shared tick clock.
type Timebase struct {
	StartMs       int64 `json:"start_ms"`
	IntervalMs    int64 `json:"interval_ms"`
	IntervalCount int   `json:"interval_count"`
}

// VoiceMemoView is a memo with its offset from session start computed.
type VoiceMemoView struct {
	VoiceMemo
	OffsetSec float64 `json:"offset_sec"`
}

// Summary is the canonical persistable session payload. Building it is a
// pure derivation over the in-memory snapshot; no counters advance on
// read.
type Summary struct {
	SessionID string     `json:"session_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Timebase  Timebase   `json:"timebase"`

	// Participants maps participant ID to a pipe-delimited heart-rate
	// series; missing samples encode as empty fields.
	Participants map[string]string            `json:"participants"`
	Devices      map[string]map[string]string `json:"devices"`

	Playlists   []PlaylistItem   `json:"playlists,omitempty"`
	VoiceMemos  []VoiceMemoView  `json:"voice_memos,omitempty"`
	Screenshots []Screenshot     `json:"screenshots,omitempty"`
	TreasureBox treasure.Summary `json:"treasure_box"`
	Zones       []domain.Zone    `json:"zones"`
}

// Summary builds the persistable payload for the current session state.
// Safe to call repeatedly; used for both autosave and final persistence.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

func (s *Session) summaryLocked() Summary {
	out := Summary{
		SessionID: s.id,
		StartedAt: s.startTime,
		Timebase: Timebase{
			StartMs:       s.startTime.UnixMilli(),
			IntervalMs:    s.cfg.SnapshotInterval.Milliseconds(),
			IntervalCount: s.intervalCount,
		},
		Participants: make(map[string]string, len(s.participantHR)),
		Devices:      make(map[string]map[string]string, len(s.deviceSeries)),
		Zones:        s.cfg.Zones.Zones(),
	}
	if s.startTime.IsZero() {
		out.Timebase.StartMs = 0
	}
	if !s.endTime.IsZero() {
		ended := s.endTime
		out.EndedAt = &ended
	}

	for id, series := range s.participantHR {
		out.Participants[id] = encodeIntSeries(series)
	}
	for id, metrics := range s.deviceSeries {
		encoded := make(map[string]string, len(metrics))
		for metric, series := range metrics {
			encoded[metric] = encodeFloatSeries(series)
		}
		out.Devices[id] = encoded
	}

	if len(s.playlists) > 0 {
		out.Playlists = append([]PlaylistItem(nil), s.playlists...)
	}
	for _, memo := range s.memos {
		offset := 0.0
		if !s.startTime.IsZero() {
			offset = memo.RecordedAt.Sub(s.startTime).Seconds()
		}
		out.VoiceMemos = append(out.VoiceMemos, VoiceMemoView{VoiceMemo: memo, OffsetSec: offset})
	}
	if len(s.screenshots) > 0 {
		out.Screenshots = append([]Screenshot(nil), s.screenshots...)
	}

	if s.box != nil {
		out.TreasureBox = s.box.Summary()
	} else {
		out.TreasureBox = treasure.Summary{CoinUnitMs: s.cfg.CoinUnit.Milliseconds()}
	}
	return out
}

// encodeIntSeries renders a series as pipe-delimited fields, trimming
// trailing nulls. Trimming happens only here, never while accumulating.
func encodeIntSeries(series []*int) string {
	end := len(series)
	for end > 0 && series[end-1] == nil {
		end--
	}

	fields := make([]string, end)
	for i := 0; i < end; i++ {
		if series[i] != nil {
			fields[i] = strconv.Itoa(*series[i])
		}
	}
	return strings.Join(fields, "|")
}

func encodeFloatSeries(series []*float64) string {
	end := len(series)
	for end > 0 && series[end-1] == nil {
		end--
	}

	fields := make([]string, end)
	for i := 0; i < end; i++ {
		if series[i] != nil {
			fields[i] = strconv.FormatFloat(*series[i], 'f', -1, 64)
		}
	}
	return strings.Join(fields, "|")
}
