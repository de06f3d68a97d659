// Package api exposes the HTTP surface of the session service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"example.com/fitsession/internal/activity"
	"example.com/fitsession/internal/auth"
	"example.com/fitsession/internal/domain"
	"example.com/fitsession/internal/events"
	"example.com/fitsession/internal/ingest"
	"example.com/fitsession/internal/persistence/postgres"
	"example.com/fitsession/internal/session"
	"example.com/fitsession/internal/treasure"
)

// SessionStore reads persisted session summaries. The postgres
// repository satisfies it; a nil store disables the history endpoints.
type SessionStore interface {
	ListSessions(ctx context.Context, limit int) ([]postgres.SessionRecord, error)
	GetSession(ctx context.Context, sessionID string) (session.Summary, error)
}

// Handler coordinates HTTP requests with the session core.
type Handler struct {
	coordinator *ingest.Coordinator
	session     *session.Session
	monitor     *activity.Monitor
	store       SessionStore
}

// NewHandler builds a Handler. store may be nil.
func NewHandler(coordinator *ingest.Coordinator, sess *session.Session, monitor *activity.Monitor, store SessionStore) *Handler {
	return &Handler{
		coordinator: coordinator,
		session:     sess,
		monitor:     monitor,
		store:       store,
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/session", h.currentSession)
	mux.HandleFunc("/v1/session/activity", h.sessionActivity)
	mux.HandleFunc("/v1/session/memos", h.addMemo)
	mux.HandleFunc("/v1/session/screenshots", h.addScreenshot)
	mux.HandleFunc("/v1/session/playlists", h.setPlaylists)
	mux.HandleFunc("/v1/telemetry", h.telemetry)
	mux.HandleFunc("/v1/sessions", h.listSessions)
	mux.HandleFunc("/v1/sessions/", h.sessionByID)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	// Write access implies read access.
	if claims.HasScope(scope) || (scope == auth.ScopeSessionRead && claims.HasScope(auth.ScopeSessionWrite)) {
		return true
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
	return false
}

func (h *Handler) currentSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeSessionRead) {
		return
	}

	resp := SessionView{
		SessionID:      h.session.ID(),
		Active:         h.session.Active(),
		ElapsedSeconds: h.session.Elapsed().Seconds(),
		TreasureBox:    h.session.TreasureSummary(),
		Participants:   []ParticipantView{},
	}

	for _, user := range h.coordinator.Users() {
		resp.Participants = append(resp.Participants, toParticipantView(user, h.monitor))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) sessionActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeSessionRead) {
		return
	}

	ticks := h.monitor.CurrentTick() + 1
	resp := ActivityResponse{
		CurrentTick:  h.monitor.CurrentTick(),
		Participants: map[string]ParticipantActivity{},
	}
	for _, id := range h.monitor.KnownParticipants() {
		resp.Participants[id] = ParticipantActivity{
			Status:  string(h.monitor.Status(id)),
			Periods: h.monitor.ActivityPeriods(id),
			Mask:    statusStrings(h.monitor.ActivityMask(id, ticks)),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) addMemo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeSessionWrite) {
		return
	}

	var req AddMemoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	memo, ok := h.session.AddVoiceMemo(req.URL, req.DurationSec)
	if !ok {
		writeError(w, http.StatusConflict, "no_active_session", "no session in progress")
		return
	}
	writeJSON(w, http.StatusCreated, memo)
}

func (h *Handler) addScreenshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeSessionWrite) {
		return
	}

	var req AddScreenshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "url is required")
		return
	}

	shot, ok := h.session.AddScreenshot(req.URL)
	if !ok {
		writeError(w, http.StatusConflict, "no_active_session", "no session in progress")
		return
	}
	writeJSON(w, http.StatusCreated, shot)
}

func (h *Handler) setPlaylists(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeSessionWrite) {
		return
	}

	var req SetPlaylistsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	h.session.SetPlaylists(req.Items)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) telemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeSessionWrite) {
		return
	}

	var frame events.DeviceFrame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := h.coordinator.HandleFrame(frame); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeSessionRead) {
		return
	}
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "session history storage is not configured")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 200 {
				parsed = 200
			}
			limit = parsed
		}
	}

	records, err := h.store.ListSessions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ListSessionsResponse{Items: records})
}

func (h *Handler) sessionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeSessionRead) {
		return
	}
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "session history storage is not configured")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing session id")
		return
	}

	summary, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgres.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// SessionView is the live view of the in-progress session.
type SessionView struct {
	SessionID      string            `json:"session_id"`
	Active         bool              `json:"active"`
	ElapsedSeconds float64           `json:"elapsed_seconds"`
	Participants   []ParticipantView `json:"participants"`
	TreasureBox    treasure.Summary  `json:"treasure_box"`
}

// ParticipantView is one participant's live display state.
type ParticipantView struct {
	ID        string                      `json:"id"`
	Status    string                      `json:"status"`
	HeartRate int                         `json:"heart_rate"`
	Cadence   int                         `json:"cadence"`
	Progress  domain.ZoneProgressSnapshot `json:"progress"`
	Stats     domain.UserStats            `json:"stats"`
	Dwell     map[string]int              `json:"dwell"`
}

// ParticipantActivity is one participant's presence history.
type ParticipantActivity struct {
	Status  string            `json:"status"`
	Periods []activity.Period `json:"periods"`
	Mask    []string          `json:"mask"`
}

// ActivityResponse packages the monitor state.
type ActivityResponse struct {
	CurrentTick  int                            `json:"current_tick"`
	Participants map[string]ParticipantActivity `json:"participants"`
}

// AddMemoRequest is the payload for POST /v1/session/memos.
type AddMemoRequest struct {
	URL         string  `json:"url"`
	DurationSec float64 `json:"duration_sec"`
}

// Validate ensures request correctness.
func (r AddMemoRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return errors.New("url is required")
	}
	if r.DurationSec < 0 {
		return errors.New("duration_sec must be >= 0")
	}
	return nil
}

// AddScreenshotRequest is the payload for POST /v1/session/screenshots.
type AddScreenshotRequest struct {
	URL string `json:"url"`
}

// SetPlaylistsRequest is the payload for PUT /v1/session/playlists.
type SetPlaylistsRequest struct {
	Items []session.PlaylistItem `json:"items"`
}

// ListSessionsResponse packages history results.
type ListSessionsResponse struct {
	Items []postgres.SessionRecord `json:"items"`
}

func toParticipantView(user domain.UserSnapshot, monitor *activity.Monitor) ParticipantView {
	return ParticipantView{
		ID:        user.ID,
		Status:    string(monitor.Status(user.ID)),
		HeartRate: user.HeartRate,
		Cadence:   user.Cadence,
		Progress:  user.Progress,
		Stats:     user.Stats,
		Dwell:     user.Dwell,
	}
}

func statusStrings(mask []activity.Status) []string {
	out := make([]string, len(mask))
	for i, s := range mask {
		out[i] = string(s)
	}
	return out
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
