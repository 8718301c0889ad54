package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"roomsync/internal/identity"
	"roomsync/internal/journal"
	"roomsync/internal/pause"
	"roomsync/internal/presence"
	"roomsync/internal/reaction"
	"roomsync/internal/warning"
	"roomsync/internal/websocket"
	"roomsync/pkg/interfaces"
	"roomsync/pkg/types"
)

// Transport is the part of the relay client the API reports on.
type Transport interface {
	State() websocket.State
	QueueLen() int
	Err() error
}

type Presence interface {
	Users() []presence.Participant
	Contributors() []presence.Contributor
	UserStatus(name string) presence.Status
	RequestRefresh() error
}

type Reactions interface {
	Toggle(messageID, emoji string) (types.ReactionAction, error)
	Reactions(messageID string) []reaction.Reaction
	Snapshot() map[string]map[string][]string
}

type Emojis interface {
	Emojis() []string
	Save(emojis []string) error
}

type Pause interface {
	Announce(minutes int, reason string) (types.PauseData, error)
	Stop() error
	Extend(totalMinutes int) (types.PauseData, error)
	Active() (types.PauseAnnouncement, bool)
}

type Warnings interface {
	Report(problemType string) (types.WarningData, error)
	Postpone(problemType string) error
	Resolve(problemType string) error
	Alerts() []types.WarningAlert
}

// Events is the polled notification feed.
type Events interface {
	Since(seq uint64) []types.Event
}

// Page receives what the overlay scraped from the meeting page.
type Page interface {
	Update(title, selfLabel string)
	SetModerator(moderator bool)
}

// Deps groups the components the API exposes. Journal may be nil when the
// journal is disabled.
type Deps struct {
	Transport Transport
	Identity  interfaces.IdentityProvider
	Moderator interfaces.ModeratorCheck
	Page      Page
	Presence  Presence
	Reactions Reactions
	Emojis    Emojis
	Pause     Pause
	Warnings  Warnings
	Events    Events
	Journal   interfaces.Journal
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between the page overlay and the sync core
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	deps    Deps
	logger  *slog.Logger
	router  *http.ServeMux
	handler http.Handler
	started time.Time
}

// NewServer wires the routes over deps.
func NewServer(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		deps:    deps,
		logger:  logger.With("component", "api"),
		router:  http.NewServeMux(),
		started: time.Now(),
	}

	s.setupRoutes()
	// CORS and JSON middleware wrap the whole mux so preflight requests never reach method routing
	s.handler = s.corsMiddleware(s.jsonMiddleware(s.router))
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", s.healthCheck)
	s.router.HandleFunc("GET /api/status", s.status)
	s.router.HandleFunc("PUT /api/page", s.updatePage)
	s.router.HandleFunc("POST /api/message-id", s.messageID)

	s.router.HandleFunc("GET /api/presence", s.listPresence)
	s.router.HandleFunc("GET /api/presence/{name}", s.userStatus)
	s.router.HandleFunc("POST /api/presence/refresh", s.refreshPresence)

	s.router.HandleFunc("GET /api/reactions", s.reactionSnapshot)
	s.router.HandleFunc("GET /api/reactions/{messageID}", s.messageReactions)
	s.router.HandleFunc("POST /api/reactions/{messageID}", s.toggleReaction)
	s.router.HandleFunc("GET /api/emojis", s.listEmojis)
	s.router.HandleFunc("PUT /api/emojis", s.saveEmojis)

	s.router.HandleFunc("GET /api/pause", s.activePause)
	s.router.HandleFunc("POST /api/pause", s.announcePause)
	s.router.HandleFunc("POST /api/pause/extend", s.extendPause)
	s.router.HandleFunc("DELETE /api/pause", s.stopPause)

	s.router.HandleFunc("GET /api/warnings", s.listWarnings)
	s.router.HandleFunc("POST /api/warnings", s.reportWarning)
	s.router.HandleFunc("POST /api/warnings/{problemType}/postpone", s.postponeWarning)
	s.router.HandleFunc("POST /api/warnings/{problemType}/resolve", s.resolveWarning)

	s.router.HandleFunc("GET /api/events", s.events)
	s.router.HandleFunc("GET /api/journal", s.recentJournal)
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Request/Response types for JSON serialization
type StatusResponse struct {
	State       string `json:"state"`
	Queued      int    `json:"queued"`
	LastError   string `json:"last_error,omitempty"`
	Name        string `json:"name,omitempty"`
	Fingerprint string `json:"fingerprint"`
	Moderator   bool   `json:"moderator"`
}

type PageRequest struct {
	Title     string `json:"title"`
	SelfLabel string `json:"self_label"`
	Moderator *bool  `json:"moderator,omitempty"`
}

type MessageIDRequest struct {
	Text string `json:"text"`
	User string `json:"user"`
	Time string `json:"time"`
}

type PresenceResponse struct {
	Users        []presence.Participant `json:"users"`
	Contributors []presence.Contributor `json:"contributors"`
}

type ToggleRequest struct {
	Emoji string `json:"emoji"`
}

type EmojisRequest struct {
	Emojis []string `json:"emojis"`
}

type PauseRequest struct {
	Minutes int    `json:"minutes"`
	Reason  string `json:"reason"`
}

type PauseResponse struct {
	Active bool                     `json:"active"`
	Pause  *types.PauseAnnouncement `json:"pause,omitempty"`
}

type WarningRequest struct {
	ProblemType string `json:"problem_type"`
}

type WarningsResponse struct {
	Alerts   []types.WarningAlert `json:"alerts"`
	Problems []warning.Problem    `json:"problems"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Relay     string    `json:"relay"`
	Journal   string    `json:"journal"`
	Uptime    string    `json:"uptime"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FUNCTIONAL DISCOVERY: GET /health - relay and journal health; a parked relay is degraded, not down
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	journalStatus := "disabled"
	if s.deps.Journal != nil {
		journalStatus = "healthy"
		if err := s.deps.Journal.HealthCheck(ctx); err != nil {
			status = "unhealthy"
			journalStatus = fmt.Sprintf("error: %v", err)
		}
	}

	state := s.deps.Transport.State()
	if state != websocket.StateRegistered && status == "healthy" {
		status = "degraded"
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Relay:     state.String(),
		Journal:   journalStatus,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		State:       s.deps.Transport.State().String(),
		Queued:      s.deps.Transport.QueueLen(),
		Fingerprint: s.deps.Identity.SessionFingerprint(),
		Moderator:   s.deps.Moderator.IsModerator(),
	}
	if err := s.deps.Transport.Err(); err != nil {
		resp.LastError = err.Error()
	}
	if name, ok := s.deps.Identity.DisplayName(); ok {
		resp.Name = name
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// FUNCTIONAL DISCOVERY: PUT /api/page - the overlay pushes the presentation title and self label whenever they render
func (s *Server) updatePage(w http.ResponseWriter, r *http.Request) {
	var req PageRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.deps.Page.Update(req.Title, req.SelfLabel)
	if req.Moderator != nil {
		s.deps.Page.SetModerator(*req.Moderator)
	}
	s.status(w, r)
}

func (s *Server) messageID(w http.ResponseWriter, r *http.Request) {
	var req MessageIDRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"id": identity.MessageID(req.Text, req.User, req.Time)})
}

func (s *Server) listPresence(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, PresenceResponse{
		Users:        s.deps.Presence.Users(),
		Contributors: s.deps.Presence.Contributors(),
	})
}

func (s *Server) userStatus(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s.sendJSON(w, http.StatusOK, map[string]string{
		"name":   name,
		"status": string(s.deps.Presence.UserStatus(name)),
	})
}

func (s *Server) refreshPresence(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Presence.RequestRefresh(); err != nil {
		s.sendFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) reactionSnapshot(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.deps.Reactions.Snapshot())
}

func (s *Server) messageReactions(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.deps.Reactions.Reactions(r.PathValue("messageID")))
}

func (s *Server) toggleReaction(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if !s.decode(w, r, &req) {
		return
	}
	messageID := r.PathValue("messageID")
	action, err := s.deps.Reactions.Toggle(messageID, req.Emoji)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{
		"action":    action,
		"reactions": s.deps.Reactions.Reactions(messageID),
	})
}

func (s *Server) listEmojis(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, EmojisRequest{Emojis: s.deps.Emojis.Emojis()})
}

func (s *Server) saveEmojis(w http.ResponseWriter, r *http.Request) {
	var req EmojisRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.deps.Emojis.Save(req.Emojis); err != nil {
		s.sendFailure(w, err)
		return
	}
	s.listEmojis(w, r)
}

func (s *Server) activePause(w http.ResponseWriter, r *http.Request) {
	ann, ok := s.deps.Pause.Active()
	if !ok {
		s.sendJSON(w, http.StatusOK, PauseResponse{})
		return
	}
	s.sendJSON(w, http.StatusOK, PauseResponse{Active: true, Pause: &ann})
}

func (s *Server) announcePause(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if !s.decode(w, r, &req) {
		return
	}
	data, err := s.deps.Pause.Announce(req.Minutes, req.Reason)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, data)
}

func (s *Server) extendPause(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if !s.decode(w, r, &req) {
		return
	}
	data, err := s.deps.Pause.Extend(req.Minutes)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, data)
}

func (s *Server) stopPause(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Pause.Stop(); err != nil {
		s.sendFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listWarnings(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, WarningsResponse{
		Alerts:   s.deps.Warnings.Alerts(),
		Problems: warning.Problems,
	})
}

func (s *Server) reportWarning(w http.ResponseWriter, r *http.Request) {
	var req WarningRequest
	if !s.decode(w, r, &req) {
		return
	}
	data, err := s.deps.Warnings.Report(req.ProblemType)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, data)
}

func (s *Server) postponeWarning(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Warnings.Postpone(r.PathValue("problemType")); err != nil {
		s.sendFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resolveWarning(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Warnings.Resolve(r.PathValue("problemType")); err != nil {
		s.sendFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FUNCTIONAL DISCOVERY: GET /api/events?since=N - the overlay polls with the last sequence it rendered
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			s.sendError(w, "since must be a sequence number", http.StatusBadRequest)
			return
		}
		since = n
	}
	s.sendJSON(w, http.StatusOK, s.deps.Events.Since(since))
}

func (s *Server) recentJournal(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		s.sendError(w, "Journal is disabled", http.StatusNotFound)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.sendError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := s.deps.Journal.Recent(r.Context(), limit)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	if entries == nil {
		entries = []*types.JournalEntry{}
	}
	s.sendJSON(w, http.StatusOK, entries)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// statusFor maps component errors onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrNotModerator):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrNoIdentity):
		return http.StatusConflict
	case errors.Is(err, pause.ErrNoActivePause), errors.Is(err, warning.ErrNoAlert):
		return http.StatusNotFound
	case errors.Is(err, pause.ErrInvalidDuration),
		errors.Is(err, pause.ErrNotLonger),
		errors.Is(err, warning.ErrUnknownProblem),
		errors.Is(err, reaction.ErrEmptyPalette),
		errors.Is(err, types.ErrEmptyMessageID),
		errors.Is(err, types.ErrEmptyEmoji),
		errors.Is(err, types.ErrInvalidAction):
		return http.StatusBadRequest
	case errors.Is(err, journal.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendFailure(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.sendError(w, err.Error(), code)
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// ARCHITECTURAL DISCOVERY: CORS middleware lets the overlay script call the loopback API from the meeting origin
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
