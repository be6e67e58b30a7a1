package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pubcrawl-badges/internal/badge"
	"github.com/pubcrawl-badges/internal/domain"
	"github.com/pubcrawl-badges/internal/websocket"
)

// BadgeService is the service surface exposed over HTTP
type BadgeService interface {
	RecordCheckIn(ctx context.Context, submission domain.CheckInSubmission) (*domain.CheckInResult, error)
	RecordCheckInBatch(ctx context.Context, batch domain.BatchCheckInSubmission) error
	CheckIns(ctx context.Context, userID string) ([]domain.CheckIn, error)
	EarnedBadges(ctx context.Context, userID string) ([]domain.EarnedBadge, error)
	PreviewBadges(ctx context.Context, userID string) ([]string, error)
	DebugBadges(ctx context.Context, userID string) (*badge.DebugReport, error)
	CatchUp(ctx context.Context, userID string) ([]domain.EarnedBadge, error)
	RevokeBadge(ctx context.Context, userID, badgeID string) error
	ListBadges() []domain.Badge
	GetBadge(badgeID string) (*domain.Badge, error)
	SaveBadge(ctx context.Context, b domain.Badge) (*domain.Badge, error)
	DeleteBadge(ctx context.Context, badgeID string) error
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides HTTP handlers for the badge API
type Handler struct {
	service BadgeService
	hub     *websocket.Hub
	pingers map[string]Pinger
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler. pingers are checked by /ready.
func NewHandler(service BadgeService, hub *websocket.Hub, pingers map[string]Pinger, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		pingers: pingers,
		logger:  logger.With("component", "http"),
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Check-ins
		r.Post("/checkins", h.RecordCheckIn)
		r.Post("/checkins/batch", h.RecordCheckInBatch)

		// Per-user views
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/checkins", h.ListCheckIns)
			r.Get("/badges", h.ListEarnedBadges)
			r.Get("/badges/eligible", h.PreviewBadges)
			r.Get("/badges/debug", h.DebugBadges)
			r.Post("/badges/catch-up", h.CatchUp)
			r.Delete("/badges/{badgeID}", h.RevokeBadge)
		})

		// Badge catalog
		r.Route("/badges", func(r chi.Router) {
			r.Get("/", h.ListBadges)
			r.Post("/", h.SaveBadge)
			r.Get("/{badgeID}", h.GetBadge)
			r.Delete("/{badgeID}", h.DeleteBadge)
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps a service error to its HTTP status
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, msg string, args ...any) {
	switch {
	case domain.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	default:
		h.logger.Error(msg, append(args, "error", err)...)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.hub.GetStats())
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck pings every dependency
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.pingers))
	ready := true
	for name, p := range h.pingers {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", "dependency", name, "error", err)
			checks[name] = "unavailable"
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	if !ready {
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    checks,
			Error:   "not ready",
		})
		return
	}
	h.writeSuccess(w, map[string]interface{}{"status": "ready", "checks": checks})
}

// RecordCheckIn handles a single check-in
func (h *Handler) RecordCheckIn(w http.ResponseWriter, r *http.Request) {
	var submission domain.CheckInSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result, err := h.service.RecordCheckIn(r.Context(), submission)
	if err != nil {
		h.writeServiceError(w, err, "failed to record check-in", "user_id", submission.UserID)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    result,
	})
}

// RecordCheckInBatch handles batch check-in submission
func (h *Handler) RecordCheckInBatch(w http.ResponseWriter, r *http.Request) {
	var batch domain.BatchCheckInSubmission
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if len(batch.CheckIns) == 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.service.RecordCheckInBatch(r.Context(), batch); err != nil {
		h.writeServiceError(w, err, "failed to record check-in batch")
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"status":   "accepted",
		"received": len(batch.CheckIns),
	})
}

// ListCheckIns returns a user's check-in history
func (h *Handler) ListCheckIns(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	checkIns, err := h.service.CheckIns(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "failed to list check-ins", "user_id", userID)
		return
	}

	h.writeSuccess(w, checkIns)
}

// ListEarnedBadges returns the badges a user holds
func (h *Handler) ListEarnedBadges(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	badges, err := h.service.EarnedBadges(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "failed to list earned badges", "user_id", userID)
		return
	}

	h.writeSuccess(w, badges)
}

// PreviewBadges returns the badges a user would newly earn now
func (h *Handler) PreviewBadges(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	eligible, err := h.service.PreviewBadges(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "failed to preview badges", "user_id", userID)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"user_id":  userID,
		"eligible": eligible,
	})
}

// DebugBadges returns the per-rule evaluation for a user
func (h *Handler) DebugBadges(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	report, err := h.service.DebugBadges(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "failed to debug badges", "user_id", userID)
		return
	}

	h.writeSuccess(w, report)
}

// CatchUp awards any badge the user qualifies for but lacks
func (h *Handler) CatchUp(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	awarded, err := h.service.CatchUp(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "failed to catch up badges", "user_id", userID)
		return
	}

	h.writeSuccess(w, awarded)
}

// ListBadges returns the badge catalog
func (h *Handler) ListBadges(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.service.ListBadges())
}

// GetBadge returns a badge definition
func (h *Handler) GetBadge(w http.ResponseWriter, r *http.Request) {
	badgeID := chi.URLParam(r, "badgeID")
	if badgeID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	b, err := h.service.GetBadge(badgeID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get badge", "badge_id", badgeID)
		return
	}

	h.writeSuccess(w, b)
}

// SaveBadge creates or updates a badge definition
func (h *Handler) SaveBadge(w http.ResponseWriter, r *http.Request) {
	var b domain.Badge
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	saved, err := h.service.SaveBadge(r.Context(), b)
	if err != nil {
		h.writeServiceError(w, err, "failed to save badge", "badge_id", b.ID)
		return
	}

	h.writeSuccess(w, saved)
}

// RevokeBadge takes an earned badge away from a user
func (h *Handler) RevokeBadge(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	badgeID := chi.URLParam(r, "badgeID")

	if err := h.service.RevokeBadge(r.Context(), userID, badgeID); err != nil {
		h.writeServiceError(w, err, "failed to revoke badge", "user_id", userID, "badge_id", badgeID)
		return
	}

	h.writeSuccess(w, map[string]string{"status": "revoked"})
}

// DeleteBadge removes a badge definition
func (h *Handler) DeleteBadge(w http.ResponseWriter, r *http.Request) {
	badgeID := chi.URLParam(r, "badgeID")
	if badgeID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.service.DeleteBadge(r.Context(), badgeID); err != nil {
		h.writeServiceError(w, err, "failed to delete badge", "badge_id", badgeID)
		return
	}

	h.writeSuccess(w, map[string]string{"status": "deleted"})
}
