// Package api serves the hub's HTTP surface: health, runtime stats, the
// support desk settings and the websocket upgrade path.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"eduhub/internal/logger"
	"eduhub/internal/support"
	"eduhub/internal/websocket"
	"eduhub/pkg/types"
)

// AdminTokenHeader carries the admin token on mutating requests.
const AdminTokenHeader = "X-Admin-Token"

const healthCheckTimeout = 5 * time.Second

// HealthChecker reports store connectivity.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Registry is the part of the connection registry the API reads.
type Registry interface {
	Stats() websocket.Stats
}

// SupportDesk is the part of the support engine the API reads and tunes.
type SupportDesk interface {
	Settings() support.Settings
	UpdateSettings(s support.Settings) error
	Assignments() []types.GuestAssignee
}

// Options configure the routes.
type Options struct {
	// AdminToken guards PUT /api/support/settings. Empty leaves it open.
	AdminToken string

	// WebSocketPath is the only path that upgrades.
	WebSocketPath string

	// WebSocket serves the upgrade. Nil leaves the path unrouted.
	WebSocket http.Handler
}

type Server struct {
	store    HealthChecker
	registry Registry
	desk     SupportDesk
	opts     Options
	router   chi.Router
	log      *slog.Logger
	started  time.Time
}

func NewServer(store HealthChecker, registry Registry, desk SupportDesk, opts Options) *Server {
	if opts.WebSocketPath == "" {
		opts.WebSocketPath = "/ws"
	}
	s := &Server{
		store:    store,
		registry: registry,
		desk:     desk,
		opts:     opts,
		router:   chi.NewRouter(),
		log:      logger.Component("api"),
		started:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(corsMiddleware)
		r.Get("/stats", s.stats)
		r.Route("/support", func(r chi.Router) {
			r.Get("/assignments", s.assignments)
			r.Get("/settings", s.getSettings)
			r.With(s.requireAdmin).Put("/settings", s.putSettings)
		})
	})

	if s.opts.WebSocket != nil {
		r.Get(s.opts.WebSocketPath, s.opts.WebSocket.ServeHTTP)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type HealthResponse struct {
	Status      string          `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
	Database    string          `json:"database"`
	Connections websocket.Stats `json:"connections"`
	Uptime      string          `json:"uptime"`
}

type StatsResponse struct {
	Connections websocket.Stats `json:"connections"`
	Transports  int             `json:"transports"`
	Assignments int             `json:"assignments"`
	AgentLoad   map[string]int  `json:"agentLoad"`
}

type AssignmentsResponse struct {
	Assignments []types.GuestAssignee `json:"assignments"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// healthCheck answers 503 while the store is unreachable.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now().UTC(),
		Database:    "ok",
		Connections: s.registry.Stats(),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
	}
	status := http.StatusOK
	if err := s.store.HealthCheck(ctx); err != nil {
		s.log.Error("health check failed", slog.Any("error", err))
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	assignments := s.desk.Assignments()
	load := make(map[string]int)
	for _, a := range assignments {
		load[a.Agent.ID]++
	}
	resp := StatsResponse{
		Connections: s.registry.Stats(),
		Assignments: len(assignments),
		AgentLoad:   load,
	}
	// Transports include connections that have not authenticated yet.
	if counter, ok := s.opts.WebSocket.(interface{ ActiveConnections() int }); ok {
		resp.Transports = counter.ActiveConnections()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) assignments(w http.ResponseWriter, r *http.Request) {
	assignments := s.desk.Assignments()
	if assignments == nil {
		assignments = []types.GuestAssignee{}
	}
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].GuestID < assignments[j].GuestID })
	writeJSON(w, http.StatusOK, AssignmentsResponse{Assignments: assignments})
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.desk.Settings())
}

// putSettings overlays the request body on the current settings, so absent
// fields keep their values.
func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	settings := s.desk.Settings()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&settings); err != nil {
		sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := s.desk.UpdateSettings(settings); err != nil {
		if errors.Is(err, support.ErrInvalidSettings) {
			sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.log.Error("failed to update support settings", slog.Any("error", err))
		sendError(w, "Failed to update settings", http.StatusInternalServerError)
		return
	}

	s.log.Info("support settings updated",
		slog.String("mode", string(settings.Mode)),
		slog.String("policy", string(settings.Policy)),
		slog.Int("max_concurrent_sessions", settings.MaxConcurrentSessions))
	writeJSON(w, http.StatusOK, s.desk.Settings())
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AdminToken != "" {
			got := r.Header.Get(AdminTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.AdminToken)) != 1 {
				sendError(w, "Admin token required", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+AdminTokenHeader)
		w.Header().Set("Access-Control-Max-Age", "86400")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L.Debug("failed to encode response", slog.Any("error", err))
	}
}

func sendError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}
