package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shorts-creator/internal/domain"
	"shorts-creator/internal/jobs"
	"shorts-creator/internal/metrics"
	"shorts-creator/internal/timecode"
)

const wsWriteTimeout = 10 * time.Second

// Service is the application surface the HTTP layer exposes.
type Service interface {
	Submit(job domain.ProcessingJob) (*jobs.Handle, error)
	Cancel() error
	CurrentJob() domain.Job
	JobEvents(sinceSeq int64) []jobs.Event
	GetDiagnostics() domain.DiagnosticReport
	RefreshDiagnostics() (domain.DiagnosticReport, error)
	InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error)
	GetSettings() (domain.Settings, error)
	SaveSettings(settings domain.Settings) (domain.Settings, error)
	AddListener(fn func(jobs.Event))
}

// Server routes API requests and streams job events over websockets.
type Server struct {
	logger   *slog.Logger
	service  Service
	router   *chi.Mux
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[string]map[*wsClient]struct{}
}

// wsClient serializes writes to one websocket connection.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(v)
}

// New constructs the server, mounts routes, and subscribes to job events.
func New(logger *slog.Logger, service Service) *Server {
	s := &Server{
		logger:  logger,
		service: service,
		router:  chi.NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: make(map[string]map[*wsClient]struct{}),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(s.metricsMiddleware)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.router.Get("/diagnostics", s.handleGetDiagnostics)
	s.router.Post("/diagnostics/refresh", s.handleRefreshDiagnostics)
	s.router.Post("/diagnostics/{id}/fix", s.handleFixDiagnostic)

	s.router.Get("/settings", s.handleGetSettings)
	s.router.Put("/settings", s.handleSaveSettings)

	s.router.Post("/jobs", s.handleSubmitJob)
	s.router.Get("/jobs/current", s.handleCurrentJob)
	s.router.Delete("/jobs/current", s.handleCancelJob)
	s.router.Get("/jobs/events", s.handleJobEvents)
	s.router.Get("/ws/{jobID}", s.handleWebsocket)

	service.AddListener(s.broadcast)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// metricsMiddleware records per-route request counts.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = r.URL.Path
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(ww.Status())).Inc()
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetDiagnostics(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.service.GetDiagnostics())
}

func (s *Server) handleRefreshDiagnostics(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.RefreshDiagnostics()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleFixDiagnostic(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.InstallOrFixDiagnostic(chi.URLParam(r, "id"))
	if err != nil {
		s.respondJSON(w, http.StatusBadGateway, map[string]any{
			"error":  err.Error(),
			"report": report,
		})
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.service.GetSettings()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, settings)
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	saved, err := s.service.SaveSettings(settings)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, saved)
}

// submitRequest is the POST /jobs payload. Timestamps is the raw
// multi-line MM:SS-MM:SS text block.
type submitRequest struct {
	TopVideoPath    string `json:"topVideoPath"`
	BottomVideoPath string `json:"bottomVideoPath"`
	AudioPath       string `json:"audioPath,omitempty"`
	OutputDir       string `json:"outputDir,omitempty"`
	Timestamps      string `json:"timestamps"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	segments, err := timecode.ParseSegments(req.Timestamps)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	handle, err := s.service.Submit(domain.ProcessingJob{
		TopVideoPath:    req.TopVideoPath,
		BottomVideoPath: req.BottomVideoPath,
		AudioPath:       req.AudioPath,
		OutputDir:       req.OutputDir,
		Segments:        segments,
	})
	if err != nil {
		if errors.Is(err, jobs.ErrJobAlreadyRunning) {
			s.respondError(w, http.StatusConflict, err)
			return
		}
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	s.respondJSON(w, http.StatusAccepted, map[string]string{"jobId": handle.ID()})
}

func (s *Server) handleCurrentJob(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.service.CurrentJob())
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Cancel(); err != nil {
		if errors.Is(err, jobs.ErrNoRunningJob) {
			s.respondError(w, http.StatusNotFound, err)
			return
		}
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	since := int64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err)
			return
		}
		since = parsed
	}

	events := s.service.JobEvents(since)
	if events == nil {
		events = []jobs.Event{}
	}
	s.respondJSON(w, http.StatusOK, events)
}

// handleWebsocket streams one job's events. Buffered history is
// replayed on connect so late subscribers see the full timeline.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := &wsClient{conn: conn}

	for _, event := range s.service.JobEvents(0) {
		if event.JobID != jobID {
			continue
		}
		if err := client.writeJSON(event); err != nil {
			_ = conn.Close()
			return
		}
	}

	s.subscribe(jobID, client)
	defer func() {
		s.unsubscribe(jobID, client)
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) subscribe(jobID string, client *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[jobID] == nil {
		s.subs[jobID] = make(map[*wsClient]struct{})
	}
	s.subs[jobID][client] = struct{}{}
}

func (s *Server) unsubscribe(jobID string, client *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs[jobID], client)
	if len(s.subs[jobID]) == 0 {
		delete(s.subs, jobID)
	}
}

// broadcast fans one event out to that job's websocket subscribers.
func (s *Server) broadcast(event jobs.Event) {
	s.mu.Lock()
	clients := make([]*wsClient, 0, len(s.subs[event.JobID]))
	for client := range s.subs[event.JobID] {
		clients = append(clients, client)
	}
	s.mu.Unlock()

	for _, client := range clients {
		if err := client.writeJSON(event); err != nil {
			s.logger.Warn("websocket write failed", "jobId", event.JobID, "error", err)
			s.unsubscribe(event.JobID, client)
			_ = client.conn.Close()
		}
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.respondJSON(w, status, map[string]string{"error": err.Error()})
}
